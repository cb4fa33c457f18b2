package entities

import (
	"context"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/patch"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/resourcepool"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

// StartupPatches returns the patches still carried in code, in catalog order.
// TeleporterCreatureFix, ResourcePoolReprice, RegionGuardReset and
// BankBoxTitheFix ran on every live shard before the table existed; their
// code is gone and their slots are only ever set by legacy migration.
func StartupPatches(d Deps) []world.PatchStep {
	return []world.PatchStep{
		{Patch: patch.SpawnerDelayNormalize, Run: each(normalizeSpawnerDelay)},
		{Patch: patch.ContainerWeightRecalc, Run: each(recalcContainerWeight)},
		{Patch: patch.OrphanedItemCleanup, Run: cleanupOrphans},
		{Patch: patch.MobileThreatLevelInit, Run: each(initThreatLevel)},
		{Patch: patch.SpawnerNextSpawnReseed, Run: each(func(_ *world.Tx, e world.Entity) {
			s, ok := e.(*Spawner)
			if ok && s.NextSpawn.IsZero() {
				s.NextSpawn = d.now().Add(s.MinDelay)
			}
		})},
		{Patch: patch.TeleporterLinkRepair, Run: each(repairTeleporterLink)},
		{Patch: patch.PricingTableV2, Run: each(func(tx *world.Tx, e world.Entity) {
			p, ok := e.(*ResourcePool)
			if !ok || p.PricingTable != "" {
				return
			}
			p.PricingTable = resourcepool.DefaultTable
			p.Reprice(tx)
		})},
	}
}

func each(fn func(tx *world.Tx, e world.Entity)) func(context.Context, *world.Tx) error {
	return func(ctx context.Context, tx *world.Tx) error {
		tx.Each(func(e world.Entity) bool {
			fn(tx, e)
			return ctx.Err() == nil
		})
		return ctx.Err()
	}
}

func normalizeSpawnerDelay(_ *world.Tx, e world.Entity) {
	s, ok := e.(*Spawner)
	if !ok {
		return
	}
	if s.MaxDelay < s.MinDelay {
		s.MinDelay, s.MaxDelay = s.MaxDelay, s.MinDelay
	}
	if s.MinDelay <= 0 {
		s.MinDelay = defaultMinDelay
	}
	if s.MaxDelay < s.MinDelay {
		s.MaxDelay = s.MinDelay
	}
}

func recalcContainerWeight(_ *world.Tx, e world.Entity) {
	if c, ok := e.(*Container); ok {
		c.Recompute()
	}
}

// cleanupOrphans deletes plain items that are on no container or mobile and
// have no stack left.
func cleanupOrphans(ctx context.Context, tx *world.Tx) error {
	var doomed []world.Entity
	tx.Each(func(e world.Entity) bool {
		it, ok := e.(*Item)
		if ok && it.Parent == nil && it.Amount <= 0 {
			doomed = append(doomed, e)
		}
		return true
	})
	for _, e := range doomed {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx.Delete(e.Serial())
	}
	if len(doomed) > 0 {
		tx.Logger().Printf("deleted %d orphaned items", len(doomed))
	}
	return nil
}

func initThreatLevel(_ *world.Tx, e world.Entity) {
	m, ok := e.(*Mobile)
	if ok && m.ThreatLevel == 0 {
		m.ThreatLevel = m.BaseHits / 10
	}
}

func repairTeleporterLink(_ *world.Tx, e world.Entity) {
	t, ok := e.(*Teleporter)
	if !ok || t.Link == nil || t.Link.Deleted() {
		return
	}
	if t.Link.Link == nil {
		t.Link.Link = t
	}
}
