// Package shard assembles one world from server configuration: entity
// types, pricing, event sinks, and the save layout with its backups.
package shard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/config"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/entities"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/patch"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/archive"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/indexdb"
	persistlog "github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/log"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/store"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/resourcepool"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

type Shard struct {
	cfg config.Config
	log *log.Logger
	now func() time.Time

	World *world.World
	Book  *resourcepool.Book
	Index *indexdb.SQLiteIndex
	Audit *persistlog.AuditLogger

	deps   entities.Deps
	saveMu sync.Mutex
}

type Options struct {
	Logger *log.Logger
	// Sinks receive world events in addition to the audit log and index.
	Sinks  []world.EventSink
	Now    func() time.Time
}

// Open builds the world for cfg. Nothing is read from the save directory
// until Boot.
func Open(cfg config.Config, opts Options) (*Shard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if opts.Logger == nil {
		return nil, errors.New("shard: nil logger")
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	s := &Shard{
		cfg:  cfg,
		log:  opts.Logger,
		now:  opts.Now,
		Book: resourcepool.NewBook(),
	}
	s.deps = entities.Deps{Pricing: s.Book, Now: opts.Now}

	var sinks world.Sinks
	if cfg.AuditLog {
		s.Audit = persistlog.NewAuditLogger(cfg.AuditDir(), cfg.AuditRotate)
		s.Audit.OnError = func(err error) { s.log.Printf("audit: %v", err) }
		sinks = append(sinks, s.Audit)
	}
	if cfg.IndexDB {
		idx, err := indexdb.OpenSQLite(cfg.IndexPath(), patch.Dynamic)
		if err != nil {
			s.closeSinks()
			return nil, fmt.Errorf("open index %s: %w", cfg.IndexPath(), err)
		}
		s.Index = idx
		sinks = append(sinks, idx)
	}
	sinks = append(sinks, opts.Sinks...)

	reg := world.NewRegistry()
	entities.Register(reg, s.deps)
	s.World = world.New(world.Config{
		ID:           cfg.WorldID,
		Registry:     reg,
		Patches:      patch.Dynamic,
		Logger:       s.log,
		Events:       sinks,
		LenientArity: !cfg.StrictArity,
	})
	resourcepool.Register(s.World, s.Book, cfg.Pricing, s.log)
	return s, nil
}

func (s *Shard) Config() config.Config { return s.cfg }

// Boot loads the current save when there is one, then applies every pending
// startup patch. A fresh shard still runs its pre-load hooks so the pricing
// book is populated.
func (s *Shard) Boot(ctx context.Context) (loaded bool, err error) {
	if loaded, err = s.LoadCurrent(ctx); err != nil {
		return loaded, err
	}
	applied, err := s.World.ApplyPatches(ctx, entities.StartupPatches(s.deps))
	if err != nil {
		return loaded, fmt.Errorf("startup patches: %w", err)
	}
	if len(applied) > 0 {
		s.log.Printf("startup patches applied: %v", applied)
	}
	if s.Index != nil {
		s.Index.RecordPatches(s.World.PatchEntries())
	}
	return loaded, nil
}

// LoadCurrent loads the committed save, if any. Without one it only runs the
// pre-load hooks.
func (s *Shard) LoadCurrent(ctx context.Context) (bool, error) {
	dir := s.cfg.CurrentDir()
	if !store.Exists(dir) {
		s.log.Printf("no save at %s; starting empty", dir)
		return false, s.World.LoadEmpty(ctx)
	}
	sv, err := store.Open(dir)
	if err != nil {
		return false, err
	}
	if sv.Manifest.WorldID != "" && sv.Manifest.WorldID != s.cfg.WorldID {
		return false, fmt.Errorf("save world id mismatch: config=%s save=%s", s.cfg.WorldID, sv.Manifest.WorldID)
	}
	if _, err := s.World.Load(ctx, sv); err != nil {
		return false, fmt.Errorf("load %s: %w", dir, err)
	}
	return true, nil
}

// Save writes a new current save, moving the previous one into the backups
// directory and pruning old backups. Concurrent calls are serialized.
func (s *Shard) Save(ctx context.Context) (world.SaveStats, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	sw, err := store.Create(s.cfg.CurrentDir(), store.Options{WorldID: s.cfg.WorldID, Level: s.cfg.Level()})
	if err != nil {
		return world.SaveStats{}, err
	}
	previous := ""
	if s.cfg.BackupsKeep > 0 {
		previous = archive.NextPath(s.cfg.BackupsDir(), s.now())
	}
	st, err := s.World.Save(ctx, sw, previous)
	if err != nil {
		return st, err
	}
	if s.cfg.BackupsKeep > 0 {
		removed, err := archive.Prune(s.cfg.BackupsDir(), s.cfg.BackupsKeep)
		if err != nil {
			s.log.Printf("prune backups: %v", err)
		} else if len(removed) > 0 {
			s.log.Printf("pruned %d backups", len(removed))
		}
	}
	if s.Index != nil {
		s.Index.RecordSave(st.Dir, st)
		s.Index.RecordPatches(s.World.PatchEntries())
	}
	return st, nil
}

// Autosave saves every interval until ctx is done. A zero interval disables
// it.
func (s *Shard) Autosave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Save(ctx); err != nil {
				s.log.Printf("autosave failed: %v", err)
			}
		}
	}
}

func (s *Shard) Close() error {
	return s.closeSinks()
}

func (s *Shard) closeSinks() error {
	var errs []error
	if s.Index != nil {
		errs = append(errs, s.Index.Close())
	}
	if s.Audit != nil {
		errs = append(errs, s.Audit.Close())
	}
	return errors.Join(errs...)
}
