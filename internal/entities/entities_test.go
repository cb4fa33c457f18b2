package entities

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/patch"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/codec"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/store"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/resourcepool"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

var moved = time.Date(2004, 6, 1, 12, 30, 0, 0, time.UTC)

func newWorld(t *testing.T, d Deps) *world.World {
	t.Helper()
	reg := world.NewRegistry()
	Register(reg, d)
	return world.New(world.Config{ID: "angel_island", Registry: reg, Logger: log.New(io.Discard, "", 0)})
}

func create[T world.Entity](t *testing.T, w *world.World, typ string) T {
	t.Helper()
	e, err := w.Create(typ)
	require.NoError(t, err)
	return e.(T)
}

func roundTrip(t *testing.T, src, dst *world.World) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "current")
	sw, err := store.Create(dir, store.Options{WorldID: src.ID()})
	require.NoError(t, err)
	_, err = src.Save(context.Background(), sw, "")
	require.NoError(t, err)
	s, err := store.Open(dir)
	require.NoError(t, err)
	_, err = dst.Load(context.Background(), s)
	require.NoError(t, err)
}

func lookup[T world.Entity](t *testing.T, w *world.World, s serial.Serial) T {
	t.Helper()
	e, ok := w.Lookup(s)
	require.True(t, ok, "serial %v missing", s)
	return e.(T)
}

func TestMobile_Version1ReadsThreatLevelBeforeBaseHits(t *testing.T) {
	w := codec.NewWriter()
	w.WriteVersion(1)
	w.WriteInt(5)
	w.WriteInt(50)
	w.WriteString("a guard")
	w.WriteEncodedInt(400)
	w.WritePoint3D(codec.Point3D{X: 1, Y: 2, Z: 3})
	w.WriteString("Felucca")
	w.WriteSerial(serial.Null)

	m := NewMobile(1)
	r := codec.NewReader(w.Bytes(), nil)
	require.NoError(t, m.Deserialize(r))
	assert.Equal(t, 0, r.Remaining())
	assert.Equal(t, 5, m.ThreatLevel)
	assert.Equal(t, 50, m.BaseHits)
	assert.Equal(t, "a guard", m.Name)
	assert.Nil(t, m.Title)
	assert.Nil(t, m.Backpack)
}

func TestMobile_Version0LeavesThreatLevelDefault(t *testing.T) {
	w := codec.NewWriter()
	w.WriteVersion(0)
	w.WriteInt(50)
	w.WriteString("a guard")
	w.WriteEncodedInt(400)
	w.WritePoint3D(codec.Point3D{})
	w.WriteString("Trammel")
	w.WriteSerial(serial.Null)

	m := NewMobile(1)
	r := codec.NewReader(w.Bytes(), nil)
	require.NoError(t, m.Deserialize(r))
	assert.Equal(t, 0, r.Remaining())
	assert.Equal(t, 0, m.ThreatLevel)
	assert.Equal(t, 50, m.BaseHits)
	assert.Equal(t, "Trammel", m.Map)
}

func TestItem_OldVersionsSkipStoredWeight(t *testing.T) {
	for _, v := range []int{0, 1, 2} {
		w := codec.NewWriter()
		w.WriteVersion(v)
		if v >= 2 {
			w.WriteTime(moved)
		}
		if v >= 1 {
			w.WriteSerial(serial.Null)
		}
		w.WriteString("ingot")
		w.WriteEncodedInt(0x44E)
		w.WriteInt(20)
		w.WritePoint3D(codec.Point3D{X: 1500, Y: 1600})
		w.WriteDouble(0.1 * 20)

		it := NewItem(serial.MinItem)
		r := codec.NewReader(w.Bytes(), nil)
		require.NoError(t, it.Deserialize(r), "version %d", v)
		assert.Equal(t, 0, r.Remaining(), "version %d", v)
		assert.Equal(t, "ingot", it.Name)
		assert.Equal(t, 0x44E, it.Hue)
		assert.Equal(t, 20, it.Amount)
		if v >= 2 {
			assert.True(t, it.LastMoved.Equal(moved))
		} else {
			assert.True(t, it.LastMoved.IsZero())
		}
	}
}

func TestItem_CurrentVersionHasNoWeight(t *testing.T) {
	it := NewItem(serial.MinItem)
	it.Name = "ingot"
	w := codec.NewWriter()
	it.Serialize(w)

	got := NewItem(serial.MinItem)
	r := codec.NewReader(w.Bytes(), nil)
	require.NoError(t, got.Deserialize(r))
	assert.Equal(t, 0, r.Remaining())
	assert.Equal(t, "ingot", got.Name)
}

func TestSpawner_Version0KeepsDefaultDelays(t *testing.T) {
	src := NewItem(serial.MinItem)
	w := codec.NewWriter()
	src.Serialize(w)
	w.WriteVersion(0)
	w.WriteStringList([]string{"orc", "ettin"})
	w.WriteInt(3)

	s := NewSpawner(serial.MinItem)
	r := codec.NewReader(w.Bytes(), nil)
	require.NoError(t, s.Deserialize(r))
	assert.Equal(t, 0, r.Remaining())
	assert.Equal(t, []string{"orc", "ettin"}, s.Creatures)
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, defaultMinDelay, s.MinDelay)
	assert.Equal(t, defaultMaxDelay, s.MaxDelay)
	assert.True(t, s.NextSpawn.IsZero())
}

func TestWorld_RoundTripAllTypes(t *testing.T) {
	book := resourcepool.NewBook()
	book.Replace([]*resourcepool.Table{
		resourcepool.NewTable(resourcepool.DefaultTable, resourcepool.Resource{Name: "ingots", Price: 9, Max: 100}),
		resourcepool.NewTable("vendor", resourcepool.Resource{Name: "ingots", Price: 12, Max: 50}),
	})
	d := Deps{Pricing: book}
	src := newWorld(t, d)

	guard := create[*Mobile](t, src, TypeMobile)
	guard.Name, guard.BaseHits, guard.ThreatLevel = "a guard", 120, 7
	title := "the Brave"
	guard.Title = &title

	pack := create[*Container](t, src, TypeContainer)
	guard.Backpack = pack
	pack.Parent = guard
	gold := create[*Item](t, src, TypeItem)
	gold.Name, gold.Amount, gold.LastMoved = "gold", 30, moved
	pouch := create[*Container](t, src, TypeContainer)
	gem := create[*Item](t, src, TypeItem)
	gem.Amount = 4
	pouch.Add(gem)
	pack.Add(gold)
	pack.Add(pouch)

	a := create[*Teleporter](t, src, TypeTeleporter)
	b := create[*Teleporter](t, src, TypeTeleporter)
	a.Link, b.Link = b, a
	a.Dest, a.DestMap, a.Delay, a.Creatures = codec.Point3D{X: 5, Y: 6, Z: 7}, "Ilshenar", 2*time.Second, true

	sp := create[*Spawner](t, src, TypeSpawner)
	sp.Creatures, sp.Count = []string{"orc"}, 2
	sp.Spawned = []world.Entity{guard}
	sp.NextSpawn = moved

	pool := create[*ResourcePool](t, src, TypeResourcePool)
	pool.Resource, pool.Balance, pool.PricingTable = "ingots", 1000, "vendor"

	region := create[*RegionController](t, src, TypeRegionController)
	region.Region, region.Guards, region.Owner = "Britain", GuardsIgnoreCriminals|GuardsNoRecall, guard

	dst := newWorld(t, d)
	roundTrip(t, src, dst)
	assert.Equal(t, src.Count(), dst.Count())

	lg := lookup[*Mobile](t, dst, guard.Serial())
	assert.Equal(t, 7, lg.ThreatLevel)
	assert.Equal(t, 120, lg.BaseHits)
	require.NotNil(t, lg.Title)
	assert.Equal(t, "the Brave", *lg.Title)

	lp := lookup[*Container](t, dst, pack.Serial())
	assert.Same(t, lp, lg.Backpack)
	assert.Same(t, lg, lp.Parent)
	require.Len(t, lp.Contents, 2)
	lgold := lookup[*Item](t, dst, gold.Serial())
	assert.Same(t, lgold, lp.Contents[0])
	assert.True(t, lgold.LastMoved.Equal(moved))
	assert.Equal(t, 30.0+containerWeight+4.0, lp.TotalWeight, "weight recomputed after load")

	la := lookup[*Teleporter](t, dst, a.Serial())
	lb := lookup[*Teleporter](t, dst, b.Serial())
	assert.Same(t, lb, la.Link)
	assert.Same(t, la, lb.Link)
	assert.Equal(t, 2*time.Second, la.Delay)
	assert.True(t, la.Creatures)
	assert.Equal(t, "Ilshenar", la.DestMap)

	lsp := lookup[*Spawner](t, dst, sp.Serial())
	require.Len(t, lsp.Spawned, 1)
	assert.Same(t, lg, lsp.Spawned[0])
	assert.True(t, lsp.NextSpawn.Equal(moved))

	lpool := lookup[*ResourcePool](t, dst, pool.Serial())
	assert.Equal(t, 12.0, lpool.Price)
	assert.Equal(t, 50, lpool.Max)

	lr := lookup[*RegionController](t, dst, region.Serial())
	assert.Same(t, lg, lr.Owner)
	assert.True(t, lr.Has(GuardsNoRecall))
	assert.False(t, lr.Has(GuardsDisabled))

	st := dst.Stats()
	assert.Equal(t, 1, st.ByCategory["mobiles"])
	assert.Equal(t, 1, st.ByCategory["regions"])
	assert.Equal(t, 1, st.ByCategory["misc"])
}

func TestResourcePool_MissingTableFallsBackToDefault(t *testing.T) {
	book := resourcepool.NewBook()
	d := Deps{Pricing: book}
	src := newWorld(t, d)
	pool := create[*ResourcePool](t, src, TypeResourcePool)
	pool.Resource, pool.PricingTable = "logs", "retired"

	dst := newWorld(t, d)
	roundTrip(t, src, dst)
	lp := lookup[*ResourcePool](t, dst, pool.Serial())
	assert.Equal(t, "retired", lp.PricingTable)
	assert.Equal(t, 3.0, lp.Price)
}

func TestStartupPatches(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := Deps{Pricing: resourcepool.NewBook(), Now: func() time.Time { return now }}
	w := newWorld(t, d)

	sp := create[*Spawner](t, w, TypeSpawner)
	sp.MinDelay, sp.MaxDelay = 20*time.Minute, 10*time.Minute
	m := create[*Mobile](t, w, TypeMobile)
	m.BaseHits = 80
	orphan := create[*Item](t, w, TypeItem)
	orphan.Amount = 0
	kept := create[*Item](t, w, TypeItem)
	a := create[*Teleporter](t, w, TypeTeleporter)
	b := create[*Teleporter](t, w, TypeTeleporter)
	a.Link = b
	pool := create[*ResourcePool](t, w, TypeResourcePool)
	pool.Resource = "ingots"

	applied, err := w.ApplyPatches(context.Background(), StartupPatches(d))
	require.NoError(t, err)
	assert.Len(t, applied, 7)

	assert.Equal(t, 10*time.Minute, sp.MinDelay)
	assert.Equal(t, 20*time.Minute, sp.MaxDelay)
	assert.True(t, sp.NextSpawn.Equal(now.Add(10*time.Minute)))
	assert.Equal(t, 8, m.ThreatLevel)
	_, ok := w.Lookup(orphan.Serial())
	assert.False(t, ok)
	assert.True(t, orphan.Deleted())
	_, ok = w.Lookup(kept.Serial())
	assert.True(t, ok)
	assert.Same(t, a, b.Link)
	assert.Equal(t, resourcepool.DefaultTable, pool.PricingTable)
	assert.Equal(t, 9.0, pool.Price)

	entries := w.PatchEntries()
	assert.False(t, entries[patch.TeleporterCreatureFix.Ordinal].Applied)
	assert.True(t, entries[patch.PricingTableV2.Ordinal].Applied)

	applied, err = w.ApplyPatches(context.Background(), StartupPatches(d))
	require.NoError(t, err)
	assert.Empty(t, applied)
}

// itemHeader writes the current Item record that every item-based type
// starts with.
func itemHeader(w *codec.Writer) {
	NewItem(serial.MinItem).Serialize(w)
}

func TestTeleporter_OldVersions(t *testing.T) {
	dest := codec.Point3D{X: 10, Y: 20, Z: -5}
	for _, v := range []int{0, 1, 2} {
		w := codec.NewWriter()
		itemHeader(w)
		w.WriteVersion(v)
		if v >= 2 {
			w.WriteBool(true)
		}
		if v >= 1 {
			w.WriteDuration(3 * time.Second)
		}
		w.WritePoint3D(dest)
		w.WriteString("Malas")

		tp := NewTeleporter(serial.MinItem)
		r := codec.NewReader(w.Bytes(), nil)
		require.NoError(t, tp.Deserialize(r), "version %d", v)
		assert.Equal(t, 0, r.Remaining(), "version %d", v)
		assert.Equal(t, dest, tp.Dest)
		assert.Equal(t, "Malas", tp.DestMap)
		assert.Nil(t, tp.Link, "version %d", v)
		if v >= 1 {
			assert.Equal(t, 3*time.Second, tp.Delay)
		} else {
			assert.Zero(t, tp.Delay)
		}
		assert.Equal(t, v >= 2, tp.Creatures, "version %d", v)
	}
}

func TestContainer_Version0KeepsDefaultCapacity(t *testing.T) {
	w := codec.NewWriter()
	itemHeader(w)
	w.WriteVersion(0)
	w.WriteSerialList([]serial.Serial{serial.MinItem + 1})

	gem := NewItem(serial.MinItem + 1)
	res := codec.ResolverFunc(func(s serial.Serial) (any, bool) {
		if s == gem.Serial() {
			return world.Entity(gem), true
		}
		return nil, false
	})
	c := NewContainer(serial.MinItem)
	r := codec.NewReader(w.Bytes(), res)
	require.NoError(t, c.Deserialize(r))
	assert.Equal(t, 0, r.Remaining())
	assert.Equal(t, 125, c.MaxItems)
	require.Len(t, c.Contents, 1)
	assert.Same(t, gem, c.Contents[0])
}

func TestSpawner_OldVersions(t *testing.T) {
	orc := NewMobile(7)
	res := codec.ResolverFunc(func(s serial.Serial) (any, bool) {
		if s == orc.Serial() {
			return world.Entity(orc), true
		}
		return nil, false
	})
	for _, v := range []int{1, 2} {
		w := codec.NewWriter()
		itemHeader(w)
		w.WriteVersion(v)
		if v >= 2 {
			w.WriteSerialList([]serial.Serial{orc.Serial()})
		}
		w.WriteDuration(time.Minute)
		w.WriteDuration(2 * time.Minute)
		w.WriteStringList([]string{"orc"})
		w.WriteInt(4)

		s := NewSpawner(serial.MinItem)
		r := codec.NewReader(w.Bytes(), res)
		require.NoError(t, s.Deserialize(r), "version %d", v)
		assert.Equal(t, 0, r.Remaining(), "version %d", v)
		assert.Equal(t, []string{"orc"}, s.Creatures)
		assert.Equal(t, 4, s.Count)
		assert.Equal(t, time.Minute, s.MinDelay)
		assert.Equal(t, 2*time.Minute, s.MaxDelay)
		assert.True(t, s.NextSpawn.IsZero(), "version %d", v)
		if v >= 2 {
			require.Len(t, s.Spawned, 1)
			assert.Same(t, orc, s.Spawned[0])
		} else {
			assert.Empty(t, s.Spawned)
		}
	}
}

func TestRegionController_OldVersions(t *testing.T) {
	for _, v := range []int{0, 1} {
		w := codec.NewWriter()
		w.WriteVersion(v)
		if v >= 1 {
			w.WriteEncodedInt(int(GuardsIgnoreMurderers))
		}
		w.WriteString("Minoc")

		rc := NewRegionController(serial.MinItem)
		r := codec.NewReader(w.Bytes(), nil)
		require.NoError(t, rc.Deserialize(r), "version %d", v)
		assert.Equal(t, 0, r.Remaining(), "version %d", v)
		assert.Equal(t, "Minoc", rc.Region)
		assert.Nil(t, rc.Owner)
		if v >= 1 {
			assert.Equal(t, GuardsIgnoreMurderers, rc.Guards)
		} else {
			assert.Equal(t, DefaultGuardFlags, rc.Guards)
		}
	}
}

func TestResourcePool_Version0RepricesFromDefaultTable(t *testing.T) {
	d := Deps{Pricing: resourcepool.NewBook()}
	w := newWorld(t, d)

	cw := codec.NewWriter()
	cw.WriteVersion(0)
	cw.WriteString("ingots")
	cw.WriteInt(250)

	p := NewResourcePool(serial.MinItem, d.Pricing)
	r := codec.NewReader(cw.Bytes(), nil)
	require.NoError(t, p.Deserialize(r))
	assert.Equal(t, 0, r.Remaining())
	assert.Equal(t, "ingots", p.Resource)
	assert.Equal(t, 250, p.Balance)
	assert.Equal(t, "", p.PricingTable)

	require.NoError(t, w.Exclusive(func(tx *world.Tx) error { return p.AfterLoad(tx) }))
	assert.Equal(t, 9.0, p.Price)
	assert.Equal(t, 60000, p.Max)
}
