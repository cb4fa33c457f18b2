// Package world owns the entity table of one shard and drives its save and
// load passes.
//
// Entities live in an arena keyed by serial; references between them are
// persisted as serials. Loading is two-phase: every record's stand-in is
// allocated from the save index before any record is read, so a reference
// to a later record (or a cycle) resolves to the right object without a
// fix-up pass. All access goes through one lock, and a save or load holds it
// for its whole duration.
package world

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/kamstrup/intmap"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/patch"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
)

type Config struct {
	ID       string
	Registry *Registry
	Patches  *patch.Catalog
	Logger   *log.Logger
	Events   EventSink

	// LenientArity logs records with unread trailing bytes instead of
	// failing the load. Only for recovering a save by hand.
	LenientArity bool
}

type World struct {
	mu sync.Mutex

	id      string
	reg     *Registry
	alloc   *serial.Allocator
	arena   *intmap.Map[serial.Serial, Entity]
	patches *patch.Table
	log     *log.Logger
	events  EventSink
	lenient bool

	preLoad hookList
	onLoad  hookList
	onSave  hookList

	lastSave SaveStats
	lastLoad LoadStats
}

func New(cfg Config) *World {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Patches == nil {
		cfg.Patches = patch.Dynamic
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[world] ", log.LstdFlags)
	}
	return &World{
		id:      cfg.ID,
		reg:     cfg.Registry,
		alloc:   serial.NewAllocator(),
		arena:   intmap.New[serial.Serial, Entity](1024),
		patches: patch.NewTable(cfg.Patches),
		log:     cfg.Logger,
		events:  cfg.Events,
		lenient: cfg.LenientArity,
	}
}

func (w *World) ID() string          { return w.id }
func (w *World) Registry() *Registry { return w.reg }

// OnPreWorldLoad registers a hook that runs before any record is read, such
// as loading a table that entities look up after load.
func (w *World) OnPreWorldLoad(name string, pri Priority, fn HookFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.preLoad.add(name, pri, fn)
}

// OnLoad registers a hook that runs after every entity has been populated
// and post-load processing has finished.
func (w *World) OnLoad(name string, pri Priority, fn HookFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onLoad.add(name, pri, fn)
}

// OnSave registers a hook that runs before any entity is written.
func (w *World) OnSave(name string, pri Priority, fn HookFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onSave.add(name, pri, fn)
}

// Exclusive runs fn with the world locked.
func (w *World) Exclusive(fn func(tx *Tx) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fn(&Tx{w: w})
}

func (w *World) Lookup(s serial.Serial) (Entity, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.arena.Get(s)
}

func (w *World) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.arena.Len()
}

// Create builds a fresh entity of the named type with a new serial.
func (w *World) Create(typeName string) (Entity, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return (&Tx{w: w}).Create(typeName)
}

func (w *World) Delete(s serial.Serial) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return (&Tx{w: w}).Delete(s)
}

// PatchEntries returns a copy of the patch table.
func (w *World) PatchEntries() []patch.Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.patches.Entries()
}

// PatchStep is one startup patch and the world mutation it performs.
type PatchStep struct {
	Patch patch.Patch
	Run   func(ctx context.Context, tx *Tx) error
}

// ApplyPatches runs every pending step in order with the world locked. It
// stops at the first failure, leaving later patches pending.
func (w *World) ApplyPatches(ctx context.Context, steps []PatchStep) ([]patch.Patch, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	tx := &Tx{w: w}
	r := patch.NewRunner(w.patches, w.log)
	r.OnApplied = func(p patch.Patch) {
		w.emit(Event{Kind: EventPatchSet, Detail: p.Key})
	}
	for _, s := range steps {
		run := s.Run
		r.Add(s.Patch, func(ctx context.Context) error { return run(ctx, tx) })
	}
	return r.Run(ctx)
}

// ClearPatch marks the patch with key as not applied. It exists for rollback
// tooling; normal operation never clears a patch.
func (w *World) ClearPatch(key string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.patches.Catalog().Lookup(key)
	if !ok {
		return false, fmt.Errorf("%w: %q", patch.ErrUnknownPatch, key)
	}
	changed, err := w.patches.Clear(p)
	if err != nil {
		return false, err
	}
	if changed {
		w.log.Printf("cleared patch %s", p)
		w.emit(Event{Kind: EventPatchClear, Detail: p.Key})
	}
	return changed, nil
}

// Stats is a point-in-time summary for admin surfaces.
type Stats struct {
	WorldID        string         `json:"world_id"`
	Entities       int            `json:"entities"`
	ByCategory     map[string]int `json:"by_category"`
	PatchesApplied int            `json:"patches_applied"`
	PatchesKnown   int            `json:"patches_known"`
	LastSave       SaveStats      `json:"last_save"`
	LastLoad       LoadStats      `json:"last_load"`
}

func (w *World) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := Stats{
		WorldID:        w.id,
		Entities:       w.arena.Len(),
		ByCategory:     map[string]int{},
		PatchesApplied: w.patches.AppliedCount(),
		PatchesKnown:   w.patches.Len(),
		LastSave:       w.lastSave,
		LastLoad:       w.lastLoad,
	}
	w.arena.ForEach(func(_ serial.Serial, e Entity) bool {
		if t, ok := w.reg.Lookup(e.TypeName()); ok {
			st.ByCategory[string(t.Category)]++
		}
		return true
	})
	return st
}

func (w *World) emit(ev Event) {
	if w.events == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	ev.WorldID = w.id
	w.events.Emit(ev)
}

// sortedSerials returns every live serial in ascending order.
func (w *World) sortedSerials() []serial.Serial {
	out := make([]serial.Serial, 0, w.arena.Len())
	w.arena.ForEach(func(s serial.Serial, _ Entity) bool {
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (w *World) resetLocked() {
	w.arena.Clear()
	w.alloc.Reset()
	w.patches.Reset()
}
