package world

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/codec"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/store"
)

const (
	patchesBinName = "patches.bin"
	patchesXMLName = "patches.xml"
)

type LoadStats struct {
	SaveID     string         `json:"save_id,omitempty"`
	At         time.Time      `json:"at"`
	Records    int            `json:"records"`
	ByCategory map[string]int `json:"by_category,omitempty"`
	Bytes      int64          `json:"bytes"`
	Millis     int64          `json:"millis"`
	Migrated   []int          `json:"migrated,omitempty"`
}

// Load replaces the world with the contents of s.
//
// Pre-load hooks run first, then the patch table is restored. Every record
// listed in the save indexes is then allocated as an empty stand-in before
// any payload is read, so references resolve regardless of record order.
// Each payload must be consumed exactly. Post-load processing runs in serial
// order once every record is populated, followed by the load hooks.
//
// Any failure leaves the world empty; a partial world is never exposed.
func (w *World) Load(ctx context.Context, s *store.Save) (LoadStats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	w.resetLocked()
	st, err := w.loadLocked(ctx, s)
	if err != nil {
		w.resetLocked()
		w.log.Printf("load %s failed: %v", s.Dir(), err)
		return st, err
	}
	st.Millis = time.Since(start).Milliseconds()
	st.At = time.Now().UTC()
	w.lastLoad = st
	w.log.Printf("loaded %d records (%s) from %s in %dms", st.Records, humanize.Bytes(uint64(st.Bytes)), s.Dir(), st.Millis)
	w.emit(Event{
		Kind:   EventLoad,
		SaveID: st.SaveID,
		Counts: st.ByCategory,
		Bytes:  st.Bytes,
		Millis: st.Millis,
	})
	return st, nil
}

// LoadEmpty starts the world without a save: it is reset, then the pre-load
// and load hooks run as they would around a real load.
func (w *World) LoadEmpty(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
	tx := &Tx{w: w}
	if err := w.preLoad.run(ctx, tx, "pre-load"); err != nil {
		return err
	}
	return w.onLoad.run(ctx, tx, "load")
}

func (w *World) loadLocked(ctx context.Context, s *store.Save) (LoadStats, error) {
	st := LoadStats{SaveID: s.Manifest.SaveID, ByCategory: map[string]int{}}
	tx := &Tx{w: w}

	if err := w.preLoad.run(ctx, tx, "pre-load"); err != nil {
		return st, err
	}
	migrated, err := w.loadPatches(s)
	if err != nil {
		return st, err
	}
	st.Migrated = migrated

	cats := s.Categories()
	index := make(map[string][]store.Header, len(cats))
	for _, cat := range cats {
		hdrs, err := s.Index(cat)
		if err != nil {
			return st, err
		}
		if err := w.allocate(Category(cat), hdrs); err != nil {
			return st, err
		}
		index[cat] = hdrs
	}

	res := codec.ResolverFunc(func(id serial.Serial) (any, bool) {
		e, ok := w.arena.Get(id)
		return e, ok
	})
	for _, cat := range cats {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		hdrs := index[cat]
		err := s.Payloads(cat, hdrs, func(h store.Header, payload []byte) error {
			e, _ := w.arena.Get(h.Serial)
			err := populate(e, payload, res)
			if err != nil && w.lenient && errors.Is(err, ErrArity) {
				w.log.Printf("%s record %s %v: %v (ignored)", cat, h.Type, h.Serial, err)
				err = nil
			}
			if err != nil {
				return &RecordError{Category: Category(cat), Type: h.Type, Serial: h.Serial, Err: err}
			}
			st.Bytes += int64(len(payload))
			return nil
		})
		if err != nil {
			return st, err
		}
		st.ByCategory[cat] = len(hdrs)
		st.Records += len(hdrs)
	}

	for _, id := range w.sortedSerials() {
		e, _ := w.arena.Get(id)
		pl, ok := e.(PostLoader)
		if !ok {
			continue
		}
		if err := pl.AfterLoad(tx); err != nil {
			return st, &RecordError{Category: w.categoryOf(e), Type: e.TypeName(), Serial: id, Err: fmt.Errorf("after load: %w", err)}
		}
	}

	if err := w.onLoad.run(ctx, tx, "load"); err != nil {
		return st, err
	}
	return st, nil
}

// allocate creates the stand-ins for one category.
func (w *World) allocate(cat Category, hdrs []store.Header) error {
	for _, h := range hdrs {
		t, ok := w.reg.Lookup(h.Type)
		if !ok {
			return &RecordError{Category: cat, Type: h.Type, Serial: h.Serial, Err: ErrUnknownType}
		}
		if !inRange(t.Kind, h.Serial) {
			return &RecordError{Category: cat, Type: h.Type, Serial: h.Serial, Err: ErrBadSerial}
		}
		if _, dup := w.arena.Get(h.Serial); dup {
			return &RecordError{Category: cat, Type: h.Type, Serial: h.Serial, Err: ErrDuplicateSerial}
		}
		w.arena.Put(h.Serial, t.New(h.Serial))
		w.alloc.Observe(h.Serial)
	}
	return nil
}

func populate(e Entity, payload []byte, res codec.Resolver) error {
	r := codec.NewReader(payload, res)
	if err := e.Deserialize(r); err != nil {
		return err
	}
	if err := r.Err(); err != nil {
		return err
	}
	if n := r.Remaining(); n != 0 {
		return fmt.Errorf("%w: %d of %d bytes unread", ErrArity, n, len(payload))
	}
	return nil
}

func inRange(k serial.Kind, s serial.Serial) bool {
	switch k {
	case serial.KindMobile:
		return s.IsMobile()
	case serial.KindItem:
		return s.IsItem()
	}
	return false
}

// loadPatches restores the patch table from the binary record, or from the
// XML copy when the binary one is missing, and migrates any legacy bits.
func (w *World) loadPatches(s *store.Save) ([]int, error) {
	if data, ok, err := s.ReadFile(patchesBinName); err != nil {
		return nil, err
	} else if ok {
		r := codec.NewReader(data, nil)
		if err := w.patches.Deserialize(r); err != nil {
			return nil, fmt.Errorf("%s: %w", patchesBinName, err)
		}
		if n := r.Remaining(); n != 0 {
			return nil, fmt.Errorf("%s: %w: %d bytes unread", patchesBinName, ErrArity, n)
		}
	} else if data, ok, err := s.ReadFile(patchesXMLName); err != nil {
		return nil, err
	} else if ok {
		if err := w.patches.ReadXML(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("%s: %w", patchesXMLName, err)
		}
	}

	legacy := w.patches.Legacy()
	migrated, err := w.patches.MigrateLegacy()
	if err != nil {
		return nil, err
	}
	if legacy != 0 {
		w.log.Printf("migrated legacy patch bits %#x into %d table entries", legacy, len(migrated))
		w.emit(Event{Kind: EventLegacyMigrate, Detail: fmt.Sprintf("%#x", legacy), Counts: map[string]int{"migrated": len(migrated)}})
	}
	return migrated, nil
}

func (w *World) categoryOf(e Entity) Category {
	if t, ok := w.reg.Lookup(e.TypeName()); ok {
		return t.Category
	}
	return ""
}
