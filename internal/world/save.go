package world

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/codec"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/store"
)

type SaveStats struct {
	SaveID          string         `json:"save_id,omitempty"`
	Dir             string         `json:"dir,omitempty"`
	At              time.Time      `json:"at"`
	Records         int            `json:"records"`
	ByCategory      map[string]int `json:"by_category,omitempty"`
	Bytes           int64          `json:"bytes"`
	CompressedBytes int64          `json:"compressed_bytes"`
	Millis          int64          `json:"millis"`
}

// Save writes every live entity and the patch table through sw and commits
// it, moving any existing save at the destination to previous (or removing
// it when previous is empty). Save hooks run first. On error the save is
// aborted and the destination is untouched.
func (w *World) Save(ctx context.Context, sw *store.Writer, previous string) (SaveStats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	st, err := w.saveLocked(ctx, sw)
	if err != nil {
		sw.Abort()
		w.log.Printf("save failed: %v", err)
		return st, err
	}
	m, err := sw.Commit(previous)
	if err != nil {
		w.log.Printf("save commit failed: %v", err)
		return st, err
	}
	st.SaveID = m.SaveID
	st.Dir = sw.Dir()
	st.At = time.Now().UTC()
	st.Millis = time.Since(start).Milliseconds()
	w.lastSave = st
	w.log.Printf("saved %d records (%s, %s compressed) in %dms",
		st.Records, humanize.Bytes(uint64(st.Bytes)), humanize.Bytes(uint64(st.CompressedBytes)), st.Millis)
	w.emit(Event{
		Kind:   EventSave,
		SaveID: st.SaveID,
		Counts: st.ByCategory,
		Bytes:  st.Bytes,
		Millis: st.Millis,
	})
	return st, nil
}

func (w *World) saveLocked(ctx context.Context, sw *store.Writer) (SaveStats, error) {
	st := SaveStats{ByCategory: map[string]int{}}
	tx := &Tx{w: w}
	if err := w.onSave.run(ctx, tx, "save"); err != nil {
		return st, err
	}

	groups := map[Category][]Entity{}
	for _, id := range w.sortedSerials() {
		e, _ := w.arena.Get(id)
		if d, ok := e.(Deleter); ok && d.Deleted() {
			continue
		}
		t, ok := w.reg.Lookup(e.TypeName())
		if !ok {
			return st, fmt.Errorf("%w: %q on %v", ErrUnknownType, e.TypeName(), id)
		}
		groups[t.Category] = append(groups[t.Category], e)
	}

	cw := codec.NewWriter()
	for _, cat := range w.reg.Categories() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		seg, err := sw.Segment(string(cat))
		if err != nil {
			return st, err
		}
		for _, e := range groups[cat] {
			cw.Reset()
			e.Serialize(cw)
			if err := seg.Append(e.TypeName(), e.Serial(), cw.Bytes()); err != nil {
				return st, err
			}
		}
		info, err := sw.CloseSegment(seg)
		if err != nil {
			return st, err
		}
		st.ByCategory[string(cat)] = info.Records
		st.Records += info.Records
		st.Bytes += info.Bytes
		st.CompressedBytes += info.CompressedBytes
	}

	cw.Reset()
	w.patches.Serialize(cw)
	if err := sw.WriteFile(patchesBinName, cw.Bytes()); err != nil {
		return st, err
	}
	var xb bytes.Buffer
	if err := w.patches.WriteXML(&xb); err != nil {
		return st, err
	}
	if err := sw.WriteFile(patchesXMLName, xb.Bytes()); err != nil {
		return st, err
	}
	return st, nil
}

// LastSave reports the most recent successful save.
func (w *World) LastSave() SaveStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSave
}

// Serials lists every live serial in ascending order.
func (w *World) Serials() []serial.Serial {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sortedSerials()
}
