package log

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

func TestAuditLogger_WritesReadableEntries(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir, time.Hour)
	l.OnError = func(err error) { t.Fatalf("emit: %v", err) }

	l.Emit(world.Event{Kind: world.EventSave, WorldID: "angel_island", SaveID: "s1", Counts: map[string]int{"items": 3}})
	l.Emit(world.Event{Kind: world.EventPatchSet, WorldID: "angel_island", Detail: "ContainerWeightRecalc"})

	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadAudit(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries=%d want 2", len(got))
	}
	if got[0].Kind != world.EventSave || got[0].SaveID != "s1" || got[0].Counts["items"] != 3 {
		t.Fatalf("first entry=%+v", got[0])
	}
	if got[1].Detail != "ContainerWeightRecalc" {
		t.Fatalf("second entry=%+v", got[1])
	}
	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Fatalf("entries need distinct ids: %q %q", got[0].ID, got[1].ID)
	}
}

func TestJSONLZstdWriter_RotatesPerPeriod(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "audit", time.Hour)
	clock := time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	write := func(kind world.EventKind) {
		t.Helper()
		if err := w.Write(AuditEntry{ID: string(kind), Event: world.Event{Kind: kind}}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write(world.EventLoad)
	clock = clock.Add(30 * time.Minute)
	write(world.EventSave)
	clock = clock.Add(time.Hour)
	write(world.EventSave)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "audit-*.jsonl.zst"))
	if len(files) != 2 {
		t.Fatalf("files=%v want 2", files)
	}
	got, err := ReadAudit(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 || got[0].Kind != world.EventLoad {
		t.Fatalf("entries=%+v", got)
	}
}
