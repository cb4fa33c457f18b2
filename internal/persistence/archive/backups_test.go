package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/store"
)

func commitSave(t *testing.T, current, previous string) store.Manifest {
	t.Helper()
	w, err := store.Create(current, store.Options{WorldID: "angel_island"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := w.WriteFile("patches.bin", []byte{0}); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := w.Commit(previous)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return m
}

func TestNextPath_AvoidsCollisions(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	first := NextPath(dir, now)
	if err := os.MkdirAll(first, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	second := NextPath(dir, now)
	if first == second {
		t.Fatalf("expected a distinct path, got %s twice", first)
	}
	if filepath.Base(first) != "20240102-030405.000" {
		t.Fatalf("first=%s", filepath.Base(first))
	}
}

func TestPrune_KeepsNewest(t *testing.T) {
	root := t.TempDir()
	current := filepath.Join(root, "current")
	backups := filepath.Join(root, "backups")
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		commitSave(t, current, NextPath(backups, now.Add(time.Duration(i)*time.Minute)))
	}
	list, err := List(backups)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("backups=%d want 3", len(list))
	}
	removed, err := Prune(backups, 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(removed) != 1 || removed[0] != "20240101-000100.000" {
		t.Fatalf("removed=%v", removed)
	}
	list, _ = List(backups)
	if len(list) != 2 || list[0].Name != "20240101-000300.000" {
		t.Fatalf("after prune=%+v", list)
	}
}

func TestRestore_SwapsInCopyAndBacksUpCurrent(t *testing.T) {
	root := t.TempDir()
	current := filepath.Join(root, "current")
	backups := filepath.Join(root, "backups")
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	old := commitSave(t, current, "")
	newer := commitSave(t, current, NextPath(backups, t0))

	b, err := Restore(backups, "20240101-000000.000", current, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if b.SaveID != old.SaveID {
		t.Fatalf("restored save id=%s want %s", b.SaveID, old.SaveID)
	}
	m, err := store.ReadManifest(current)
	if err != nil || m.SaveID != old.SaveID {
		t.Fatalf("current manifest=%+v err=%v", m, err)
	}
	list, _ := List(backups)
	if len(list) != 2 {
		t.Fatalf("backups=%+v want original plus replaced", list)
	}
	if list[0].SaveID != newer.SaveID {
		t.Fatalf("replaced save not backed up: %+v", list[0])
	}
	if list[1].SaveID != old.SaveID {
		t.Fatalf("restored backup should be kept: %+v", list[1])
	}
}

func TestRestore_RejectsBadNames(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"", "../current", ".hidden", "missing"} {
		if _, err := Restore(filepath.Join(root, "backups"), name, filepath.Join(root, "current"), time.Now()); err == nil {
			t.Fatalf("%q: expected error", name)
		}
	}
}
