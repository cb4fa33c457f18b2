package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
)

func writeSave(t *testing.T, dir string, recs map[string][]Header) Manifest {
	t.Helper()
	w, err := Create(dir, Options{WorldID: "angel_island"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, cat := range []string{"items", "mobiles"} {
		sw, err := w.Segment(cat)
		if err != nil {
			t.Fatalf("segment %s: %v", cat, err)
		}
		for _, h := range recs[cat] {
			payload := make([]byte, h.Len)
			for i := range payload {
				payload[i] = byte(h.Serial) + byte(i)
			}
			if err := sw.Append(h.Type, h.Serial, payload); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		if _, err := w.CloseSegment(sw); err != nil {
			t.Fatalf("close segment: %v", err)
		}
	}
	if err := w.WriteFile("patches.bin", []byte{1, 2, 3}); err != nil {
		t.Fatalf("write file: %v", err)
	}
	m, err := w.Commit("")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return m
}

func TestSave_RoundTripIndexAndPayloads(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "current")
	recs := map[string][]Header{
		"items": {
			{Type: "Item", Serial: serial.MinItem, Len: 3},
			{Type: "Container", Serial: serial.MinItem + 1, Len: 0},
			{Type: "Item", Serial: serial.MinItem + 2, Len: 300},
		},
		"mobiles": {
			{Type: "Mobile", Serial: 1, Len: 12},
		},
	}
	m := writeSave(t, dir, recs)
	if m.TotalRecords() != 4 {
		t.Fatalf("manifest records=%d want 4", m.TotalRecords())
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Manifest.SaveID != m.SaveID || s.Manifest.WorldID != "angel_island" {
		t.Fatalf("manifest mismatch: %+v", s.Manifest)
	}
	if got := s.Categories(); len(got) != 2 || got[0] != "items" || got[1] != "mobiles" {
		t.Fatalf("categories=%v", got)
	}

	for cat, want := range recs {
		hdrs, err := s.Index(cat)
		if err != nil {
			t.Fatalf("index %s: %v", cat, err)
		}
		if len(hdrs) != len(want) {
			t.Fatalf("%s: %d headers want %d", cat, len(hdrs), len(want))
		}
		for i := range want {
			if hdrs[i] != want[i] {
				t.Fatalf("%s header %d = %+v want %+v", cat, i, hdrs[i], want[i])
			}
		}
		i := 0
		err = s.Payloads(cat, hdrs, func(h Header, payload []byte) error {
			if len(payload) != h.Len {
				t.Fatalf("payload len %d want %d", len(payload), h.Len)
			}
			for k, b := range payload {
				if b != byte(h.Serial)+byte(k) {
					t.Fatalf("%s record %d byte %d corrupt", cat, i, k)
				}
			}
			i++
			return nil
		})
		if err != nil {
			t.Fatalf("payloads %s: %v", cat, err)
		}
		if i != len(want) {
			t.Fatalf("visited %d payloads want %d", i, len(want))
		}
	}

	data, ok, err := s.ReadFile("patches.bin")
	if err != nil || !ok || len(data) != 3 {
		t.Fatalf("read patches.bin: ok=%v err=%v len=%d", ok, err, len(data))
	}
	if _, ok, _ := s.ReadFile("patches.xml"); ok {
		t.Fatalf("patches.xml should not be reported present")
	}
}

func TestCommit_MovesPreviousSaveAside(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "current")
	first := writeSave(t, dir, nil)

	w, err := Create(dir, Options{WorldID: "angel_island"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	prev := filepath.Join(root, "backups", "first")
	second, err := w.Commit(prev)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if first.SaveID == second.SaveID {
		t.Fatalf("save ids should differ")
	}
	old, err := ReadManifest(prev)
	if err != nil {
		t.Fatalf("read previous manifest: %v", err)
	}
	if old.SaveID != first.SaveID {
		t.Fatalf("previous save id=%s want %s", old.SaveID, first.SaveID)
	}
	cur, err := ReadManifest(dir)
	if err != nil || cur.SaveID != second.SaveID {
		t.Fatalf("current manifest=%+v err=%v", cur, err)
	}
}

func TestCommit_ReplacesSaveWithoutPrevious(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "current")
	writeSave(t, dir, nil)
	second := writeSave(t, dir, nil)

	cur, err := ReadManifest(dir)
	if err != nil || cur.SaveID != second.SaveID {
		t.Fatalf("current manifest=%+v err=%v", cur, err)
	}
	ents, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if len(ents) != 1 || ents[0].Name() != "current" {
		var names []string
		for _, e := range ents {
			names = append(names, e.Name())
		}
		t.Fatalf("leftovers next to save: %v", names)
	}
}

func TestCommit_FailedRenameRestoresOldSave(t *testing.T) {
	for _, name := range []string{"no previous", "with previous"} {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			dir := filepath.Join(root, "current")
			first := writeSave(t, dir, nil)

			w, err := Create(dir, Options{WorldID: "angel_island"})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			prev := ""
			if name == "with previous" {
				prev = filepath.Join(root, "backups", "first")
			}
			boom := errors.New("rename failed")
			rename = func(from, to string) error {
				if from == w.tmp {
					return boom
				}
				return os.Rename(from, to)
			}
			defer func() { rename = os.Rename }()

			if _, err := w.Commit(prev); !errors.Is(err, boom) {
				t.Fatalf("commit err=%v want %v", err, boom)
			}
			cur, err := ReadManifest(dir)
			if err != nil || cur.SaveID != first.SaveID {
				t.Fatalf("old save not restored: manifest=%+v err=%v", cur, err)
			}
			if _, err := os.Stat(w.tmp); !os.IsNotExist(err) {
				t.Fatalf("temp save left behind: %v", err)
			}
		})
	}
}

func TestAbort_LeavesNothingBehind(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "current")
	w, err := Create(dir, Options{WorldID: "w"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sw, _ := w.Segment("items")
	_ = sw.Append("Item", serial.MinItem, []byte{1})
	w.Abort()

	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("expected empty root after abort, found %d entries", len(entries))
	}
	if Exists(dir) {
		t.Fatalf("aborted save should not exist")
	}
}

func TestPayloads_TruncatedDataIsFatal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "current")
	writeSave(t, dir, map[string][]Header{
		"items": {{Type: "Item", Serial: serial.MinItem, Len: 64}},
	})
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	hdrs, err := s.Index("items")
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	hdrs[0].Len = 65
	err = s.Payloads("items", hdrs, func(Header, []byte) error { return nil })
	if !errors.Is(err, ErrShortData) {
		t.Fatalf("err=%v want ErrShortData", err)
	}
}

func TestIndex_CorruptMagic(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "current")
	writeSave(t, dir, nil)
	if err := os.WriteFile(idxPath(dir, "items"), []byte("XXXX"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Index("items"); !errors.Is(err, ErrBadIndex) {
		t.Fatalf("err=%v want ErrBadIndex", err)
	}
}

func TestManifest_SchemaRejectsGarbage(t *testing.T) {
	if err := ValidateManifest([]byte(`{"format_version":1}`)); err == nil {
		t.Fatalf("expected schema failure for missing fields")
	}
	ok := `{"format_version":1,"save_id":"0b8f8f7c-1f0e-4a43-9d59-0d8a1f0f9a11","world_id":"w",
	        "created_at":"2024-01-02T03:04:05Z","categories":[{"name":"items","records":0,"bytes":0}]}`
	if err := ValidateManifest([]byte(ok)); err != nil {
		t.Fatalf("valid manifest rejected: %v", err)
	}
}

func TestSegment_RejectsBadNames(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "current"), Options{WorldID: "w"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer w.Abort()
	if _, err := w.Segment("../items"); err == nil {
		t.Fatalf("expected invalid category error")
	}
	if err := w.WriteFile("manifest.json", nil); err == nil {
		t.Fatalf("expected manifest.json to be reserved")
	}
}
