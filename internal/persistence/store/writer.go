package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// rename is swapped in tests to fail commits.
var rename = os.Rename

// Writer builds a new save in a temporary directory next to its final
// location. Nothing at the final location changes until Commit.
type Writer struct {
	dir     string
	tmp     string
	worldID string
	level   zstd.EncoderLevel

	saveID   string
	open     map[string]*SegmentWriter
	cats     []CategoryInfo
	files    []string
	finished bool
}

type Options struct {
	WorldID string
	Level   zstd.EncoderLevel
}

// Create starts a save that Commit will place at dir.
func Create(dir string, opts Options) (*Writer, error) {
	if strings.TrimSpace(opts.WorldID) == "" {
		return nil, fmt.Errorf("store: empty world id")
	}
	if opts.Level == 0 {
		opts.Level = zstd.SpeedDefault
	}
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".tmp-")
	if err != nil {
		return nil, err
	}
	return &Writer{
		dir:     dir,
		tmp:     tmp,
		worldID: opts.WorldID,
		level:   opts.Level,
		saveID:  uuid.NewString(),
		open:    map[string]*SegmentWriter{},
	}, nil
}

func (w *Writer) SaveID() string { return w.saveID }

// Dir is where Commit places the save.
func (w *Writer) Dir() string { return w.dir }

// Segment opens the writer for category. Each category is written once.
func (w *Writer) Segment(category string) (*SegmentWriter, error) {
	if w.finished {
		return nil, fmt.Errorf("store: save already finished")
	}
	if !validName(category) {
		return nil, fmt.Errorf("store: invalid category name %q", category)
	}
	if _, ok := w.open[category]; ok {
		return nil, fmt.Errorf("store: category %s written twice", category)
	}
	sw, err := newSegmentWriter(w.tmp, category, w.level)
	if err != nil {
		return nil, err
	}
	w.open[category] = sw
	return sw, nil
}

// CloseSegment closes sw and records it in the manifest.
func (w *Writer) CloseSegment(sw *SegmentWriter) (CategoryInfo, error) {
	info, err := sw.Close()
	if err != nil {
		return info, err
	}
	w.cats = append(w.cats, info)
	return info, nil
}

// WriteFile stores an auxiliary file in the save.
func (w *Writer) WriteFile(name string, data []byte) error {
	if w.finished {
		return fmt.Errorf("store: save already finished")
	}
	if name == manifestName || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return fmt.Errorf("store: invalid file name %q", name)
	}
	if err := writeFileSync(filepath.Join(w.tmp, name), data); err != nil {
		return err
	}
	w.files = append(w.files, name)
	return nil
}

// Commit writes the manifest and moves the save into place. An existing save
// at the destination is moved to previous, or removed when previous is empty.
func (w *Writer) Commit(previous string) (Manifest, error) {
	if w.finished {
		return Manifest{}, fmt.Errorf("store: save already finished")
	}
	for cat, sw := range w.open {
		if !sw.closed {
			w.Abort()
			return Manifest{}, fmt.Errorf("store: category %s not closed", cat)
		}
	}
	m := Manifest{
		FormatVersion: FormatVersion,
		SaveID:        w.saveID,
		WorldID:       w.worldID,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		Categories:    append([]CategoryInfo{}, w.cats...),
		Files:         append([]string(nil), w.files...),
	}
	if m.Categories == nil {
		m.Categories = []CategoryInfo{}
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		w.Abort()
		return m, err
	}
	if err := ValidateManifest(b); err != nil {
		w.Abort()
		return m, err
	}
	if err := writeFileSync(filepath.Join(w.tmp, manifestName), b); err != nil {
		w.Abort()
		return m, err
	}

	// The existing save is moved aside first and only deleted once the new
	// one is in place, so a failed rename leaves it where it was.
	aside := ""
	if _, err := os.Stat(w.dir); err == nil {
		if previous == "" {
			aside = w.dir + ".old-" + w.saveID
		} else {
			aside = previous
			err = os.MkdirAll(filepath.Dir(previous), 0o755)
		}
		if err == nil {
			err = rename(w.dir, aside)
		}
		if err != nil {
			w.Abort()
			return m, fmt.Errorf("store: move previous save aside: %w", err)
		}
	}
	if err := rename(w.tmp, w.dir); err != nil {
		if aside != "" {
			if rerr := rename(aside, w.dir); rerr != nil {
				err = fmt.Errorf("%w (restore previous save from %s: %v)", err, aside, rerr)
			}
		}
		w.Abort()
		return m, fmt.Errorf("store: commit save: %w", err)
	}
	if aside != "" && previous == "" {
		_ = os.RemoveAll(aside)
	}
	w.finished = true
	return m, nil
}

// Abort discards everything written so far.
func (w *Writer) Abort() {
	if w.finished {
		return
	}
	w.finished = true
	for _, sw := range w.open {
		sw.abort()
	}
	_ = os.RemoveAll(w.tmp)
}

func validName(s string) bool {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return false
	}
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_') {
			return false
		}
	}
	return true
}
