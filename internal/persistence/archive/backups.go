// Package archive keeps rotated copies of previous saves and restores them.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/store"
)

const stampLayout = "20060102-150405.000"

type Backup struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	SaveID    string `json:"save_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	Records   int    `json:"records"`
	// Err is set when the backup's manifest cannot be read.
	Err string `json:"err,omitempty"`
}

// NextPath returns a fresh backup location under dir for a save being
// replaced at now.
func NextPath(dir string, now time.Time) string {
	base := now.UTC().Format(stampLayout)
	p := filepath.Join(dir, base)
	for i := 1; ; i++ {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return p
		}
		p = filepath.Join(dir, fmt.Sprintf("%s-%d", base, i))
	}
}

// List returns the backups in dir, newest first.
func List(dir string) ([]Backup, error) {
	ents, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Backup
	for _, e := range ents {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		b := Backup{Name: e.Name(), Path: filepath.Join(dir, e.Name())}
		if m, err := store.ReadManifest(b.Path); err != nil {
			b.Err = err.Error()
		} else {
			b.SaveID, b.CreatedAt, b.Records = m.SaveID, m.CreatedAt, m.TotalRecords()
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

// Prune removes all but the newest keep backups and returns the removed
// names. keep <= 0 keeps everything.
func Prune(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	all, err := List(dir)
	if err != nil || len(all) <= keep {
		return nil, err
	}
	var removed []string
	for _, b := range all[keep:] {
		if err := os.RemoveAll(b.Path); err != nil {
			return removed, err
		}
		removed = append(removed, b.Name)
	}
	return removed, nil
}

// Restore makes a copy of backup name the current save. The backup itself is
// kept; the save it replaces is moved to a new backup.
func Restore(dir, name, current string, now time.Time) (Backup, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return Backup{}, fmt.Errorf("archive: invalid backup name %q", name)
	}
	src := filepath.Join(dir, name)
	s, err := store.Open(src)
	if err != nil {
		return Backup{}, err
	}

	parent := filepath.Dir(current)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return Backup{}, err
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(current)+".restore-")
	if err != nil {
		return Backup{}, err
	}
	if err := copyDir(src, tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return Backup{}, err
	}
	if _, err := os.Stat(current); err == nil {
		prev := NextPath(dir, now)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = os.RemoveAll(tmp)
			return Backup{}, err
		}
		if err := os.Rename(current, prev); err != nil {
			_ = os.RemoveAll(tmp)
			return Backup{}, fmt.Errorf("archive: move current save aside: %w", err)
		}
	}
	if err := os.Rename(tmp, current); err != nil {
		_ = os.RemoveAll(tmp)
		return Backup{}, err
	}
	return Backup{
		Name:      name,
		Path:      current,
		SaveID:    s.Manifest.SaveID,
		CreatedAt: s.Manifest.CreatedAt,
		Records:   s.Manifest.TotalRecords(),
	}, nil
}

func copyDir(src, dst string) error {
	ents, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if err := out.Sync(); err != nil {
		return err
	}
	return out.Close()
}
