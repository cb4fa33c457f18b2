// Package store reads and writes save directories: one index and one
// compressed payload file per world-data category, auxiliary files such as
// the patch table, and a manifest naming all of them.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Save is a committed save directory opened for reading.
type Save struct {
	dir      string
	Manifest Manifest
}

// Open reads the manifest of the save in dir.
func Open(dir string) (*Save, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("open save %s: %w", dir, err)
	}
	return &Save{dir: dir, Manifest: m}, nil
}

func (s *Save) Dir() string { return s.dir }

// Categories lists the categories in the order they were written.
func (s *Save) Categories() []string {
	out := make([]string, 0, len(s.Manifest.Categories))
	for _, c := range s.Manifest.Categories {
		out = append(out, c.Name)
	}
	return out
}

// Index returns the record headers of category without reading payloads.
func (s *Save) Index(category string) ([]Header, error) {
	info, ok := s.Manifest.Category(category)
	if !ok {
		return nil, fmt.Errorf("store: category %q not in manifest", category)
	}
	hdrs, err := readIndex(s.dir, category)
	if err != nil {
		return nil, err
	}
	if len(hdrs) != info.Records {
		return nil, fmt.Errorf("%w: %s has %d entries, manifest says %d", ErrBadIndex, category, len(hdrs), info.Records)
	}
	return hdrs, nil
}

// Payloads streams the payload of each header, which must be the result of
// Index for the same category.
func (s *Save) Payloads(category string, hdrs []Header, fn func(h Header, payload []byte) error) error {
	return readPayloads(s.dir, category, hdrs, fn)
}

// ReadFile returns an auxiliary file listed in the manifest. ok is false when
// the save does not carry it.
func (s *Save) ReadFile(name string) (data []byte, ok bool, err error) {
	if !s.Manifest.HasFile(name) {
		return nil, false, nil
	}
	data, err = os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, fmt.Errorf("store: manifest lists %s but it is missing", name)
		}
		return nil, false, err
	}
	return data, true, nil
}

// Exists reports whether dir holds a committed save.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, manifestName))
	return err == nil
}
