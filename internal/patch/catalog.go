// Package patch tracks one-time world patches: mutations that run once at
// startup and are remembered as applied in the save forever after.
//
// Every patch ever authored is declared in a Catalog with an explicit ordinal
// and a stable key. The ordinal is the patch's slot in the persisted table and
// the key is written next to it, so a catalog that has been reordered or
// shortened since the save was written is detected at load instead of
// silently attributing applied bits to the wrong patch.
package patch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrIndexOutOfRange = errors.New("patch: index out of range")
	ErrDesync          = errors.New("patch: catalog and saved table disagree")
	ErrUnknownPatch    = errors.New("patch: unknown patch")
)

// Patch identifies one entry of the table.
type Patch struct {
	Ordinal int
	Key     string
}

func (p Patch) String() string { return fmt.Sprintf("%s(#%d)", p.Key, p.Ordinal) }

// Catalog is the append-only, ordered declaration of every patch. New patches
// are appended at the end; nothing is ever renumbered, removed or reused.
type Catalog struct {
	patches []Patch
	byKey   map[string]int
	legacy  int
}

// NewCatalog validates patches and builds a catalog. The first legacy entries
// are the patches imported from the old 64-bit PatchBits field; their ordinals
// are also their bit positions.
func NewCatalog(legacy int, patches ...Patch) (*Catalog, error) {
	if legacy < 0 || legacy > 64 || legacy > len(patches) {
		return nil, fmt.Errorf("patch: legacy region of %d entries does not fit 64 bits and %d patches", legacy, len(patches))
	}
	c := &Catalog{
		patches: make([]Patch, 0, len(patches)),
		byKey:   make(map[string]int, len(patches)),
		legacy:  legacy,
	}
	for i, p := range patches {
		if p.Ordinal != i {
			return nil, fmt.Errorf("patch: %q declared at position %d with ordinal %d", p.Key, i, p.Ordinal)
		}
		key := strings.TrimSpace(p.Key)
		if key == "" || key != p.Key {
			return nil, fmt.Errorf("patch: ordinal %d has invalid key %q", i, p.Key)
		}
		if prev, dup := c.byKey[key]; dup {
			return nil, fmt.Errorf("patch: key %q used by ordinals %d and %d", key, prev, i)
		}
		c.byKey[key] = i
		c.patches = append(c.patches, p)
	}
	return c, nil
}

// MustCatalog is NewCatalog for package-level declarations.
func MustCatalog(legacy int, patches ...Patch) *Catalog {
	c, err := NewCatalog(legacy, patches...)
	if err != nil {
		panic(err)
	}
	return c
}

// Len is the number of declared patches, which is also the table length.
func (c *Catalog) Len() int { return len(c.patches) }

// Legacy is the number of patches imported from PatchBits.
func (c *Catalog) Legacy() int { return c.legacy }

func (c *Catalog) At(ordinal int) (Patch, bool) {
	if ordinal < 0 || ordinal >= len(c.patches) {
		return Patch{}, false
	}
	return c.patches[ordinal], true
}

func (c *Catalog) Lookup(key string) (Patch, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Patch{}, false
	}
	return c.patches[i], true
}

// All returns the patches in ordinal order.
func (c *Catalog) All() []Patch {
	return append([]Patch(nil), c.patches...)
}

// check reports whether p is the patch the catalog declares at p.Ordinal.
func (c *Catalog) check(p Patch) error {
	got, ok := c.At(p.Ordinal)
	if !ok {
		return fmt.Errorf("%w: %s, table has %d entries", ErrIndexOutOfRange, p, len(c.patches))
	}
	if got.Key != p.Key {
		return fmt.Errorf("%w: ordinal %d is %q, caller expected %q", ErrDesync, p.Ordinal, got.Key, p.Key)
	}
	return nil
}
