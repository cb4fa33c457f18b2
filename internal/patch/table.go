package patch

import "fmt"

// Table holds the applied flag of every catalog patch, indexed by ordinal.
// A world owns exactly one Table; it is not safe for concurrent use.
type Table struct {
	cat     *Catalog
	applied []bool

	// legacy is the pre-table PatchBits value read from an old save. It is
	// non-zero only between loading such a save and MigrateLegacy.
	legacy uint64
}

func NewTable(cat *Catalog) *Table {
	return &Table{cat: cat, applied: make([]bool, cat.Len())}
}

func (t *Table) Catalog() *Catalog { return t.cat }
func (t *Table) Len() int          { return len(t.applied) }

// Legacy returns the not yet migrated PatchBits value.
func (t *Table) Legacy() uint64 { return t.legacy }

func (t *Table) index(i int) error {
	if i < 0 || i >= len(t.applied) {
		return fmt.Errorf("%w: %d, table has %d entries", ErrIndexOutOfRange, i, len(t.applied))
	}
	return nil
}

func (t *Table) IsDynamicPatchSet(i int) (bool, error) {
	if err := t.index(i); err != nil {
		return false, err
	}
	return t.applied[i], nil
}

// SetDynamicPatch marks patch i applied. It reports whether the table changed;
// setting an applied patch again is a no-op.
func (t *Table) SetDynamicPatch(i int) (bool, error) {
	if err := t.index(i); err != nil {
		return false, err
	}
	if t.applied[i] {
		return false, nil
	}
	t.applied[i] = true
	return true, nil
}

// ClearDynamicPatch marks patch i not applied. Only rollback tooling calls it.
func (t *Table) ClearDynamicPatch(i int) (bool, error) {
	if err := t.index(i); err != nil {
		return false, err
	}
	if !t.applied[i] {
		return false, nil
	}
	t.applied[i] = false
	return true, nil
}

func (t *Table) IsSet(p Patch) (bool, error) {
	if err := t.cat.check(p); err != nil {
		return false, err
	}
	return t.applied[p.Ordinal], nil
}

func (t *Table) Set(p Patch) (bool, error) {
	if err := t.cat.check(p); err != nil {
		return false, err
	}
	return t.SetDynamicPatch(p.Ordinal)
}

func (t *Table) Clear(p Patch) (bool, error) {
	if err := t.cat.check(p); err != nil {
		return false, err
	}
	return t.ClearDynamicPatch(p.Ordinal)
}

// Entry is one persisted slot. Key is empty for slots read from saves that
// predate keyed tables.
type Entry struct {
	Ordinal int
	Key     string
	Applied bool
}

// Entries returns every slot in ordinal order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.applied))
	for i, ok := range t.applied {
		p, _ := t.cat.At(i)
		out[i] = Entry{Ordinal: i, Key: p.Key, Applied: ok}
	}
	return out
}

// AppliedCount is the number of applied patches.
func (t *Table) AppliedCount() int {
	n := 0
	for _, ok := range t.applied {
		if ok {
			n++
		}
	}
	return n
}

// Reset clears every flag, including any pending legacy value.
func (t *Table) Reset() {
	for i := range t.applied {
		t.applied[i] = false
	}
	t.legacy = 0
}

// Restore replaces the table contents with persisted state. The saved table
// may be shorter than the catalog (patches were appended since) but never
// longer, and a keyed slot must carry the key the catalog declares at that
// ordinal. On error the table is left unchanged.
func (t *Table) Restore(entries []Entry, legacy uint64) error {
	next := make([]bool, len(t.applied))
	for i, e := range entries {
		if e.Ordinal != i {
			return fmt.Errorf("%w: saved slot %d carries ordinal %d", ErrDesync, i, e.Ordinal)
		}
		p, ok := t.cat.At(e.Ordinal)
		if !ok {
			return fmt.Errorf("%w: saved table has %d entries, catalog only %d", ErrDesync, len(entries), t.cat.Len())
		}
		if e.Key != "" && e.Key != p.Key {
			return fmt.Errorf("%w: saved ordinal %d is %q, catalog declares %q", ErrDesync, e.Ordinal, e.Key, p.Key)
		}
		next[i] = e.Applied
	}
	t.applied = next
	t.legacy = legacy
	return nil
}
