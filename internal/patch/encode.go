package patch

import (
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/codec"
)

// saved is the decoded form of a patch table record.
type saved struct {
	legacy  uint64
	entries []Entry
}

// v0 held only the PatchBits word, v1 appended a flat bool array indexed by
// ordinal, v2 replaced the flat array with keyed slots.
var tableSchema = codec.Schema[*saved]{
	Type: "PatchTable",
	Steps: []codec.Step[*saved]{
		0: func(s *saved, r *codec.Reader, _ int) {
			s.legacy = r.ReadUInt64()
		},
		1: func(s *saved, r *codec.Reader, v int) {
			if v >= 2 {
				return
			}
			n := r.ReadInt()
			if n < 0 || n > r.Remaining() {
				r.Fail(codec.ErrMalformed)
				return
			}
			for i := 0; i < n && r.Err() == nil; i++ {
				s.entries = append(s.entries, Entry{Ordinal: i, Applied: r.ReadBool()})
			}
		},
		2: func(s *saved, r *codec.Reader, _ int) {
			n := r.ReadInt()
			if n < 0 || n > r.Remaining() {
				r.Fail(codec.ErrMalformed)
				return
			}
			for i := 0; i < n && r.Err() == nil; i++ {
				e := Entry{Ordinal: r.ReadEncodedInt()}
				e.Key = r.ReadString()
				e.Applied = r.ReadBool()
				s.entries = append(s.entries, e)
			}
		},
	},
}

// Serialize writes the table and any pending legacy value.
func (t *Table) Serialize(w *codec.Writer) {
	w.WriteVersion(tableSchema.Current())

	entries := t.Entries()
	w.WriteInt(len(entries))
	for _, e := range entries {
		w.WriteEncodedInt(e.Ordinal)
		w.WriteString(e.Key)
		w.WriteBool(e.Applied)
	}

	w.WriteUInt64(t.legacy)
}

// Deserialize replaces the table with a record written by Serialize or by any
// older layout.
func (t *Table) Deserialize(r *codec.Reader) error {
	var s saved
	if _, err := tableSchema.Read(&s, r); err != nil {
		return err
	}
	return t.Restore(s.entries, s.legacy)
}
