/*
Package codec implements the versioned binary record encoding every
persistent entity uses.

A record is a version tag followed by the entity's fields. The writer always
emits the newest layout. The reader accepts any historical version: a
[Schema] lists one step per version, where step N reads only the fields
version N introduced, and reading a record of version V runs steps V, V-1,
..., 0 in that order. Older records therefore skip the newer steps and land on
the same in-memory shape with the newer fields left at their defaults.

	var mobileSchema = codec.Schema[*Mobile]{
		Type: "Mobile",
		Steps: []codec.Step[*Mobile]{
			0: func(m *Mobile, r *codec.Reader, _ int) { m.BaseHits = r.ReadInt() },
			1: func(m *Mobile, r *codec.Reader, _ int) { m.ThreatLevel = r.ReadInt() },
		},
	}

	func (m *Mobile) Serialize(w *codec.Writer) {
		w.WriteVersion(mobileSchema.Current())
		w.WriteInt(m.ThreatLevel) // 1
		w.WriteInt(m.BaseHits)    // 0
	}

Once a version ships its step must never change. A field that is no longer
used is still read (and discarded) by the step that introduced it, gated on
the record version if a later version stopped writing it, so the stream
position stays aligned for every following field.

References to other entities are written as their serial, with serial.Null
for nil. Reading resolves the serial through the Reader's Resolver, which is
expected to already hold a stand-in for every serial in the save.

Errors are sticky: the first failure (truncation, unknown version, bad
reference) is kept, every later read returns a zero value, and Err reports
the failure. Callers must check Err before trusting anything they read.
*/
package codec
