package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type guard struct {
	ThreatLevel int
	BaseHits    int
	Title       string
	Weight      float64
	steps       []int
}

// v0 {BaseHits, Weight}; v1 adds ThreatLevel; v2 adds Title; v3 stops writing
// Weight but every older record still carries it.
var guardSchema = Schema[*guard]{
	Type: "guard",
	Steps: []Step[*guard]{
		0: func(g *guard, r *Reader, v int) {
			g.steps = append(g.steps, 0)
			g.BaseHits = r.ReadInt()
			if v < 3 {
				_ = r.ReadDouble()
			}
		},
		1: func(g *guard, r *Reader, _ int) {
			g.steps = append(g.steps, 1)
			g.ThreatLevel = r.ReadInt()
		},
		2: func(g *guard, r *Reader, _ int) {
			g.steps = append(g.steps, 2)
			g.Title = r.ReadString()
		},
		3: nil,
	},
}

func (g *guard) serialize(w *Writer) {
	w.WriteVersion(guardSchema.Current())
	w.WriteString(g.Title)
	w.WriteInt(g.ThreatLevel)
	w.WriteInt(g.BaseHits)
}

func TestSchema_CurrentVersionRoundTrip(t *testing.T) {
	in := &guard{ThreatLevel: 5, BaseHits: 50, Title: "the guard"}
	w := NewWriter()
	in.serialize(w)

	out := &guard{}
	v, err := guardSchema.Read(out, NewReader(w.Bytes(), nil))
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, []int{2, 1, 0}, out.steps)
	assert.Equal(t, 5, out.ThreatLevel)
	assert.Equal(t, 50, out.BaseHits)
	assert.Equal(t, "the guard", out.Title)
}

func TestSchema_Version1FallsThroughToVersion0(t *testing.T) {
	w := NewWriter()
	w.WriteVersion(1)
	w.WriteInt(5)  // ThreatLevel
	w.WriteInt(50) // BaseHits
	w.WriteDouble(12.5)

	g := &guard{}
	r := NewReader(w.Bytes(), nil)
	_, err := guardSchema.Read(g, r)
	require.NoError(t, err)
	assert.Equal(t, 5, g.ThreatLevel)
	assert.Equal(t, 50, g.BaseHits)
	assert.Equal(t, []int{1, 0}, g.steps)
	assert.Zero(t, r.Remaining())
}

func TestSchema_Version0LeavesNewerFieldsAtDefault(t *testing.T) {
	w := NewWriter()
	w.WriteVersion(0)
	w.WriteInt(50)
	w.WriteDouble(12.5)

	g := &guard{}
	r := NewReader(w.Bytes(), nil)
	_, err := guardSchema.Read(g, r)
	require.NoError(t, err)
	assert.Equal(t, 0, g.ThreatLevel)
	assert.Equal(t, 50, g.BaseHits)
	assert.Equal(t, "", g.Title)
	assert.Zero(t, r.Remaining())
}

func TestSchema_EveryVersionConsumesItsWholeRecord(t *testing.T) {
	build := func(v int) []byte {
		w := NewWriter()
		w.WriteVersion(v)
		if v >= 2 {
			w.WriteString("t")
		}
		if v >= 1 {
			w.WriteInt(1)
		}
		w.WriteInt(2)
		if v < 3 {
			w.WriteDouble(1)
		}
		return w.Bytes()
	}
	for v := 0; v <= guardSchema.Current(); v++ {
		g := &guard{}
		r := NewReader(build(v), nil)
		got, err := guardSchema.Read(g, r)
		require.NoError(t, err, "version %d", v)
		assert.Equal(t, v, got)
		assert.Zero(t, r.Remaining(), "version %d left bytes", v)
		assert.Equal(t, 2, g.BaseHits, "version %d", v)
	}
}

func TestSchema_UnknownVersionIsFatal(t *testing.T) {
	w := NewWriter()
	w.WriteVersion(guardSchema.Current() + 1)
	w.WriteInt(1)

	g := &guard{}
	_, err := guardSchema.Read(g, NewReader(w.Bytes(), nil))
	require.ErrorIs(t, err, ErrUnknownVersion)
	assert.Empty(t, g.steps)
}

func TestSchema_TruncatedRecordIsFatal(t *testing.T) {
	w := NewWriter()
	w.WriteVersion(1)
	w.WriteInt(5)

	_, err := guardSchema.Read(&guard{}, NewReader(w.Bytes(), nil))
	require.ErrorIs(t, err, ErrTruncated)
}
