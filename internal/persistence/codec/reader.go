package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
)

var (
	ErrTruncated      = errors.New("codec: truncated record")
	ErrUnknownVersion = errors.New("codec: unknown version")
	ErrBadReference   = errors.New("codec: reference resolves to wrong type")
	ErrMalformed      = errors.New("codec: malformed field")
)

// Resolver maps a serial read from a record to the live entity registered
// under it. ok is false when no entity with that serial exists.
type Resolver interface {
	Resolve(s serial.Serial) (e any, ok bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(s serial.Serial) (any, bool)

func (f ResolverFunc) Resolve(s serial.Serial) (any, bool) { return f(s) }

// Reader decodes fields from one record payload.
type Reader struct {
	data []byte
	pos  int
	err  error
	res  Resolver
}

// NewReader reads from data. res may be nil when the record holds no
// references; reading one then yields nil.
func NewReader(data []byte, res Resolver) *Reader {
	return &Reader{data: data, res: res}
}

// Err returns the first failure, if any.
func (r *Reader) Err() error { return r.err }

// Pos is the number of bytes consumed so far.
func (r *Reader) Pos() int       { return r.pos }
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// Fail records err unless an earlier failure is already recorded. Steps use
// it to reject field values that make the record unusable.
func (r *Reader) Fail(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.Fail(fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.pos, len(r.data)-r.pos))
		r.pos = len(r.data)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Skip discards n bytes.
func (r *Reader) Skip(n int) { r.take(n) }

// The Skip helpers discard a field a newer layout no longer uses.
func (r *Reader) SkipInt()    { r.take(4) }
func (r *Reader) SkipDouble() { r.take(8) }
func (r *Reader) SkipString() { r.ReadNullableString() }

// ReadVersion reads a record version tag.
func (r *Reader) ReadVersion() int {
	v := r.ReadEncodedInt()
	if v < 0 {
		r.Fail(fmt.Errorf("%w: negative version %d", ErrMalformed, v))
		return 0
	}
	return v
}

func (r *Reader) ReadEncodedInt() int {
	if r.err != nil {
		return 0
	}
	u, n := binary.Uvarint(r.data[r.pos:])
	switch {
	case n == 0:
		r.Fail(fmt.Errorf("%w: varint at offset %d", ErrTruncated, r.pos))
		r.pos = len(r.data)
		return 0
	case n < 0 || u > math.MaxUint32:
		r.Fail(fmt.Errorf("%w: varint overflow at offset %d", ErrMalformed, r.pos))
		return 0
	}
	r.pos += n
	return int(int32(uint32(u)))
}

func (r *Reader) ReadInt() int {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int(int32(binary.LittleEndian.Uint32(b)))
}

func (r *Reader) ReadInt64() int64 {
	return int64(r.ReadUInt64())
}

func (r *Reader) ReadUInt64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) ReadDouble() float64 {
	return math.Float64frombits(r.ReadUInt64())
}

func (r *Reader) ReadBool() bool {
	b := r.take(1)
	if b == nil {
		return false
	}
	return b[0] != 0
}

func (r *Reader) ReadByte() (byte, error) {
	b := r.take(1)
	if b == nil {
		return 0, r.err
	}
	return b[0], nil
}

func (r *Reader) ReadTime() time.Time {
	t := r.ReadInt64()
	if r.err != nil {
		return time.Time{}
	}
	return TimeFromTicks(t)
}

func (r *Reader) ReadDuration() time.Duration {
	t := r.ReadInt64()
	if r.err != nil {
		return 0
	}
	return DurationFromTicks(t)
}

// ReadString reads a string; an absent string reads as "".
func (r *Reader) ReadString() string {
	s := r.ReadNullableString()
	if s == nil {
		return ""
	}
	return *s
}

func (r *Reader) ReadNullableString() *string {
	if !r.ReadBool() {
		return nil
	}
	n := r.ReadEncodedInt()
	if r.err == nil && n < 0 {
		r.Fail(fmt.Errorf("%w: negative string length %d", ErrMalformed, n))
	}
	b := r.take(n)
	if r.err != nil {
		return nil
	}
	if !utf8.Valid(b) {
		r.Fail(fmt.Errorf("%w: invalid utf-8 string at offset %d", ErrMalformed, r.pos-n))
		return nil
	}
	s := string(b)
	return &s
}

func (r *Reader) ReadStringList() []string {
	n := r.readCount()
	if n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.ReadString())
	}
	return out
}

func (r *Reader) ReadSerial() serial.Serial {
	return serial.Serial(r.ReadInt())
}

func (r *Reader) ReadSerialList() []serial.Serial {
	n := r.readCount()
	if n == 0 {
		return nil
	}
	out := make([]serial.Serial, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.ReadSerial())
	}
	return out
}

func (r *Reader) ReadPoint3D() Point3D {
	x := r.ReadInt()
	y := r.ReadInt()
	z := r.ReadInt()
	return Point3D{X: x, Y: y, Z: z}
}

// readCount reads a list length and rejects lengths the remaining payload
// cannot possibly hold.
func (r *Reader) readCount() int {
	n := r.ReadInt()
	if r.err != nil {
		return 0
	}
	if n < 0 || n > r.Remaining() {
		r.Fail(fmt.Errorf("%w: list length %d at offset %d", ErrMalformed, n, r.pos-4))
		return 0
	}
	return n
}

// ReadRef reads a serial and resolves it. Null and unknown serials both yield
// nil: a reference to an entity that no longer exists is not an error.
func (r *Reader) ReadRef() any {
	s := r.ReadSerial()
	if r.err != nil || s.IsNull() || !s.IsValid() || r.res == nil {
		return nil
	}
	e, ok := r.res.Resolve(s)
	if !ok {
		return nil
	}
	return e
}

// Ref reads a reference expected to point at a T. A live entity of another
// type fails the reader with ErrBadReference.
func Ref[T any](r *Reader) T {
	var zero T
	at := r.pos
	e := r.ReadRef()
	if e == nil {
		return zero
	}
	t, ok := e.(T)
	if !ok {
		r.Fail(fmt.Errorf("%w: %T at offset %d, want %T", ErrBadReference, e, at, zero))
		return zero
	}
	return t
}

// RefList reads a counted list of references, dropping null and missing
// entries.
func RefList[T any](r *Reader) []T {
	n := r.readCount()
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		e := r.ReadRef()
		if e == nil {
			continue
		}
		t, ok := e.(T)
		if !ok {
			var zero T
			r.Fail(fmt.Errorf("%w: %T in list, want %T", ErrBadReference, e, zero))
			return nil
		}
		out = append(out, t)
	}
	return out
}
