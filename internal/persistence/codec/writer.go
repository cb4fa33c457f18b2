package codec

import (
	"encoding/binary"
	"math"
	"reflect"
	"time"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
)

// Identified is anything that can be referenced from a record.
type Identified interface {
	Serial() serial.Serial
}

// Deletable entities are written as null references once deleted.
type Deletable interface {
	Deleted() bool
}

// Point3D is a map location.
type Point3D struct {
	X, Y, Z int
}

// Writer appends the binary form of fields to an in-memory buffer.
type Writer struct {
	data []byte
}

func NewWriter() *Writer {
	return &Writer{data: make([]byte, 0, 256)}
}

// Bytes returns the encoded payload. The slice is owned by the Writer until
// Reset is called.
func (w *Writer) Bytes() []byte { return w.data }
func (w *Writer) Len() int      { return len(w.data) }
func (w *Writer) Reset()        { w.data = w.data[:0] }

// WriteVersion writes a record version tag. Versions are never validated here;
// the caller keeps them monotonic across releases.
func (w *Writer) WriteVersion(v int) {
	w.WriteEncodedInt(v)
}

// WriteEncodedInt writes v as a 7-bit little-endian varint of its 32-bit
// unsigned form.
func (w *Writer) WriteEncodedInt(v int) {
	w.data = binary.AppendUvarint(w.data, uint64(uint32(int32(v))))
}

func (w *Writer) WriteInt(v int) {
	w.data = binary.LittleEndian.AppendUint32(w.data, uint32(int32(v)))
}

func (w *Writer) WriteInt64(v int64) {
	w.data = binary.LittleEndian.AppendUint64(w.data, uint64(v))
}

func (w *Writer) WriteUInt64(v uint64) {
	w.data = binary.LittleEndian.AppendUint64(w.data, v)
}

func (w *Writer) WriteDouble(v float64) {
	w.data = binary.LittleEndian.AppendUint64(w.data, math.Float64bits(v))
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.data = append(w.data, 1)
	} else {
		w.data = append(w.data, 0)
	}
}

func (w *Writer) WriteByte(b byte) error {
	w.data = append(w.data, b)
	return nil
}

// WriteTime writes t as UTC ticks.
func (w *Writer) WriteTime(t time.Time) {
	w.WriteInt64(TicksFromTime(t))
}

// WriteDuration writes d as ticks.
func (w *Writer) WriteDuration(d time.Duration) {
	w.WriteInt64(TicksFromDuration(d))
}

// WriteString writes a present string.
func (w *Writer) WriteString(s string) {
	w.WriteBool(true)
	w.WriteEncodedInt(len(s))
	w.data = append(w.data, s...)
}

// WriteNullableString writes s, or the absent marker for nil.
func (w *Writer) WriteNullableString(s *string) {
	if s == nil {
		w.WriteBool(false)
		return
	}
	w.WriteString(*s)
}

func (w *Writer) WriteStringList(list []string) {
	w.WriteInt(len(list))
	for _, s := range list {
		w.WriteString(s)
	}
}

func (w *Writer) WriteSerial(s serial.Serial) {
	w.WriteInt(int(s))
}

// WriteRef writes the serial of e, or serial.Null when e is nil or deleted.
func (w *Writer) WriteRef(e Identified) {
	w.WriteSerial(SerialOf(e))
}

// WriteRefList writes the count followed by each element's serial.
func WriteRefList[T Identified](w *Writer, list []T) {
	w.WriteInt(len(list))
	for _, e := range list {
		w.WriteRef(e)
	}
}

func (w *Writer) WriteSerialList(list []serial.Serial) {
	w.WriteInt(len(list))
	for _, s := range list {
		w.WriteSerial(s)
	}
}

func (w *Writer) WritePoint3D(p Point3D) {
	w.WriteInt(p.X)
	w.WriteInt(p.Y)
	w.WriteInt(p.Z)
}

// SerialOf returns the serial a reference to e is persisted as.
func SerialOf(e Identified) serial.Serial {
	if isNil(e) {
		return serial.Null
	}
	if d, ok := e.(Deletable); ok && d.Deleted() {
		return serial.Null
	}
	return e.Serial()
}

func isNil(e Identified) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
