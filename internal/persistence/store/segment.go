package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/codec"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/persistence/serial"
)

// A category is stored as two files: <name>.idx lists every record's type,
// serial and payload length; <name>.bin.zst holds the payloads back to back
// in index order. The loader reads every index before touching any payload.

const (
	idxMagic   = "AIDX"
	idxVersion = 1
)

var (
	ErrBadIndex  = errors.New("store: bad index")
	ErrShortData = errors.New("store: payload data ends early")
)

// Header locates one record in a category.
type Header struct {
	Type   string
	Serial serial.Serial
	Len    int
}

func idxPath(dir, category string) string { return filepath.Join(dir, category+".idx") }
func binPath(dir, category string) string { return filepath.Join(dir, category+".bin.zst") }

// SegmentWriter appends records of one category.
type SegmentWriter struct {
	dir      string
	category string

	f   *os.File
	enc *zstd.Encoder
	bw  *bufio.Writer

	types   []string
	typeIdx map[string]int
	entries []indexEntry
	bytes   int64
	closed  bool
}

type indexEntry struct {
	typ    int
	serial serial.Serial
	n      int
}

func newSegmentWriter(dir, category string, level zstd.EncoderLevel) (*SegmentWriter, error) {
	f, err := os.OpenFile(binPath(dir, category), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(level))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &SegmentWriter{
		dir:      dir,
		category: category,
		f:        f,
		enc:      enc,
		bw:       bufio.NewWriterSize(enc, 256*1024),
		typeIdx:  map[string]int{},
	}, nil
}

// Append writes one record. payload is copied before Append returns.
func (s *SegmentWriter) Append(typeName string, id serial.Serial, payload []byte) error {
	if s.closed {
		return fmt.Errorf("store: append to closed segment %s", s.category)
	}
	if typeName == "" {
		return fmt.Errorf("store: %s record %v has empty type", s.category, id)
	}
	ti, ok := s.typeIdx[typeName]
	if !ok {
		ti = len(s.types)
		s.types = append(s.types, typeName)
		s.typeIdx[typeName] = ti
	}
	if _, err := s.bw.Write(payload); err != nil {
		return err
	}
	s.entries = append(s.entries, indexEntry{typ: ti, serial: id, n: len(payload)})
	s.bytes += int64(len(payload))
	return nil
}

// Close flushes the payload file and writes the index.
func (s *SegmentWriter) Close() (CategoryInfo, error) {
	info := CategoryInfo{Name: s.category, Records: len(s.entries), Bytes: s.bytes}
	if s.closed {
		return info, nil
	}
	s.closed = true

	err := s.bw.Flush()
	if cerr := s.enc.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = s.f.Sync()
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return info, fmt.Errorf("store: write %s payloads: %w", s.category, err)
	}
	if st, err := os.Stat(binPath(s.dir, s.category)); err == nil {
		info.CompressedBytes = st.Size()
	}

	w := codec.NewWriter()
	w.WriteVersion(idxVersion)
	w.WriteStringList(s.types)
	w.WriteInt(len(s.entries))
	for _, e := range s.entries {
		w.WriteEncodedInt(e.typ)
		w.WriteSerial(e.serial)
		w.WriteEncodedInt(e.n)
	}
	data := append([]byte(idxMagic), w.Bytes()...)
	if err := writeFileSync(idxPath(s.dir, s.category), data); err != nil {
		return info, fmt.Errorf("store: write %s index: %w", s.category, err)
	}
	return info, nil
}

func (s *SegmentWriter) abort() {
	if s.closed {
		return
	}
	s.closed = true
	_ = s.enc.Close()
	_ = s.f.Close()
}

func readIndex(dir, category string) ([]Header, error) {
	raw, err := os.ReadFile(idxPath(dir, category))
	if err != nil {
		return nil, err
	}
	if len(raw) < len(idxMagic) || string(raw[:len(idxMagic)]) != idxMagic {
		return nil, fmt.Errorf("%w: %s: missing magic", ErrBadIndex, category)
	}
	r := codec.NewReader(raw[len(idxMagic):], nil)
	if v := r.ReadVersion(); r.Err() == nil && v != idxVersion {
		return nil, fmt.Errorf("%w: %s: index version %d", ErrBadIndex, category, v)
	}
	types := r.ReadStringList()
	n := r.ReadInt()
	if r.Err() == nil && (n < 0 || n > r.Remaining()) {
		return nil, fmt.Errorf("%w: %s: %d entries", ErrBadIndex, category, n)
	}
	out := make([]Header, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		ti := r.ReadEncodedInt()
		id := r.ReadSerial()
		ln := r.ReadEncodedInt()
		if r.Err() != nil {
			break
		}
		if ti < 0 || ti >= len(types) {
			return nil, fmt.Errorf("%w: %s entry %d: type index %d of %d", ErrBadIndex, category, i, ti, len(types))
		}
		if ln < 0 {
			return nil, fmt.Errorf("%w: %s entry %d: length %d", ErrBadIndex, category, i, ln)
		}
		out = append(out, Header{Type: types[ti], Serial: id, Len: ln})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadIndex, category, err)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %s: %d trailing bytes", ErrBadIndex, category, r.Remaining())
	}
	return out, nil
}

// readPayloads streams the payloads of hdrs, in order, to fn. The payload
// slice is only valid for the duration of the call.
func readPayloads(dir, category string, hdrs []Header, fn func(h Header, payload []byte) error) error {
	f, err := os.Open(binPath(dir, category))
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	br := bufio.NewReaderSize(dec, 256*1024)

	buf := make([]byte, 0, 4096)
	for i, h := range hdrs {
		if cap(buf) < h.Len {
			buf = make([]byte, 0, h.Len)
		}
		buf = buf[:h.Len]
		if _, err := io.ReadFull(br, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: %s record %d (%v)", ErrShortData, category, i, h.Serial)
			}
			return fmt.Errorf("store: %s record %d: %w", category, i, err)
		}
		if err := fn(h, buf); err != nil {
			return err
		}
	}
	n, err := io.Copy(io.Discard, br)
	if err != nil {
		return fmt.Errorf("store: %s: %w", category, err)
	}
	if n != 0 {
		return fmt.Errorf("%w: %s has %d bytes past the last record", ErrBadIndex, category, n)
	}
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
