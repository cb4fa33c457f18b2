package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

const fileSuffix = ".jsonl.zst"

// JSONLZstdWriter appends JSON lines to zstd files, starting a new file every
// period.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	period  time.Duration
	now     func() time.Time

	mu     sync.Mutex
	curKey string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string, period time.Duration) *JSONLZstdWriter {
	if period <= 0 {
		period = time.Hour
	}
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		period:  period,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := w.now().UTC().Truncate(w.period).Format("2006-01-02-1504")
	if key != w.curKey || w.w == nil {
		if err := w.rotateLocked(key); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(key string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 32*1024)
	w.curKey = key
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathFor(key string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s%s", w.prefix, key, fileSuffix))
}

// AuditEntry is one line of the persistence audit log.
type AuditEntry struct {
	ID string `json:"id"`
	world.Event
}

// AuditLogger writes persistence events as audit entries. It is a
// world.EventSink; write failures are reported through OnError.
type AuditLogger struct {
	w *JSONLZstdWriter

	OnError func(err error)
}

func NewAuditLogger(dir string, rotate time.Duration) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(dir, "audit", rotate)}
}

func (l *AuditLogger) WriteAudit(v AuditEntry) error { return l.w.Write(v) }
func (l *AuditLogger) Close() error                  { return l.w.Close() }

func (l *AuditLogger) Emit(ev world.Event) {
	err := l.WriteAudit(AuditEntry{ID: uuid.NewString(), Event: ev})
	if err != nil && l.OnError != nil {
		l.OnError(err)
	}
}

// ReadAudit decodes every audit entry under dir, oldest file first.
func ReadAudit(dir string) ([]AuditEntry, error) {
	names, err := filepath.Glob(filepath.Join(dir, "audit-*"+fileSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	var out []AuditEntry
	for _, name := range names {
		entries, err := readAuditFile(name)
		out = append(out, entries...)
		if err != nil {
			return out, fmt.Errorf("%s: %w", filepath.Base(name), err)
		}
	}
	return out, nil
}

func readAuditFile(path string) ([]AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []AuditEntry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e AuditEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return out, err
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return out, err
	}
	return out, nil
}
