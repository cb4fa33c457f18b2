// Package indexdb keeps a queryable SQLite history of saves, patch state and
// persistence events. It is a secondary index: writes are queued and dropped
// under backpressure, and the save directories plus the audit log remain the
// source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/patch"
	"github.com/Luke-Tomasello/Angel-Island-Server-sub035/internal/world"
)

type SQLiteIndex struct {
	db  *sql.DB
	cat *patch.Catalog

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders sends on ch against Close.
	mu     sync.RWMutex
	closed atomic.Bool

	dropSave  atomic.Uint64
	dropEvent atomic.Uint64
	dropPatch atomic.Uint64
}

type reqKind int

const (
	reqSave reqKind = iota + 1
	reqEvent
	reqPatch
)

type req struct {
	kind reqKind

	save  SaveRow
	event world.Event
	patch PatchRow
}

type SaveRow struct {
	SaveID          string `json:"save_id"`
	CreatedAt       string `json:"created_at"`
	Path            string `json:"path"`
	Items           int    `json:"items"`
	Mobiles         int    `json:"mobiles"`
	Regions         int    `json:"regions"`
	Misc            int    `json:"misc"`
	Records         int    `json:"records"`
	Bytes           int64  `json:"bytes"`
	CompressedBytes int64  `json:"compressed_bytes"`
	Millis          int64  `json:"millis"`
}

type PatchRow struct {
	Ordinal   int    `json:"ordinal"`
	Key       string `json:"key"`
	Applied   bool   `json:"applied"`
	ChangedAt string `json:"changed_at"`
}

type EventRow struct {
	Seq     int64  `json:"seq"`
	Time    string `json:"time"`
	Kind    string `json:"kind"`
	SaveID  string `json:"save_id"`
	Detail  string `json:"detail"`
	RawJSON string `json:"raw_json"`
}

func OpenSQLite(path string, cat *patch.Catalog) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if cat == nil {
		cat = patch.Dynamic
	}

	s := &SQLiteIndex{
		db:  db,
		cat: cat,
		ch:  make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			save_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			path TEXT NOT NULL,
			items INTEGER NOT NULL,
			mobiles INTEGER NOT NULL,
			regions INTEGER NOT NULL,
			misc INTEGER NOT NULL,
			records INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			compressed_bytes INTEGER NOT NULL,
			millis INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_saves_created ON saves(created_at);`,
		`CREATE TABLE IF NOT EXISTS patches (
			ordinal INTEGER PRIMARY KEY,
			key TEXT NOT NULL,
			applied INTEGER NOT NULL,
			changed_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			kind TEXT NOT NULL,
			save_id TEXT,
			detail TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, seq);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

type QueueStats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropSaveTotal  uint64 `json:"drop_save_total"`
	DropEventTotal uint64 `json:"drop_event_total"`
	DropPatchTotal uint64 `json:"drop_patch_total"`
}

func (s *SQLiteIndex) Stats() QueueStats {
	return QueueStats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropSaveTotal:  s.dropSave.Load(),
		DropEventTotal: s.dropEvent.Load(),
		DropPatchTotal: s.dropPatch.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

// Emit indexes a persistence event. Patch events also update the patch row.
func (s *SQLiteIndex) Emit(ev world.Event) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqEvent, event: ev}, &s.dropEvent)
	if ev.Kind != world.EventPatchSet && ev.Kind != world.EventPatchClear {
		return
	}
	p, ok := s.cat.Lookup(ev.Detail)
	if !ok {
		return
	}
	s.enqueue(req{kind: reqPatch, patch: PatchRow{
		Ordinal:   p.Ordinal,
		Key:       p.Key,
		Applied:   ev.Kind == world.EventPatchSet,
		ChangedAt: stamp(ev.Time),
	}}, &s.dropPatch)
}

// RecordSave indexes a committed save.
func (s *SQLiteIndex) RecordSave(path string, st world.SaveStats) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSave, save: SaveRow{
		SaveID:          st.SaveID,
		CreatedAt:       stamp(st.At),
		Path:            path,
		Items:           st.ByCategory[string(world.CategoryItems)],
		Mobiles:         st.ByCategory[string(world.CategoryMobiles)],
		Regions:         st.ByCategory[string(world.CategoryRegions)],
		Misc:            st.ByCategory[string(world.CategoryMisc)],
		Records:         st.Records,
		Bytes:           st.Bytes,
		CompressedBytes: st.CompressedBytes,
		Millis:          st.Millis,
	}}, &s.dropSave)
}

// RecordPatches indexes the whole patch table, such as after a load.
func (s *SQLiteIndex) RecordPatches(entries []patch.Entry) {
	if s == nil {
		return
	}
	now := stamp(time.Time{})
	for _, e := range entries {
		s.enqueue(req{kind: reqPatch, patch: PatchRow{
			Ordinal:   e.Ordinal,
			Key:       e.Key,
			Applied:   e.Applied,
			ChangedAt: now,
		}}, &s.dropPatch)
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Saves returns up to limit saves, newest first.
func (s *SQLiteIndex) Saves(ctx context.Context, limit int) ([]SaveRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT save_id,created_at,path,items,mobiles,regions,misc,records,bytes,compressed_bytes,millis
		FROM saves ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SaveRow
	for rows.Next() {
		var r SaveRow
		if err := rows.Scan(&r.SaveID, &r.CreatedAt, &r.Path, &r.Items, &r.Mobiles, &r.Regions, &r.Misc,
			&r.Records, &r.Bytes, &r.CompressedBytes, &r.Millis); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Patches returns every indexed patch row in ordinal order.
func (s *SQLiteIndex) Patches(ctx context.Context) ([]PatchRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ordinal,key,applied,changed_at FROM patches ORDER BY ordinal`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PatchRow
	for rows.Next() {
		var r PatchRow
		var applied int
		if err := rows.Scan(&r.Ordinal, &r.Key, &applied, &r.ChangedAt); err != nil {
			return nil, err
		}
		r.Applied = applied != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Events returns up to limit events, newest first. An empty kind matches all.
func (s *SQLiteIndex) Events(ctx context.Context, kind string, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT seq,time,kind,COALESCE(save_id,''),COALESCE(detail,''),raw_json
		FROM events WHERE (?='' OR kind=?) ORDER BY seq DESC LIMIT ?`, kind, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(&r.Seq, &r.Time, &r.Kind, &r.SaveID, &r.Detail, &r.RawJSON); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSave, _ := s.db.Prepare(`INSERT OR REPLACE INTO saves(save_id,created_at,path,items,mobiles,regions,misc,records,bytes,compressed_bytes,millis) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT INTO events(time,kind,save_id,detail,raw_json) VALUES(?,?,?,?,?)`)
	upsertPatch, _ := s.db.Prepare(`INSERT OR REPLACE INTO patches(ordinal,key,applied,changed_at) VALUES(?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertSave, insertEvent, upsertPatch} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSave:
			sv := r.save
			exec(insertSave, sv.SaveID, sv.CreatedAt, sv.Path, sv.Items, sv.Mobiles, sv.Regions, sv.Misc,
				sv.Records, sv.Bytes, sv.CompressedBytes, sv.Millis)
		case reqEvent:
			ev := r.event
			raw, _ := json.Marshal(ev)
			exec(insertEvent, stamp(ev.Time), string(ev.Kind), ev.SaveID, ev.Detail, string(raw))
		case reqPatch:
			p := r.patch
			applied := 0
			if p.Applied {
				applied = 1
			}
			exec(upsertPatch, p.Ordinal, p.Key, applied, p.ChangedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0) {
			commit()
		}
	}

	commit()
}
