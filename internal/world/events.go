package world

import (
	"context"
	"sort"
	"time"
)

type EventKind string

const (
	EventSave          EventKind = "save"
	EventLoad          EventKind = "load"
	EventPatchSet      EventKind = "patch_set"
	EventPatchClear    EventKind = "patch_clear"
	EventLegacyMigrate EventKind = "legacy_migrate"
)

// Event is a persistence milestone, written to the audit log and streamed to
// admin observers.
type Event struct {
	Time    time.Time      `json:"time"`
	Kind    EventKind      `json:"kind"`
	WorldID string         `json:"world_id"`
	SaveID  string         `json:"save_id,omitempty"`
	Detail  string         `json:"detail,omitempty"`
	Counts  map[string]int `json:"counts,omitempty"`
	Bytes   int64          `json:"bytes,omitempty"`
	Millis  int64          `json:"millis,omitempty"`
}

// EventSink receives events. Emit must not block the world for long.
type EventSink interface {
	Emit(ev Event)
}

// Sinks fans an event out to several sinks.
type Sinks []EventSink

func (s Sinks) Emit(ev Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(ev)
		}
	}
}

// Priority orders hooks of the same kind; lower runs first.
type Priority int

const (
	PriorityFirst  Priority = -100
	PriorityEarly  Priority = -10
	PriorityNormal Priority = 0
	PriorityLate   Priority = 10
)

// HookFunc runs with exclusive access to the world.
type HookFunc func(ctx context.Context, tx *Tx) error

type hook struct {
	name string
	pri  Priority
	seq  int
	fn   HookFunc
}

type hookList struct {
	hooks []hook
	seq   int
}

func (l *hookList) add(name string, pri Priority, fn HookFunc) {
	l.seq++
	l.hooks = append(l.hooks, hook{name: name, pri: pri, seq: l.seq, fn: fn})
	sort.SliceStable(l.hooks, func(i, j int) bool {
		if l.hooks[i].pri != l.hooks[j].pri {
			return l.hooks[i].pri < l.hooks[j].pri
		}
		return l.hooks[i].seq < l.hooks[j].seq
	})
}

func (l *hookList) run(ctx context.Context, tx *Tx, stage string) error {
	for _, h := range l.hooks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.fn(ctx, tx); err != nil {
			return &HookError{Stage: stage, Name: h.name, Err: err}
		}
	}
	return nil
}

// HookError reports which hook failed.
type HookError struct {
	Stage string
	Name  string
	Err   error
}

func (e *HookError) Error() string { return e.Stage + " hook " + e.Name + ": " + e.Err.Error() }
func (e *HookError) Unwrap() error { return e.Err }
