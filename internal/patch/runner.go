package patch

import (
	"context"
	"fmt"
	"log"
)

// Func performs the one-time world mutation of a patch.
type Func func(ctx context.Context) error

type runStep struct {
	patch Patch
	fn    Func
}

// Runner applies startup patches in registration order. A patch already
// marked applied is skipped; a patch that runs successfully is marked applied
// immediately so a later failure does not re-run it on the next boot.
type Runner struct {
	table *Table
	log   *log.Logger
	steps []runStep

	// OnApplied, when set, is called after each patch is marked applied.
	OnApplied func(p Patch)
}

func NewRunner(t *Table, logger *log.Logger) *Runner {
	return &Runner{table: t, log: logger}
}

func (r *Runner) Add(p Patch, fn Func) {
	r.steps = append(r.steps, runStep{patch: p, fn: fn})
}

// Run applies every pending patch. It stops at the first error: an index or
// key mismatch means the catalog and the table disagree, and applying any
// further patch could write its bit into another patch's slot.
func (r *Runner) Run(ctx context.Context) ([]Patch, error) {
	var applied []Patch
	for _, s := range r.steps {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		done, err := r.table.IsSet(s.patch)
		if err != nil {
			r.logf("halting startup patches at %s: %v", s.patch, err)
			return applied, err
		}
		if done {
			continue
		}
		if err := s.fn(ctx); err != nil {
			r.logf("patch %s failed: %v", s.patch, err)
			return applied, fmt.Errorf("patch %s: %w", s.patch, err)
		}
		if _, err := r.table.Set(s.patch); err != nil {
			return applied, err
		}
		r.logf("applied patch %s", s.patch)
		applied = append(applied, s.patch)
		if r.OnApplied != nil {
			r.OnApplied(s.patch)
		}
	}
	return applied, nil
}

func (r *Runner) logf(format string, args ...any) {
	if r.log != nil {
		r.log.Printf(format, args...)
	}
}
