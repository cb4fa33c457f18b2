package codec

import "fmt"

// Step reads the fields one version introduced into e. version is the version
// of the record being read, so a step can skip bytes that only older records
// carry.
type Step[T any] func(e T, r *Reader, version int)

// Schema is the version history of one record layout. Steps[N] reads the
// delta introduced by version N; a nil step marks a version that added no
// fields.
type Schema[T any] struct {
	Type  string
	Steps []Step[T]
}

// Current is the version the writer emits.
func (s Schema[T]) Current() int { return len(s.Steps) - 1 }

// Read reads a version tag and then runs every step from that version down to
// version 0. It returns the record's version.
func (s Schema[T]) Read(e T, r *Reader) (int, error) {
	v := r.ReadVersion()
	if err := r.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", s.Type, err)
	}
	if v > s.Current() {
		r.Fail(fmt.Errorf("%w: %s version %d, newest known %d", ErrUnknownVersion, s.Type, v, s.Current()))
		return v, r.Err()
	}
	for n := v; n >= 0; n-- {
		if step := s.Steps[n]; step != nil {
			step(e, r, v)
		}
		if err := r.Err(); err != nil {
			return v, fmt.Errorf("%s v%d step %d: %w", s.Type, v, n, err)
		}
	}
	return v, nil
}
