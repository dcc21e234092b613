package memory

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an operation references a memory id that is
// absent from every tier.
var ErrNotFound = errors.New("memory not found")

// ValidationError reports a structurally invalid memory: a missing required
// content field, an importance outside [0.0, 1.0], or an unknown kind or
// tier name. No persisted write occurs when one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "memory: validation: " + e.Reason
}

func errValidationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// EmbeddingError reports a failed or dimension-mismatched embedding call.
// The policy here is to propagate: the triggering store or update performs
// no persisted write, so the on-disk document is never corrupted by a
// half-embedded memory.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("memory: embedding: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// PersistenceError reports an I/O failure during save. Loads never surface
// one: a corrupt or missing document degrades to a fresh empty store. On
// save failure the previous on-disk document is left untouched and the
// in-memory state is ahead of disk.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("memory: persistence: %v", e.Err)
	}
	return fmt.Sprintf("memory: persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return errors.Is(e.Err, target) }
