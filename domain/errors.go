package domain

import (
	"errors"
	"fmt"
)

// ErrConcurrencyConflict indicates that another writer appended to the same
// incident stream between load and save. The caller must reload and retry.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ErrNotFound indicates that no event stream exists for the incident id.
var ErrNotFound = errors.New("incident not found")

// ValidationError rejects a command before any event is produced.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError rejects a lifecycle trigger that is not permitted
// from the incident's current state. State and version are left untouched.
type InvalidTransitionError struct {
	From    State
	Trigger Trigger
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s from %s", e.Trigger, e.From)
}

// ProjectionError wraps a failure of the mandatory read-model projection.
// The event store append has already committed when this surfaces, so the
// caller sees a failed command with a durably stored event; the row is
// repaired by the next successful publish for the same incident.
type ProjectionError struct {
	Sink string
	Err  error
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("projection %s: %v", e.Sink, e.Err)
}

func (e *ProjectionError) Unwrap() error { return e.Err }
