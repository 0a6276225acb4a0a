package update

import "fmt"

// The error taxonomy of a run:
//
//   - UsageError aborts the whole run before or during validation.
//   - PreconditionError skips the current site and continues the loop.
//   - OperationError skips the current site at the point of failure and
//     continues the loop.
//
// Nothing is ever retried automatically.

// UsageError is a fatal validation failure (invalid flags, invalid
// environment, missing external binary).
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// NewUsageError wraps a formatted message as a UsageError.
func NewUsageError(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// PreconditionError means a site does not qualify for the update
// (pending uncommitted changes, wrong framework, frozen, no multidev).
type PreconditionError struct {
	Err error
}

func (e *PreconditionError) Error() string { return e.Err.Error() }
func (e *PreconditionError) Unwrap() error { return e.Err }

// NewPreconditionError wraps a formatted message as a PreconditionError.
func NewPreconditionError(format string, args ...any) error {
	return &PreconditionError{Err: fmt.Errorf(format, args...)}
}

// OperationError means a backup, environment, commit, or update step failed
// partway through a site.
type OperationError struct {
	Err error
}

func (e *OperationError) Error() string { return e.Err.Error() }
func (e *OperationError) Unwrap() error { return e.Err }

// NewOperationError wraps an underlying failure as an OperationError.
func NewOperationError(err error) error {
	return &OperationError{Err: err}
}

// errSkipped is the sentinel for a site skipped by a declined confirmation
// prompt; it produces no report row.
var errSkipped = fmt.Errorf("skipped by operator")
