package errors

import (
	"errors"
)

var (
	// ErrCaseNotFound is returned when the requested case is not known to the engine.
	ErrCaseNotFound = errors.New("case not found")
	// ErrWorkItemNotFound is returned when the requested work item is not live.
	ErrWorkItemNotFound = errors.New("work item not found")
	// ErrSpecNotFound is returned when the requested specification is not registered.
	ErrSpecNotFound = errors.New("specification not found")
	// ErrElementNotFound is returned when a net element referenced by an event does not exist.
	ErrElementNotFound = errors.New("element not found")
	// ErrStateTransition is returned when an event requests a transition not
	// present in the work-item state machine.  The case is unaffected.
	ErrStateTransition = errors.New("invalid work item state transition")
	// ErrCaseNotRunning is returned when a mutating event arrives for a
	// suspended or terminal case.
	ErrCaseNotRunning = errors.New("case is not running")
	// ErrPersistenceDegraded is returned when a durability write failed and the
	// triggering event was rejected.  The case makes no further progress until
	// persistence succeeds again.
	ErrPersistenceDegraded = errors.New("case persistence degraded")
	// ErrCorruptState is returned by a store when a persisted case record
	// cannot be decoded.
	ErrCorruptState = errors.New("corrupt case state")
	// ErrUnsatisfiedSplit is the structural error raised when an exclusive or
	// inclusive split activates no outgoing flow and carries no default.
	ErrUnsatisfiedSplit = errors.New("no split predicate matched and no default flow")
	// ErrNotDynamic is returned when an instance is added to a multiple
	// instance task whose configuration fixes the count at enablement.
	ErrNotDynamic = errors.New("task does not allow dynamic instance creation")
	// ErrStoreVersion is returned when a store was written by an incompatible
	// schema version.
	ErrStoreVersion = errors.New("incompatible store schema version")
)

// ErrCaseFatal signifies that the error is fatal to the case it occurs in.
// The case transitions to failed and no further automatic progress is
// attempted.
type ErrCaseFatal struct {
	Err error
}

// Error returns the string version of the error.
func (e *ErrCaseFatal) Error() string {
	return "case fatal: " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *ErrCaseFatal) Unwrap() error {
	return e.Err
}

// IsCaseFatal reports whether an error anywhere in the chain is case-fatal.
func IsCaseFatal(err error) bool {
	var cf *ErrCaseFatal
	return errors.As(err, &cf)
}
