package schedule

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("appointment not found")

	// ErrStoreUnavailable marks connectivity or timeout failures from the
	// store, as opposed to "no such row". It is the only error class the
	// scheduler retries.
	ErrStoreUnavailable = errors.New("appointment store unavailable")

	// ErrScheduleBusy is returned when the per-practitioner-day lock could
	// not be acquired; the caller should retry shortly.
	ErrScheduleBusy = errors.New("schedule is being modified, please retry")
)

// ValidationError reports malformed input, naming the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports that the requested slot overlaps a committed
// appointment for the same practitioner and date.
type ConflictError struct {
	With uuid.UUID // id of the conflicting appointment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot conflicts with appointment %s", e.With)
}

// TransitionError reports an illegal lifecycle transition.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}
