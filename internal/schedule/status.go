package schedule

import "fmt"

// Status is the closed set of appointment lifecycle states. The previous
// generation of this system stored free-form status strings; everything
// crossing into this package must go through ParseStatus.
type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// nextStatus encodes the linear SCHEDULED -> CONFIRMED -> IN_PROGRESS ->
// COMPLETED chain. CANCELLED is reachable from any non-terminal state and is
// handled in CanTransitionTo.
var nextStatus = map[Status]Status{
	StatusScheduled:  StatusConfirmed,
	StatusConfirmed:  StatusInProgress,
	StatusInProgress: StatusCompleted,
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
}

// Terminal states accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether a transition from s to target is legal:
// same-state requests are idempotent no-ops, cancellation is allowed from any
// non-terminal state, and otherwise only the immediate successor in the
// linear chain is reachable.
func (s Status) CanTransitionTo(target Status) bool {
	if s == target {
		return true
	}
	if s.Terminal() {
		return false
	}
	if target == StatusCancelled {
		return true
	}
	return nextStatus[s] == target
}
