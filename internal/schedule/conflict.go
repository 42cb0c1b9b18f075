package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ConflictDetector answers "does this candidate slot collide with a committed
// appointment?". It is a pure read over the store; cancelled appointments do
// not hold their slot and are skipped.
type ConflictDetector struct {
	store Store
}

func NewConflictDetector(store Store) *ConflictDetector {
	return &ConflictDetector{store: store}
}

// FindConflict returns the first appointment whose interval overlaps the
// candidate, or nil if the slot is free. Pass exclude to ignore one
// appointment id, so an update does not conflict with itself while its own
// time is being revised. Callers only rely on existence; which conflicting
// appointment comes back is not guaranteed.
func (d *ConflictDetector) FindConflict(ctx context.Context, candidate TimeSlot, exclude uuid.UUID) (*Appointment, error) {
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	existing, err := d.store.QueryByPractitionerAndDate(ctx, candidate.PractitionerID, candidate.Date)
	if err != nil {
		return nil, fmt.Errorf("query practitioner day: %w", err)
	}

	for _, appt := range existing {
		if appt.ID == exclude {
			continue
		}
		if appt.Status == StatusCancelled {
			continue
		}
		if candidate.Overlaps(appt.Slot()) {
			return appt, nil
		}
	}

	return nil, nil
}
