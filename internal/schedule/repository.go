package schedule

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows List queries. Nil fields match everything.
type Filter struct {
	Date           *Date
	PractitionerID *uuid.UUID
}

// Store contains all persistence interactions needed by the scheduler.
// Implementations must return ErrNotFound for missing rows and wrap
// connectivity failures in ErrStoreUnavailable so the two are distinguishable.
//
// QueryAll and QueryByPractitionerAndDate return results ordered by date
// ascending, then start time ascending, then insertion order.
type Store interface {
	Insert(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	QueryByPractitionerAndDate(ctx context.Context, practitionerID uuid.UUID, date Date) ([]*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	QueryAll(ctx context.Context, f Filter) ([]*Appointment, error)
}

// Directory is the minimal identity lookup consumed at creation time to
// verify that referenced patient and practitioner ids exist. Patient records
// themselves live elsewhere.
type Directory interface {
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)
	PractitionerExists(ctx context.Context, id uuid.UUID) (bool, error)
}
