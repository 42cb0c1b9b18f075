package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Appointment is the central entity: a patient booked with a practitioner
// for a [Start, End) interval on a date. Values handed out by the scheduler
// are detached copies; nothing outside this package mutates stored state.
type Appointment struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	Date           Date
	Start          TimeOfDay
	End            TimeOfDay
	Status         Status
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Slot projects the appointment's reservation for conflict checks.
func (a *Appointment) Slot() TimeSlot {
	return TimeSlot{
		Date:           a.Date,
		Start:          a.Start,
		End:            a.End,
		PractitionerID: a.PractitionerID,
	}
}

func (a *Appointment) Clone() *Appointment {
	c := *a
	return &c
}

// Patch carries the fields an update request wants to change; nil means
// "leave as is".
type Patch struct {
	PatientID      *uuid.UUID
	PractitionerID *uuid.UUID
	Date           *Date
	Start          *TimeOfDay
	End            *TimeOfDay
	Status         *Status
	Notes          *string
}

// TouchesSlot reports whether applying the patch can move the appointment's
// reservation, which forces a fresh conflict check.
func (p Patch) TouchesSlot() bool {
	return p.Date != nil || p.Start != nil || p.End != nil || p.PractitionerID != nil
}

// applyTo merges the patch into a copy of cur without touching cur itself.
func (p Patch) applyTo(cur *Appointment) *Appointment {
	next := cur.Clone()
	if p.PatientID != nil {
		next.PatientID = *p.PatientID
	}
	if p.PractitionerID != nil {
		next.PractitionerID = *p.PractitionerID
	}
	if p.Date != nil {
		next.Date = *p.Date
	}
	if p.Start != nil {
		next.Start = *p.Start
	}
	if p.End != nil {
		next.End = *p.End
	}
	if p.Status != nil {
		next.Status = *p.Status
	}
	if p.Notes != nil {
		next.Notes = *p.Notes
	}
	return next
}
