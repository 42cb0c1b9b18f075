package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Date is a calendar date in "2006-01-02" form, with no timezone attached.
// The practice runs on a single local clock, so a date is just a label.
type Date string

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return "", &ValidationError{Field: "date", Reason: "must be a valid YYYY-MM-DD date"}
	}
	return Date(t.Format(dateLayout)), nil
}

// DateOf truncates a wall-clock instant to its calendar date.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

func (d Date) Time() time.Time {
	t, _ := time.Parse(dateLayout, string(d))
	return t
}

// TimeOfDay is a zero-padded "15:04" time of day. Because the format is
// fixed-width, lexicographic comparison orders values correctly, so interval
// math below works directly on the strings.
type TimeOfDay string

const timeOfDayLayout = "15:04"

func ParseTimeOfDay(field, s string) (TimeOfDay, error) {
	t, err := time.Parse(timeOfDayLayout, s)
	if err != nil {
		return "", &ValidationError{Field: field, Reason: "must be a valid HH:MM time"}
	}
	return TimeOfDay(t.Format(timeOfDayLayout)), nil
}

// TimeSlot is the unit of conflict detection: a half-open [Start, End)
// interval on a date, owned by a practitioner.
type TimeSlot struct {
	Date           Date
	Start          TimeOfDay
	End            TimeOfDay
	PractitionerID uuid.UUID
}

// Validate rejects degenerate and inverted intervals and missing owners.
func (s TimeSlot) Validate() error {
	if s.PractitionerID == uuid.Nil {
		return &ValidationError{Field: "practitioner_id", Reason: "is required"}
	}
	if s.Date == "" {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	if s.Start >= s.End {
		return &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	return nil
}

// Overlaps reports whether two slots intersect. Slots on different dates or
// belonging to different practitioners never overlap. Intervals are half-open,
// so a slot ending exactly when another starts does not overlap it.
// Degenerate slots (Start == End) overlap nothing.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	if s.Date != o.Date || s.PractitionerID != o.PractitionerID {
		return false
	}
	if s.Start >= s.End || o.Start >= o.End {
		return false
	}
	return s.Start < o.End && o.Start < s.End
}
