package schedule

import (
	"sort"

	"github.com/google/uuid"
)

// Projections derive calendar- and list-ready views from an appointment
// sequence. They are pure: computed on demand, holding no state, never
// touching the store.

// DayGroup is one calendar day's appointments, sorted by start time.
type DayGroup struct {
	Date         Date
	Appointments []*Appointment
}

// GroupByDate buckets appointments per calendar date. Groups come back with
// their dates ascending and each group's appointments ordered by start time.
func GroupByDate(appts []*Appointment) []DayGroup {
	byDate := make(map[Date][]*Appointment)
	for _, a := range appts {
		byDate[a.Date] = append(byDate[a.Date], a)
	}

	groups := make([]DayGroup, 0, len(byDate))
	for date, group := range byDate {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Start < group[j].Start
		})
		groups = append(groups, DayGroup{Date: date, Appointments: group})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Date < groups[j].Date
	})
	return groups
}

// FilterByPractitioner keeps appointments for one practitioner, preserving
// input order.
func FilterByPractitioner(appts []*Appointment, practitionerID uuid.UUID) []*Appointment {
	return filter(appts, func(a *Appointment) bool {
		return a.PractitionerID == practitionerID
	})
}

// FilterByStatus keeps appointments in one lifecycle state, preserving input
// order.
func FilterByStatus(appts []*Appointment, status Status) []*Appointment {
	return filter(appts, func(a *Appointment) bool {
		return a.Status == status
	})
}

func filter(appts []*Appointment, keep func(*Appointment) bool) []*Appointment {
	result := make([]*Appointment, 0, len(appts))
	for _, a := range appts {
		if keep(a) {
			result = append(result, a)
		}
	}
	return result
}

// Upcoming returns at most limit appointments on or after today, ordered by
// date then start time. This feeds the dashboard's "next appointments" card.
func Upcoming(appts []*Appointment, today Date, limit int) []*Appointment {
	kept := filter(appts, func(a *Appointment) bool {
		return a.Date >= today
	})

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Date != kept[j].Date {
			return kept[i].Date < kept[j].Date
		}
		return kept[i].Start < kept[j].Start
	})

	if limit >= 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
