package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/scheduler/internal/schedule"
)

func createAppointmentHandler(svc *schedule.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		in, err := buildCreateInput(req)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		appt, err := svc.Create(r.Context(), in)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *schedule.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateAppointmentHandler(svc *schedule.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateAppointmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		patch, err := buildPatch(req)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		appt, err := svc.Update(r.Context(), id, patch)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func deleteAppointmentHandler(svc *schedule.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		if err := svc.Remove(r.Context(), id); err != nil {
			writeSchedulingError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listAppointmentsHandler(svc *schedule.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, status, err := parseListQuery(r)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		appts, err := svc.List(r.Context(), filter)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		if status != nil {
			appts = schedule.FilterByStatus(appts, *status)
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func calendarHandler(svc *schedule.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, status, err := parseListQuery(r)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		appts, err := svc.List(r.Context(), filter)
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		if status != nil {
			appts = schedule.FilterByStatus(appts, *status)
		}

		groups := schedule.GroupByDate(appts)
		out := make([]DayGroupResponse, 0, len(groups))
		for _, g := range groups {
			out = append(out, DayGroupResponse{
				Date:         string(g.Date),
				Appointments: toAppointmentResponses(g.Appointments),
			})
		}

		writeJSON(w, http.StatusOK, out)
	}
}

func upcomingHandler(svc *schedule.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 5
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
				return
			}
			limit = n
		}

		appts, err := svc.List(r.Context(), schedule.Filter{})
		if err != nil {
			writeSchedulingError(w, err)
			return
		}

		today := schedule.DateOf(time.Now())
		writeJSON(w, http.StatusOK, toAppointmentResponses(schedule.Upcoming(appts, today, limit)))
	}
}

func buildCreateInput(req CreateAppointmentRequest) (schedule.CreateInput, error) {
	var in schedule.CreateInput

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return in, &schedule.ValidationError{Field: "patient_id", Reason: "must be a valid UUID"}
	}
	practitionerID, err := uuid.Parse(req.PractitionerID)
	if err != nil {
		return in, &schedule.ValidationError{Field: "practitioner_id", Reason: "must be a valid UUID"}
	}
	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		return in, err
	}
	start, err := schedule.ParseTimeOfDay("start_time", req.StartTime)
	if err != nil {
		return in, err
	}
	end, err := schedule.ParseTimeOfDay("end_time", req.EndTime)
	if err != nil {
		return in, err
	}

	var status schedule.Status
	if req.Status != "" {
		status, err = schedule.ParseStatus(req.Status)
		if err != nil {
			return in, err
		}
	}

	return schedule.CreateInput{
		PatientID:      patientID,
		PractitionerID: practitionerID,
		Date:           date,
		Start:          start,
		End:            end,
		Status:         status,
		Notes:          req.Notes,
	}, nil
}

func buildPatch(req UpdateAppointmentRequest) (schedule.Patch, error) {
	var p schedule.Patch

	if req.PatientID != nil {
		id, err := uuid.Parse(*req.PatientID)
		if err != nil {
			return p, &schedule.ValidationError{Field: "patient_id", Reason: "must be a valid UUID"}
		}
		p.PatientID = &id
	}
	if req.PractitionerID != nil {
		id, err := uuid.Parse(*req.PractitionerID)
		if err != nil {
			return p, &schedule.ValidationError{Field: "practitioner_id", Reason: "must be a valid UUID"}
		}
		p.PractitionerID = &id
	}
	if req.Date != nil {
		date, err := schedule.ParseDate(*req.Date)
		if err != nil {
			return p, err
		}
		p.Date = &date
	}
	if req.StartTime != nil {
		t, err := schedule.ParseTimeOfDay("start_time", *req.StartTime)
		if err != nil {
			return p, err
		}
		p.Start = &t
	}
	if req.EndTime != nil {
		t, err := schedule.ParseTimeOfDay("end_time", *req.EndTime)
		if err != nil {
			return p, err
		}
		p.End = &t
	}
	if req.Status != nil {
		st, err := schedule.ParseStatus(*req.Status)
		if err != nil {
			return p, err
		}
		p.Status = &st
	}
	p.Notes = req.Notes

	return p, nil
}

func parseListQuery(r *http.Request) (schedule.Filter, *schedule.Status, error) {
	var filter schedule.Filter
	q := r.URL.Query()

	if raw := q.Get("date"); raw != "" {
		date, err := schedule.ParseDate(raw)
		if err != nil {
			return filter, nil, err
		}
		filter.Date = &date
	}
	if raw := q.Get("practitioner_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, nil, &schedule.ValidationError{Field: "practitioner_id", Reason: "must be a valid UUID"}
		}
		filter.PractitionerID = &id
	}

	var status *schedule.Status
	if raw := q.Get("status"); raw != "" {
		st, err := schedule.ParseStatus(raw)
		if err != nil {
			return filter, nil, err
		}
		status = &st
	}

	return filter, status, nil
}

// decodeJSON parses a request body into dst, rejecting unknown fields so
// malformed payloads fail loudly instead of passing through to storage.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeSchedulingError(w http.ResponseWriter, err error) {
	var (
		validationErr *schedule.ValidationError
		conflictErr   *schedule.ConflictError
		transitionErr *schedule.TransitionError
	)

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_error", validationErr.Error())
	case errors.As(err, &conflictErr):
		writeError(w, http.StatusConflict, "slot_conflict", conflictErr.Error())
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, "invalid_transition", transitionErr.Error())
	case errors.Is(err, schedule.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, schedule.ErrScheduleBusy):
		writeError(w, http.StatusConflict, "schedule_busy", "the practitioner's day is being modified, please retry shortly")
	case errors.Is(err, schedule.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "the appointment store is unreachable")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
