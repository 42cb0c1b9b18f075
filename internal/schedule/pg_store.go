package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the Postgres-backed Store. Connectivity failures are wrapped in
// ErrStoreUnavailable so the scheduler can tell an outage from a missing row.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const appointmentColumns = `id, patient_id, practitioner_id, date, start_time, end_time, status, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		date   time.Time
		status string
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PractitionerID,
		&date,
		&a.Start,
		&a.End,
		&status,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeErr("scan appointment", err)
	}

	a.Date = DateOf(date)
	a.Status = Status(status)
	return &a, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

func (s *PgStore) Insert(ctx context.Context, a *Appointment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, practitioner_id, date, start_time, end_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, a.ID, a.PatientID, a.PractitionerID, a.Date.Time(), string(a.Start), string(a.End), string(a.Status), a.Notes, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return storeErr("insert appointment", err)
	}
	return nil
}

func (s *PgStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (s *PgStore) QueryByPractitionerAndDate(ctx context.Context, practitionerID uuid.UUID, date Date) ([]*Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1 AND date = $2
		ORDER BY date, start_time, created_at, id
	`, practitionerID, date.Time())
	if err != nil {
		return nil, storeErr("query practitioner day", err)
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (s *PgStore) Update(ctx context.Context, a *Appointment) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments
		SET patient_id = $2,
		    practitioner_id = $3,
		    date = $4,
		    start_time = $5,
		    end_time = $6,
		    status = $7,
		    notes = $8,
		    updated_at = $9
		WHERE id = $1
	`, a.ID, a.PatientID, a.PractitionerID, a.Date.Time(), string(a.Start), string(a.End), string(a.Status), a.Notes, a.UpdatedAt)
	if err != nil {
		return storeErr("update appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1
	`, id)
	if err != nil {
		return storeErr("delete appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) QueryAll(ctx context.Context, f Filter) ([]*Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE 1=1
	`
	args := []any{}

	if f.Date != nil {
		args = append(args, f.Date.Time())
		query += fmt.Sprintf(" AND date = $%d", len(args))
	}
	if f.PractitionerID != nil {
		args = append(args, *f.PractitionerID)
		query += fmt.Sprintf(" AND practitioner_id = $%d", len(args))
	}

	query += " ORDER BY date, start_time, created_at, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query appointments", err)
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	var result []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read appointment rows", err)
	}
	return result, nil
}
