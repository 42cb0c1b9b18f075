// Package directory answers "does this patient/practitioner id exist?".
// Patient records and practitioner accounts are owned elsewhere; the
// scheduler only needs existence at booking time.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return d.exists(ctx, "patients", id)
}

func (d *PgDirectory) PractitionerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return d.exists(ctx, "practitioners", id)
}

func (d *PgDirectory) exists(ctx context.Context, table string, id uuid.UUID) (bool, error) {
	var one int
	err := d.pool.QueryRow(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = $1", table), id).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup %s: %w", table, err)
	}
	return true, nil
}

// MemoryDirectory backs the standalone mode and tests.
type MemoryDirectory struct {
	mu            sync.RWMutex
	patients      map[uuid.UUID]struct{}
	practitioners map[uuid.UUID]struct{}
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		patients:      make(map[uuid.UUID]struct{}),
		practitioners: make(map[uuid.UUID]struct{}),
	}
}

func (d *MemoryDirectory) AddPatient(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patients[id] = struct{}{}
}

func (d *MemoryDirectory) AddPractitioner(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.practitioners[id] = struct{}{}
}

func (d *MemoryDirectory) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.patients[id]
	return ok, nil
}

func (d *MemoryDirectory) PractitionerExists(_ context.Context, id uuid.UUID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.practitioners[id]
	return ok, nil
}
