package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/clinicdesk/scheduler/internal/lock"
)

// Scheduler orchestrates appointment writes and reads against the store. It
// is the sole writer: every mutation runs its conflict check and its write
// inside a critical section keyed by (practitioner, date), so overlapping
// bookings cannot slip past each other.
type Scheduler struct {
	store     Store
	locker    lock.Locker
	detector  *ConflictDetector
	directory Directory
	logger    *zap.Logger

	retryAttempts uint64
	retryBackoff  time.Duration
	storeTimeout  time.Duration
}

// SchedulerConfig carries optional collaborators and tuning. Zero values get
// sensible defaults; a nil Directory disables identity verification.
type SchedulerConfig struct {
	Directory     Directory
	Logger        *zap.Logger
	RetryAttempts uint64
	RetryBackoff  time.Duration
	StoreTimeout  time.Duration
}

func NewScheduler(store Store, locker lock.Locker, cfg SchedulerConfig) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 2
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = 5 * time.Second
	}

	return &Scheduler{
		store:         store,
		locker:        locker,
		detector:      NewConflictDetector(store),
		directory:     cfg.Directory,
		logger:        cfg.Logger,
		retryAttempts: cfg.RetryAttempts,
		retryBackoff:  cfg.RetryBackoff,
		storeTimeout:  cfg.StoreTimeout,
	}
}

// CreateInput is a validated creation request. Status may be empty, in which
// case the appointment starts out SCHEDULED.
type CreateInput struct {
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	Date           Date
	Start          TimeOfDay
	End            TimeOfDay
	Status         Status
	Notes          string
}

// Create books a new appointment. It fails with *ConflictError if the slot
// overlaps a committed appointment for the same practitioner and date, and
// with *ValidationError for malformed input or unknown identities.
func (s *Scheduler) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if in.PatientID == uuid.Nil {
		return nil, &ValidationError{Field: "patient_id", Reason: "is required"}
	}

	slot := TimeSlot{
		Date:           in.Date,
		Start:          in.Start,
		End:            in.End,
		PractitionerID: in.PractitionerID,
	}
	if err := slot.Validate(); err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = StatusScheduled
	}
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}

	if err := s.verifyIdentities(opCtx, in.PatientID, in.PractitionerID); err != nil {
		return nil, err
	}

	now := time.Now()
	appt := &Appointment{
		ID:             uuid.New(),
		PatientID:      in.PatientID,
		PractitionerID: in.PractitionerID,
		Date:           in.Date,
		Start:          in.Start,
		End:            in.End,
		Status:         status,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.withRetry(opCtx, func(ctx context.Context) error {
		return s.locker.WithLock(ctx, dayKey(in.PractitionerID, in.Date), func(lockCtx context.Context) error {
			// The check and the insert must both happen inside the
			// critical section; checking first and locking later is the
			// double-booking race this service exists to prevent.
			conflict, err := s.detector.FindConflict(lockCtx, slot, uuid.Nil)
			if err != nil {
				return err
			}
			if conflict != nil {
				return &ConflictError{With: conflict.ID}
			}
			return s.store.Insert(lockCtx, appt)
		})
	})
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	s.logger.Info("appointment created",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("practitioner_id", appt.PractitionerID.String()),
		zap.String("date", string(appt.Date)),
		zap.String("start", string(appt.Start)),
		zap.String("end", string(appt.End)),
	)

	return appt.Clone(), nil
}

// Get returns one appointment by id.
func (s *Scheduler) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var appt *Appointment
	err := s.withRetry(opCtx, func(ctx context.Context) error {
		var err error
		appt, err = s.store.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// maxDayChases bounds how often Update re-derives its lock key when a
// concurrent request keeps moving the appointment to another day.
const maxDayChases = 3

// Update applies a patch to an existing appointment. The stored row is
// re-read, validated against the lifecycle state machine, merged and written
// back inside the per-(practitioner, date) critical section, so a concurrent
// change to the same appointment is never overwritten by a stale merge. Slot
// changes re-run conflict detection excluding the appointment itself.
func (s *Scheduler) Update(ctx context.Context, id uuid.UUID, patch Patch) (*Appointment, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	// The day key to serialize on lives in the stored row, so the row is
	// peeked to derive the key and then re-read once the lock is held. If a
	// concurrent move lands the appointment on a different day in between,
	// the locked key no longer covers it and the attempt starts over.
	for chase := 0; chase < maxDayChases; chase++ {
		var peeked *Appointment
		err := s.withRetry(opCtx, func(ctx context.Context) error {
			var err error
			peeked, err = s.store.GetByID(ctx, id)
			return err
		})
		if err != nil {
			return nil, err
		}

		target := patch.applyTo(peeked)
		key := dayKey(target.PractitionerID, target.Date)

		var (
			updated *Appointment
			moved   bool
		)
		err = s.withRetry(opCtx, func(ctx context.Context) error {
			return s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
				current, err := s.store.GetByID(lockCtx, id)
				if err != nil {
					return err
				}

				merged := patch.applyTo(current)
				if dayKey(merged.PractitionerID, merged.Date) != key {
					moved = true
					return nil
				}

				if patch.Status != nil && !current.Status.CanTransitionTo(*patch.Status) {
					return &TransitionError{From: current.Status, To: *patch.Status}
				}
				if patch.TouchesSlot() {
					if current.Status.Terminal() {
						// A completed or cancelled appointment's time is frozen.
						return &TransitionError{From: current.Status, To: current.Status}
					}
					if err := merged.Slot().Validate(); err != nil {
						return err
					}
					if err := s.verifyIdentities(lockCtx, merged.PatientID, merged.PractitionerID); err != nil {
						return err
					}
					// Cancelling never needs a conflict check; the slot is being freed.
					if merged.Status != StatusCancelled {
						conflict, err := s.detector.FindConflict(lockCtx, merged.Slot(), id)
						if err != nil {
							return err
						}
						if conflict != nil {
							return &ConflictError{With: conflict.ID}
						}
					}
				}

				merged.UpdatedAt = time.Now()
				if err := s.store.Update(lockCtx, merged); err != nil {
					return err
				}
				updated = merged
				return nil
			})
		})
		if err != nil {
			if errors.Is(err, lock.ErrNotAcquired) {
				return nil, ErrScheduleBusy
			}
			return nil, err
		}
		if moved {
			continue
		}

		s.logger.Info("appointment updated",
			zap.String("appointment_id", id.String()),
			zap.String("status", string(updated.Status)),
		)
		return updated.Clone(), nil
	}

	return nil, ErrScheduleBusy
}

// Remove hard-deletes an appointment. A second call for the same id fails
// with ErrNotFound.
func (s *Scheduler) Remove(ctx context.Context, id uuid.UUID) error {
	opCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	err := s.withRetry(opCtx, func(ctx context.Context) error {
		return s.store.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("appointment removed", zap.String("appointment_id", id.String()))
	return nil
}

// List returns appointments matching the filter, ordered by date then start
// time. An unreachable store degrades to an empty result: an empty schedule
// is a safe default for the front desk, while write failures always surface.
func (s *Scheduler) List(ctx context.Context, f Filter) ([]*Appointment, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var appts []*Appointment
	err := s.withRetry(opCtx, func(ctx context.Context) error {
		var err error
		appts, err = s.store.QueryAll(ctx, f)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			s.logger.Warn("store unavailable, returning empty schedule", zap.Error(err))
			return []*Appointment{}, nil
		}
		return nil, err
	}
	if appts == nil {
		appts = []*Appointment{}
	}
	return appts, nil
}

func (s *Scheduler) verifyIdentities(ctx context.Context, patientID, practitionerID uuid.UUID) error {
	if s.directory == nil {
		return nil
	}

	ok, err := s.directory.PatientExists(ctx, patientID)
	if err != nil {
		return fmt.Errorf("verify patient: %w", err)
	}
	if !ok {
		return &ValidationError{Field: "patient_id", Reason: "unknown patient"}
	}

	ok, err = s.directory.PractitionerExists(ctx, practitionerID)
	if err != nil {
		return fmt.Errorf("verify practitioner: %w", err)
	}
	if !ok {
		return &ValidationError{Field: "practitioner_id", Reason: "unknown practitioner"}
	}

	return nil
}

// withRetry retries fn only when it failed because the store was unreachable.
// Conflicts, validation failures and lifecycle violations surface immediately.
func (s *Scheduler) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(s.retryAttempts, retry.NewConstant(s.retryBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, ErrStoreUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func dayKey(practitionerID uuid.UUID, date Date) string {
	return fmt.Sprintf("sched:%s:%s", practitionerID, date)
}
