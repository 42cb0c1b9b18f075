package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/scheduler/internal/lock"
)

func newTestScheduler(store Store, dir Directory) *Scheduler {
	return NewScheduler(store, lock.NewMutexLocker(), SchedulerConfig{
		Directory:    dir,
		RetryBackoff: time.Millisecond,
		StoreTimeout: 2 * time.Second,
	})
}

func createInput(patient, practitioner uuid.UUID, date Date, start, end TimeOfDay) CreateInput {
	return CreateInput{
		PatientID:      patient,
		PractitionerID: practitioner,
		Date:           date,
		Start:          start,
		End:            end,
	}
}

// downStore simulates a store that is unreachable for every operation.
type downStore struct{}

func storeDown() error { return fmt.Errorf("connect: %w", ErrStoreUnavailable) }

func (downStore) Insert(context.Context, *Appointment) error { return storeDown() }
func (downStore) GetByID(context.Context, uuid.UUID) (*Appointment, error) {
	return nil, storeDown()
}
func (downStore) QueryByPractitionerAndDate(context.Context, uuid.UUID, Date) ([]*Appointment, error) {
	return nil, storeDown()
}
func (downStore) Update(context.Context, *Appointment) error { return storeDown() }
func (downStore) Delete(context.Context, uuid.UUID) error    { return storeDown() }
func (downStore) QueryAll(context.Context, Filter) ([]*Appointment, error) {
	return nil, storeDown()
}

// recoveringStore fails the first n operations, then delegates.
type recoveringStore struct {
	inner     Store
	mu        sync.Mutex
	remaining int
}

func (r *recoveringStore) trip() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.remaining > 0 {
		r.remaining--
		return storeDown()
	}
	return nil
}

func (r *recoveringStore) Insert(ctx context.Context, a *Appointment) error {
	if err := r.trip(); err != nil {
		return err
	}
	return r.inner.Insert(ctx, a)
}

func (r *recoveringStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if err := r.trip(); err != nil {
		return nil, err
	}
	return r.inner.GetByID(ctx, id)
}

func (r *recoveringStore) QueryByPractitionerAndDate(ctx context.Context, p uuid.UUID, d Date) ([]*Appointment, error) {
	if err := r.trip(); err != nil {
		return nil, err
	}
	return r.inner.QueryByPractitionerAndDate(ctx, p, d)
}

func (r *recoveringStore) Update(ctx context.Context, a *Appointment) error {
	if err := r.trip(); err != nil {
		return err
	}
	return r.inner.Update(ctx, a)
}

func (r *recoveringStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.trip(); err != nil {
		return err
	}
	return r.inner.Delete(ctx, id)
}

func (r *recoveringStore) QueryAll(ctx context.Context, f Filter) ([]*Appointment, error) {
	if err := r.trip(); err != nil {
		return nil, err
	}
	return r.inner.QueryAll(ctx, f)
}

// assertNoOverlaps checks the core invariant: no two non-cancelled
// appointments for the same practitioner and date may overlap.
func assertNoOverlaps(t *testing.T, store Store) {
	t.Helper()

	all, err := store.QueryAll(context.Background(), Filter{})
	require.NoError(t, err)

	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			a, b := all[i], all[j]
			if a.Status == StatusCancelled || b.Status == StatusCancelled {
				continue
			}
			assert.False(t, a.Slot().Overlaps(b.Slot()),
				"appointments %s and %s overlap: %s %s-%s vs %s %s-%s",
				a.ID, b.ID, a.Date, a.Start, a.End, b.Date, b.Start, b.End)
		}
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestScheduler(store, nil)

	in := createInput(uuid.New(), uuid.New(), "2025-01-10", "09:00", "09:30")
	in.Notes = "first visit"

	created, err := svc.Create(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, StatusScheduled, created.Status, "default initial state")
	assert.Equal(t, "first visit", created.Notes)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Start, got.Start)
}

func TestCreateWithExplicitStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestScheduler(NewMemoryStore(), nil)

	in := createInput(uuid.New(), uuid.New(), "2025-01-10", "09:00", "09:30")
	in.Status = StatusConfirmed

	created, err := svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, created.Status)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestScheduler(NewMemoryStore(), nil)
	patient, practitioner := uuid.New(), uuid.New()

	var verr *ValidationError

	_, err := svc.Create(ctx, createInput(patient, practitioner, "2025-01-10", "10:00", "09:30"))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end_time", verr.Field)

	_, err = svc.Create(ctx, createInput(patient, practitioner, "2025-01-10", "09:00", "09:00"))
	require.ErrorAs(t, err, &verr, "degenerate slot rejected")

	_, err = svc.Create(ctx, createInput(uuid.Nil, practitioner, "2025-01-10", "09:00", "09:30"))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "patient_id", verr.Field)

	_, err = svc.Create(ctx, createInput(patient, uuid.Nil, "2025-01-10", "09:00", "09:30"))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "practitioner_id", verr.Field)
}

func TestCreateConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestScheduler(store, nil)
	practitioner := uuid.New()

	existing, err := svc.Create(ctx, createInput(uuid.New(), practitioner, "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, createInput(uuid.New(), practitioner, "2025-01-10", "09:15", "09:45"))
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, existing.ID, cerr.With)

	// Touching boundary is not a conflict.
	_, err = svc.Create(ctx, createInput(uuid.New(), practitioner, "2025-01-10", "09:30", "10:00"))
	require.NoError(t, err)

	// Other practitioners and other days are unaffected.
	_, err = svc.Create(ctx, createInput(uuid.New(), uuid.New(), "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, createInput(uuid.New(), practitioner, "2025-01-11", "09:00", "09:30"))
	require.NoError(t, err)

	assertNoOverlaps(t, store)
}

func TestCreateDirectoryValidation(t *testing.T) {
	ctx := context.Background()

	knownPatient, knownPractitioner := uuid.New(), uuid.New()
	dir := &staticDirectory{patients: []uuid.UUID{knownPatient}, practitioners: []uuid.UUID{knownPractitioner}}
	svc := newTestScheduler(NewMemoryStore(), dir)

	_, err := svc.Create(ctx, createInput(knownPatient, knownPractitioner, "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)

	var verr *ValidationError
	_, err = svc.Create(ctx, createInput(uuid.New(), knownPractitioner, "2025-01-10", "10:00", "10:30"))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "patient_id", verr.Field)

	_, err = svc.Create(ctx, createInput(knownPatient, uuid.New(), "2025-01-10", "10:00", "10:30"))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "practitioner_id", verr.Field)
}

type staticDirectory struct {
	patients      []uuid.UUID
	practitioners []uuid.UUID
}

func (d *staticDirectory) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	for _, p := range d.patients {
		if p == id {
			return true, nil
		}
	}
	return false, nil
}

func (d *staticDirectory) PractitionerExists(_ context.Context, id uuid.UUID) (bool, error) {
	for _, p := range d.practitioners {
		if p == id {
			return true, nil
		}
	}
	return false, nil
}

func TestUpdateSelfExclusion(t *testing.T) {
	ctx := context.Background()
	svc := newTestScheduler(NewMemoryStore(), nil)

	created, err := svc.Create(ctx, createInput(uuid.New(), uuid.New(), "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)

	// Re-submitting the same times must not conflict with itself.
	start, end := TimeOfDay("09:00"), TimeOfDay("09:30")
	updated, err := svc.Update(ctx, created.ID, Patch{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, start, updated.Start)
}

func TestUpdateConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestScheduler(store, nil)
	practitioner := uuid.New()

	blocker, err := svc.Create(ctx, createInput(uuid.New(), practitioner, "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)
	victim, err := svc.Create(ctx, createInput(uuid.New(), practitioner, "2025-01-10", "10:00", "10:30"))
	require.NoError(t, err)

	start := TimeOfDay("09:15")
	end := TimeOfDay("09:45")
	_, err = svc.Update(ctx, victim.ID, Patch{Start: &start, End: &end})
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, blocker.ID, cerr.With)

	// The rejected update must not have been applied.
	stored, err := svc.Get(ctx, victim.ID)
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay("10:00"), stored.Start)
	assertNoOverlaps(t, store)
}

func TestUpdateLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestScheduler(NewMemoryStore(), nil)

	created, err := svc.Create(ctx, createInput(uuid.New(), uuid.New(), "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)

	advance := func(to Status) error {
		_, err := svc.Update(ctx, created.ID, Patch{Status: &to})
		return err
	}

	require.NoError(t, advance(StatusConfirmed))
	require.NoError(t, advance(StatusInProgress))
	require.NoError(t, advance(StatusCompleted))

	// Idempotent no-op on a terminal state is still allowed.
	require.NoError(t, advance(StatusCompleted))

	var terr *TransitionError
	require.ErrorAs(t, advance(StatusConfirmed), &terr)
	assert.Equal(t, StatusCompleted, terr.From)
	assert.Equal(t, StatusConfirmed, terr.To)

	// Skipping a state is not allowed either.
	other, err := svc.Create(ctx, createInput(uuid.New(), uuid.New(), "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)
	inProgress := StatusInProgress
	_, err = svc.Update(ctx, other.ID, Patch{Status: &inProgress})
	require.ErrorAs(t, err, &terr)
}

func TestCancelledIsTerminal(t *testing.T) {
	ctx := context.Background()
	svc := newTestScheduler(NewMemoryStore(), nil)

	created, err := svc.Create(ctx, createInput(uuid.New(), uuid.New(), "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)

	cancelled := StatusCancelled
	_, err = svc.Update(ctx, created.ID, Patch{Status: &cancelled})
	require.NoError(t, err)

	var terr *TransitionError
	confirmed := StatusConfirmed
	_, err = svc.Update(ctx, created.ID, Patch{Status: &confirmed})
	require.ErrorAs(t, err, &terr)

	// A cancelled appointment's time is frozen too.
	start := TimeOfDay("11:00")
	_, err = svc.Update(ctx, created.ID, Patch{Start: &start})
	require.ErrorAs(t, err, &terr)
}

func TestCancellationFreesSlot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestScheduler(store, nil)
	practitioner := uuid.New()

	created, err := svc.Create(ctx, createInput(uuid.New(), practitioner, "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)

	cancelled := StatusCancelled
	_, err = svc.Update(ctx, created.ID, Patch{Status: &cancelled})
	require.NoError(t, err)

	// The exact same slot is bookable again.
	_, err = svc.Create(ctx, createInput(uuid.New(), practitioner, "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)
	assertNoOverlaps(t, store)
}

func TestUpdateNotFound(t *testing.T) {
	svc := newTestScheduler(NewMemoryStore(), nil)

	notes := "hello"
	_, err := svc.Update(context.Background(), uuid.New(), Patch{Notes: &notes})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	svc := newTestScheduler(NewMemoryStore(), nil)

	created, err := svc.Create(ctx, createInput(uuid.New(), uuid.New(), "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, created.ID))

	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deletion is not idempotent: the second call reports the absence.
	assert.ErrorIs(t, svc.Remove(ctx, created.ID), ErrNotFound)
}

func TestListOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	svc := newTestScheduler(NewMemoryStore(), nil)
	p1, p2 := uuid.New(), uuid.New()

	_, err := svc.Create(ctx, createInput(uuid.New(), p1, "2025-01-11", "08:00", "08:30"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, createInput(uuid.New(), p1, "2025-01-10", "10:00", "10:30"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, createInput(uuid.New(), p2, "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)

	all, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, Date("2025-01-10"), all[0].Date)
	assert.Equal(t, TimeOfDay("09:00"), all[0].Start)
	assert.Equal(t, TimeOfDay("10:00"), all[1].Start)
	assert.Equal(t, Date("2025-01-11"), all[2].Date)

	byPractitioner, err := svc.List(ctx, Filter{PractitionerID: &p2})
	require.NoError(t, err)
	require.Len(t, byPractitioner, 1)
	assert.Equal(t, p2, byPractitioner[0].PractitionerID)

	date := Date("2025-01-10")
	byDate, err := svc.List(ctx, Filter{Date: &date})
	require.NoError(t, err)
	assert.Len(t, byDate, 2)
}

func TestListDegradesWhenStoreDown(t *testing.T) {
	svc := newTestScheduler(downStore{}, nil)

	got, err := svc.List(context.Background(), Filter{})
	require.NoError(t, err, "an unreachable store must not break the read path")
	assert.Empty(t, got)
}

func TestWritesSurfaceStoreOutage(t *testing.T) {
	ctx := context.Background()
	svc := newTestScheduler(downStore{}, nil)

	_, err := svc.Create(ctx, createInput(uuid.New(), uuid.New(), "2025-01-10", "09:00", "09:30"))
	assert.ErrorIs(t, err, ErrStoreUnavailable, "writes must never silently no-op")

	assert.ErrorIs(t, svc.Remove(ctx, uuid.New()), ErrStoreUnavailable)
}

func TestRetryRecoversFromTransientOutage(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	flaky := &recoveringStore{inner: inner, remaining: 1}
	svc := newTestScheduler(flaky, nil)

	created, err := svc.Create(ctx, createInput(uuid.New(), uuid.New(), "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err, "a single transient failure should be retried away")

	got, err := inner.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestConcurrentCreatesSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestScheduler(store, nil)
	practitioner := uuid.New()

	const attempts = 16

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := svc.Create(ctx, createInput(uuid.New(), practitioner, "2025-01-10", "09:00", "09:30"))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			default:
				var cerr *ConflictError
				if assert.ErrorAs(t, err, &cerr) {
					conflicts++
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one booking may win the slot")
	assert.Equal(t, attempts-1, conflicts)
	assertNoOverlaps(t, store)
}

// gateStore lets a test pause a caller at a chosen GetByID call, so writes
// from another goroutine can be interleaved at an exact point.
type gateStore struct {
	Store
	gate  func(call int64)
	calls atomic.Int64
}

func (g *gateStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := g.Store.GetByID(ctx, id)
	if g.gate != nil {
		g.gate(g.calls.Add(1))
	}
	return a, err
}

func TestUpdatePreservesConcurrentCancellation(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()

	peeked := make(chan struct{})
	resume := make(chan struct{})
	store := &gateStore{Store: inner, gate: func(call int64) {
		// Call 1 is the notes update's unlocked key peek; hold it there.
		if call == 1 {
			close(peeked)
			<-resume
		}
	}}
	svc := newTestScheduler(store, nil)
	practitioner := uuid.New()

	a, err := svc.Create(ctx, createInput(uuid.New(), practitioner, "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		notes := "bring previous results"
		_, err := svc.Update(ctx, a.ID, Patch{Notes: &notes})
		done <- err
	}()

	// While the notes update is paused between its peek and the lock,
	// cancel the appointment and give its slot away.
	<-peeked
	cancelled := StatusCancelled
	_, err = svc.Update(ctx, a.ID, Patch{Status: &cancelled})
	require.NoError(t, err)
	_, err = svc.Create(ctx, createInput(uuid.New(), practitioner, "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)

	close(resume)
	require.NoError(t, <-done)

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status, "a stale merge must not resurrect a cancelled appointment")
	assert.Equal(t, "bring previous results", got.Notes)
	assertNoOverlaps(t, inner)
}

func TestNoOverlapInvariantAcrossSequence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestScheduler(store, nil)
	practitioner := uuid.New()

	a, err := svc.Create(ctx, createInput(uuid.New(), practitioner, "2025-01-10", "09:00", "09:30"))
	require.NoError(t, err)
	assertNoOverlaps(t, store)

	b, err := svc.Create(ctx, createInput(uuid.New(), practitioner, "2025-01-10", "09:30", "10:00"))
	require.NoError(t, err)
	assertNoOverlaps(t, store)

	// Shift b later, then try to shift a onto it.
	start, end := TimeOfDay("10:30"), TimeOfDay("11:00")
	_, err = svc.Update(ctx, b.ID, Patch{Start: &start, End: &end})
	require.NoError(t, err)
	assertNoOverlaps(t, store)

	badStart, badEnd := TimeOfDay("10:45"), TimeOfDay("11:15")
	_, err = svc.Update(ctx, a.ID, Patch{Start: &badStart, End: &badEnd})
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assertNoOverlaps(t, store)

	// Cancel b and the move becomes legal.
	cancelled := StatusCancelled
	_, err = svc.Update(ctx, b.ID, Patch{Status: &cancelled})
	require.NoError(t, err)
	_, err = svc.Update(ctx, a.ID, Patch{Start: &badStart, End: &badEnd})
	require.NoError(t, err)
	assertNoOverlaps(t, store)
}
