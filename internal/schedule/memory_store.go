package schedule

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and by the api-server's
// standalone mode (STORE_DRIVER=memory), where the office runs without
// Postgres.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*Appointment
	order map[uuid.UUID]uint64 // insertion sequence, the stable tie-break
	seq   uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[uuid.UUID]*Appointment),
		order: make(map[uuid.UUID]uint64),
	}
}

func (m *MemoryStore) Insert(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.byID[a.ID] = a.Clone()
	m.order[a.ID] = m.seq
	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (m *MemoryStore) QueryByPractitionerAndDate(_ context.Context, practitionerID uuid.UUID, date Date) ([]*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Appointment
	for _, a := range m.byID {
		if a.PractitionerID == practitionerID && a.Date == date {
			result = append(result, a.Clone())
		}
	}
	m.sortLocked(result)
	return result, nil
}

func (m *MemoryStore) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[a.ID]; !ok {
		return ErrNotFound
	}
	m.byID[a.ID] = a.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	delete(m.order, id)
	return nil
}

func (m *MemoryStore) QueryAll(_ context.Context, f Filter) ([]*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Appointment
	for _, a := range m.byID {
		if f.Date != nil && a.Date != *f.Date {
			continue
		}
		if f.PractitionerID != nil && a.PractitionerID != *f.PractitionerID {
			continue
		}
		result = append(result, a.Clone())
	}
	m.sortLocked(result)
	return result, nil
}

// sortLocked orders by date, then start time, then insertion sequence.
// Caller must hold at least a read lock (for the order map).
func (m *MemoryStore) sortLocked(appts []*Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		if appts[i].Start != appts[j].Start {
			return appts[i].Start < appts[j].Start
		}
		return m.order[appts[i].ID] < m.order[appts[j].ID]
	})
}
