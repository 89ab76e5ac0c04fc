package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// OverrideStore holds per-doctor, per-date availability overrides.
// Mutations for one (doctor, date) must be serialized by the caller; see keylock.
type OverrideStore interface {
	GetOverride(ctx context.Context, doctorID int64, date time.Time) (*DayAvailability, error)
	SetStatus(ctx context.Context, doctorID int64, date time.Time, status DayStatus) (*DayAvailability, error)
	AddOccupiedSlot(ctx context.Context, doctorID int64, date time.Time, slot string) (*DayAvailability, error)
	RemoveOccupiedSlot(ctx context.Context, doctorID int64, date time.Time, slot string) (*DayAvailability, error)
	ListOverrides(ctx context.Context, doctorID int64, from, to time.Time) ([]*DayAvailability, error)
}

type overrideKey struct {
	doctorID int64
	date     string
}

func keyOf(doctorID int64, date time.Time) overrideKey {
	return overrideKey{doctorID: doctorID, date: date.Format(DateLayout)}
}

// MemoryOverrideStore is an in-memory OverrideStore. Reads return copies so callers
// never observe a partially applied write.
type MemoryOverrideStore struct {
	mu   sync.RWMutex
	days map[overrideKey]*DayAvailability
}

// NewMemoryOverrideStore creates an empty store.
func NewMemoryOverrideStore() *MemoryOverrideStore {
	return &MemoryOverrideStore{days: make(map[overrideKey]*DayAvailability)}
}

func (s *MemoryOverrideStore) GetOverride(_ context.Context, doctorID int64, date time.Time) (*DayAvailability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day, ok := s.days[keyOf(doctorID, date)]
	if !ok {
		return nil, nil
	}
	return day.clone(), nil
}

func (s *MemoryOverrideStore) SetStatus(_ context.Context, doctorID int64, date time.Time, status DayStatus) (*DayAvailability, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	day := s.getOrCreate(doctorID, date)
	day.Status = status
	if status == DayOnLeave {
		day.OccupiedSlots = []string{}
	}
	return day.clone(), nil
}

func (s *MemoryOverrideStore) AddOccupiedSlot(_ context.Context, doctorID int64, date time.Time, slot string) (*DayAvailability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := s.getOrCreate(doctorID, date)
	// Occupying a slot on a leave day is an explicit unblock of that day.
	day.Status = DayAvailable
	if !day.IsOccupied(slot) {
		day.OccupiedSlots = append(day.OccupiedSlots, slot)
		sortSlotLabels(day.OccupiedSlots)
	}
	return day.clone(), nil
}

func (s *MemoryOverrideStore) RemoveOccupiedSlot(_ context.Context, doctorID int64, date time.Time, slot string) (*DayAvailability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day, ok := s.days[keyOf(doctorID, date)]
	if !ok {
		return nil, nil
	}
	kept := day.OccupiedSlots[:0]
	for _, occupied := range day.OccupiedSlots {
		if occupied != slot {
			kept = append(kept, occupied)
		}
	}
	day.OccupiedSlots = kept
	return day.clone(), nil
}

func (s *MemoryOverrideStore) ListOverrides(_ context.Context, doctorID int64, from, to time.Time) ([]*DayAvailability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := DateOf(from), DateOf(to)
	var out []*DayAvailability
	for k, day := range s.days {
		if k.doctorID != doctorID {
			continue
		}
		if day.Date.Before(lo) || day.Date.After(hi) {
			continue
		}
		out = append(out, day.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryOverrideStore) getOrCreate(doctorID int64, date time.Time) *DayAvailability {
	k := keyOf(doctorID, date)
	day, ok := s.days[k]
	if !ok {
		day = &DayAvailability{
			DoctorID:      doctorID,
			Date:          DateOf(date),
			Status:        DayAvailable,
			OccupiedSlots: []string{},
		}
		s.days[k] = day
	}
	return day
}
