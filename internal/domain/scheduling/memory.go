package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/booking/pkg/pagination"
)

// In-memory repositories back STORAGE_DRIVER=memory and the package tests.

type memoryHospitalRepo struct {
	mu        sync.RWMutex
	hospitals map[int64]*Hospital
}

func NewMemoryHospitalRepo() HospitalRepository {
	return &memoryHospitalRepo{hospitals: make(map[int64]*Hospital)}
}

func (r *memoryHospitalRepo) GetByID(_ context.Context, id int64) (*Hospital, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hospitals[id]
	if !ok {
		return nil, ErrHospitalNotFound
	}
	cp := *h
	return &cp, nil
}

func (r *memoryHospitalRepo) Upsert(_ context.Context, h *Hospital) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *h
	r.hospitals[h.ID] = &cp
	return nil
}

type memoryDoctorRepo struct {
	mu      sync.RWMutex
	doctors map[int64]*Doctor
}

func NewMemoryDoctorRepo() DoctorRepository {
	return &memoryDoctorRepo{doctors: make(map[int64]*Doctor)}
}

func (r *memoryDoctorRepo) GetByID(_ context.Context, id int64) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memoryDoctorRepo) ListByHospital(_ context.Context, hospitalID int64, limit, offset int) ([]*Doctor, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []*Doctor
	for _, d := range r.doctors {
		if hospitalID != 0 && d.HospitalID != hospitalID {
			continue
		}
		cp := *d
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return pagination.Slice(all, pagination.Params{Limit: limit, Offset: offset}), len(all), nil
}

func (r *memoryDoctorRepo) Upsert(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == 0 {
		for id := range r.doctors {
			if id > d.ID {
				d.ID = id
			}
		}
		d.ID++
	}
	cp := *d
	r.doctors[d.ID] = &cp
	return nil
}

type memoryAppointmentRepo struct {
	mu    sync.RWMutex
	appts map[uuid.UUID]*Appointment
}

func NewMemoryAppointmentRepo() AppointmentRepository {
	return &memoryAppointmentRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (r *memoryAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if err := r.checkLiveSlot(a); err != nil {
		return err
	}
	cp := *a
	r.appts[a.ID] = &cp
	return nil
}

// checkLiveSlot mirrors the Postgres unique index on live (doctor, start) pairs.
func (r *memoryAppointmentRepo) checkLiveSlot(a *Appointment) error {
	if a.Status == StatusCancelled {
		return nil
	}
	for id, other := range r.appts {
		if id != a.ID && other.DoctorID == a.DoctorID && other.Status != StatusCancelled && other.ScheduledAt.Equal(a.ScheduledAt) {
			return fmt.Errorf("%w: doctor %d already has an appointment at %s",
				ErrSlotUnavailable, a.DoctorID, a.ScheduledAt.Format(time.RFC3339))
		}
	}
	return nil
}

func (r *memoryAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memoryAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appts[a.ID]; !ok {
		return ErrAppointmentNotFound
	}
	if err := r.checkLiveSlot(a); err != nil {
		return err
	}
	cp := *a
	r.appts[a.ID] = &cp
	return nil
}

func (r *memoryAppointmentRepo) ListByDoctor(_ context.Context, doctorID int64) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *memoryAppointmentRepo) ListScheduledBetween(_ context.Context, from, to time.Time) ([]*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Appointment
	for _, a := range r.appts {
		if a.Status != StatusScheduled {
			continue
		}
		if a.ScheduledAt.Before(from) || !a.ScheduledAt.Before(to) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}
