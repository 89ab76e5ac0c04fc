package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type HospitalRepository interface {
	GetByID(ctx context.Context, id int64) (*Hospital, error)
	Upsert(ctx context.Context, h *Hospital) error
}

type DoctorRepository interface {
	GetByID(ctx context.Context, id int64) (*Doctor, error)
	// ListByHospital returns all doctors when hospitalID is 0.
	ListByHospital(ctx context.Context, hospitalID int64, limit, offset int) ([]*Doctor, int, error)
	Upsert(ctx context.Context, d *Doctor) error
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	ListByDoctor(ctx context.Context, doctorID int64) ([]*Appointment, error)
	// ListScheduledBetween returns scheduled appointments with from <= ScheduledAt < to.
	ListScheduledBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error)
}
