package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/booking/internal/platform/keylock"
	"github.com/medbook/booking/pkg/pagination"
)

// Service is the entry point the HTTP layer and CLI use. Writes that touch a
// doctor's day go through the same lock the lifecycle uses.
type Service struct {
	hospitals    HospitalRepository
	doctors      DoctorRepository
	appointments AppointmentRepository
	overrides    OverrideStore
	resolver     *Resolver
	lifecycle    *Lifecycle
	locker       keylock.Locker
	logger       zerolog.Logger
}

func NewService(hospitals HospitalRepository, doctors DoctorRepository, appts AppointmentRepository,
	overrides OverrideStore, resolver *Resolver, lifecycle *Lifecycle, locker keylock.Locker, logger zerolog.Logger) *Service {
	return &Service{
		hospitals:    hospitals,
		doctors:      doctors,
		appointments: appts,
		overrides:    overrides,
		resolver:     resolver,
		lifecycle:    lifecycle,
		locker:       locker,
		logger:       logger,
	}
}

// -- Availability --

func (s *Service) ResolveDay(ctx context.Context, doctorID int64, date time.Time) (DayView, error) {
	doctor, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return DayView{}, err
	}
	return s.resolver.Resolve(ctx, doctor, date)
}

func (s *Service) ListOverrides(ctx context.Context, doctorID int64, from, to time.Time) ([]*DayAvailability, error) {
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange, to.Format(DateLayout), from.Format(DateLayout))
	}
	return s.overrides.ListOverrides(ctx, doctorID, from, to)
}

// SetDayStatus marks a day available or on leave. Going on leave clears every
// occupied slot; existing appointments are left as they are. Coming back to
// available re-occupies the slots of the day's scheduled appointments.
func (s *Service) SetDayStatus(ctx context.Context, doctorID int64, date time.Time, status DayStatus) (*DayAvailability, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	var out *DayAvailability
	err := s.withDoctorDay(ctx, doctorID, date, func() error {
		return s.lifecycle.inTx(ctx, func(ctx context.Context) error {
			var err error
			if out, err = s.overrides.SetStatus(ctx, doctorID, date, status); err != nil {
				return err
			}
			if status != DayAvailable {
				return nil
			}
			return s.reoccupyBooked(ctx, doctorID, date, &out)
		})
	})
	if err == nil {
		s.logger.Info().Int64("doctor_id", doctorID).Str("date", date.Format(DateLayout)).Str("status", string(status)).Msg("day status set")
	}
	return out, err
}

func (s *Service) reoccupyBooked(ctx context.Context, doctorID int64, date time.Time, out **DayAvailability) error {
	appts, err := s.appointments.ListByDoctor(ctx, doctorID)
	if err != nil {
		return err
	}
	day := DateOf(date)
	for _, a := range appts {
		if a.Status != StatusScheduled || !DateOf(a.ScheduledAt.In(day.Location())).Equal(day) {
			continue
		}
		if *out, err = s.overrides.AddOccupiedSlot(ctx, doctorID, day, FormatSlotLabel(a.ScheduledAt.In(day.Location()))); err != nil {
			return fmt.Errorf("re-occupy %s: %w", a.ID, err)
		}
	}
	return nil
}

// BlockSlot occupies a slot without an appointment.
func (s *Service) BlockSlot(ctx context.Context, doctorID int64, date time.Time, slot string) (*DayAvailability, error) {
	if _, err := parseSlotLabel(slot); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSlotUnavailable, err)
	}
	var out *DayAvailability
	err := s.withDoctorDay(ctx, doctorID, date, func() error {
		var err error
		out, err = s.overrides.AddOccupiedSlot(ctx, doctorID, date, slot)
		return err
	})
	return out, err
}

// ReleaseSlot frees a slot. A day with no override returns nil.
func (s *Service) ReleaseSlot(ctx context.Context, doctorID int64, date time.Time, slot string) (*DayAvailability, error) {
	var out *DayAvailability
	err := s.withDoctorDay(ctx, doctorID, date, func() error {
		var err error
		out, err = s.overrides.RemoveOccupiedSlot(ctx, doctorID, date, slot)
		return err
	})
	return out, err
}

func (s *Service) withDoctorDay(ctx context.Context, doctorID int64, date time.Time, fn func() error) error {
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return err
	}
	key := LockKey(doctorID, date)
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer unlock()
	return fn()
}

// -- Directory --

func (s *Service) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, hospitalID int64, limit, offset int) ([]*Doctor, int, error) {
	if hospitalID != 0 {
		if _, err := s.hospitals.GetByID(ctx, hospitalID); err != nil {
			return nil, 0, err
		}
	}
	return s.doctors.ListByHospital(ctx, hospitalID, limit, offset)
}

// -- Appointments --

func (s *Service) Book(ctx context.Context, req BookRequest, now time.Time) (*Appointment, error) {
	return s.lifecycle.Book(ctx, req, now)
}

func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newAt, now time.Time) (*Appointment, error) {
	return s.lifecycle.Reschedule(ctx, id, newAt, now)
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, now time.Time) (*Appointment, error) {
	return s.lifecycle.Cancel(ctx, id, now)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, noShow bool, now time.Time) (*Appointment, error) {
	return s.lifecycle.Complete(ctx, id, noShow, now)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// RescheduleEligibility reports whether the appointment may be moved at now.
func (s *Service) RescheduleEligibility(ctx context.Context, id uuid.UUID, now time.Time) (bool, *Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return false, nil, err
	}
	return appt.Status == StatusScheduled && IsRescheduleEligible(appt.ScheduledAt, now), appt, nil
}

func (s *Service) DoctorAppointments(ctx context.Context, doctorID int64, view AppointmentView, now time.Time, limit, offset int) ([]*Appointment, int, error) {
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return nil, 0, err
	}
	all, err := s.appointments.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, 0, err
	}
	filtered := FilterAppointments(all, view, now)
	return pagination.Slice(filtered, pagination.Params{Limit: limit, Offset: offset}), len(filtered), nil
}

func (s *Service) DoctorStats(ctx context.Context, doctorID int64, now time.Time) (DoctorStats, error) {
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return DoctorStats{}, err
	}
	all, err := s.appointments.ListByDoctor(ctx, doctorID)
	if err != nil {
		return DoctorStats{}, err
	}
	return ComputeStats(all, now), nil
}
