package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medbook/booking/internal/platform/events"
	"github.com/medbook/booking/internal/platform/keylock"
)

const (
	EventAppointmentBooked      = "appointment.booked"
	EventAppointmentRescheduled = "appointment.rescheduled"
	EventAppointmentCancelled   = "appointment.cancelled"
	EventAppointmentCompleted   = "appointment.completed"
	EventAppointmentReminder    = "appointment.reminder"
)

// maxLockAttempts bounds retries when an appointment moves between read and lock.
const maxLockAttempts = 3

// AppointmentEvent is the payload published for every lifecycle transition.
type AppointmentEvent struct {
	AppointmentID string            `json:"appointment_id"`
	DoctorID      int64             `json:"doctor_id"`
	PatientName   string            `json:"patient_name"`
	ScheduledAt   time.Time         `json:"scheduled_at"`
	PreviousAt    *time.Time        `json:"previous_at,omitempty"`
	Status        AppointmentStatus `json:"status"`
	NoShow        bool              `json:"no_show,omitempty"`
}

// BookRequest asks for one slot on one date.
type BookRequest struct {
	DoctorID    int64
	Date        time.Time
	Slot        string
	PatientName string
}

// TxRunner runs fn in one transaction, handing it the context repositories
// must use. Nested calls join the outer transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

func runDirect(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// Lifecycle owns every appointment state change and keeps the override store's
// occupied slots in step with it. Mutations hold the (doctor, date) lock for
// the check and the write only; events go out after the lock is released.
type Lifecycle struct {
	doctors      DoctorRepository
	appointments AppointmentRepository
	overrides    OverrideStore
	resolver     *Resolver
	locker       keylock.Locker
	publisher    events.Publisher
	logger       zerolog.Logger
	inTx         TxRunner
	// transactional means a failed write section is rolled back by inTx, so
	// compensating writes are skipped.
	transactional bool
}

func NewLifecycle(doctors DoctorRepository, appts AppointmentRepository, overrides OverrideStore,
	resolver *Resolver, locker keylock.Locker, publisher events.Publisher, logger zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		doctors:      doctors,
		appointments: appts,
		overrides:    overrides,
		resolver:     resolver,
		locker:       locker,
		publisher:    publisher,
		logger:       logger.With().Str("component", "lifecycle").Logger(),
		inTx:         runDirect,
	}
}

// WithTx makes every write section atomic through run. Without it, failed
// sections are undone with compensating writes.
func (l *Lifecycle) WithTx(run TxRunner) *Lifecycle {
	if run != nil {
		l.inTx = run
		l.transactional = true
	}
	return l
}

// LockKey is the serialization key for mutations on one doctor's day.
func LockKey(doctorID int64, date time.Time) string {
	return "doctor:" + strconv.FormatInt(doctorID, 10) + ":" + date.Format(DateLayout)
}

// Book creates a scheduled appointment on a free slot and occupies it.
func (l *Lifecycle) Book(ctx context.Context, req BookRequest, now time.Time) (*Appointment, error) {
	if strings.TrimSpace(req.PatientName) == "" {
		return nil, ErrMissingPatientName
	}
	doctor, err := l.doctors.GetByID(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	date := DateOf(req.Date)

	if err := l.checkSlotFree(ctx, doctor, date, req.Slot); err != nil {
		return nil, err
	}
	appt, err := l.book(ctx, doctor, date, req, now)
	if err != nil {
		return nil, err
	}

	l.log(ctx).Info().
		Str("appointment_id", appt.ID.String()).
		Int64("doctor_id", doctor.ID).
		Time("scheduled_at", appt.ScheduledAt).
		Msg("appointment booked")
	l.publish(ctx, EventAppointmentBooked, appt, nil, now)
	return appt, nil
}

func (l *Lifecycle) book(ctx context.Context, doctor *Doctor, date time.Time, req BookRequest, now time.Time) (*Appointment, error) {
	key := LockKey(doctor.ID, date)
	unlock, err := l.locker.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	defer unlock()

	// The first check may be stale by now.
	if err := l.checkSlotFree(ctx, doctor, date, req.Slot); err != nil {
		return nil, err
	}
	scheduledAt, err := SlotTime(date, req.Slot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSlotUnavailable, err)
	}
	appt := &Appointment{
		ID:          uuid.New(),
		DoctorID:    doctor.ID,
		PatientName: strings.TrimSpace(req.PatientName),
		ScheduledAt: scheduledAt,
		BookedAt:    now,
		Status:      StatusScheduled,
		UpdatedAt:   now,
	}

	err = l.inTx(ctx, func(ctx context.Context) error {
		if _, err := l.overrides.AddOccupiedSlot(ctx, doctor.ID, date, req.Slot); err != nil {
			return fmt.Errorf("occupy slot: %w", err)
		}
		if err := l.appointments.Create(ctx, appt); err != nil {
			l.releaseSlot(ctx, doctor.ID, date, req.Slot)
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// Reschedule moves a scheduled appointment to newAt, releasing its old slot.
func (l *Lifecycle) Reschedule(ctx context.Context, id uuid.UUID, newAt time.Time, now time.Time) (*Appointment, error) {
	appt, previous, err := l.reschedule(ctx, id, newAt, now)
	if err != nil {
		return nil, err
	}

	l.log(ctx).Info().
		Str("appointment_id", appt.ID.String()).
		Time("previous_at", previous).
		Time("scheduled_at", appt.ScheduledAt).
		Msg("appointment rescheduled")
	l.publish(ctx, EventAppointmentRescheduled, appt, &previous, now)
	return appt, nil
}

func (l *Lifecycle) reschedule(ctx context.Context, id uuid.UUID, newAt, now time.Time) (*Appointment, time.Time, error) {
	newDate := DateOf(newAt)
	newSlot := FormatSlotLabel(newAt)

	appt, unlock, err := l.lockAppointment(ctx, id, newDate)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer unlock()

	if appt.Status != StatusScheduled {
		return nil, time.Time{}, l.invalidTransition(appt, "reschedule")
	}
	if !IsRescheduleEligible(appt.ScheduledAt, now) {
		return nil, time.Time{}, fmt.Errorf("%w: appointment at %s is less than %d days away",
			ErrIneligibleReschedule, appt.ScheduledAt.Format(time.RFC3339), MinRescheduleNoticeDays)
	}
	if !newAt.After(now) {
		return nil, time.Time{}, fmt.Errorf("%w: new time %s is not in the future", ErrIneligibleReschedule, newAt.Format(time.RFC3339))
	}

	doctor, err := l.doctors.GetByID(ctx, appt.DoctorID)
	if err != nil {
		return nil, time.Time{}, err
	}
	scheduledAt, err := SlotTime(newDate, newSlot)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrSlotUnavailable, err)
	}
	oldDate, oldSlot := appt.Date(), appt.Slot()
	previous := appt.ScheduledAt

	err = l.inTx(ctx, func(ctx context.Context) error {
		if _, err := l.overrides.RemoveOccupiedSlot(ctx, doctor.ID, oldDate, oldSlot); err != nil {
			return fmt.Errorf("release slot: %w", err)
		}
		if err := l.checkSlotFree(ctx, doctor, newDate, newSlot); err != nil {
			l.restoreSlot(ctx, doctor.ID, oldDate, oldSlot)
			return err
		}
		if _, err := l.overrides.AddOccupiedSlot(ctx, doctor.ID, newDate, newSlot); err != nil {
			l.restoreSlot(ctx, doctor.ID, oldDate, oldSlot)
			return fmt.Errorf("occupy slot: %w", err)
		}

		moved := *appt
		moved.ScheduledAt = scheduledAt
		moved.UpdatedAt = now
		if err := l.appointments.Update(ctx, &moved); err != nil {
			l.releaseSlot(ctx, doctor.ID, newDate, newSlot)
			l.restoreSlot(ctx, doctor.ID, oldDate, oldSlot)
			return fmt.Errorf("update appointment: %w", err)
		}
		*appt = moved
		return nil
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	return appt, previous, nil
}

// Cancel moves a scheduled appointment to cancelled and frees its slot.
func (l *Lifecycle) Cancel(ctx context.Context, id uuid.UUID, now time.Time) (*Appointment, error) {
	appt, err := l.cancel(ctx, id, now)
	if err != nil {
		return nil, err
	}
	l.log(ctx).Info().Str("appointment_id", appt.ID.String()).Msg("appointment cancelled")
	l.publish(ctx, EventAppointmentCancelled, appt, nil, now)
	return appt, nil
}

func (l *Lifecycle) cancel(ctx context.Context, id uuid.UUID, now time.Time) (*Appointment, error) {
	appt, unlock, err := l.lockAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if appt.Status != StatusScheduled {
		return nil, l.invalidTransition(appt, "cancel")
	}

	err = l.inTx(ctx, func(ctx context.Context) error {
		if _, err := l.overrides.RemoveOccupiedSlot(ctx, appt.DoctorID, appt.Date(), appt.Slot()); err != nil {
			return fmt.Errorf("release slot: %w", err)
		}
		cancelled := *appt
		cancelled.Status = StatusCancelled
		cancelled.UpdatedAt = now
		if err := l.appointments.Update(ctx, &cancelled); err != nil {
			l.restoreSlot(ctx, appt.DoctorID, appt.Date(), appt.Slot())
			return fmt.Errorf("update appointment: %w", err)
		}
		*appt = cancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// Complete closes a scheduled appointment whose time has passed. Terminal.
func (l *Lifecycle) Complete(ctx context.Context, id uuid.UUID, noShow bool, now time.Time) (*Appointment, error) {
	appt, err := l.complete(ctx, id, noShow, now)
	if err != nil {
		return nil, err
	}
	l.log(ctx).Info().Str("appointment_id", appt.ID.String()).Bool("no_show", noShow).Msg("appointment completed")
	l.publish(ctx, EventAppointmentCompleted, appt, nil, now)
	return appt, nil
}

func (l *Lifecycle) complete(ctx context.Context, id uuid.UUID, noShow bool, now time.Time) (*Appointment, error) {
	appt, unlock, err := l.lockAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if appt.Status != StatusScheduled {
		return nil, l.invalidTransition(appt, "complete")
	}
	if !appt.ScheduledAt.Before(now) {
		l.invalidTransition(appt, "complete")
		return nil, fmt.Errorf("%w: appointment at %s has not started", ErrInvalidTransition, appt.ScheduledAt.Format(time.RFC3339))
	}

	appt.Status = StatusCompleted
	appt.NoShow = noShow
	appt.UpdatedAt = now
	if err := l.appointments.Update(ctx, appt); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	return appt, nil
}

// lockAppointment locks the appointment's current day plus extra days, then
// re-reads it so status checks see the serialized state.
func (l *Lifecycle) lockAppointment(ctx context.Context, id uuid.UUID, extra ...time.Time) (*Appointment, keylock.Unlock, error) {
	appt, err := l.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		keys := []string{LockKey(appt.DoctorID, appt.Date())}
		for _, d := range extra {
			keys = append(keys, LockKey(appt.DoctorID, d))
		}
		unlock, err := keylock.LockMany(ctx, l.locker, keys...)
		if err != nil {
			return nil, nil, fmt.Errorf("lock appointment %s: %w", id, err)
		}
		fresh, err := l.appointments.GetByID(ctx, id)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if fresh.Date().Equal(appt.Date()) {
			return fresh, unlock, nil
		}
		unlock()
		appt = fresh
	}
	return nil, nil, fmt.Errorf("lock appointment %s: moved during %d attempts", id, maxLockAttempts)
}

func (l *Lifecycle) checkSlotFree(ctx context.Context, doctor *Doctor, date time.Time, slot string) error {
	view, err := l.resolver.Resolve(ctx, doctor, date)
	if err != nil {
		return err
	}
	day := date.Format(DateLayout)
	switch view.Status {
	case ViewOnLeave:
		return fmt.Errorf("%w: doctor %d is on leave on %s", ErrSlotUnavailable, doctor.ID, day)
	case ViewUnavailable:
		return fmt.Errorf("%w: doctor %d has no working hours", ErrSlotUnavailable, doctor.ID)
	}
	sv, ok := view.Slot(slot)
	if !ok {
		return fmt.Errorf("%w: %q is not a slot on %s", ErrSlotUnavailable, slot, day)
	}
	if !sv.Available {
		return fmt.Errorf("%w: %s on %s is already booked", ErrSlotUnavailable, slot, day)
	}
	return nil
}

// restoreSlot re-occupies a released slot unless the day went on leave meanwhile,
// since occupying would flip the day back to available.
func (l *Lifecycle) restoreSlot(ctx context.Context, doctorID int64, date time.Time, slot string) {
	if l.transactional {
		return
	}
	day, err := l.overrides.GetOverride(ctx, doctorID, date)
	if err == nil && day != nil && day.Status == DayOnLeave {
		return
	}
	if _, err := l.overrides.AddOccupiedSlot(ctx, doctorID, date, slot); err != nil {
		l.log(ctx).Error().Err(err).Str("lock_key", LockKey(doctorID, date)).Str("slot", slot).Msg("failed to restore slot")
	}
}

// releaseSlot undoes an occupation made earlier in a failed write section.
func (l *Lifecycle) releaseSlot(ctx context.Context, doctorID int64, date time.Time, slot string) {
	if l.transactional {
		return
	}
	if _, err := l.overrides.RemoveOccupiedSlot(ctx, doctorID, date, slot); err != nil {
		l.log(ctx).Error().Err(err).Str("lock_key", LockKey(doctorID, date)).Str("slot", slot).Msg("failed to release slot")
	}
}

// log returns the request-scoped logger when the caller attached one.
func (l *Lifecycle) log(ctx context.Context) *zerolog.Logger {
	if reqLogger := zerolog.Ctx(ctx); reqLogger.GetLevel() != zerolog.Disabled {
		sub := reqLogger.With().Str("component", "lifecycle").Logger()
		return &sub
	}
	return &l.logger
}

func (l *Lifecycle) invalidTransition(appt *Appointment, action string) error {
	l.logger.Warn().
		Str("appointment_id", appt.ID.String()).
		Str("status", string(appt.Status)).
		Str("action", action).
		Msg("rejected appointment transition")
	return fmt.Errorf("%w: cannot %s %s appointment", ErrInvalidTransition, action, appt.Status)
}

func (l *Lifecycle) publish(ctx context.Context, eventType string, appt *Appointment, previous *time.Time, now time.Time) {
	if l.publisher == nil {
		return
	}
	e := events.New(eventType, appt.ID.String(), now, AppointmentEvent{
		AppointmentID: appt.ID.String(),
		DoctorID:      appt.DoctorID,
		PatientName:   appt.PatientName,
		ScheduledAt:   appt.ScheduledAt,
		PreviousAt:    previous,
		Status:        appt.Status,
		NoShow:        appt.NoShow,
	})
	if err := l.publisher.Publish(ctx, e); err != nil {
		l.log(ctx).Error().Err(err).Str("event_type", eventType).Str("appointment_id", appt.ID.String()).Msg("publish failed")
	}
}

// IsNotFound reports whether err is a doctor, hospital or appointment lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDoctorNotFound) || errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, ErrHospitalNotFound)
}
