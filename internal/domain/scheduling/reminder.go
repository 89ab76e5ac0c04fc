package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/medbook/booking/internal/platform/events"
)

// ReminderJob publishes an appointment.reminder event for every appointment
// still scheduled on the following calendar day.
type ReminderJob struct {
	appointments AppointmentRepository
	publisher    events.Publisher
	loc          *time.Location
	now          func() time.Time
	logger       zerolog.Logger
}

func NewReminderJob(appts AppointmentRepository, publisher events.Publisher, loc *time.Location, logger zerolog.Logger) *ReminderJob {
	if loc == nil {
		loc = time.UTC
	}
	return &ReminderJob{
		appointments: appts,
		publisher:    publisher,
		loc:          loc,
		now:          time.Now,
		logger:       logger.With().Str("component", "reminders").Logger(),
	}
}

// Run sends reminders for the day after now and returns how many were sent.
func (j *ReminderJob) Run(ctx context.Context) (int, error) {
	now := j.now().In(j.loc)
	from := DateOf(now).AddDate(0, 0, 1)
	to := from.AddDate(0, 0, 1)

	appts, err := j.appointments.ListScheduledBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list tomorrow's appointments: %w", err)
	}

	sent := 0
	for _, a := range appts {
		e := events.New(EventAppointmentReminder, a.ID.String(), now, AppointmentEvent{
			AppointmentID: a.ID.String(),
			DoctorID:      a.DoctorID,
			PatientName:   a.PatientName,
			ScheduledAt:   a.ScheduledAt,
			Status:        a.Status,
		})
		if err := j.publisher.Publish(ctx, e); err != nil {
			j.logger.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("reminder publish failed")
			continue
		}
		sent++
	}
	j.logger.Info().Str("date", from.Format(DateLayout)).Int("sent", sent).Int("due", len(appts)).Msg("reminders sent")
	return sent, nil
}

// Schedule registers the job on a cron scheduler running in the job's location.
// The caller owns Start and Stop.
func (j *ReminderJob) Schedule(expr string, timeout time.Duration) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(j.loc))
	_, err := c.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := j.Run(ctx); err != nil {
			j.logger.Error().Err(err).Msg("reminder run failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", expr, err)
	}
	return c, nil
}
