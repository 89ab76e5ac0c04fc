package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medbook/booking/internal/platform/events"
	"github.com/medbook/booking/internal/platform/keylock"
)

func day(d int) time.Time { return time.Date(2025, 7, d, 0, 0, 0, 0, time.UTC) }

func at(d, hour, minute int) time.Time { return time.Date(2025, 7, d, hour, minute, 0, 0, time.UTC) }

type testEnv struct {
	hospitals HospitalRepository
	doctors   DoctorRepository
	appts     AppointmentRepository
	overrides *MemoryOverrideStore
	resolver  *Resolver
	lifecycle *Lifecycle
	recorder  *events.Recorder
	svc       *Service
}

// newTestEnv seeds doctors 101 and 102 at hospital 1 and 103 with unparseable
// hours. Doctor 101 has 10:00 AM, 11:00 AM and 2:00 PM taken on 2025-07-05 and
// is on leave on 2025-07-06.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	env := &testEnv{
		hospitals: NewMemoryHospitalRepo(),
		doctors:   NewMemoryDoctorRepo(),
		appts:     NewMemoryAppointmentRepo(),
		overrides: NewMemoryOverrideStore(),
		recorder:  events.NewRecorder(),
	}
	env.hospitals.Upsert(ctx, &Hospital{ID: 1, Name: "City General Hospital"})
	env.hospitals.Upsert(ctx, &Hospital{ID: 2, Name: "Community Health Center"})
	for _, d := range []*Doctor{
		{ID: 101, HospitalID: 1, Name: "Dr. Sarah Johnson", Specialization: "Cardiology", ExperienceYears: 12, WorkingHours: "9:00 AM - 5:00 PM"},
		{ID: 102, HospitalID: 1, Name: "Dr. Michael Chen", Specialization: "Neurology", ExperienceYears: 8, WorkingHours: "10:00 AM - 6:00 PM"},
		{ID: 103, HospitalID: 2, Name: "Dr. Unparsed", Specialization: "General", WorkingHours: "nine to five"},
	} {
		if err := env.doctors.Upsert(ctx, d); err != nil {
			t.Fatalf("seed doctor: %v", err)
		}
	}
	for _, slot := range []string{"10:00 AM", "11:00 AM", "2:00 PM"} {
		env.overrides.AddOccupiedSlot(ctx, 101, day(5), slot)
	}
	env.overrides.SetStatus(ctx, 101, day(6), DayOnLeave)

	locker := keylock.NewMemoryLocker()
	env.resolver = NewResolver(env.overrides, logger)
	env.lifecycle = NewLifecycle(env.doctors, env.appts, env.overrides, env.resolver, locker, env.recorder, logger)
	env.svc = NewService(env.hospitals, env.doctors, env.appts, env.overrides, env.resolver, env.lifecycle, locker, logger)
	return env
}

func (env *testEnv) doctor(t *testing.T, id int64) *Doctor {
	t.Helper()
	d, err := env.doctors.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get doctor %d: %v", id, err)
	}
	return d
}

func (env *testEnv) book(t *testing.T, doctorID int64, date time.Time, slot string, now time.Time) *Appointment {
	t.Helper()
	a, err := env.lifecycle.Book(context.Background(), BookRequest{
		DoctorID: doctorID, Date: date, Slot: slot, PatientName: "Jane Doe",
	}, now)
	if err != nil {
		t.Fatalf("book %s %s: %v", date.Format(DateLayout), slot, err)
	}
	return a
}
