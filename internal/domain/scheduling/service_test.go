package scheduling

import (
	"context"
	"errors"
	"testing"
)

func TestService_ResolveDay_UnknownDoctor(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.ResolveDay(context.Background(), 999, day(5))
	if !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected ErrDoctorNotFound, got %v", err)
	}
}

func TestService_SetDayStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d, err := env.svc.SetDayStatus(ctx, 101, day(5), DayOnLeave)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != DayOnLeave || len(d.OccupiedSlots) != 0 {
		t.Errorf("unexpected day %+v", d)
	}
	view, _ := env.svc.ResolveDay(ctx, 101, day(5))
	if view.Status != ViewOnLeave {
		t.Errorf("expected on_leave, got %s", view.Status)
	}

	if _, err := env.svc.SetDayStatus(ctx, 101, day(5), DayStatus("busy")); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestService_SetDayStatus_AvailableRestoresBookedSlots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := at(1, 8, 0)
	kept := env.book(t, 102, day(20), "10:00 AM", now)
	cancelled := env.book(t, 102, day(20), "11:00 AM", now)
	if _, err := env.lifecycle.Cancel(ctx, cancelled.ID, now); err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.SetDayStatus(ctx, 102, day(20), DayOnLeave); err != nil {
		t.Fatal(err)
	}
	d, err := env.svc.SetDayStatus(ctx, 102, day(20), DayAvailable)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != DayAvailable || len(d.OccupiedSlots) != 1 || d.OccupiedSlots[0] != kept.Slot() {
		t.Errorf("expected only %s occupied, got %+v", kept.Slot(), d)
	}

	_, err = env.lifecycle.Book(ctx, BookRequest{DoctorID: 102, Date: day(20), Slot: "10:00 AM", PatientName: "Second"}, now)
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable for the still-booked slot, got %v", err)
	}
	env.book(t, 102, day(20), "11:00 AM", now)

	list, _ := env.appts.ListByDoctor(ctx, 102)
	live := 0
	for _, a := range list {
		if a.Status == StatusScheduled {
			live++
		}
	}
	if live != 2 {
		t.Errorf("expected 2 scheduled appointments, got %d", live)
	}
}

func TestService_BlockAndReleaseSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.BlockSlot(ctx, 102, day(8), "1:00 PM"); err != nil {
		t.Fatalf("block: %v", err)
	}
	view, _ := env.svc.ResolveDay(ctx, 102, day(8))
	if s, _ := view.Slot("1:00 PM"); s.Available {
		t.Error("blocked slot shown as available")
	}

	d, err := env.svc.ReleaseSlot(ctx, 102, day(8), "1:00 PM")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if d.IsOccupied("1:00 PM") {
		t.Error("slot still occupied")
	}

	if _, err := env.svc.BlockSlot(ctx, 102, day(8), "13:00"); !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("expected ErrSlotUnavailable for bad label, got %v", err)
	}
}

func TestService_ListOverrides(t *testing.T) {
	env := newTestEnv(t)
	days, err := env.svc.ListOverrides(context.Background(), 101, day(1), day(31))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("expected 2 overrides, got %d", len(days))
	}
	if days[0].DateString() != "2025-07-05" || days[1].Status != DayOnLeave {
		t.Errorf("unexpected overrides %+v %+v", days[0], days[1])
	}

	if _, err := env.svc.ListOverrides(context.Background(), 101, day(10), day(1)); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestService_ListDoctors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	all, total, err := env.svc.ListDoctors(ctx, 0, 10, 0)
	if err != nil || total != 3 || len(all) != 3 {
		t.Errorf("all: got %d/%d, %v", len(all), total, err)
	}
	h1, total, _ := env.svc.ListDoctors(ctx, 1, 1, 0)
	if total != 2 || len(h1) != 1 {
		t.Errorf("hospital 1 page: got %d/%d", len(h1), total)
	}
	if _, _, err := env.svc.ListDoctors(ctx, 42, 10, 0); !errors.Is(err, ErrHospitalNotFound) {
		t.Errorf("expected ErrHospitalNotFound, got %v", err)
	}
}

func TestService_DoctorAppointmentsAndStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.book(t, 102, day(9), "10:00 AM", at(1, 8, 0))
	env.book(t, 102, day(9), "11:00 AM", at(1, 8, 0))
	later := env.book(t, 102, day(10), "10:00 AM", at(1, 8, 0))
	env.book(t, 102, day(3), "10:00 AM", at(1, 8, 0))
	if _, err := env.svc.Cancel(ctx, later.ID, at(2, 0, 0)); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	now := at(9, 12, 0)
	today, total, err := env.svc.DoctorAppointments(ctx, 102, ViewToday, now, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(today) != 1 {
		t.Errorf("expected page of 1 out of 2, got %d/%d", len(today), total)
	}

	stats, err := env.svc.DoctorStats(ctx, 102, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats != (DoctorStats{Today: 2, Tomorrow: 0, ThisWeek: 2}) {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestService_RescheduleEligibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.book(t, 102, day(11), "10:00 AM", at(1, 8, 0))

	ok, _, err := env.svc.RescheduleEligibility(ctx, a.ID, at(9, 10, 0))
	if err != nil || !ok {
		t.Errorf("expected eligible, got %v, %v", ok, err)
	}
	ok, _, _ = env.svc.RescheduleEligibility(ctx, a.ID, at(10, 10, 0))
	if ok {
		t.Error("expected ineligible one day prior")
	}

	env.svc.Cancel(ctx, a.ID, at(2, 0, 0))
	ok, _, _ = env.svc.RescheduleEligibility(ctx, a.ID, at(1, 10, 0))
	if ok {
		t.Error("cancelled appointment cannot be rescheduled")
	}
}
