package scheduling

import (
	"fmt"
	"sort"
	"time"
)

// AppointmentView selects which of a doctor's appointments to list.
type AppointmentView string

const (
	ViewToday    AppointmentView = "today"
	ViewUpcoming AppointmentView = "upcoming"
	ViewPast     AppointmentView = "past"
	ViewAll      AppointmentView = "all"
)

// ParseAppointmentView maps a query value to a view; empty means all.
func ParseAppointmentView(s string) (AppointmentView, error) {
	switch v := AppointmentView(s); v {
	case "":
		return ViewAll, nil
	case ViewToday, ViewUpcoming, ViewPast, ViewAll:
		return v, nil
	default:
		return "", fmt.Errorf("unknown view %q: expected today, upcoming, past or all", s)
	}
}

// FilterAppointments returns the appointments in view relative to now. Upcoming
// is everything after today's midnight, so it overlaps today. Today and upcoming
// are ordered earliest first, past most recent first.
func FilterAppointments(list []*Appointment, view AppointmentView, now time.Time) []*Appointment {
	today := DateOf(now)
	tomorrow := today.AddDate(0, 0, 1)

	out := make([]*Appointment, 0, len(list))
	for _, a := range list {
		at := a.ScheduledAt.In(now.Location())
		switch view {
		case ViewToday:
			if at.Before(today) || !at.Before(tomorrow) {
				continue
			}
		case ViewUpcoming:
			if !at.After(today) {
				continue
			}
		case ViewPast:
			if !at.Before(today) {
				continue
			}
		}
		out = append(out, a)
	}

	if view == ViewPast {
		sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	}
	return out
}

// DoctorStats counts a doctor's non-cancelled appointments.
type DoctorStats struct {
	Today    int `json:"today"`
	Tomorrow int `json:"tomorrow"`
	ThisWeek int `json:"this_week"`
}

// ComputeStats counts appointments for today, tomorrow, and the Sunday to
// Saturday week containing now.
func ComputeStats(list []*Appointment, now time.Time) DoctorStats {
	today := DateOf(now)
	tomorrow := today.AddDate(0, 0, 1)
	dayAfter := today.AddDate(0, 0, 2)
	weekStart := today.AddDate(0, 0, -int(today.Weekday()))
	weekEnd := weekStart.AddDate(0, 0, 7)

	within := func(t, from, to time.Time) bool { return !t.Before(from) && t.Before(to) }

	var s DoctorStats
	for _, a := range list {
		if a.Status == StatusCancelled {
			continue
		}
		at := a.ScheduledAt.In(now.Location())
		if within(at, today, tomorrow) {
			s.Today++
		}
		if within(at, tomorrow, dayAfter) {
			s.Tomorrow++
		}
		if within(at, weekStart, weekEnd) {
			s.ThisWeek++
		}
	}
	return s
}
