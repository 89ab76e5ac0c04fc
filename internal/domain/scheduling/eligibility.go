package scheduling

import (
	"math"
	"time"
)

// MinRescheduleNoticeDays is the minimum whole-day distance for a reschedule.
const MinRescheduleNoticeDays = 2

// IsRescheduleEligible reports whether an appointment at appointmentAt may be
// rescheduled at now: the distance between the two, rounded up to whole days,
// must be at least MinRescheduleNoticeDays.
//
// The distance is unsigned, so an appointment two or more days in the past also
// qualifies. Lifecycle.Reschedule additionally requires the appointment to still
// be scheduled.
func IsRescheduleEligible(appointmentAt, now time.Time) bool {
	diff := appointmentAt.Sub(now)
	if diff < 0 {
		diff = -diff
	}
	days := math.Ceil(float64(diff) / float64(24*time.Hour))
	return days >= MinRescheduleNoticeDays
}
