package scheduling

import (
	"fmt"
	"time"
)

// SlotStep is the fixed slot granularity.
const SlotStep = 30 * time.Minute

// slotLabelLayout renders "9:00 AM", "10:30 AM", "2:00 PM".
const slotLabelLayout = "3:04 PM"

// GenerateSlots returns the slot labels for [startHour:00, endHour:00) on date,
// earliest first. Slots follow the wall clock, so a DST change inside the
// range does not shift them. An empty or inverted range yields no slots.
func GenerateSlots(startHour, endHour int, date time.Time) []string {
	if startHour >= endHour {
		return []string{}
	}
	step := int(SlotStep / time.Minute)
	labels := make([]string, 0, (endHour-startHour)*60/step)
	for m := startHour * 60; m < endHour*60; m += step {
		labels = append(labels, wallClockLabel(m/60, m%60))
	}
	return labels
}

// wallClockLabel formats an hour and minute without any zone arithmetic.
func wallClockLabel(hour, minute int) string {
	return time.Date(2000, time.January, 1, hour, minute, 0, 0, time.UTC).Format(slotLabelLayout)
}

// FormatSlotLabel renders the time-of-day part of t as a slot label.
func FormatSlotLabel(t time.Time) string {
	return t.Format(slotLabelLayout)
}

// SlotTime combines a calendar date with a slot label into an instant in date's location.
func SlotTime(date time.Time, label string) (time.Time, error) {
	tod, err := parseSlotLabel(label)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, tod.Hour(), tod.Minute(), 0, 0, date.Location()), nil
}

func parseSlotLabel(label string) (time.Time, error) {
	t, err := time.Parse(slotLabelLayout, label)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot label %q: %w", label, err)
	}
	return t, nil
}
