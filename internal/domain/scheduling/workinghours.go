package scheduling

import (
	"regexp"
	"strconv"
)

// WorkingHours is a parsed "start - end" range at hour granularity, 24h clock.
type WorkingHours struct {
	StartHour int
	EndHour   int
}

var workingHoursPattern = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*(AM|PM)\s+-\s+(\d{1,2}):(\d{2})\s*(AM|PM)\s*$`)

// ParseWorkingHours parses strings like "9:00 AM - 5:00 PM". Minutes are validated
// but dropped since slots are generated from whole hours.
func ParseWorkingHours(s string) (WorkingHours, error) {
	m := workingHoursPattern.FindStringSubmatch(s)
	if m == nil {
		return WorkingHours{}, &FormatError{Input: s}
	}
	start, ok := to24Hour(m[1], m[2], m[3])
	if !ok {
		return WorkingHours{}, &FormatError{Input: s}
	}
	end, ok := to24Hour(m[4], m[5], m[6])
	if !ok {
		return WorkingHours{}, &FormatError{Input: s}
	}
	return WorkingHours{StartHour: start, EndHour: end}, nil
}

func to24Hour(hour, minute, meridiem string) (int, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil || h < 1 || h > 12 {
		return 0, false
	}
	mm, err := strconv.Atoi(minute)
	if err != nil || mm > 59 {
		return 0, false
	}
	h %= 12
	if meridiem == "PM" {
		h += 12
	}
	return h, true
}
