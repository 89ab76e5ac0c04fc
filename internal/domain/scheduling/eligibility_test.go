package scheduling

import (
	"testing"
	"time"
)

func TestIsRescheduleEligible(t *testing.T) {
	appt := at(11, 10, 0)
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"two days prior", at(9, 10, 0), true},
		{"one day prior", at(10, 10, 0), false},
		{"one day and a minute prior rounds up", at(10, 9, 59), true},
		{"same time", appt, false},
		{"a week prior", at(4, 10, 0), true},
		{"two days after", at(13, 10, 0), true},
		{"hours after", at(11, 15, 0), false},
	}
	for _, tt := range tests {
		if got := IsRescheduleEligible(appt, tt.now); got != tt.want {
			t.Errorf("%s: IsRescheduleEligible = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsRescheduleEligible_MidnightBoundary(t *testing.T) {
	appt := at(12, 0, 0)
	if !IsRescheduleEligible(appt, at(10, 0, 0)) {
		t.Error("exactly 2 days should be eligible")
	}
	if IsRescheduleEligible(appt, at(11, 0, 0)) {
		t.Error("exactly 1 day should not be eligible")
	}
}
