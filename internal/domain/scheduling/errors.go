package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrSlotUnavailable      = errors.New("slot is not available")
	ErrIneligibleReschedule = errors.New("appointment is not eligible for rescheduling")
	ErrInvalidTransition    = errors.New("invalid appointment status transition")
	ErrDoctorNotFound       = errors.New("doctor not found")
	ErrHospitalNotFound     = errors.New("hospital not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrInvalidStatus        = errors.New("invalid availability status")
	ErrMissingPatientName   = errors.New("patient_name is required")
	ErrInvalidRange         = errors.New("invalid date range")
)

// FormatError reports a working-hours string that does not match "h:mm AM - h:mm PM".
type FormatError struct {
	Input string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid working hours %q: expected format \"9:00 AM - 5:00 PM\"", e.Input)
}
