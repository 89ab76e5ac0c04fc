package scheduling

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// DayStatus is the stored status of a DayAvailability record.
type DayStatus string

const (
	DayAvailable DayStatus = "available"
	DayOnLeave   DayStatus = "on_leave"
)

// Valid reports whether s is a status a DayAvailability record may hold.
func (s DayStatus) Valid() bool {
	return s == DayAvailable || s == DayOnLeave
}

// ViewStatus is the status reported by the resolver for a (doctor, date).
type ViewStatus string

const (
	ViewAvailable   ViewStatus = "available"
	ViewOnLeave     ViewStatus = "on_leave"
	ViewUnavailable ViewStatus = "unavailable"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Hospital groups doctors. Profile management lives outside this service.
type Hospital struct {
	ID      int64  `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Address string `db:"address" json:"address,omitempty"`
	Contact string `db:"contact" json:"contact,omitempty"`
}

// Doctor maps to the doctors table.
type Doctor struct {
	ID              int64  `db:"id" json:"id"`
	HospitalID      int64  `db:"hospital_id" json:"hospital_id"`
	Name            string `db:"name" json:"name"`
	Specialization  string `db:"specialization" json:"specialization"`
	ExperienceYears int    `db:"experience_years" json:"experience_years"`
	WorkingHours    string `db:"working_hours" json:"working_hours"`
}

// DayAvailability is a per-date override of a doctor's default availability.
type DayAvailability struct {
	DoctorID      int64     `db:"doctor_id" json:"doctor_id"`
	Date          time.Time `db:"date" json:"-"`
	Status        DayStatus `db:"status" json:"status"`
	OccupiedSlots []string  `db:"occupied_slots" json:"occupied_slots"`
}

// DateString returns the record's date in DateLayout.
func (d *DayAvailability) DateString() string { return d.Date.Format(DateLayout) }

// IsOccupied reports whether slot is in the occupied set.
func (d *DayAvailability) IsOccupied(slot string) bool {
	for _, s := range d.OccupiedSlots {
		if s == slot {
			return true
		}
	}
	return false
}

func (d *DayAvailability) clone() *DayAvailability {
	cp := *d
	cp.OccupiedSlots = append(make([]string, 0, len(d.OccupiedSlots)), d.OccupiedSlots...)
	return &cp
}

// Appointment maps to the appointments table.
type Appointment struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	DoctorID    int64             `db:"doctor_id" json:"doctor_id"`
	PatientName string            `db:"patient_name" json:"patient_name"`
	ScheduledAt time.Time         `db:"scheduled_at" json:"scheduled_at"`
	BookedAt    time.Time         `db:"booked_at" json:"booked_at"`
	Status      AppointmentStatus `db:"status" json:"status"`
	NoShow      bool              `db:"no_show" json:"no_show"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// Slot returns the slot label the appointment occupies.
func (a *Appointment) Slot() string { return FormatSlotLabel(a.ScheduledAt) }

// Date returns the calendar date the appointment occupies.
func (a *Appointment) Date() time.Time { return DateOf(a.ScheduledAt) }

// SlotView is one slot of a resolved day.
type SlotView struct {
	Label     string `json:"label"`
	Available bool   `json:"available"`
}

// DayView is the resolver's result for a (doctor, date).
type DayView struct {
	DoctorID int64      `json:"doctor_id"`
	Date     string     `json:"date"`
	Status   ViewStatus `json:"status"`
	Slots    []SlotView `json:"slots"`
}

// Slot returns the view of label and whether it exists in the grid.
func (v DayView) Slot(label string) (SlotView, bool) {
	for _, s := range v.Slots {
		if s.Label == label {
			return s, true
		}
	}
	return SlotView{}, false
}

// FreeSlots returns the labels still open for booking.
func (v DayView) FreeSlots() []string {
	var free []string
	for _, s := range v.Slots {
		if s.Available {
			free = append(free, s.Label)
		}
	}
	return free
}

// DateOf truncates t to midnight of its calendar day in t's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseDate parses a DateLayout string in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}

// sortSlotLabels orders labels by time of day. Labels that do not parse sort last,
// lexically, so externally blocked free-form labels stay stable.
func sortSlotLabels(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		ti, erri := parseSlotLabel(labels[i])
		tj, errj := parseSlotLabel(labels[j])
		switch {
		case erri == nil && errj == nil:
			return ti.Before(tj)
		case erri == nil:
			return true
		case errj == nil:
			return false
		default:
			return labels[i] < labels[j]
		}
	})
}
