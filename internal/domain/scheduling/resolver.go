package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Resolver produces the bookable-slot view for a doctor on a date.
type Resolver struct {
	overrides OverrideStore
	logger    zerolog.Logger
}

// NewResolver creates a Resolver over the given override store.
func NewResolver(overrides OverrideStore, logger zerolog.Logger) *Resolver {
	return &Resolver{
		overrides: overrides,
		logger:    logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve reports on_leave and unavailable with no slots; otherwise every working-hours
// slot is listed and marked against the day's occupied set. A fully occupied day is
// still "available".
func (r *Resolver) Resolve(ctx context.Context, doctor *Doctor, date time.Time) (DayView, error) {
	view := DayView{
		DoctorID: doctor.ID,
		Date:     date.Format(DateLayout),
		Slots:    []SlotView{},
	}

	override, err := r.overrides.GetOverride(ctx, doctor.ID, date)
	if err != nil {
		return DayView{}, fmt.Errorf("get override: %w", err)
	}
	if override != nil && override.Status == DayOnLeave {
		view.Status = ViewOnLeave
		return view, nil
	}

	hours, err := ParseWorkingHours(doctor.WorkingHours)
	if err != nil {
		r.logger.Debug().Err(err).Int64("doctor_id", doctor.ID).Msg("working hours unparseable, no slots")
		view.Status = ViewUnavailable
		return view, nil
	}

	for _, label := range GenerateSlots(hours.StartHour, hours.EndHour, date) {
		view.Slots = append(view.Slots, SlotView{
			Label:     label,
			Available: override == nil || !override.IsOccupied(label),
		})
	}
	view.Status = ViewAvailable
	return view, nil
}
