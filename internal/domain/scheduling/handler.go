package scheduling

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medbook/booking/internal/platform/keylock"
	"github.com/medbook/booking/pkg/pagination"
)

type Handler struct {
	svc *Service
	loc *time.Location
	now func() time.Time
}

// NewHandler interprets dates and slot labels in loc.
func NewHandler(svc *Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{svc: svc, loc: loc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
	api.GET("/doctors/:id/availability", h.GetAvailability)
	api.GET("/doctors/:id/overrides", h.ListOverrides)
	api.PUT("/doctors/:id/overrides/:date", h.SetDayStatus)
	api.POST("/doctors/:id/overrides/:date/slots", h.BlockSlot)
	api.DELETE("/doctors/:id/overrides/:date/slots/:slot", h.ReleaseSlot)
	api.GET("/doctors/:id/appointments", h.ListDoctorAppointments)
	api.GET("/doctors/:id/stats", h.GetDoctorStats)

	api.POST("/appointments", h.BookAppointment)
	api.GET("/appointments/:id", h.GetAppointment)
	api.GET("/appointments/:id/reschedule-eligibility", h.GetRescheduleEligibility)
	api.POST("/appointments/:id/reschedule", h.RescheduleAppointment)
	api.POST("/appointments/:id/cancel", h.CancelAppointment)
	api.POST("/appointments/:id/complete", h.CompleteAppointment)
}

func (h *Handler) clock() time.Time { return h.now().In(h.loc) }

// -- Doctor Handlers --

func (h *Handler) ListDoctors(c echo.Context) error {
	pg, err := pagination.Parse(c)
	if err != nil {
		return err
	}
	var hospitalID int64
	if raw := c.QueryParam("hospital_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital_id")
		}
		hospitalID = id
	}
	items, total, err := h.svc.ListDoctors(c.Request().Context(), hospitalID, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.New(items, total, pg))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := doctorIDParam(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetAvailability(c echo.Context) error {
	id, err := doctorIDParam(c)
	if err != nil {
		return err
	}
	date := DateOf(h.clock())
	if raw := c.QueryParam("date"); raw != "" {
		if date, err = h.parseDate(raw); err != nil {
			return err
		}
	}
	view, err := h.svc.ResolveDay(c.Request().Context(), id, date)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, view)
}

type overrideResponse struct {
	DoctorID      int64     `json:"doctor_id"`
	Date          string    `json:"date"`
	Status        DayStatus `json:"status"`
	OccupiedSlots []string  `json:"occupied_slots"`
}

func toOverrideResponse(d *DayAvailability) *overrideResponse {
	if d == nil {
		return nil
	}
	return &overrideResponse{
		DoctorID:      d.DoctorID,
		Date:          d.DateString(),
		Status:        d.Status,
		OccupiedSlots: d.OccupiedSlots,
	}
}

func (h *Handler) ListOverrides(c echo.Context) error {
	id, err := doctorIDParam(c)
	if err != nil {
		return err
	}
	from := DateOf(h.clock())
	if raw := c.QueryParam("from"); raw != "" {
		if from, err = h.parseDate(raw); err != nil {
			return err
		}
	}
	to := from.AddDate(0, 0, 30)
	if raw := c.QueryParam("to"); raw != "" {
		if to, err = h.parseDate(raw); err != nil {
			return err
		}
	}
	days, err := h.svc.ListOverrides(c.Request().Context(), id, from, to)
	if err != nil {
		return mapError(err)
	}
	out := make([]*overrideResponse, 0, len(days))
	for _, d := range days {
		out = append(out, toOverrideResponse(d))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) SetDayStatus(c echo.Context) error {
	id, date, err := h.doctorDayParams(c)
	if err != nil {
		return err
	}
	var body struct {
		Status DayStatus `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	day, err := h.svc.SetDayStatus(c.Request().Context(), id, date, body.Status)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, toOverrideResponse(day))
}

func (h *Handler) BlockSlot(c echo.Context) error {
	id, date, err := h.doctorDayParams(c)
	if err != nil {
		return err
	}
	var body struct {
		Slot string `json:"slot"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.Slot == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "slot is required")
	}
	day, err := h.svc.BlockSlot(c.Request().Context(), id, date, body.Slot)
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return mapError(err)
	}
	return c.JSON(http.StatusOK, toOverrideResponse(day))
}

func (h *Handler) ReleaseSlot(c echo.Context) error {
	id, date, err := h.doctorDayParams(c)
	if err != nil {
		return err
	}
	day, err := h.svc.ReleaseSlot(c.Request().Context(), id, date, c.Param("slot"))
	if err != nil {
		return mapError(err)
	}
	if day == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, toOverrideResponse(day))
}

func (h *Handler) ListDoctorAppointments(c echo.Context) error {
	id, err := doctorIDParam(c)
	if err != nil {
		return err
	}
	view, err := ParseAppointmentView(c.QueryParam("view"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pg, err := pagination.Parse(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.DoctorAppointments(c.Request().Context(), id, view, h.clock(), pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.New(items, total, pg))
}

func (h *Handler) GetDoctorStats(c echo.Context) error {
	id, err := doctorIDParam(c)
	if err != nil {
		return err
	}
	stats, err := h.svc.DoctorStats(c.Request().Context(), id, h.clock())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// -- Appointment Handlers --

type bookRequest struct {
	DoctorID    int64  `json:"doctor_id"`
	Date        string `json:"date"`
	Slot        string `json:"slot"`
	PatientName string `json:"patient_name"`
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var body bookRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.DoctorID == 0 || body.Date == "" || body.Slot == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id, date and slot are required")
	}
	date, err := h.parseDate(body.Date)
	if err != nil {
		return err
	}
	appt, err := h.svc.Book(c.Request().Context(), BookRequest{
		DoctorID:    body.DoctorID,
		Date:        date,
		Slot:        body.Slot,
		PatientName: body.PatientName,
	}, h.clock())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := appointmentIDParam(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) GetRescheduleEligibility(c echo.Context) error {
	id, err := appointmentIDParam(c)
	if err != nil {
		return err
	}
	eligible, appt, err := h.svc.RescheduleEligibility(c.Request().Context(), id, h.clock())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"appointment_id": appt.ID,
		"scheduled_at":   appt.ScheduledAt,
		"eligible":       eligible,
	})
}

func (h *Handler) RescheduleAppointment(c echo.Context) error {
	id, err := appointmentIDParam(c)
	if err != nil {
		return err
	}
	var body struct {
		DateTime string `json:"date_time"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	newAt, err := time.Parse(time.RFC3339, body.DateTime)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date_time must be RFC 3339")
	}
	appt, err := h.svc.Reschedule(c.Request().Context(), id, newAt.In(h.loc), h.clock())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := appointmentIDParam(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.Cancel(c.Request().Context(), id, h.clock())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	id, err := appointmentIDParam(c)
	if err != nil {
		return err
	}
	var body struct {
		NoShow bool `json:"no_show"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	appt, err := h.svc.Complete(c.Request().Context(), id, body.NoShow, h.clock())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

// -- Helpers --

func doctorIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	return id, nil
}

func appointmentIDParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) doctorDayParams(c echo.Context) (int64, time.Time, error) {
	id, err := doctorIDParam(c)
	if err != nil {
		return 0, time.Time{}, err
	}
	date, err := h.parseDate(c.Param("date"))
	if err != nil {
		return 0, time.Time{}, err
	}
	return id, date, nil
}

func (h *Handler) parseDate(raw string) (time.Time, error) {
	d, err := ParseDate(raw, h.loc)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	return d, nil
}

// mapError converts domain errors into HTTP errors.
func mapError(err error) error {
	var fe *FormatError
	switch {
	case IsNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrIneligibleReschedule):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrMissingPatientName),
		errors.Is(err, ErrInvalidRange), errors.As(err, &fe):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, keylock.ErrLockTimeout):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "resource busy, retry")
	default:
		// The cause stays on Internal for the access log, never in the body.
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
