// Package sandbox loads reproducible demo data for development environments:
// two hospitals, their doctors, a few day overrides, and optionally a spread
// of synthetic bookings made through the regular booking path.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medbook/booking/internal/domain/scheduling"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the synthetic bookings made after the reference data is
// loaded. The reference data itself is fixed.
type SeedConfig struct {
	AppointmentsPerDoctor int   `json:"appointmentsPerDoctor"`
	Days                  int   `json:"days"`
	Seed                  int64 `json:"seed"`
}

// DefaultSeedConfig books three appointments per doctor over the coming week.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		AppointmentsPerDoctor: 3,
		Days:                  7,
	}
}

// ---------------------------------------------------------------------------
// Reference data
// ---------------------------------------------------------------------------

// Hospitals is the demo hospital directory.
var Hospitals = []scheduling.Hospital{
	{ID: 1, Name: "City General Hospital", Address: "123 Health St, City, State, 12345", Contact: "555-123-4567"},
	{ID: 2, Name: "Community Health Center", Address: "456 Oak Ave, Town, State, 67890", Contact: "555-987-6543"},
}

// Doctors is the demo doctor directory.
var Doctors = []scheduling.Doctor{
	{ID: 101, HospitalID: 1, Name: "Dr. John Smith", Specialization: "Cardiologist", ExperienceYears: 10, WorkingHours: "9:00 AM - 5:00 PM"},
	{ID: 102, HospitalID: 1, Name: "Dr. Emily White", Specialization: "Neurologist", ExperienceYears: 8, WorkingHours: "10:00 AM - 6:00 PM"},
	{ID: 201, HospitalID: 2, Name: "Dr. Robert Green", Specialization: "Pediatrician", ExperienceYears: 12, WorkingHours: "8:00 AM - 4:00 PM"},
}

// Override is one demo per-date override.
type Override struct {
	DoctorID      int64
	Date          string
	Status        scheduling.DayStatus
	OccupiedSlots []string
}

// Overrides is the demo override set.
var Overrides = []Override{
	{DoctorID: 101, Date: "2025-07-05", Status: scheduling.DayAvailable, OccupiedSlots: []string{"10:00 AM", "11:00 AM", "2:00 PM"}},
	{DoctorID: 101, Date: "2025-07-06", Status: scheduling.DayOnLeave},
	{DoctorID: 101, Date: "2025-07-07", Status: scheduling.DayAvailable, OccupiedSlots: []string{"9:00 AM", "10:00 AM", "11:00 AM", "1:00 PM", "2:00 PM", "3:00 PM", "4:00 PM"}},
	{DoctorID: 102, Date: "2025-07-05", Status: scheduling.DayAvailable, OccupiedSlots: []string{"10:00 AM", "11:00 AM", "1:00 PM", "2:00 PM"}},
	{DoctorID: 102, Date: "2025-07-06", Status: scheduling.DayAvailable, OccupiedSlots: []string{"10:00 AM", "11:00 AM", "1:00 PM", "2:00 PM", "3:00 PM", "4:00 PM", "5:00 PM"}},
	{DoctorID: 201, Date: "2025-07-05", Status: scheduling.DayAvailable, OccupiedSlots: []string{"8:00 AM", "9:00 AM", "10:00 AM", "11:00 AM", "1:00 PM", "2:00 PM", "3:00 PM"}},
	{DoctorID: 201, Date: "2025-07-06", Status: scheduling.DayAvailable, OccupiedSlots: []string{"8:00 AM", "9:00 AM", "10:00 AM", "11:00 AM", "1:00 PM", "2:00 PM", "3:00 PM"}},
}

var (
	firstNames = []string{
		"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael",
		"Linda", "David", "Elizabeth", "Priya", "Wei", "Fatima", "Carlos",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
		"Davis", "Martinez", "Patel", "Nguyen", "Kim", "Okafor", "Silva",
	}
)

// ---------------------------------------------------------------------------
// SeedResult
// ---------------------------------------------------------------------------

// SeedResult summarizes the output of a seed operation.
type SeedResult struct {
	Hospitals    int           `json:"hospitals"`
	Doctors      int           `json:"doctors"`
	Overrides    int           `json:"overrides"`
	Appointments int           `json:"appointments"`
	Skipped      int           `json:"skipped"`
	Duration     time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator picks patient names and slots deterministically.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// PatientName returns a random "First Last" name.
func (g *DataGenerator) PatientName() string {
	return g.pick(firstNames) + " " + g.pick(lastNames)
}

// PickSlot returns a random available slot of the view, or false if none.
func (g *DataGenerator) PickSlot(view scheduling.DayView) (string, bool) {
	if view.Status != scheduling.ViewAvailable {
		return "", false
	}
	var open []string
	for _, s := range view.Slots {
		if s.Available {
			open = append(open, s.Label)
		}
	}
	if len(open) == 0 {
		return "", false
	}
	return g.pick(open), true
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Booker is the part of the scheduling service the seeder books through.
type Booker interface {
	ResolveDay(ctx context.Context, doctorID int64, date time.Time) (scheduling.DayView, error)
	Book(ctx context.Context, req scheduling.BookRequest, now time.Time) (*scheduling.Appointment, error)
}

// TxFunc runs fn inside a transaction. Memory storage passes fn through.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// NoTx runs fn directly.
func NoTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// Seeder writes the demo data into the configured stores.
type Seeder struct {
	hospitals scheduling.HospitalRepository
	doctors   scheduling.DoctorRepository
	overrides scheduling.OverrideStore
	booker    Booker
	inTx      TxFunc
	loc       *time.Location
	logger    zerolog.Logger
}

func NewSeeder(hospitals scheduling.HospitalRepository, doctors scheduling.DoctorRepository,
	overrides scheduling.OverrideStore, booker Booker, inTx TxFunc, loc *time.Location, logger zerolog.Logger) *Seeder {
	if inTx == nil {
		inTx = NoTx
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Seeder{
		hospitals: hospitals,
		doctors:   doctors,
		overrides: overrides,
		booker:    booker,
		inTx:      inTx,
		loc:       loc,
		logger:    logger,
	}
}

// Seed loads the reference data in one transaction, then books synthetic
// appointments on the days after now. Re-running is safe for the reference
// data; each run adds new bookings.
func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig, now time.Time) (*SeedResult, error) {
	start := time.Now()
	result := &SeedResult{}

	err := s.inTx(ctx, func(ctx context.Context) error {
		for i := range Hospitals {
			h := Hospitals[i]
			if err := s.hospitals.Upsert(ctx, &h); err != nil {
				return fmt.Errorf("seed hospital %d: %w", h.ID, err)
			}
			result.Hospitals++
		}
		for i := range Doctors {
			d := Doctors[i]
			if err := s.doctors.Upsert(ctx, &d); err != nil {
				return fmt.Errorf("seed doctor %d: %w", d.ID, err)
			}
			result.Doctors++
		}
		for _, o := range Overrides {
			if err := s.applyOverride(ctx, o); err != nil {
				return fmt.Errorf("seed override %d/%s: %w", o.DoctorID, o.Date, err)
			}
			result.Overrides++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.booker != nil && cfg.AppointmentsPerDoctor > 0 {
		if err := s.bookSynthetic(ctx, cfg, now, result); err != nil {
			return nil, err
		}
	}

	result.Duration = time.Since(start)
	s.logger.Info().
		Int("hospitals", result.Hospitals).
		Int("doctors", result.Doctors).
		Int("overrides", result.Overrides).
		Int("appointments", result.Appointments).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("demo data seeded")
	return result, nil
}

func (s *Seeder) applyOverride(ctx context.Context, o Override) error {
	date, err := scheduling.ParseDate(o.Date, s.loc)
	if err != nil {
		return err
	}
	for _, slot := range o.OccupiedSlots {
		if _, err := s.overrides.AddOccupiedSlot(ctx, o.DoctorID, date, slot); err != nil {
			return err
		}
	}
	// Status last: going on leave clears occupied slots.
	_, err = s.overrides.SetStatus(ctx, o.DoctorID, date, o.Status)
	return err
}

func (s *Seeder) bookSynthetic(ctx context.Context, cfg SeedConfig, now time.Time, result *SeedResult) error {
	days := cfg.Days
	if days <= 0 {
		days = DefaultSeedConfig().Days
	}
	gen := NewDataGenerator(cfg.Seed)
	today := scheduling.DateOf(now.In(s.loc))

	for _, d := range Doctors {
		for i := 0; i < cfg.AppointmentsPerDoctor; i++ {
			date := today.AddDate(0, 0, 1+gen.rng.Intn(days))
			view, err := s.booker.ResolveDay(ctx, d.ID, date)
			if err != nil {
				return fmt.Errorf("resolve doctor %d on %s: %w", d.ID, date.Format(scheduling.DateLayout), err)
			}
			slot, ok := gen.PickSlot(view)
			if !ok {
				result.Skipped++
				continue
			}
			_, err = s.booker.Book(ctx, scheduling.BookRequest{
				DoctorID:    d.ID,
				Date:        date,
				Slot:        slot,
				PatientName: gen.PatientName(),
			}, now)
			if errors.Is(err, scheduling.ErrSlotUnavailable) {
				result.Skipped++
				continue
			}
			if err != nil {
				return fmt.Errorf("book doctor %d: %w", d.ID, err)
			}
			result.Appointments++
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// SeedHandler exposes seeding over HTTP for development environments.
type SeedHandler struct {
	seeder *Seeder
	now    func() time.Time
	mu     sync.Mutex
	last   *SeedResult
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder, now: time.Now}
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/seed", h.handleSeed)
	g.GET("/seed", h.handleLastResult)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg := DefaultSeedConfig()
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if cfg.AppointmentsPerDoctor < 0 || cfg.Days < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "appointmentsPerDoctor and days must not be negative")
	}

	result, err := h.seeder.Seed(c.Request().Context(), cfg, h.now())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.last = result
	return c.JSON(http.StatusOK, result)
}

func (h *SeedHandler) handleLastResult(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.last == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no seed run yet")
	}
	return c.JSON(http.StatusOK, h.last)
}
