package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/booking/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// inLocation moves a DATE scanned as UTC midnight to midnight in loc.
func inLocation(d time.Time, loc *time.Location) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}

// =========== Hospital Repository ===========

type hospitalRepoPG struct{ pool *pgxpool.Pool }

func NewHospitalRepoPG(pool *pgxpool.Pool) HospitalRepository { return &hospitalRepoPG{pool: pool} }

func (r *hospitalRepoPG) GetByID(ctx context.Context, id int64) (*Hospital, error) {
	var h Hospital
	err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT id, name, address, contact FROM hospitals WHERE id = $1`, id).
		Scan(&h.ID, &h.Name, &h.Address, &h.Contact)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHospitalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hospital %d: %w", id, err)
	}
	return &h, nil
}

func (r *hospitalRepoPG) Upsert(ctx context.Context, h *Hospital) error {
	if h.ID == 0 {
		return connFor(ctx, r.pool).QueryRow(ctx, `
			INSERT INTO hospitals (name, address, contact) VALUES ($1, $2, $3) RETURNING id`,
			h.Name, h.Address, h.Contact).Scan(&h.ID)
	}
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO hospitals (id, name, address, contact) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address, contact = EXCLUDED.contact`,
		h.ID, h.Name, h.Address, h.Contact)
	return err
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

const doctorCols = `id, hospital_id, name, specialization, experience_years, working_hours`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.HospitalID, &d.Name, &d.Specialization, &d.ExperienceYears, &d.WorkingHours)
	return &d, err
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	d, err := scanDoctor(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor %d: %w", id, err)
	}
	return d, nil
}

func (r *doctorRepoPG) ListByHospital(ctx context.Context, hospitalID int64, limit, offset int) ([]*Doctor, int, error) {
	var total int
	if err := connFor(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM doctors WHERE $1 = 0 OR hospital_id = $1`, hospitalID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT `+doctorCols+` FROM doctors WHERE $1 = 0 OR hospital_id = $1
		ORDER BY id LIMIT $2 OFFSET $3`, hospitalID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *doctorRepoPG) Upsert(ctx context.Context, d *Doctor) error {
	if d.ID == 0 {
		return connFor(ctx, r.pool).QueryRow(ctx, `
			INSERT INTO doctors (hospital_id, name, specialization, experience_years, working_hours)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			d.HospitalID, d.Name, d.Specialization, d.ExperienceYears, d.WorkingHours).Scan(&d.ID)
	}
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO doctors (`+doctorCols+`) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET hospital_id = EXCLUDED.hospital_id, name = EXCLUDED.name,
			specialization = EXCLUDED.specialization, experience_years = EXCLUDED.experience_years,
			working_hours = EXCLUDED.working_hours`,
		d.ID, d.HospitalID, d.Name, d.Specialization, d.ExperienceYears, d.WorkingHours)
	return err
}

// =========== Override Store ===========

// PGOverrideStore keeps DayAvailability rows in day_availability. Each mutation
// is a single upsert, so callers only need the day lock for read-check-write
// sequences.
type PGOverrideStore struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

func NewPGOverrideStore(pool *pgxpool.Pool, loc *time.Location) *PGOverrideStore {
	if loc == nil {
		loc = time.UTC
	}
	return &PGOverrideStore{pool: pool, loc: loc}
}

const overrideCols = `doctor_id, date, status, occupied_slots`

func (s *PGOverrideStore) scan(row pgx.Row) (*DayAvailability, error) {
	var d DayAvailability
	var status string
	if err := row.Scan(&d.DoctorID, &d.Date, &status, &d.OccupiedSlots); err != nil {
		return nil, err
	}
	d.Status = DayStatus(status)
	d.Date = inLocation(d.Date, s.loc)
	if d.OccupiedSlots == nil {
		d.OccupiedSlots = []string{}
	}
	sortSlotLabels(d.OccupiedSlots)
	return &d, nil
}

func (s *PGOverrideStore) one(ctx context.Context, sql string, args ...interface{}) (*DayAvailability, error) {
	d, err := s.scan(connFor(ctx, s.pool).QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (s *PGOverrideStore) GetOverride(ctx context.Context, doctorID int64, date time.Time) (*DayAvailability, error) {
	return s.one(ctx, `SELECT `+overrideCols+` FROM day_availability WHERE doctor_id = $1 AND date = $2::date`,
		doctorID, date.Format(DateLayout))
}

func (s *PGOverrideStore) SetStatus(ctx context.Context, doctorID int64, date time.Time, status DayStatus) (*DayAvailability, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.one(ctx, `
		INSERT INTO day_availability (doctor_id, date, status, occupied_slots)
		VALUES ($1, $2::date, $3, '{}')
		ON CONFLICT (doctor_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			occupied_slots = CASE WHEN EXCLUDED.status = 'on_leave' THEN '{}'::text[]
				ELSE day_availability.occupied_slots END,
			updated_at = NOW()
		RETURNING `+overrideCols,
		doctorID, date.Format(DateLayout), string(status))
}

func (s *PGOverrideStore) AddOccupiedSlot(ctx context.Context, doctorID int64, date time.Time, slot string) (*DayAvailability, error) {
	return s.one(ctx, `
		INSERT INTO day_availability (doctor_id, date, status, occupied_slots)
		VALUES ($1, $2::date, 'available', ARRAY[$3::text])
		ON CONFLICT (doctor_id, date) DO UPDATE SET
			status = 'available',
			occupied_slots = CASE WHEN $3::text = ANY(day_availability.occupied_slots)
				THEN day_availability.occupied_slots
				ELSE array_append(day_availability.occupied_slots, $3::text) END,
			updated_at = NOW()
		RETURNING `+overrideCols,
		doctorID, date.Format(DateLayout), slot)
}

func (s *PGOverrideStore) RemoveOccupiedSlot(ctx context.Context, doctorID int64, date time.Time, slot string) (*DayAvailability, error) {
	return s.one(ctx, `
		UPDATE day_availability SET occupied_slots = array_remove(occupied_slots, $3::text), updated_at = NOW()
		WHERE doctor_id = $1 AND date = $2::date
		RETURNING `+overrideCols,
		doctorID, date.Format(DateLayout), slot)
}

func (s *PGOverrideStore) ListOverrides(ctx context.Context, doctorID int64, from, to time.Time) ([]*DayAvailability, error) {
	rows, err := connFor(ctx, s.pool).Query(ctx, `
		SELECT `+overrideCols+` FROM day_availability
		WHERE doctor_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date`,
		doctorID, from.Format(DateLayout), to.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()
	var out []*DayAvailability
	for rows.Next() {
		d, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

func NewAppointmentRepoPG(pool *pgxpool.Pool, loc *time.Location) AppointmentRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &appointmentRepoPG{pool: pool, loc: loc}
}

const apptCols = `id, doctor_id, patient_name, scheduled_at, booked_at, status, no_show, updated_at`

func (r *appointmentRepoPG) scan(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientName, &a.ScheduledAt, &a.BookedAt, &status, &a.NoShow, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = AppointmentStatus(status)
	a.ScheduledAt = a.ScheduledAt.In(r.loc)
	a.BookedAt = a.BookedAt.In(r.loc)
	a.UpdatedAt = a.UpdatedAt.In(r.loc)
	return &a, nil
}

func (r *appointmentRepoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Appointment, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()
	var out []*Appointment
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := connFor(ctx, r.pool).Exec(ctx, `
		INSERT INTO appointments (`+apptCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.DoctorID, a.PatientName, a.ScheduledAt, a.BookedAt, string(a.Status), a.NoShow, a.UpdatedAt)
	return slotConflict(err, a)
}

const (
	uniqueViolation    = "23505"
	liveSlotConstraint = "uq_appointments_doctor_slot"
)

// slotConflict turns a hit on the one-live-appointment-per-slot index into
// ErrSlotUnavailable.
func slotConflict(err error, a *Appointment) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == liveSlotConstraint {
		return fmt.Errorf("%w: doctor %d already has an appointment at %s",
			ErrSlotUnavailable, a.DoctorID, a.ScheduledAt.Format(time.RFC3339))
	}
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scan(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	return a, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE appointments SET scheduled_at = $2, status = $3, no_show = $4, updated_at = $5
		WHERE id = $1`,
		a.ID, a.ScheduledAt, string(a.Status), a.NoShow, a.UpdatedAt)
	if err != nil {
		return slotConflict(err, a)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID int64) ([]*Appointment, error) {
	return r.list(ctx, `SELECT `+apptCols+` FROM appointments WHERE doctor_id = $1 ORDER BY scheduled_at`, doctorID)
}

func (r *appointmentRepoPG) ListScheduledBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	return r.list(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE status = 'scheduled' AND scheduled_at >= $1 AND scheduled_at < $2
		ORDER BY scheduled_at`, from, to)
}
