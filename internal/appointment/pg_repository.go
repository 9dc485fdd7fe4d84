package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/events"
)

const (
	pgUniqueViolation = "23505"
	activeSlotIndex   = "appointments_active_slot_uq"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const doctorColumns = `id, name, specialty, location_url, daily_capacity, clinic_closed, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.LocationURL,
		&d.DailyCapacity,
		&d.ClinicClosed,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

const appointmentColumns = `id, patient_id, doctor_id, appointment_date, queue_number, status, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date time.Time
	var status string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&date,
		&a.QueueNumber,
		&status,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = NewDate(date.Date())
	a.Status = Status(status)
	return &a, nil
}

const detailSelect = `
	SELECT a.id, a.patient_id, a.doctor_id, a.appointment_date, a.queue_number, a.status, a.notes,
	       a.created_at, a.updated_at, p.name, d.name
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id
`

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var ad AppointmentDetail
	var date time.Time
	var status string

	err := row.Scan(
		&ad.ID,
		&ad.PatientID,
		&ad.DoctorID,
		&date,
		&ad.QueueNumber,
		&status,
		&ad.Notes,
		&ad.CreatedAt,
		&ad.UpdatedAt,
		&ad.PatientName,
		&ad.DoctorName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	ad.Date = NewDate(date.Date())
	ad.Status = Status(status)
	return &ad, nil
}

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		ad, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ad)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func isActiveSlotConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgUniqueViolation &&
		pgErr.ConstraintName == activeSlotIndex
}

func insertEvent(ctx context.Context, tx pgx.Tx, ev events.Event) error {
	var payload []byte
	if len(ev.Payload) > 0 {
		payload = ev.Payload
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, doctor_id, patient_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`, string(ev.Type), ev.AppointmentID, ev.DoctorID, ev.PatientID, payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableStatus(s *Status) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func nullableDate(d *Date) *time.Time {
	if d == nil {
		return nil
	}
	return &d.Time
}

// escapeLike makes user input literal inside an ILIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Doctors

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context, query string, includeClosed bool, limit, offset int) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR specialty ILIKE '%' || $1 || '%')
		  AND ($2 OR NOT clinic_closed)
		ORDER BY name, id
		LIMIT $3 OFFSET $4
	`, escapeLike(strings.TrimSpace(query)), includeClosed, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) CreateDoctor(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, name, specialty, location_url, daily_capacity, clinic_closed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`, d.ID, d.Name, d.Specialty, d.LocationURL, d.DailyCapacity, d.ClinicClosed)
	return row.Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *PgRepository) UpdateDoctorSettings(ctx context.Context, id uuid.UUID, settings DoctorSettings, ev events.Event) (*Doctor, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE doctors
		SET daily_capacity = COALESCE($2, daily_capacity),
		    clinic_closed = COALESCE($3, clinic_closed),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+doctorColumns,
		id, settings.DailyCapacity, settings.ClinicClosed)

	d, err := scanDoctor(row)
	if err != nil {
		return nil, err
	}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Patients

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, created_at FROM patients WHERE id = $1`, id)
	return scanPatient(row)
}

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, created_at)
		VALUES ($1, $2, now())
		RETURNING created_at
	`, p.ID, p.Name)
	return row.Scan(&p.CreatedAt)
}

// Occupancy

func (r *PgRepository) TakenQueueNumbers(ctx context.Context, doctorID uuid.UUID, date Date) ([]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT queue_number
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status <> 'rejected'
		ORDER BY queue_number
	`, doctorID, date.Time)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var taken []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		taken = append(taken, n)
	}
	return taken, rows.Err()
}

func (r *PgRepository) IsSlotTaken(ctx context.Context, doctorID uuid.UUID, date Date, queueNumber int) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			  AND appointment_date = $2
			  AND queue_number = $3
			  AND status <> 'rejected'
		)
	`, doctorID, date.Time, queueNumber).Scan(&taken)
	return taken, err
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment, ev events.Event) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, queue_number, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.DoctorID, a.Date.Time, a.QueueNumber, string(a.Status), a.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		if isActiveSlotConflict(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, detailSelect+` WHERE a.id = $1`, id)
	return scanDetail(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, ev events.Event) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, string(to), string(from))

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter) ([]AppointmentDetail, error) {
	return r.listAppointments(ctx, "a.patient_id", patientID, f)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter) ([]AppointmentDetail, error) {
	return r.listAppointments(ctx, "a.doctor_id", doctorID, f)
}

// listAppointments orders newest day first, then by queue position.
func (r *PgRepository) listAppointments(ctx context.Context, ownerColumn string, ownerID uuid.UUID, f ListFilter) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, detailSelect+`
		WHERE `+ownerColumn+` = $1
		  AND ($2::date IS NULL OR a.appointment_date = $2)
		  AND ($3::text IS NULL OR a.status = $3)
		ORDER BY a.appointment_date DESC, a.queue_number ASC
		LIMIT $4 OFFSET $5
	`, ownerID, nullableDate(f.Date), nullableStatus(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	return collectDetails(rows)
}
