package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/api"
	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logging"
)

// SimConfig drives a booking storm: many patients racing for the same few
// doctors, days and queue numbers, with doctors accepting and rejecting as
// bookings land.
type SimConfig struct {
	APIBaseURL   string        `env:"SIM_API_BASE_URL" envDefault:"http://localhost:8080"`
	Duration     time.Duration `env:"SIM_DURATION" envDefault:"30s"`
	Workers      int           `env:"SIM_WORKERS" envDefault:"20"`
	BookingRatio float64       `env:"SIM_BOOKING_RATIO" envDefault:"0.6"`
	ReviewRatio  float64       `env:"SIM_REVIEW_RATIO" envDefault:"0.2"`
	ReadRatio    float64       `env:"SIM_READ_RATIO" envDefault:"0.2"`
	Doctors      int           `env:"SIM_DOCTORS" envDefault:"5"`
	Days         int           `env:"SIM_DAYS" envDefault:"3"`
	PatientLimit int           `env:"SIM_PATIENT_LIMIT" envDefault:"2000"`
}

type doctorInfo struct {
	ID       uuid.UUID
	Capacity int
}

type DataPool struct {
	Patients []uuid.UUID
	Doctors  []doctorInfo

	mu           sync.RWMutex
	appointments []bookedAppointment
}

type bookedAppointment struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
}

func (dp *DataPool) AddAppointment(a bookedAppointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (bookedAppointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return bookedAppointment{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type Simulator struct {
	config  SimConfig
	base    config.Config
	pool    *DataPool
	client  *apiClient
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	base, err := config.Load()
	if err != nil {
		bootLogger := logging.New("simulate", "dev", "")
		bootLogger.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New("simulate", base.Env, base.Version)

	var cfg SimConfig
	if err := env.Parse(&cfg); err != nil {
		logger.Fatal().Err(err).Msg("parse simulator config")
	}
	if err := validateConfig(&cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("review", cfg.ReviewRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, base.PostgresDSN, base.DBMaxConns, base.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("patients", len(dataPool.Patients)).Int("doctors", len(dataPool.Doctors)).Msg("data loaded")

	sim := &Simulator{
		config: cfg,
		base:   base,
		pool:   dataPool,
		client: newAPIClient(cfg.APIBaseURL, base),
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()

	dupes, err := findDoubleBookings(context.Background(), pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("verify slot uniqueness")
	}
	if dupes > 0 {
		fmt.Printf("FAIL: %d slot(s) held by more than one active appointment\n", dupes)
		os.Exit(1)
	}
	fmt.Println("OK: every slot has at most one active appointment")
}

func validateConfig(cfg *SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Doctors <= 0 || cfg.Days <= 0 {
		return fmt.Errorf("SIM_DOCTORS and SIM_DAYS must be > 0")
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ReviewRatio + cfg.ReadRatio
	if total <= 0 {
		return fmt.Errorf("at least one operation ratio must be > 0")
	}
	cfg.BookingRatio /= total
	cfg.ReviewRatio /= total
	cfg.ReadRatio /= total
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()

	// A handful of open doctors keeps contention high.
	rows, err = pool.Query(ctx, `
		SELECT id, daily_capacity FROM doctors
		WHERE NOT clinic_closed
		ORDER BY created_at
		LIMIT $1
	`, cfg.Doctors)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for rows.Next() {
		var d doctorInfo
		if err := rows.Scan(&d.ID, &d.Capacity); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Doctors = append(dataPool.Doctors, d)
	}
	rows.Close()

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded; run clinicctl seed first")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no open doctors loaded; run clinicctl seed first")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.ReviewRatio:
				s.doReview(ctx, rng)
			default:
				s.doFreeSlots(ctx, rng)
			}
		}
	}
}

func (s *Simulator) bookingDate(rng *rand.Rand) appointment.Date {
	today := appointment.DateOf(time.Now(), s.base.Location())
	return appointment.Date{Time: today.AddDate(0, 0, 1+rng.Intn(s.config.Days))}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doc := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patient := appointment.Actor{
		UserID: s.pool.Patients[rng.Intn(len(s.pool.Patients))],
		Role:   appointment.RolePatient,
	}

	req := api.CreateAppointmentRequest{
		DoctorID:    doc.ID.String(),
		Date:        s.bookingDate(rng).String(),
		QueueNumber: 1 + rng.Intn(doc.Capacity),
	}

	start := time.Now()
	var created api.AppointmentResponse
	status, err := s.client.do(ctx, patient, http.MethodPost, "/appointments", req, &created)
	latency := time.Since(start)

	success := err == nil && status == http.StatusCreated
	if success {
		s.pool.AddAppointment(bookedAppointment{ID: created.ID, DoctorID: doc.ID})
	}
	s.metrics.Booking.Record(latency, success, status == http.StatusConflict)
}

// doReview has the owning doctor accept, reject or complete a random
// appointment. Conflicts here are stale-status races between sessions.
func (s *Simulator) doReview(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	doctor := appointment.Actor{UserID: appt.DoctorID, Role: appointment.RoleDoctor}
	action := []string{"accept", "reject", "complete"}[rng.Intn(3)]

	start := time.Now()
	status, err := s.client.do(ctx, doctor, http.MethodPost,
		fmt.Sprintf("/appointments/%s/%s", appt.ID, action), nil, nil)
	latency := time.Since(start)

	s.metrics.Review.Record(latency, err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doFreeSlots(ctx context.Context, rng *rand.Rand) {
	doc := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patient := appointment.Actor{
		UserID: s.pool.Patients[rng.Intn(len(s.pool.Patients))],
		Role:   appointment.RolePatient,
	}

	start := time.Now()
	status, err := s.client.do(ctx, patient, http.MethodGet,
		fmt.Sprintf("/doctors/%s/slots?date=%s", doc.ID, s.bookingDate(rng)), nil, nil)
	latency := time.Since(start)

	s.metrics.FreeSlots.Record(latency, err == nil && status == http.StatusOK, false)
}

// findDoubleBookings counts (doctor, date, queue) triples with more than one
// non-rejected appointment. Anything above zero is a correctness failure.
func findDoubleBookings(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT 1 FROM appointments
			WHERE status <> 'rejected'
			GROUP BY doctor_id, appointment_date, queue_number
			HAVING count(*) > 1
		) dupes
	`).Scan(&n)
	return n, err
}
