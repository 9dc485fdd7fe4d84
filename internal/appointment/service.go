package appointment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/events"
)

const maxNotesLength = 1000

type Service struct {
	repo        Repository
	maxCapacity int
	loc         *time.Location
	now         func() time.Time
	logger      zerolog.Logger
}

func NewService(repo Repository, cfg config.Config, logger zerolog.Logger) *Service {
	maxCapacity := cfg.MaxCapacity
	if maxCapacity <= 0 {
		maxCapacity = 100
	}
	return &Service{
		repo:        repo,
		maxCapacity: maxCapacity,
		loc:         cfg.Location(),
		now:         time.Now,
		logger:      logger.With().Str("component", "appointment").Logger(),
	}
}

// Today is the current calendar day in the clinic timezone.
func (s *Service) Today() Date {
	return DateOf(s.now(), s.loc)
}

func (s *Service) newEvent(typ events.Type, doctorID uuid.UUID, appointmentID, patientID *uuid.UUID, payload map[string]any) events.Event {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(typ)).Msg("marshal event payload")
		data = nil
	}
	return events.Event{
		Type:          typ,
		AppointmentID: appointmentID,
		DoctorID:      doctorID,
		PatientID:     patientID,
		Payload:       data,
		CreatedAt:     s.now(),
	}
}

// GetDoctor returns a doctor profile.
func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetDoctorByID(ctx, id)
	if err != nil {
		return nil, storageErr("get doctor", err)
	}
	return d, nil
}

// ListDoctors searches by name or specialty. Closed clinics are hidden unless
// includeClosed is set.
func (s *Service) ListDoctors(ctx context.Context, query string, includeClosed bool, limit, offset int) ([]Doctor, error) {
	f := ListFilter{Limit: limit, Offset: offset}.normalized()
	doctors, err := s.repo.ListDoctors(ctx, query, includeClosed, f.Limit, f.Offset)
	if err != nil {
		return nil, storageErr("list doctors", err)
	}
	return doctors, nil
}

// GetAppointment is visible to the owning patient and the owning doctor only.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*AppointmentDetail, error) {
	ad, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, storageErr("get appointment", err)
	}
	if !actor.IsPatient(ad.PatientID) && !actor.IsDoctor(ad.DoctorID) {
		return nil, ErrUnauthorized
	}
	return ad, nil
}

// ListAppointments returns the caller's own appointments, newest day first.
func (s *Service) ListAppointments(ctx context.Context, actor Actor, f ListFilter) ([]AppointmentDetail, error) {
	f = f.normalized()

	var (
		list []AppointmentDetail
		err  error
	)
	switch actor.Role {
	case RolePatient:
		list, err = s.repo.ListAppointmentsByPatient(ctx, actor.UserID, f)
	case RoleDoctor:
		list, err = s.repo.ListAppointmentsByDoctor(ctx, actor.UserID, f)
	default:
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, storageErr("list appointments", err)
	}
	return list, nil
}

// DoctorDay is the owning doctor's queue sheet for one date: occupying
// appointments in queue order plus the slots still free.
func (s *Service) DoctorDay(ctx context.Context, actor Actor, doctorID uuid.UUID, date Date) (*DoctorDay, error) {
	if !actor.IsDoctor(doctorID) {
		return nil, ErrUnauthorized
	}
	if date.IsZero() {
		return nil, invalidInput("date is required")
	}

	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, storageErr("get doctor", err)
	}

	all, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID, ListFilter{Date: &date, Limit: 1000})
	if err != nil {
		return nil, storageErr("list day", err)
	}

	day := &DoctorDay{
		DoctorID:     doctorID,
		Date:         date,
		Capacity:     doctor.DailyCapacity,
		ClinicClosed: doctor.ClinicClosed,
		Appointments: []AppointmentDetail{},
	}
	var taken []int
	for _, ad := range all {
		if !ad.Status.Occupies() {
			continue
		}
		day.Appointments = append(day.Appointments, ad)
		taken = append(taken, ad.QueueNumber)
	}
	sortByQueue(day.Appointments)
	day.FreeSlots = freeSlots(doctor, taken)
	return day, nil
}
