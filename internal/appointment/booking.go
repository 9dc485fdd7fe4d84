package appointment

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/events"
)

type BookingRequest struct {
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	Date        Date
	QueueNumber int
	Notes       string
}

// Book reserves a queue slot for the calling patient and creates the
// appointment in PENDING.
//
// Checks run in order: doctor exists and is open, queue number within the
// doctor's current capacity, date not in the past, slot not occupied. The
// occupancy check is advisory; the insert itself is guarded by the
// active-slot unique index, so when two bookings for the same slot race past
// the check exactly one insert lands and the other gets ErrSlotTaken.
func (s *Service) Book(ctx context.Context, actor Actor, req BookingRequest) (*Appointment, error) {
	if !actor.IsPatient(req.PatientID) {
		return nil, ErrUnauthorized
	}
	if req.DoctorID == uuid.Nil {
		return nil, invalidInput("doctor_id is required")
	}
	if req.Date.IsZero() {
		return nil, invalidInput("date is required")
	}
	notes := strings.TrimSpace(req.Notes)
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return nil, invalidInput("notes must be at most %d characters", maxNotesLength)
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		return nil, storageErr("get patient", err)
	}

	doctor, err := s.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		return nil, storageErr("get doctor", err)
	}
	if doctor.ClinicClosed {
		return nil, ErrClinicClosed
	}
	if req.QueueNumber < 1 {
		return nil, invalidInput("queue_number must be at least 1")
	}
	if req.QueueNumber > doctor.DailyCapacity {
		return nil, ErrCapacityExceeded
	}
	if req.Date.Before(s.Today()) {
		return nil, invalidInput("cannot book a past date (%s)", req.Date)
	}

	taken, err := s.repo.IsSlotTaken(ctx, req.DoctorID, req.Date, req.QueueNumber)
	if err != nil {
		return nil, storageErr("check slot", err)
	}
	if taken {
		return nil, ErrSlotTaken
	}

	appt := &Appointment{
		ID:          uuid.New(),
		PatientID:   req.PatientID,
		DoctorID:    req.DoctorID,
		Date:        req.Date,
		QueueNumber: req.QueueNumber,
		Status:      StatusPending,
		Notes:       notes,
	}

	apptID, patientID := appt.ID, appt.PatientID
	ev := s.newEvent(events.AppointmentBooked, appt.DoctorID, &apptID, &patientID, map[string]any{
		"date":         appt.Date.String(),
		"queue_number": appt.QueueNumber,
	})

	created, err := s.repo.CreateAppointment(ctx, appt, ev)
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			s.logger.Debug().
				Str("doctor_id", req.DoctorID.String()).
				Str("date", req.Date.String()).
				Int("queue_number", req.QueueNumber).
				Msg("slot lost to concurrent booking")
		}
		return nil, storageErr("create appointment", err)
	}

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Str("date", created.Date.String()).
		Int("queue_number", created.QueueNumber).
		Msg("appointment booked")
	return created, nil
}
