package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/events"
)

// transitions is the full status graph. PENDING is only entered by booking;
// REJECTED and COMPLETED are terminal.
var transitions = map[Status][]Status{
	StatusPending:  {StatusAccepted, StatusRejected},
	StatusAccepted: {StatusCompleted, StatusRejected},
}

var transitionEvents = map[Status]events.Type{
	StatusAccepted:  events.AppointmentAccepted,
	StatusRejected:  events.AppointmentRejected,
	StatusCompleted: events.AppointmentCompleted,
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves an appointment from its current status to `to`. Only the
// owning doctor may do this. When expected is set it must equal the stored
// status. The write is conditional on the status read here, so of two racing
// doctor sessions only the first wins; the other gets ErrInvalidTransition.
//
// Capacity changes made after booking have no bearing on transitions.
func (s *Service) Transition(ctx context.Context, actor Actor, id uuid.UUID, to Status, expected *Status) (*Appointment, error) {
	if actor.Role != RoleDoctor {
		return nil, ErrUnauthorized
	}
	if _, ok := transitionEvents[to]; !ok {
		return nil, fmt.Errorf("%w: cannot move an appointment to %s", ErrInvalidTransition, to)
	}

	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, storageErr("get appointment", err)
	}
	if current.DoctorID != actor.UserID {
		return nil, ErrUnauthorized
	}

	from := current.Status
	if expected != nil && *expected != from {
		return nil, fmt.Errorf("%w: expected %s but appointment is %s", ErrInvalidTransition, *expected, from)
	}
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	apptID, patientID := current.ID, current.PatientID
	ev := s.newEvent(transitionEvents[to], current.DoctorID, &apptID, &patientID, map[string]any{
		"from":         from,
		"to":           to,
		"date":         current.Date.String(),
		"queue_number": current.QueueNumber,
	})

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, from, to, ev)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Row exists (read above) but its status moved under us.
			return nil, fmt.Errorf("%w: appointment is no longer %s", ErrInvalidTransition, from)
		}
		return nil, storageErr("update appointment status", err)
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("appointment status changed")
	return updated, nil
}

func (s *Service) Accept(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, actor, id, StatusAccepted, nil)
}

func (s *Service) Reject(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, actor, id, StatusRejected, nil)
}

func (s *Service) Complete(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.Transition(ctx, actor, id, StatusCompleted, nil)
}
