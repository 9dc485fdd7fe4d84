// Package events carries committed booking, status and settings changes from
// the event_logs outbox to subscribers (live-refresh sessions and the
// notification broker).
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	AppointmentBooked     Type = "APPOINTMENT_BOOKED"
	AppointmentAccepted   Type = "APPOINTMENT_ACCEPTED"
	AppointmentRejected   Type = "APPOINTMENT_REJECTED"
	AppointmentCompleted  Type = "APPOINTMENT_COMPLETED"
	DoctorSettingsChanged Type = "DOCTOR_SETTINGS_CHANGED"
)

type Event struct {
	ID            int64           `json:"id"`
	Type          Type            `json:"type"`
	AppointmentID *uuid.UUID      `json:"appointment_id,omitempty"`
	DoctorID      uuid.UUID       `json:"doctor_id"`
	PatientID     *uuid.UUID      `json:"patient_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RoutingKey maps APPOINTMENT_BOOKED to appointment.booked.
func (e Event) RoutingKey() string {
	entity, action, ok := strings.Cut(string(e.Type), "_")
	if !ok {
		return strings.ToLower(string(e.Type))
	}
	return strings.ToLower(entity) + "." + strings.ToLower(action)
}

func DoctorChannel(id uuid.UUID) string  { return "clinic:doctor:" + id.String() }
func PatientChannel(id uuid.UUID) string { return "clinic:patient:" + id.String() }

// SlotsChannel carries occupancy changes for one doctor. Anyone browsing that
// doctor's free slots may watch it.
func SlotsChannel(doctorID uuid.UUID) string { return "clinic:slots:" + doctorID.String() }

// Channels lists every pub/sub channel an event is delivered on.
func (e Event) Channels() []string {
	ch := []string{DoctorChannel(e.DoctorID), SlotsChannel(e.DoctorID)}
	if e.PatientID != nil {
		ch = append(ch, PatientChannel(*e.PatientID))
	}
	return ch
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Fanout publishes to every publisher and joins the failures.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stream is one live subscription to the change feed.
type Stream interface {
	Events() <-chan Event
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (Stream, error)
}
