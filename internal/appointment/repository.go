package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/events"
)

// Repository contains all DB interactions needed by the service. Every
// mutating method persists its event in the same transaction as the change.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context, query string, includeClosed bool, limit, offset int) ([]Doctor, error)
	CreateDoctor(ctx context.Context, d *Doctor) error
	// UpdateDoctorSettings applies only the non-nil fields and returns
	// ErrDoctorNotFound when no row matched.
	UpdateDoctorSettings(ctx context.Context, id uuid.UUID, settings DoctorSettings, ev events.Event) (*Doctor, error)

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	CreatePatient(ctx context.Context, p *Patient) error

	// Occupancy reads consider non-rejected appointments only.
	TakenQueueNumbers(ctx context.Context, doctorID uuid.UUID, date Date) ([]int, error)
	IsSlotTaken(ctx context.Context, doctorID uuid.UUID, date Date, queueNumber int) (bool, error)

	// CreateAppointment returns ErrSlotTaken when the active-slot uniqueness
	// constraint rejects the insert.
	CreateAppointment(ctx context.Context, a *Appointment, ev events.Event) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	// UpdateAppointmentStatus only applies when the stored status equals from;
	// otherwise it returns ErrAppointmentNotFound and changes nothing.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, ev events.Event) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter) ([]AppointmentDetail, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter) ([]AppointmentDetail, error)
}
