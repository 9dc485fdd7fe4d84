package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// ParseStatus accepts any letter case ("ACCEPTED", "accepted").
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusAccepted, StatusRejected, StatusCompleted:
		return st, nil
	}
	return "", invalidInput("unknown status %q", s)
}

// Occupies reports whether an appointment in this status holds its queue slot.
func (s Status) Occupies() bool {
	return s != StatusRejected
}

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RolePatient, RoleDoctor:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrUnauthorized, s)
}

// Actor is the authenticated caller as supplied by the identity layer.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

func (a Actor) IsDoctor(id uuid.UUID) bool  { return a.Role == RoleDoctor && a.UserID == id }
func (a Actor) IsPatient(id uuid.UUID) bool { return a.Role == RolePatient && a.UserID == id }

type Doctor struct {
	ID            uuid.UUID
	Name          string
	Specialty     *string
	LocationURL   *string
	DailyCapacity int
	ClinicClosed  bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DoctorSettings is a partial settings update; nil fields keep their stored
// value.
type DoctorSettings struct {
	DailyCapacity *int
	ClinicClosed  *bool
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	Date        Date
	QueueNumber int
	Status      Status
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type AppointmentDetail struct {
	Appointment
	PatientName string
	DoctorName  string
}

type ListFilter struct {
	Date   *Date
	Status *Status
	Limit  int
	Offset int
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// DoctorDay is one doctor's queue for a single date.
type DoctorDay struct {
	DoctorID     uuid.UUID
	Date         Date
	Capacity     int
	ClinicClosed bool
	Appointments []AppointmentDetail
	FreeSlots    []int
}
