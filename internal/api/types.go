package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

type CreateAppointmentRequest struct {
	DoctorID    string `json:"doctor_id"`
	Date        string `json:"date"`
	QueueNumber int    `json:"queue_number"`
	Notes       string `json:"notes"`
}

type TransitionRequest struct {
	Status         string `json:"status"`
	ExpectedStatus string `json:"expected_status,omitempty"`
}

// DoctorSettingsRequest leaves a field unchanged when it is omitted.
type DoctorSettingsRequest struct {
	DailyCapacity *json.Number `json:"daily_capacity"`
	ClinicClosed  *bool        `json:"clinic_closed"`
}

type DoctorResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Specialty     *string   `json:"specialty,omitempty"`
	LocationURL   *string   `json:"location_url,omitempty"`
	DailyCapacity int       `json:"daily_capacity"`
	ClinicClosed  bool      `json:"clinic_closed"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type AppointmentResponse struct {
	ID          uuid.UUID        `json:"id"`
	PatientID   uuid.UUID        `json:"patient_id"`
	DoctorID    uuid.UUID        `json:"doctor_id"`
	PatientName string           `json:"patient_name,omitempty"`
	DoctorName  string           `json:"doctor_name,omitempty"`
	Date        appointment.Date `json:"date"`
	QueueNumber int              `json:"queue_number"`
	Status      string           `json:"status"`
	Notes       string           `json:"notes,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type SlotsResponse struct {
	DoctorID  uuid.UUID        `json:"doctor_id"`
	Date      appointment.Date `json:"date"`
	FreeSlots []int            `json:"free_slots"`
}

type DoctorDayResponse struct {
	DoctorID     uuid.UUID             `json:"doctor_id"`
	Date         appointment.Date      `json:"date"`
	Capacity     int                   `json:"capacity"`
	ClinicClosed bool                  `json:"clinic_closed"`
	FreeCount    int                   `json:"free_count"`
	FreeSlots    []int                 `json:"free_slots"`
	Appointments []AppointmentResponse `json:"appointments"`
}

type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func toDoctorResponse(d *appointment.Doctor) DoctorResponse {
	return DoctorResponse{
		ID:            d.ID,
		Name:          d.Name,
		Specialty:     d.Specialty,
		LocationURL:   d.LocationURL,
		DailyCapacity: d.DailyCapacity,
		ClinicClosed:  d.ClinicClosed,
		UpdatedAt:     d.UpdatedAt,
	}
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		PatientID:   a.PatientID,
		DoctorID:    a.DoctorID,
		Date:        a.Date,
		QueueNumber: a.QueueNumber,
		Status:      string(a.Status),
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toDetailResponse(ad *appointment.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(&ad.Appointment)
	resp.PatientName = ad.PatientName
	resp.DoctorName = ad.DoctorName
	return resp
}

func toDetailResponses(list []appointment.AppointmentDetail) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toDetailResponse(&list[i]))
	}
	return out
}
