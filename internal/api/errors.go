package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string, retryable bool) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details, Retryable: retryable})
}

// writeServiceError maps core errors onto HTTP. Only slot conflicts are worth
// retrying, with a different queue number.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrInvalidCapacity):
		writeError(w, http.StatusBadRequest, "invalid_capacity", err.Error(), false)
	case errors.Is(err, appointment.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), false)
	case errors.Is(err, appointment.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized", err.Error(), false)
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error(), false)
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error(), false)
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error(), false)
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error(), true)
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error(), false)
	case errors.Is(err, appointment.ErrClinicClosed):
		writeError(w, http.StatusConflict, "clinic_closed", err.Error(), false)
	case errors.Is(err, appointment.ErrCapacityExceeded):
		writeError(w, http.StatusUnprocessableEntity, "capacity_exceeded", err.Error(), false)
	case errors.Is(err, appointment.ErrStorage):
		writeError(w, http.StatusServiceUnavailable, "storage_error", "storage temporarily unavailable", true)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", false)
	}
}
