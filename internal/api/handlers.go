package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

// AppointmentService is the slice of appointment.Service the HTTP layer uses.
type AppointmentService interface {
	Today() appointment.Date
	GetDoctor(ctx context.Context, id uuid.UUID) (*appointment.Doctor, error)
	ListDoctors(ctx context.Context, query string, includeClosed bool, limit, offset int) ([]appointment.Doctor, error)
	FreeSlots(ctx context.Context, doctorID uuid.UUID, date appointment.Date) ([]int, error)
	DoctorDay(ctx context.Context, actor appointment.Actor, doctorID uuid.UUID, date appointment.Date) (*appointment.DoctorDay, error)
	SetCapacity(ctx context.Context, actor appointment.Actor, doctorID uuid.UUID, settings appointment.DoctorSettings) (*appointment.Doctor, error)
	Book(ctx context.Context, actor appointment.Actor, req appointment.BookingRequest) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.AppointmentDetail, error)
	ListAppointments(ctx context.Context, actor appointment.Actor, f appointment.ListFilter) ([]appointment.AppointmentDetail, error)
	Transition(ctx context.Context, actor appointment.Actor, id uuid.UUID, to appointment.Status, expected *appointment.Status) (*appointment.Appointment, error)
}

type IdempotencyStore interface {
	Lookup(ctx context.Context, patientID uuid.UUID, key string) (uuid.UUID, bool, error)
	Remember(ctx context.Context, patientID uuid.UUID, key string, appointmentID uuid.UUID) error
}

const maxIdempotencyKeyLength = 128

type Handler struct {
	svc    AppointmentService
	idem   IdempotencyStore
	logger zerolog.Logger
}

func NewHandler(svc AppointmentService, idem IdempotencyStore, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, idem: idem, logger: logger}
}

func (h *Handler) listDoctors(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	includeClosed := false
	if v := r.URL.Query().Get("include_closed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "include_closed must be a boolean", false)
			return
		}
		includeClosed = b
	}

	doctors, err := h.svc.ListDoctors(r.Context(), r.URL.Query().Get("q"), includeClosed, limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	items := make([]DoctorResponse, 0, len(doctors))
	for i := range doctors {
		items = append(items, toDoctorResponse(&doctors[i]))
	}
	writeJSON(w, http.StatusOK, ListResponse[DoctorResponse]{Items: items, Limit: limit, Offset: offset})
}

func (h *Handler) getDoctor(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	d, err := h.svc.GetDoctor(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDoctorResponse(d))
}

func (h *Handler) doctorSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	date, ok := h.dateQuery(w, r)
	if !ok {
		return
	}

	free, err := h.svc.FreeSlots(r.Context(), id, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: id, Date: date, FreeSlots: free})
}

func (h *Handler) doctorDay(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	date, ok := h.dateQuery(w, r)
	if !ok {
		return
	}

	day, err := h.svc.DoctorDay(r.Context(), actor, id, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DoctorDayResponse{
		DoctorID:     day.DoctorID,
		Date:         day.Date,
		Capacity:     day.Capacity,
		ClinicClosed: day.ClinicClosed,
		FreeCount:    len(day.FreeSlots),
		FreeSlots:    day.FreeSlots,
		Appointments: toDetailResponses(day.Appointments),
	})
}

func (h *Handler) updateDoctorSettings(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req DoctorSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", false)
		return
	}
	if !actor.IsDoctor(id) {
		writeServiceError(w, appointment.ErrUnauthorized)
		return
	}

	settings := appointment.DoctorSettings{ClinicClosed: req.ClinicClosed}
	if req.DailyCapacity != nil {
		n, err := req.DailyCapacity.Int64()
		if err != nil || n != int64(int(n)) {
			writeServiceError(w, appointment.ErrInvalidCapacity)
			return
		}
		capacity := int(n)
		settings.DailyCapacity = &capacity
	}

	d, err := h.svc.SetCapacity(r.Context(), actor, id, settings)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDoctorResponse(d))
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)

	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			writeError(w, http.StatusBadRequest, "invalid_input", typeErr.Field+" must be "+typeErr.Type.String(), false)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", false)
		return
	}

	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "doctor_id must be a valid UUID", false)
		return
	}
	date, err := appointment.ParseDate(req.Date)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLength {
		writeError(w, http.StatusBadRequest, "invalid_input", "Idempotency-Key is too long", false)
		return
	}
	if key != "" && h.idem != nil && actor.Role == appointment.RolePatient {
		if prior, found := h.replay(r, actor, key); found {
			writeJSON(w, http.StatusOK, toDetailResponse(prior))
			return
		}
	}

	appt, err := h.svc.Book(r.Context(), actor, appointment.BookingRequest{
		PatientID:   actor.UserID,
		DoctorID:    doctorID,
		Date:        date,
		QueueNumber: req.QueueNumber,
		Notes:       req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if key != "" && h.idem != nil {
		if err := h.idem.Remember(r.Context(), actor.UserID, key, appt.ID); err != nil {
			h.logger.Warn().Err(err).
				Str("request_id", GetRequestID(r.Context())).
				Str("appointment_id", appt.ID.String()).
				Msg("could not store idempotency key")
		}
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// replay returns the appointment an earlier request with the same key
// created. Lookup failures fall through to a normal booking.
func (h *Handler) replay(r *http.Request, actor appointment.Actor, key string) (*appointment.AppointmentDetail, bool) {
	id, found, err := h.idem.Lookup(r.Context(), actor.UserID, key)
	if err != nil {
		h.logger.Warn().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("idempotency lookup failed")
		return nil, false
	}
	if !found {
		return nil, false
	}
	prior, err := h.svc.GetAppointment(r.Context(), actor, id)
	if err != nil {
		return nil, false
	}
	return prior, true
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}

	f := appointment.ListFilter{Limit: limit, Offset: offset}
	q := r.URL.Query()
	if v := q.Get("date"); v != "" {
		d, err := appointment.ParseDate(v)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		f.Date = &d
	}
	if v := q.Get("status"); v != "" {
		st, err := appointment.ParseStatus(v)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		f.Status = &st
	}

	list, err := h.svc.ListAppointments(r.Context(), actor, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{Items: toDetailResponses(list), Limit: limit, Offset: offset})
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	ad, err := h.svc.GetAppointment(r.Context(), actor, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailResponse(ad))
}

// transitionTo serves the accept, reject and complete shortcuts. The body is
// optional and may carry expected_status.
func (h *Handler) transitionTo(to appointment.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", false)
			return
		}
		h.transition(w, r, to, req.ExpectedStatus)
	}
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON", false)
		return
	}
	to, err := appointment.ParseStatus(req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.transition(w, r, to, req.ExpectedStatus)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, to appointment.Status, expectedRaw string) {
	actor := mustActor(r)
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var expected *appointment.Status
	if expectedRaw != "" {
		st, err := appointment.ParseStatus(expectedRaw)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		expected = &st
	}

	appt, err := h.svc.Transition(r.Context(), actor, id, to, expected)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// fail logs unexpected errors before mapping them.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, appointment.ErrStorage) || !isDomainError(err) {
		h.logger.Error().Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeServiceError(w, err)
}

func isDomainError(err error) bool {
	for _, known := range []error{
		appointment.ErrInvalidInput,
		appointment.ErrUnauthorized,
		appointment.ErrSlotTaken,
		appointment.ErrInvalidTransition,
		appointment.ErrClinicClosed,
		appointment.ErrCapacityExceeded,
		appointment.ErrDoctorNotFound,
		appointment.ErrPatientNotFound,
		appointment.ErrAppointmentNotFound,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

func mustActor(r *http.Request) appointment.Actor {
	actor, _ := ActorFromContext(r.Context())
	return actor
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", name+" must be a valid UUID", false)
		return uuid.Nil, false
	}
	return id, true
}

// dateQuery reads ?date=YYYY-MM-DD, defaulting to today in the clinic timezone.
func (h *Handler) dateQuery(w http.ResponseWriter, r *http.Request) (appointment.Date, bool) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return h.svc.Today(), true
	}
	d, err := appointment.ParseDate(v)
	if err != nil {
		writeServiceError(w, err)
		return appointment.Date{}, false
	}
	return d, true
}

func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	limit, offset = 20, 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "invalid_input", "limit must be between 1 and 100", false)
			return 0, 0, false
		}
		limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_input", "offset must be a non-negative integer", false)
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}
