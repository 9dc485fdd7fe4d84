package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/events"
)

type RouterConfig struct {
	Service        AppointmentService
	Idempotency    IdempotencyStore
	Feed           events.Subscriber
	Checks         []Check
	Auth           AuthConfig
	CORSOrigins    []string
	RequestTimeout time.Duration
	Logger         zerolog.Logger
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(chimw.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID", "X-User-ID", "X-User-Role"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Health endpoints
	health := NewHealthHandler(cfg.Env, cfg.Version, cfg.Checks...)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := NewHandler(cfg.Service, cfg.Idempotency, cfg.Logger)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.Auth))

		if cfg.Feed != nil {
			r.Get("/ws", NewLiveFeed(cfg.Feed, cfg.CORSOrigins, cfg.Logger).ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			if cfg.RequestTimeout > 0 {
				r.Use(chimw.Timeout(cfg.RequestTimeout))
			}

			// Doctor endpoints
			r.Get("/doctors", h.listDoctors)
			r.Get("/doctors/{id}", h.getDoctor)
			r.Get("/doctors/{id}/slots", h.doctorSlots)
			r.Get("/doctors/{id}/day", h.doctorDay)
			r.Put("/doctors/{id}/settings", h.updateDoctorSettings)

			// Appointment endpoints
			r.Post("/appointments", h.createAppointment)
			r.Get("/appointments", h.listAppointments)
			r.Get("/appointments/{id}", h.getAppointment)
			r.Post("/appointments/{id}/accept", h.transitionTo(appointment.StatusAccepted))
			r.Post("/appointments/{id}/reject", h.transitionTo(appointment.StatusRejected))
			r.Post("/appointments/{id}/complete", h.transitionTo(appointment.StatusCompleted))
			r.Post("/appointments/{id}/status", h.updateStatus)
		})
	})

	return r
}
