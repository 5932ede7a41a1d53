package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/carebridge/reservation-engine/internal/metrics"
	"github.com/carebridge/reservation-engine/internal/reservation"
	"github.com/carebridge/reservation-engine/internal/schedule"
)

type RouterConfig struct {
	Schedule     *schedule.Service
	Arbiter      *reservation.Arbiter
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	HoldTTL      time.Duration
	SlotDuration time.Duration
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	validate := validator.New()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Schedule store + availability projection
	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		r.Get("/slots", listSlotsHandler(cfg.Schedule, cfg.SlotDuration))
		r.Post("/windows", createWindowHandler(cfg.Schedule, validate))
		r.Get("/windows", listWindowsHandler(cfg.Schedule))
		r.Delete("/windows/{windowID}", deactivateWindowHandler(cfg.Schedule))
		r.Post("/exceptions", createExceptionHandler(cfg.Schedule, validate))
		r.Get("/exceptions", listExceptionsHandler(cfg.Schedule))
	})

	// Reservation ledger
	r.Post("/reservations", reserveHandler(cfg.Arbiter, cfg.HoldTTL, cfg.SlotDuration, validate))
	r.Post("/reservations/{id}/confirm", confirmHandler(cfg.Arbiter))
	r.Post("/reservations/{id}/release", releaseHandler(cfg.Arbiter, validate))
	r.Post("/reservations/{id}/decision", decisionHandler(cfg.Arbiter))
	r.Post("/reservations/{id}/outcome", outcomeHandler(cfg.Arbiter, validate))
	r.Post("/reservations/{id}/meeting-url", meetingURLHandler(cfg.Arbiter, validate))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Arbiter))
	r.Get("/appointments", listAppointmentsHandler(cfg.Arbiter))

	return r
}
