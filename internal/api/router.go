package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vetdesk/clinic-scheduling/internal/booking"
	"github.com/vetdesk/clinic-scheduling/internal/clinical"
	"github.com/vetdesk/clinic-scheduling/internal/registry"
)

type RouterConfig struct {
	Bookings  *booking.Service
	Clinical  *clinical.Service
	Resources registry.Store
	Logger    zerolog.Logger

	// PgPool and Redis back the readiness probe; when nil (tests), the
	// health endpoints are not mounted.
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	if cfg.PgPool != nil && cfg.Redis != nil {
		health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
		r.Get("/health/live", health.Liveness)
		r.Get("/health/ready", health.Readiness)
	}

	r.Post("/bookings", createBookingHandler(cfg.Bookings))
	r.Get("/bookings", listBookingsHandler(cfg.Bookings))
	r.Get("/bookings/next", nextBookingHandler(cfg.Bookings))
	r.Get("/bookings/{id}", getBookingHandler(cfg.Bookings))
	r.Delete("/bookings/{id}", cancelBookingHandler(cfg.Bookings))
	r.Patch("/bookings/{id}/status", transitionBookingHandler(cfg.Bookings))
	r.Patch("/bookings/{id}/slot", rescheduleBookingHandler(cfg.Bookings))

	r.Put("/medical-records", putMedicalRecordHandler(cfg.Clinical))
	r.Get("/medical-records/patient/{patientID}", patientHistoryHandler(cfg.Clinical))

	r.Post("/invoices", createInvoiceHandler(cfg.Clinical))
	r.Get("/invoices/{appointmentID}", getInvoiceHandler(cfg.Clinical))
	r.Post("/invoices/{appointmentID}/pay", payInvoiceHandler(cfg.Clinical))

	r.Post("/resources", createResourceHandler(cfg.Resources))
	r.Get("/resources", listResourcesHandler(cfg.Resources))
	r.Post("/resources/{id}/retire", retireResourceHandler(cfg.Resources))

	return r
}
