package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/odontocloud/invoice-service/internal/invoice"
)

type RouterConfig struct {
	Service *invoice.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *logrus.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Invoice endpoints
	h := newInvoiceHandlers(cfg.Service)
	r.Route("/api/v1/invoices", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.getByID)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Get("/patient/{patientRG}", h.listByPatient)
		r.Get("/dentist/{dentistCRO}", h.listByDentist)
	})

	return r
}
