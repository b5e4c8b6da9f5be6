package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemed-scheduling/internal/session"
)

type RouterConfig struct {
	Appointments AppointmentService
	Doctors      DoctorService
	Gate         *session.Gate
	Postgres     Pinger
	Redis        *redis.Client
	Gatherer     prometheus.Gatherer // nil uses the default registry
	Logger       zerolog.Logger
	Now          func() time.Time
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Gate == nil {
		cfg.Gate = session.NewGate(nil, nil)
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	doctors := &doctorHandlers{svc: cfg.Doctors, logger: cfg.Logger}
	r.Route("/doctors/{id}", func(r chi.Router) {
		r.Get("/availability", doctors.availability)
		r.Put("/availability/{day}", doctors.putWindow)
		r.Delete("/availability/{day}", doctors.deleteWindow)
		r.Get("/slots", doctors.slots)
	})

	appts := &appointmentHandlers{svc: cfg.Appointments, gate: cfg.Gate, now: cfg.Now, logger: cfg.Logger}
	r.Post("/appointments", appts.create)
	r.Get("/appointments", appts.list)
	r.Route("/appointments/{id}", func(r chi.Router) {
		r.Get("/", appts.get)
		r.Post("/approve", appts.approve)
		r.Post("/reject", appts.reject)
		r.Post("/cancel", appts.cancel)
		r.Post("/join", appts.join)
	})

	return r
}
