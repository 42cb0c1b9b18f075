package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicdesk/scheduler/internal/schedule"
)

type RouterConfig struct {
	Scheduler *schedule.Scheduler
	Logger    *zap.Logger
	PgPool    *pgxpool.Pool // nil in memory mode
	Redis     *redis.Client // nil with in-process locking
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Scheduler))
		r.Get("/", listAppointmentsHandler(cfg.Scheduler))
		r.Get("/{id}", getAppointmentHandler(cfg.Scheduler))
		r.Put("/{id}", updateAppointmentHandler(cfg.Scheduler))
		r.Delete("/{id}", deleteAppointmentHandler(cfg.Scheduler))
	})

	r.Get("/schedule/calendar", calendarHandler(cfg.Scheduler))
	r.Get("/schedule/upcoming", upcomingHandler(cfg.Scheduler))

	return r
}
