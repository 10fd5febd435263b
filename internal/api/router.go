package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/openhaus/realty-api/internal/appointment"
	"github.com/openhaus/realty-api/internal/auth"
	"github.com/openhaus/realty-api/internal/notification"
)

type RouterConfig struct {
	Service       *appointment.Service
	Notifications *notification.PgRepository
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	JWTSecret     string
	Env           string
	Version       string
	Logger        *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(auth.Middleware(cfg.JWTSecret))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Appointment endpoints
	r.Post("/appointments", createAppointmentHandler(cfg.Service, cfg.Logger))
	r.Get("/appointments", requireAuth(listAppointmentsHandler(cfg.Service, cfg.Logger)))
	r.Get("/appointments/stats", requireStaff(statsHandler(cfg.Service, cfg.Logger)))
	r.Get("/appointments/{id}", requireAuth(getAppointmentHandler(cfg.Service, cfg.Logger)))
	r.Post("/appointments/{id}/cancel", requireAuth(cancelAppointmentHandler(cfg.Service, cfg.Logger)))
	r.Put("/appointments/{id}", requireStaff(updateAppointmentHandler(cfg.Service, cfg.Logger)))

	// Notification endpoints
	r.Get("/notifications", requireAuth(listNotificationsHandler(cfg.Notifications, cfg.Logger)))
	r.Post("/notifications/{id}/read", requireAuth(markNotificationReadHandler(cfg.Notifications, cfg.Logger)))

	return r
}
