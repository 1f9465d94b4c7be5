package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
)

// SchedulingService is the part of *appointment.Service the HTTP layer uses.
type SchedulingService interface {
	ResolveAvailability(ctx context.Context, professionalID uuid.UUID, date time.Time) (*appointment.DayAvailability, error)
	ResolveShiftCapacity(ctx context.Context, professionalID uuid.UUID, date time.Time) (*appointment.DayShifts, error)

	CreateAppointment(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]appointment.Appointment, error)

	ListQueue(ctx context.Context, professionalID uuid.UUID, date time.Time, shift appointment.ShiftName) ([]appointment.QueueEntry, error)
	MarkArrived(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	MarkAttended(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	UndoArrived(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	UndoAttended(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)

	CreateBlockedTime(ctx context.Context, b appointment.BlockedTime) (*appointment.BlockedTime, error)
	DeleteBlockedTime(ctx context.Context, id uuid.UUID) error
	UpsertShift(ctx context.Context, s appointment.Shift) (*appointment.Shift, error)
}

type RouterConfig struct {
	Service        SchedulingService
	PostgresCheck  Check
	RedisCheck     Check
	Logger         *zap.Logger
	Env            string
	Version        string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.PostgresCheck, cfg.RedisCheck, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service
	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))

		r.Route("/professionals/{id}", func(r chi.Router) {
			r.Get("/availability", availabilityHandler(svc))
			r.Get("/shifts/availability", shiftAvailabilityHandler(svc))
			r.Put("/shifts", upsertShiftHandler(svc))
			r.Get("/appointments", listAppointmentsHandler(svc))
			r.Get("/queue", queueHandler(svc))
			r.Post("/blocked-times", createBlockedTimeHandler(svc))
		})
		r.Delete("/blocked-times/{id}", deleteBlockedTimeHandler(svc))

		r.Post("/appointments", createAppointmentHandler(svc))
		r.Route("/appointments/{id}", func(r chi.Router) {
			r.Get("/", getAppointmentHandler(svc))
			r.Post("/arrive", queueActionHandler(svc.MarkArrived))
			r.Post("/attend", queueActionHandler(svc.MarkAttended))
			r.Post("/undo-arrive", queueActionHandler(svc.UndoArrived))
			r.Post("/undo-attend", queueActionHandler(svc.UndoAttended))
			r.Post("/cancel", queueActionHandler(svc.CancelAppointment))
		})
	})

	return r
}
