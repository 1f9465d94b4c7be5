package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/calendar"
	"github.com/hackgods/clinic-scheduling-engine/internal/notification"
)

// ScheduleLookup is the read access the calendar sync needs. *appointment.PgRepository
// satisfies it.
type ScheduleLookup interface {
	GetProfessionalByID(ctx context.Context, id uuid.UUID) (*appointment.Professional, error)
	ListShifts(ctx context.Context, professionalID uuid.UUID, weekday time.Weekday) ([]appointment.Shift, error)
}

type CalendarSyncer interface {
	SyncEvent(ctx context.Context, calendarID string, ev calendar.Event) error
}

type Handlers struct {
	lookup   ScheduleLookup
	calendar CalendarSyncer
	notifier notification.Notifier
	loc      *time.Location
	logger   *zap.Logger
}

// NewHandlers builds the worker-side task handlers. cal may be nil, in which case
// calendar sync tasks are acknowledged without effect.
func NewHandlers(lookup ScheduleLookup, cal CalendarSyncer, notifier notification.Notifier, loc *time.Location, logger *zap.Logger) *Handlers {
	return &Handlers{
		lookup:   lookup,
		calendar: cal,
		notifier: notifier,
		loc:      loc,
		logger:   logger,
	}
}

func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeCalendarSync, h.HandleCalendarSync)
	mux.HandleFunc(TypeBookingNotification, h.HandleBookingNotification)
}

func (h *Handlers) HandleCalendarSync(ctx context.Context, t *asynq.Task) error {
	a, err := parseBookedPayload(t)
	if err != nil {
		return err
	}
	if h.calendar == nil {
		h.logger.Debug("calendar sync disabled, dropping task", zap.String("appointment_id", a.ID.String()))
		return nil
	}

	p, err := h.lookup.GetProfessionalByID(ctx, a.ProfessionalID)
	if err != nil {
		if errors.Is(err, appointment.ErrProfessionalNotFound) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("load professional: %w", err)
	}
	if p.ExternalCalendarID == nil || *p.ExternalCalendarID == "" {
		return nil
	}

	var shift *appointment.Shift
	if a.ShiftName != nil {
		shifts, err := h.lookup.ListShifts(ctx, p.ID, a.Date.Weekday())
		if err != nil {
			return fmt.Errorf("list shifts: %w", err)
		}
		for i := range shifts {
			if shifts[i].Name == *a.ShiftName {
				shift = &shifts[i]
				break
			}
		}
	}

	ev, err := calendar.EventFor(a, *p, shift, h.loc)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if err := h.calendar.SyncEvent(ctx, *p.ExternalCalendarID, ev); err != nil {
		h.logger.Warn("calendar sync failed",
			zap.String("appointment_id", a.ID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (h *Handlers) HandleBookingNotification(ctx context.Context, t *asynq.Task) error {
	a, err := parseBookedPayload(t)
	if err != nil {
		return err
	}

	if err := h.notifier.NotifyBooked(ctx, notification.NoticeFor(a)); err != nil {
		h.logger.Warn("booking notification failed",
			zap.String("appointment_id", a.ID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}
