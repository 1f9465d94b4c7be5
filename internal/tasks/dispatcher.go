package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
)

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher turns committed bookings into queued side-effect tasks.
type Dispatcher struct {
	client       Enqueuer
	maxRetry     int
	syncCalendar bool
	logger       *zap.Logger
}

func NewDispatcher(client Enqueuer, maxRetry int, syncCalendar bool, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		client:       client,
		maxRetry:     maxRetry,
		syncCalendar: syncCalendar,
		logger:       logger,
	}
}

// AppointmentBooked enqueues the booking notification and, when enabled, the
// calendar sync. Task ids derive from the appointment id, so a repeated call does
// not queue duplicates.
func (d *Dispatcher) AppointmentBooked(ctx context.Context, a appointment.Appointment) error {
	var errs []error

	notify, err := NewBookingNotificationTask(a)
	if err != nil {
		return err
	}
	errs = append(errs, d.enqueue(ctx, notify, a))

	if d.syncCalendar {
		sync, err := NewCalendarSyncTask(a)
		if err != nil {
			return err
		}
		errs = append(errs, d.enqueue(ctx, sync, a))
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) enqueue(ctx context.Context, task *asynq.Task, a appointment.Appointment) error {
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.TaskID(fmt.Sprintf("%s:%s", task.Type(), a.ID)),
		asynq.MaxRetry(d.maxRetry),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}

	d.logger.Debug("side effect enqueued",
		zap.String("task_type", task.Type()),
		zap.String("task_id", info.ID),
		zap.String("appointment_id", a.ID.String()),
	)
	return nil
}
