package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
)

const (
	TypeCalendarSync        = "appointment:calendar_sync"
	TypeBookingNotification = "appointment:notify_booked"
)

// BookedPayload carries the committed appointment record.
type BookedPayload struct {
	Appointment appointment.Appointment `json:"appointment"`
}

func NewCalendarSyncTask(a appointment.Appointment) (*asynq.Task, error) {
	return newBookedTask(TypeCalendarSync, a)
}

func NewBookingNotificationTask(a appointment.Appointment) (*asynq.Task, error) {
	return newBookedTask(TypeBookingNotification, a)
}

func newBookedTask(typename string, a appointment.Appointment) (*asynq.Task, error) {
	b, err := json.Marshal(BookedPayload{Appointment: a})
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typename, err)
	}
	return asynq.NewTask(typename, b), nil
}

func parseBookedPayload(t *asynq.Task) (appointment.Appointment, error) {
	var p BookedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return appointment.Appointment{}, fmt.Errorf("invalid %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return p.Appointment, nil
}
