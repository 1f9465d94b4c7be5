package appointment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type QueueAction string

const (
	ActionMarkArrived  QueueAction = "mark_arrived"
	ActionMarkAttended QueueAction = "mark_attended"
	ActionUndoArrived  QueueAction = "undo_arrived"
	ActionUndoAttended QueueAction = "undo_attended"
	ActionCancel       QueueAction = "cancel"
)

type positionEffect int

const (
	positionKeep positionEffect = iota
	positionAssign
	positionClear
)

type transition struct {
	from      []AppointmentStatus
	to        AppointmentStatus
	position  positionEffect
	queueOnly bool
	event     string
}

// transitions is the single source of truth for appointment status changes.
var transitions = map[QueueAction]transition{
	ActionMarkArrived: {
		from: []AppointmentStatus{StatusScheduled}, to: StatusConfirmed,
		position: positionAssign, queueOnly: true, event: EventPatientArrived,
	},
	ActionMarkAttended: {
		from: []AppointmentStatus{StatusConfirmed}, to: StatusCompleted,
		position: positionKeep, queueOnly: true, event: EventPatientAttended,
	},
	ActionUndoArrived: {
		from: []AppointmentStatus{StatusConfirmed}, to: StatusScheduled,
		position: positionClear, queueOnly: true, event: EventArrivalUndone,
	},
	ActionUndoAttended: {
		from: []AppointmentStatus{StatusCompleted}, to: StatusConfirmed,
		position: positionKeep, queueOnly: true, event: EventAttendanceUndone,
	},
	ActionCancel: {
		from: []AppointmentStatus{StatusScheduled, StatusConfirmed}, to: StatusCancelled,
		position: positionClear, event: EventAppointmentCancelled,
	},
}

// queueActions is the display order for AllowedActions.
var queueActions = []QueueAction{ActionMarkArrived, ActionMarkAttended, ActionUndoArrived, ActionUndoAttended, ActionCancel}

// planTransition returns the transition action would perform on a, or
// ErrInvalidTransition when the action is not legal from a's current state.
func planTransition(a *Appointment, action QueueAction) (transition, error) {
	t, ok := transitions[action]
	if !ok {
		return transition{}, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
	if t.queueOnly && !a.ArrivalOrder() {
		return transition{}, fmt.Errorf("%w: %s applies to arrival-order appointments only", ErrInvalidTransition, action)
	}
	for _, from := range t.from {
		if a.Status == from {
			return t, nil
		}
	}
	return transition{}, fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, action, a.Status)
}

// nextQueuePosition is one past the highest position held in the shift. With a
// contiguous sequence this equals the number of confirmed or completed entries plus
// one; after an undo leaves a gap it still never reuses a held position.
func nextQueuePosition(held []int) int {
	highest := 0
	for _, p := range held {
		if p > highest {
			highest = p
		}
	}
	return highest + 1
}

// AllowedActions lists the actions legal for a in its current state.
func AllowedActions(a *Appointment) []QueueAction {
	var out []QueueAction
	for _, action := range queueActions {
		if _, err := planTransition(a, action); err == nil {
			out = append(out, action)
		}
	}
	return out
}

// QueueEntry is one row of the front-desk queue view.
type QueueEntry struct {
	Appointment
	AllowedActions []QueueAction `json:"allowed_actions"`
}

func (s *Service) MarkArrived(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.applyQueueAction(ctx, id, ActionMarkArrived)
}

func (s *Service) MarkAttended(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.applyQueueAction(ctx, id, ActionMarkAttended)
}

func (s *Service) UndoArrived(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.applyQueueAction(ctx, id, ActionUndoArrived)
}

func (s *Service) UndoAttended(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.applyQueueAction(ctx, id, ActionUndoAttended)
}

// CancelAppointment cancels a scheduled or confirmed appointment of either mode.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.applyQueueAction(ctx, id, ActionCancel)
}

func (s *Service) applyQueueAction(ctx context.Context, id uuid.UUID, action QueueAction) (*Appointment, error) {
	updated, from, err := s.repo.ApplyQueueAction(ctx, id, action)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}

	payload := map[string]any{
		"action":      string(action),
		"from_status": string(from),
		"to_status":   string(updated.Status),
	}
	if updated.QueuePosition != nil {
		payload["queue_position"] = *updated.QueuePosition
	}
	s.logEvent(ctx, updated.ID, transitions[action].event, payload)

	s.logger.Info("queue transition applied",
		zap.String("appointment_id", updated.ID.String()),
		zap.String("action", string(action)),
		zap.String("status", string(updated.Status)),
	)

	return updated, nil
}

// ListQueue returns the shift's non-cancelled appointments ordered by queue position,
// with unplaced (scheduled) entries last in booking order.
func (s *Service) ListQueue(ctx context.Context, professionalID uuid.UUID, date time.Time, shift ShiftName) ([]QueueEntry, error) {
	if !shift.Valid() {
		return nil, validationErr("shift_name", "must be morning, afternoon or evening")
	}
	if _, err := s.loadProfessional(ctx, professionalID, ModeArrivalOrder); err != nil {
		return nil, err
	}

	appts, err := s.repo.ListAppointments(ctx, professionalID, DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	entries := make([]QueueEntry, 0, len(appts))
	for i := range appts {
		a := appts[i]
		if a.ShiftName == nil || *a.ShiftName != shift {
			continue
		}
		entries = append(entries, QueueEntry{Appointment: a, AllowedActions: AllowedActions(&a)})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].QueuePosition, entries[j].QueuePosition
		switch {
		case pi != nil && pj != nil:
			return *pi < *pj
		case pi != nil:
			return true
		case pj != nil:
			return false
		default:
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
	})

	return entries, nil
}
