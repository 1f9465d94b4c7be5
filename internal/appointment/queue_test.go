package appointment

import (
	"errors"
	"testing"
)

func queueAppointment(status AppointmentStatus, position *int) *Appointment {
	name := ShiftMorning
	return &Appointment{ShiftName: &name, Status: status, QueuePosition: position}
}

func TestPlanTransitionLegality(t *testing.T) {
	legal := map[AppointmentStatus][]QueueAction{
		StatusScheduled: {ActionMarkArrived, ActionCancel},
		StatusConfirmed: {ActionMarkAttended, ActionUndoArrived, ActionCancel},
		StatusCompleted: {ActionUndoAttended},
		StatusCancelled: nil,
	}

	for status, allowed := range legal {
		ok := make(map[QueueAction]bool)
		for _, a := range allowed {
			ok[a] = true
		}
		for _, action := range queueActions {
			_, err := planTransition(queueAppointment(status, nil), action)
			if ok[action] && err != nil {
				t.Errorf("%s from %s: unexpected error %v", action, status, err)
			}
			if !ok[action] && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s from %s: err = %v, want ErrInvalidTransition", action, status, err)
			}
		}
	}
}

func TestPlanTransitionEffects(t *testing.T) {
	tests := []struct {
		action   QueueAction
		to       AppointmentStatus
		position positionEffect
	}{
		{ActionMarkArrived, StatusConfirmed, positionAssign},
		{ActionMarkAttended, StatusCompleted, positionKeep},
		{ActionUndoArrived, StatusScheduled, positionClear},
		{ActionUndoAttended, StatusConfirmed, positionKeep},
		{ActionCancel, StatusCancelled, positionClear},
	}
	for _, tt := range tests {
		tr := transitions[tt.action]
		if tr.to != tt.to || tr.position != tt.position {
			t.Errorf("%s = {to %s, position %d}, want {to %s, position %d}", tt.action, tr.to, tr.position, tt.to, tt.position)
		}
	}
}

func TestQueueActionsRejectFixedSlot(t *testing.T) {
	slot := MustTimeOfDay("09:00")
	a := &Appointment{Time: &slot, Status: StatusScheduled}

	if _, err := planTransition(a, ActionMarkArrived); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("mark_arrived on fixed slot: err = %v", err)
	}
	if _, err := planTransition(a, ActionCancel); err != nil {
		t.Errorf("cancel on fixed slot: %v", err)
	}
}

func TestPlanTransitionUnknownAction(t *testing.T) {
	if _, err := planTransition(queueAppointment(StatusScheduled, nil), "teleport"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v", err)
	}
}

func TestNextQueuePosition(t *testing.T) {
	tests := []struct {
		held []int
		want int
	}{
		{nil, 1},
		{[]int{1, 2, 3}, 4},
		{[]int{2, 3}, 4},
		{[]int{1, 3}, 4},
	}
	for _, tt := range tests {
		if got := nextQueuePosition(tt.held); got != tt.want {
			t.Errorf("nextQueuePosition(%v) = %d, want %d", tt.held, got, tt.want)
		}
	}
}

func TestAllowedActions(t *testing.T) {
	one := 1
	got := AllowedActions(queueAppointment(StatusConfirmed, &one))
	want := []QueueAction{ActionMarkAttended, ActionUndoArrived, ActionCancel}
	if len(got) != len(want) {
		t.Fatalf("AllowedActions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("AllowedActions = %v, want %v", got, want)
		}
	}
}
