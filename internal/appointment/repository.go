package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProfessionalNotFound = errors.New("professional not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrShiftNotFound        = errors.New("shift not found")
	ErrBlockedTimeNotFound  = errors.New("blocked time not found")
)

// Repository contains all DB interactions needed by the service.
//
// The two insert methods and ApplyQueueAction are the write paths that guard the
// booking and queue invariants; implementations must perform their check and write
// atomically.
type Repository interface {
	GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Constraint sources. ListAppointments excludes cancelled rows.
	ListAppointments(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Appointment, error)
	ListBlockedTimes(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]BlockedTime, error)
	ListShifts(ctx context.Context, professionalID uuid.UUID, weekday time.Weekday) ([]Shift, error)

	// Booking commits. InsertFixedSlotAppointment returns ErrSlotUnavailable when a
	// non-cancelled appointment already holds the time; InsertShiftAppointment returns
	// ErrShiftFull when the shift's capacity is exhausted.
	InsertFixedSlotAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	InsertShiftAppointment(ctx context.Context, a *Appointment) (*Appointment, error)

	// ApplyQueueAction locks the appointment, validates the transition and writes the
	// new status and queue position in one transaction. It also returns the status the
	// appointment had under that lock.
	ApplyQueueAction(ctx context.Context, id uuid.UUID, action QueueAction) (*Appointment, AppointmentStatus, error)

	// Staff-maintained constraint data
	CreateBlockedTime(ctx context.Context, b *BlockedTime) (*BlockedTime, error)
	DeleteBlockedTime(ctx context.Context, id uuid.UUID) error
	UpsertShift(ctx context.Context, s *Shift) (*Shift, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// BusySource is the external calendar busy-time feed. It is best-effort: callers
// apply a timeout and fall back to "no external constraints" on error.
type BusySource interface {
	FetchBusy(ctx context.Context, p Professional, date time.Time) ([]TimeRange, error)
}

// SideEffects receives committed bookings for downstream calendar sync and patient
// notification. Failures never roll back the booking.
type SideEffects interface {
	AppointmentBooked(ctx context.Context, a Appointment) error
}
