package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/clinic-scheduling-engine/internal/redis"
)

const sideEffectTimeout = 3 * time.Second

// BookingRequest carries exactly one of Time (fixed-slot professionals) or
// ShiftName (arrival-order professionals).
type BookingRequest struct {
	ProfessionalID uuid.UUID      `json:"professional_id"`
	Date           time.Time      `json:"date"`
	Time           *TimeOfDay     `json:"time,omitempty"`
	ShiftName      *ShiftName     `json:"shift_name,omitempty"`
	Patient        PatientContact `json:"patient"`
}

// CreateAppointment validates the request, re-checks the slot or shift against
// current constraints and commits the booking. The repository's insert is the
// authority on conflicts; the Redis lock only keeps concurrent requests for the same
// slot from racing through the checks.
func (s *Service) CreateAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	patient, err := ValidateContact(req.Patient)
	if err != nil {
		return nil, err
	}
	if req.ProfessionalID == uuid.Nil {
		return nil, validationErr("professional_id", "is required")
	}
	if req.Date.IsZero() {
		return nil, validationErr("date", "is required")
	}
	if (req.Time == nil) == (req.ShiftName == nil) {
		return nil, validationErr("time", "exactly one of time or shift_name must be set")
	}

	mode := ModeFixedSlot
	if req.ShiftName != nil {
		mode = ModeArrivalOrder
	}
	p, err := s.loadProfessional(ctx, req.ProfessionalID, mode)
	if err != nil {
		return nil, err
	}

	date := DateOf(req.Date)
	if !p.WorksOn(date) {
		return nil, ErrNonWorkingDay
	}

	appt := &Appointment{
		ID:             uuid.New(),
		ProfessionalID: p.ID,
		ClinicID:       p.ClinicID,
		Date:           date,
		Time:           req.Time,
		ShiftName:      req.ShiftName,
		Status:         StatusScheduled,
		Patient:        patient,
	}

	var created *Appointment
	switch mode {
	case ModeFixedSlot:
		created, err = s.bookFixedSlot(ctx, p, appt)
	default:
		created, err = s.bookShift(ctx, p, appt)
	}
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"professional_id": created.ProfessionalID.String(),
		"date":            FormatDate(created.Date),
	}
	if created.Time != nil {
		payload["time"] = created.Time.String()
	}
	if created.ShiftName != nil {
		payload["shift_name"] = string(*created.ShiftName)
	}
	s.logEvent(ctx, created.ID, EventAppointmentBooked, payload)

	s.logger.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("professional_id", created.ProfessionalID.String()),
		zap.String("mode", string(mode)),
	)

	s.dispatchSideEffects(ctx, *created)

	return created, nil
}

func (s *Service) bookFixedSlot(ctx context.Context, p *Professional, appt *Appointment) (*Appointment, error) {
	t := *appt.Time
	if !onGrid(*p, t, s.cfg.SlotStep) {
		return nil, validationErr("time", "is not a bookable slot boundary")
	}

	key := fmt.Sprintf("lock:slot:%s:%s:%s", p.ID, FormatDate(appt.Date), t)

	var created *Appointment
	err := s.withLock(ctx, key, func(ctx context.Context) error {
		constraints, _, err := s.slotConstraints(ctx, p, appt.Date)
		if err != nil {
			return err
		}
		day := ResolveSlots(*p, appt.Date, s.now(), s.loc, s.cfg.SlotStep, constraints)
		if !slotAvailable(day, t) {
			return ErrSlotUnavailable
		}

		created, err = s.repo.InsertFixedSlotAppointment(ctx, appt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) bookShift(ctx context.Context, p *Professional, appt *Appointment) (*Appointment, error) {
	name := *appt.ShiftName
	if !name.Valid() {
		return nil, validationErr("shift_name", "must be morning, afternoon or evening")
	}

	key := fmt.Sprintf("lock:shift:%s:%s:%s", p.ID, FormatDate(appt.Date), name)

	var created *Appointment
	err := s.withLock(ctx, key, func(ctx context.Context) error {
		shifts, err := s.repo.ListShifts(ctx, p.ID, appt.Date.Weekday())
		if err != nil {
			return fmt.Errorf("list shifts: %w", err)
		}
		booked, err := s.shiftCounts(ctx, p.ID, appt.Date)
		if err != nil {
			return err
		}

		day := ResolveShifts(*p, shifts, booked, appt.Date, s.now(), s.loc)
		var found *ShiftAvailability
		for i := range day.Shifts {
			if day.Shifts[i].Shift.Name == name {
				found = &day.Shifts[i]
				break
			}
		}
		switch {
		case found == nil:
			return ErrShiftNotFound
		case found.Closed:
			return ErrShiftClosed
		case found.Full:
			return ErrShiftFull
		}

		created, err = s.repo.InsertShiftAppointment(ctx, appt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func slotAvailable(day DayAvailability, t TimeOfDay) bool {
	for _, c := range day.Slots {
		if c.Time == t {
			return c.Available
		}
	}
	return false
}

func (s *Service) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithLock(ctx, key, fn)
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return ErrSlotBeingBooked
	case errors.Is(err, redisclient.ErrLockUnavailable):
		// the store still rejects conflicting writes
		s.logger.Warn("booking lock unavailable, continuing without it",
			zap.String("key", key),
			zap.Error(err),
		)
		return fn(ctx)
	}
	return err
}

// dispatchSideEffects hands the committed booking to the side-effect pipeline. A
// failure here is logged and never reported to the caller.
func (s *Service) dispatchSideEffects(ctx context.Context, a Appointment) {
	if s.effects == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := s.effects.AppointmentBooked(ctx, a); err != nil {
		s.logger.Error("failed to dispatch booking side effects",
			zap.String("appointment_id", a.ID.String()),
			zap.Error(err),
		)
	}
}
