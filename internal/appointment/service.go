package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling-engine/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventPatientArrived       = "PATIENT_ARRIVED"
	EventPatientAttended      = "PATIENT_ATTENDED"
	EventArrivalUndone        = "ARRIVAL_UNDONE"
	EventAttendanceUndone     = "ATTENDANCE_UNDONE"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

var (
	ErrSlotUnavailable      = errors.New("slot is no longer available")
	ErrShiftFull            = errors.New("shift has no remaining capacity")
	ErrShiftClosed          = errors.New("shift has already ended")
	ErrSlotBeingBooked      = errors.New("slot is currently being booked, please retry")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNonWorkingDay        = errors.New("professional does not work on this date")
	ErrModeMismatch         = errors.New("operation does not match the professional's scheduling mode")
	ErrProfessionalInactive = errors.New("professional is not active")
)

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	cfg     config.Config
	loc     *time.Location
	now     func() time.Time
	busy    BusySource
	effects SideEffects
	logger  *zap.Logger
}

type Option func(*Service)

// WithClock replaces the wall clock used for past-slot and closed-shift checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithBusySource(b BusySource) Option {
	return func(s *Service) { s.busy = b }
}

func WithSideEffects(e SideEffects) Option {
	return func(s *Service) { s.effects = e }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		loc:    cfg.Location,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.cfg.SlotStep <= 0 {
		s.cfg.SlotStep = 30 * time.Minute
	}
	if s.cfg.ExternalBusyTimeout <= 0 {
		s.cfg.ExternalBusyTimeout = 2 * time.Second
	}
	return s
}

// Location is the clinic time zone used to interpret dates and times of day.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) loadProfessional(ctx context.Context, id uuid.UUID, mode SchedulingMode) (*Professional, error) {
	p, err := s.repo.GetProfessionalByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProfessionalNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load professional: %w", err)
	}
	if !p.Active {
		return nil, ErrProfessionalInactive
	}
	if p.Mode != mode {
		return nil, fmt.Errorf("%w: professional uses %s", ErrModeMismatch, p.Mode)
	}
	return p, nil
}

func (s *Service) GetProfessional(ctx context.Context, id uuid.UUID) (*Professional, error) {
	return s.repo.GetProfessionalByID(ctx, id)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// ListAppointments returns the professional's non-cancelled appointments on date.
func (s *Service) ListAppointments(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Appointment, error) {
	appts, err := s.repo.ListAppointments(ctx, professionalID, DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

func (s *Service) CreateBlockedTime(ctx context.Context, b BlockedTime) (*BlockedTime, error) {
	if b.ProfessionalID == uuid.Nil {
		return nil, validationErr("professional_id", "is required")
	}
	if b.Date.IsZero() {
		return nil, validationErr("date", "is required")
	}
	if b.Start >= b.End {
		return nil, validationErr("end_time", "must be after start_time")
	}
	if _, err := s.repo.GetProfessionalByID(ctx, b.ProfessionalID); err != nil {
		return nil, fmt.Errorf("load professional: %w", err)
	}

	b.Date = DateOf(b.Date)
	created, err := s.repo.CreateBlockedTime(ctx, &b)
	if err != nil {
		return nil, fmt.Errorf("create blocked time: %w", err)
	}
	return created, nil
}

func (s *Service) DeleteBlockedTime(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteBlockedTime(ctx, id); err != nil {
		return fmt.Errorf("delete blocked time: %w", err)
	}
	return nil
}

// UpsertShift creates or replaces the professional's shift for (day_of_week, name).
func (s *Service) UpsertShift(ctx context.Context, sh Shift) (*Shift, error) {
	if sh.ProfessionalID == uuid.Nil {
		return nil, validationErr("professional_id", "is required")
	}
	if sh.DayOfWeek < time.Sunday || sh.DayOfWeek > time.Saturday {
		return nil, validationErr("day_of_week", "must be between 0 and 6")
	}
	if !sh.Name.Valid() {
		return nil, validationErr("shift_name", "must be morning, afternoon or evening")
	}
	if sh.Start >= sh.End {
		return nil, validationErr("end_time", "must be after start_time")
	}
	if sh.MaxSlots <= 0 {
		return nil, validationErr("max_slots", "must be positive")
	}

	p, err := s.repo.GetProfessionalByID(ctx, sh.ProfessionalID)
	if err != nil {
		return nil, fmt.Errorf("load professional: %w", err)
	}
	if p.Mode != ModeArrivalOrder {
		return nil, fmt.Errorf("%w: shifts apply to arrival-order professionals", ErrModeMismatch)
	}

	saved, err := s.repo.UpsertShift(ctx, &sh)
	if err != nil {
		return nil, fmt.Errorf("upsert shift: %w", err)
	}
	return saved, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}
