package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepository is an in-memory Repository. A single mutex stands in for the
// transactions and advisory locks of PgRepository.
type memRepository struct {
	mu            sync.Mutex
	professionals map[uuid.UUID]Professional
	appointments  map[uuid.UUID]Appointment
	blocked       map[uuid.UUID]BlockedTime
	shifts        map[uuid.UUID]Shift
	events        []EventLog
	seq           int
}

func newMemRepository() *memRepository {
	return &memRepository{
		professionals: make(map[uuid.UUID]Professional),
		appointments:  make(map[uuid.UUID]Appointment),
		blocked:       make(map[uuid.UUID]BlockedTime),
		shifts:        make(map[uuid.UUID]Shift),
	}
}

func (m *memRepository) addProfessional(p Professional) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.professionals[p.ID] = p
}

func (m *memRepository) addShift(s Shift) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.shifts[s.ID] = s
}

func (m *memRepository) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (m *memRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appointments)
}

func (m *memRepository) GetProfessionalByID(_ context.Context, id uuid.UUID) (*Professional, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.professionals[id]
	if !ok {
		return nil, ErrProfessionalNotFound
	}
	return &p, nil
}

func (m *memRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memRepository) ListAppointments(_ context.Context, professionalID uuid.UUID, date time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.ProfessionalID == professionalID && a.Date.Equal(DateOf(date)) && a.Status != StatusCancelled {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepository) ListBlockedTimes(_ context.Context, professionalID uuid.UUID, date time.Time) ([]BlockedTime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BlockedTime
	for _, b := range m.blocked {
		if b.ProfessionalID == professionalID && b.Date.Equal(DateOf(date)) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memRepository) ListShifts(_ context.Context, professionalID uuid.UUID, weekday time.Weekday) ([]Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Shift
	for _, s := range m.shifts {
		if s.ProfessionalID == professionalID && s.DayOfWeek == weekday {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memRepository) stamp(a *Appointment) {
	m.seq++
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	// strictly increasing so booking order is observable
	a.CreatedAt = time.Date(2025, 1, 1, 0, 0, m.seq, 0, time.UTC)
	a.UpdatedAt = a.CreatedAt
	a.Status = StatusScheduled
	a.QueuePosition = nil
}

func (m *memRepository) InsertFixedSlotAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.appointments {
		if existing.ProfessionalID == a.ProfessionalID && existing.Date.Equal(a.Date) &&
			existing.Status != StatusCancelled && existing.Time != nil && *existing.Time == *a.Time {
			return nil, ErrSlotUnavailable
		}
	}
	created := *a
	m.stamp(&created)
	m.appointments[created.ID] = created
	return &created, nil
}

func (m *memRepository) InsertShiftAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var shift *Shift
	for _, s := range m.shifts {
		if s.ProfessionalID == a.ProfessionalID && s.DayOfWeek == a.Date.Weekday() && s.Name == *a.ShiftName {
			s := s
			shift = &s
		}
	}
	if shift == nil {
		return nil, ErrShiftNotFound
	}

	booked := 0
	for _, existing := range m.appointments {
		if existing.ProfessionalID == a.ProfessionalID && existing.Date.Equal(a.Date) &&
			existing.Status != StatusCancelled && existing.ShiftName != nil && *existing.ShiftName == *a.ShiftName {
			booked++
		}
	}
	if booked >= shift.MaxSlots {
		return nil, ErrShiftFull
	}

	created := *a
	m.stamp(&created)
	m.appointments[created.ID] = created
	return &created, nil
}

func (m *memRepository) ApplyQueueAction(_ context.Context, id uuid.UUID, action QueueAction) (*Appointment, AppointmentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, "", ErrAppointmentNotFound
	}
	t, err := planTransition(&a, action)
	if err != nil {
		return nil, "", err
	}

	switch t.position {
	case positionAssign:
		var held []int
		for _, other := range m.appointments {
			if other.ProfessionalID == a.ProfessionalID && other.Date.Equal(a.Date) &&
				other.ShiftName != nil && *other.ShiftName == *a.ShiftName && other.QueuePosition != nil {
				held = append(held, *other.QueuePosition)
			}
		}
		next := nextQueuePosition(held)
		a.QueuePosition = &next
	case positionClear:
		a.QueuePosition = nil
	}
	from := a.Status
	a.Status = t.to
	m.appointments[id] = a
	return &a, from, nil
}

func (m *memRepository) CreateBlockedTime(_ context.Context, b *BlockedTime) (*BlockedTime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := *b
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	m.blocked[created.ID] = created
	return &created, nil
}

func (m *memRepository) DeleteBlockedTime(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocked[id]; !ok {
		return ErrBlockedTimeNotFound
	}
	delete(m.blocked, id)
	return nil
}

func (m *memRepository) UpsertShift(_ context.Context, s *Shift) (*Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.shifts {
		if existing.ProfessionalID == s.ProfessionalID && existing.DayOfWeek == s.DayOfWeek && existing.Name == s.Name {
			existing.Start, existing.End, existing.MaxSlots = s.Start, s.End, s.MaxSlots
			m.shifts[id] = existing
			return &existing, nil
		}
	}
	created := *s
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	m.shifts[created.ID] = created
	return &created, nil
}

func (m *memRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}
