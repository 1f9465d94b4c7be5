package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SlotCandidate is one stepping boundary of a fixed-slot professional's day.
type SlotCandidate struct {
	Time      TimeOfDay `json:"time"`
	Available bool      `json:"available"`
}

// DayAvailability is the resolver's answer for one professional and date. When
// NonWorkingDay is set, Slots is empty and callers should say so rather than show a
// fully booked day. ExternalBusyKnown is false when the external calendar could not
// be consulted and its constraints were ignored.
type DayAvailability struct {
	ProfessionalID    uuid.UUID       `json:"professional_id"`
	Date              string          `json:"date"`
	NonWorkingDay     bool            `json:"non_working_day"`
	ExternalBusyKnown bool            `json:"external_busy_known"`
	Slots             []SlotCandidate `json:"slots"`
}

// SlotConstraints are the constraint sources for one professional and date.
type SlotConstraints struct {
	Booked  []TimeOfDay
	Blocked []Interval
	Busy    []Interval
}

// ResolveSlots computes the stepping boundaries of p's working window on date and
// marks each one available or not. now is the current instant; boundaries at or before
// it are unavailable when date is today in loc, and every boundary is unavailable when
// date has already passed. Boundaries are evaluated independently.
func ResolveSlots(p Professional, date, now time.Time, loc *time.Location, step time.Duration, c SlotConstraints) DayAvailability {
	date = DateOf(date)
	out := DayAvailability{
		ProfessionalID:    p.ID,
		Date:              FormatDate(date),
		ExternalBusyKnown: true,
		Slots:             []SlotCandidate{},
	}

	if !p.WorksOn(date) {
		out.NonWorkingDay = true
		return out
	}

	stepMinutes := int(step / time.Minute)
	if stepMinutes <= 0 {
		stepMinutes = 30
	}

	booked := make(map[TimeOfDay]bool, len(c.Booked))
	for _, t := range c.Booked {
		booked[t] = true
	}

	localNow := now.In(loc)
	today := DateOf(localNow)
	pastDay := date.Before(today)
	isToday := date.Equal(today)

	for t := p.WorkStart; t < p.WorkEnd; t += TimeOfDay(stepMinutes) {
		available := true
		switch {
		case pastDay:
			available = false
		case isToday && !t.On(date, loc).After(localNow):
			available = false
		case booked[t]:
			available = false
		case anyContains(c.Blocked, t):
			available = false
		case anyContains(c.Busy, t):
			available = false
		}
		out.Slots = append(out.Slots, SlotCandidate{Time: t, Available: available})
	}

	return out
}

func anyContains(intervals []Interval, t TimeOfDay) bool {
	for _, iv := range intervals {
		if iv.Contains(t) {
			return true
		}
	}
	return false
}

// onGrid reports whether t is one of the stepping boundaries of p's working window.
func onGrid(p Professional, t TimeOfDay, step time.Duration) bool {
	stepMinutes := int(step / time.Minute)
	if stepMinutes <= 0 || t < p.WorkStart || t >= p.WorkEnd {
		return false
	}
	return int(t-p.WorkStart)%stepMinutes == 0
}

// ResolveAvailability answers the fixed-slot availability question for one day. The
// result is a point-in-time snapshot; CreateAppointment re-validates on commit.
func (s *Service) ResolveAvailability(ctx context.Context, professionalID uuid.UUID, date time.Time) (*DayAvailability, error) {
	p, err := s.loadProfessional(ctx, professionalID, ModeFixedSlot)
	if err != nil {
		return nil, err
	}

	date = DateOf(date)
	if !p.WorksOn(date) {
		day := ResolveSlots(*p, date, s.now(), s.loc, s.cfg.SlotStep, SlotConstraints{})
		return &day, nil
	}

	constraints, busyKnown, err := s.slotConstraints(ctx, p, date)
	if err != nil {
		return nil, err
	}

	day := ResolveSlots(*p, date, s.now(), s.loc, s.cfg.SlotStep, constraints)
	day.ExternalBusyKnown = busyKnown
	return &day, nil
}

func (s *Service) slotConstraints(ctx context.Context, p *Professional, date time.Time) (SlotConstraints, bool, error) {
	var c SlotConstraints

	appts, err := s.repo.ListAppointments(ctx, p.ID, date)
	if err != nil {
		return c, false, fmt.Errorf("list appointments: %w", err)
	}
	for _, a := range appts {
		if a.Status != StatusCancelled && a.Time != nil {
			c.Booked = append(c.Booked, *a.Time)
		}
	}

	blocks, err := s.repo.ListBlockedTimes(ctx, p.ID, date)
	if err != nil {
		return c, false, fmt.Errorf("list blocked times: %w", err)
	}
	for _, b := range blocks {
		c.Blocked = append(c.Blocked, b.Interval())
	}

	busy, known := s.externalBusy(ctx, p, date)
	c.Busy = busy
	return c, known, nil
}

// externalBusy consults the external calendar with a bounded timeout. Any failure
// degrades to "no external constraints known", reported through the second result.
func (s *Service) externalBusy(ctx context.Context, p *Professional, date time.Time) ([]Interval, bool) {
	if s.busy == nil || p.ExternalCalendarID == nil || *p.ExternalCalendarID == "" {
		return nil, true
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.ExternalBusyTimeout)
	defer cancel()

	ranges, err := s.busy.FetchBusy(fetchCtx, *p, date)
	if err != nil {
		s.logger.Warn("external busy feed unavailable, resolving without it",
			zap.String("professional_id", p.ID.String()),
			zap.String("date", FormatDate(date)),
			zap.Error(err),
		)
		return nil, false
	}

	return ClipToDay(ranges, date, s.loc), true
}
