package appointment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ShiftAvailability reports one shift's remaining seats. Closed and Full are
// separate conditions: a closed shift has ended (or its day has passed) whatever its
// capacity, a full one has no seats left.
type ShiftAvailability struct {
	Shift          Shift `json:"shift"`
	AvailableCount int   `json:"available_count"`
	TotalCount     int   `json:"total_count"`
	Bookable       bool  `json:"bookable"`
	Closed         bool  `json:"closed"`
	Full           bool  `json:"full"`
}

type DayShifts struct {
	ProfessionalID uuid.UUID           `json:"professional_id"`
	Date           string              `json:"date"`
	NonWorkingDay  bool                `json:"non_working_day"`
	Shifts         []ShiftAvailability `json:"shifts"`
}

// ResolveShifts computes per-shift capacity for date. booked maps shift name to the
// count of non-cancelled appointments already in it.
func ResolveShifts(p Professional, shifts []Shift, booked map[ShiftName]int, date, now time.Time, loc *time.Location) DayShifts {
	date = DateOf(date)
	out := DayShifts{
		ProfessionalID: p.ID,
		Date:           FormatDate(date),
		Shifts:         []ShiftAvailability{},
	}

	if !p.WorksOn(date) {
		out.NonWorkingDay = true
		return out
	}

	localNow := now.In(loc)
	today := DateOf(localNow)

	for _, sh := range shifts {
		if sh.DayOfWeek != date.Weekday() {
			continue
		}

		available := sh.MaxSlots - booked[sh.Name]
		if available < 0 {
			available = 0
		}
		closed := date.Before(today) || (date.Equal(today) && !localNow.Before(sh.End.On(date, loc)))

		out.Shifts = append(out.Shifts, ShiftAvailability{
			Shift:          sh,
			AvailableCount: available,
			TotalCount:     sh.MaxSlots,
			Bookable:       available > 0 && !closed,
			Closed:         closed,
			Full:           available == 0,
		})
	}

	sort.Slice(out.Shifts, func(i, j int) bool {
		return out.Shifts[i].Shift.Start < out.Shifts[j].Shift.Start
	})

	return out
}

// ResolveShiftCapacity answers the arrival-order availability question for one day.
func (s *Service) ResolveShiftCapacity(ctx context.Context, professionalID uuid.UUID, date time.Time) (*DayShifts, error) {
	p, err := s.loadProfessional(ctx, professionalID, ModeArrivalOrder)
	if err != nil {
		return nil, err
	}

	date = DateOf(date)
	if !p.WorksOn(date) {
		day := ResolveShifts(*p, nil, nil, date, s.now(), s.loc)
		return &day, nil
	}

	shifts, err := s.repo.ListShifts(ctx, p.ID, date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}

	booked, err := s.shiftCounts(ctx, p.ID, date)
	if err != nil {
		return nil, err
	}

	day := ResolveShifts(*p, shifts, booked, date, s.now(), s.loc)
	return &day, nil
}

func (s *Service) shiftCounts(ctx context.Context, professionalID uuid.UUID, date time.Time) (map[ShiftName]int, error) {
	appts, err := s.repo.ListAppointments(ctx, professionalID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	counts := make(map[ShiftName]int)
	for _, a := range appts {
		if a.Status != StatusCancelled && a.ShiftName != nil {
			counts[*a.ShiftName]++
		}
	}
	return counts, nil
}
