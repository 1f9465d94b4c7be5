package appointment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed as minutes since midnight.
type TimeOfDay int

const (
	minutesPerDay = 24 * 60
	dateLayout    = "2006-01-02"
)

// ParseTimeOfDay accepts HH:MM or HH:MM:SS. Seconds are truncated.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 {
			return 0, fmt.Errorf("invalid second in %q", s)
		}
	}

	return TimeOfDay(h*60 + m), nil
}

// MustTimeOfDay is ParseTimeOfDay for constants and fixtures.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Duration is the offset of t from midnight.
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t) * time.Minute
}

// On anchors t to the calendar day of date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("time of day must be a string: %w", err)
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Interval is a half-open [Start, End) range within one day.
type Interval struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// Contains reports whether t falls inside the interval. A time equal to End is outside.
func (i Interval) Contains(t TimeOfDay) bool {
	return t >= i.Start && t < i.End
}

// TimeRange is an absolute [Start, End) range, as produced by external calendars.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ClipToDay projects absolute ranges onto the given calendar day in loc. Ranges that
// do not touch the day are dropped; starts round down and ends round up to the minute.
func ClipToDay(ranges []TimeRange, date time.Time, loc *time.Location) []Interval {
	dayStart := TimeOfDay(0).On(date, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var out []Interval
	for _, r := range ranges {
		if !r.End.After(dayStart) || !r.Start.Before(dayEnd) || !r.End.After(r.Start) {
			continue
		}
		start, end := r.Start, r.End
		if start.Before(dayStart) {
			start = dayStart
		}
		if end.After(dayEnd) {
			end = dayEnd
		}

		s := int(start.Sub(dayStart) / time.Minute)
		e := int((end.Sub(dayStart) + time.Minute - 1) / time.Minute)
		if e > minutesPerDay {
			e = minutesPerDay
		}
		out = append(out, Interval{Start: TimeOfDay(s), End: TimeOfDay(e)})
	}
	return out
}

// DateOf truncates t to its calendar day, returned as UTC midnight. Dates are stored
// and compared in this form.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// FormatDate renders a calendar day as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(dateLayout)
}
