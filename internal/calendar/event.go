package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
)

// EventID derives a Google-compatible event id (base32hex alphabet) from the
// appointment id.
func EventID(a appointment.Appointment) string {
	return strings.ReplaceAll(a.ID.String(), "-", "")
}

// EventFor projects a booking onto the calendar. Fixed-slot bookings last the
// professional's consultation duration; arrival-order bookings span their shift.
func EventFor(a appointment.Appointment, p appointment.Professional, shift *appointment.Shift, loc *time.Location) (Event, error) {
	ev := Event{
		ID:          EventID(a),
		Summary:     fmt.Sprintf("Appointment: %s", a.Patient.Name),
		Description: fmt.Sprintf("Patient: %s\nEmail: %s\nPhone: %s", a.Patient.Name, a.Patient.Email, a.Patient.Phone),
	}

	switch {
	case a.Time != nil:
		ev.Start = a.Time.On(a.Date, loc)
		duration := time.Duration(p.DurationMinutes) * time.Minute
		if duration <= 0 {
			duration = 30 * time.Minute
		}
		ev.End = ev.Start.Add(duration)
	case a.ShiftName != nil:
		if shift == nil {
			return Event{}, fmt.Errorf("shift %s not configured for %s", *a.ShiftName, appointment.FormatDate(a.Date))
		}
		ev.Summary = fmt.Sprintf("Appointment (%s shift): %s", *a.ShiftName, a.Patient.Name)
		ev.Start = shift.Start.On(a.Date, loc)
		ev.End = shift.End.On(a.Date, loc)
	default:
		return Event{}, fmt.Errorf("appointment %s has neither time nor shift", a.ID)
	}

	return ev, nil
}
