package appointment

import (
	"time"

	"github.com/google/uuid"
)

type SchedulingMode string

const (
	ModeFixedSlot    SchedulingMode = "fixed_slot"
	ModeArrivalOrder SchedulingMode = "arrival_order"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// holdsPosition reports whether appointments in this status carry a queue position.
func (s AppointmentStatus) holdsPosition() bool {
	return s == StatusConfirmed || s == StatusCompleted
}

type ShiftName string

const (
	ShiftMorning   ShiftName = "morning"
	ShiftAfternoon ShiftName = "afternoon"
	ShiftEvening   ShiftName = "evening"
)

func (n ShiftName) Valid() bool {
	switch n {
	case ShiftMorning, ShiftAfternoon, ShiftEvening:
		return true
	}
	return false
}

// WeekdaySet is a bit set indexed by time.Weekday (Sunday = bit 0).
type WeekdaySet uint8

// Weekdays is Monday through Friday.
const Weekdays WeekdaySet = 1<<time.Monday | 1<<time.Tuesday | 1<<time.Wednesday | 1<<time.Thursday | 1<<time.Friday

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << d
	}
	return s
}

func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<d) != 0
}

type Professional struct {
	ID                 uuid.UUID      `json:"id"`
	ClinicID           uuid.UUID      `json:"clinic_id"`
	Name               string         `json:"name"`
	Mode               SchedulingMode `json:"scheduling_mode"`
	DurationMinutes    int            `json:"duration_minutes"`
	WorkingDays        WeekdaySet     `json:"working_days"`
	WorkStart          TimeOfDay      `json:"work_start"`
	WorkEnd            TimeOfDay      `json:"work_end"`
	Active             bool           `json:"active"`
	ExternalCalendarID *string        `json:"external_calendar_id,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// WorksOn reports whether the professional attends on the weekday of date.
func (p *Professional) WorksOn(date time.Time) bool {
	return p.WorkingDays.Has(date.Weekday())
}

type PatientContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Appointment struct {
	ID             uuid.UUID         `json:"id"`
	ProfessionalID uuid.UUID         `json:"professional_id"`
	ClinicID       uuid.UUID         `json:"clinic_id"`
	Date           time.Time         `json:"date"`
	Time           *TimeOfDay        `json:"time,omitempty"`
	ShiftName      *ShiftName        `json:"shift_name,omitempty"`
	Status         AppointmentStatus `json:"status"`
	QueuePosition  *int              `json:"queue_position"`
	Patient        PatientContact    `json:"patient"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ArrivalOrder reports whether the appointment was booked against a shift.
func (a *Appointment) ArrivalOrder() bool {
	return a.ShiftName != nil
}

type BlockedTime struct {
	ID             uuid.UUID `json:"id"`
	ProfessionalID uuid.UUID `json:"professional_id"`
	Date           time.Time `json:"date"`
	Start          TimeOfDay `json:"start_time"`
	End            TimeOfDay `json:"end_time"`
	Reason         *string   `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (b BlockedTime) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

type Shift struct {
	ID             uuid.UUID    `json:"id"`
	ProfessionalID uuid.UUID    `json:"professional_id"`
	DayOfWeek      time.Weekday `json:"day_of_week"`
	Name           ShiftName    `json:"shift_name"`
	Start          TimeOfDay    `json:"start_time"`
	End            TimeOfDay    `json:"end_time"`
	MaxSlots       int          `json:"max_slots"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
