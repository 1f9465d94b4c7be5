package api

import (
	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
)

type PatientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CreateAppointmentRequest books either a fixed slot (time) or a shift (shift_name).
type CreateAppointmentRequest struct {
	ProfessionalID string         `json:"professional_id"`
	Date           string         `json:"date"`
	Time           *string        `json:"time,omitempty"`
	ShiftName      *string        `json:"shift_name,omitempty"`
	Patient        PatientRequest `json:"patient"`
}

type BlockedTimeRequest struct {
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Reason    *string `json:"reason,omitempty"`
}

type ShiftRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	ShiftName string `json:"shift_name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	MaxSlots  int    `json:"max_slots"`
}

type AppointmentResponse struct {
	appointment.Appointment
	Date           string                    `json:"date"`
	AllowedActions []appointment.QueueAction `json:"allowed_actions"`
}

func newAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	actions := appointment.AllowedActions(a)
	if actions == nil {
		actions = []appointment.QueueAction{}
	}
	return AppointmentResponse{
		Appointment:    *a,
		Date:           appointment.FormatDate(a.Date),
		AllowedActions: actions,
	}
}

type BlockedTimeResponse struct {
	appointment.BlockedTime
	Date string `json:"date"`
}

type QueueResponse struct {
	ProfessionalID string                `json:"professional_id"`
	Date           string                `json:"date"`
	ShiftName      string                `json:"shift_name"`
	Entries        []AppointmentResponse `json:"entries"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
