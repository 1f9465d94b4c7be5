package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	redisclient "github.com/hackgods/clinic-scheduling-engine/internal/redis"
)

func parseIDParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseDateQuery(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_date", "date query parameter is required (YYYY-MM-DD)")
		return time.Time{}, false
	}
	d, err := appointment.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return time.Time{}, false
	}
	return d, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func availabilityHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profID, ok := parseIDParam(w, r, "id", "invalid_professional_id")
		if !ok {
			return
		}
		date, ok := parseDateQuery(w, r)
		if !ok {
			return
		}

		day, err := svc.ResolveAvailability(r.Context(), profID, date)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, day)
	}
}

func shiftAvailabilityHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profID, ok := parseIDParam(w, r, "id", "invalid_professional_id")
		if !ok {
			return
		}
		date, ok := parseDateQuery(w, r)
		if !ok {
			return
		}

		day, err := svc.ResolveShiftCapacity(r.Context(), profID, date)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, day)
	}
}

func createAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		profID, err := uuid.Parse(req.ProfessionalID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_professional_id", "professional_id must be a valid UUID")
			return
		}
		date, err := appointment.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		booking := appointment.BookingRequest{
			ProfessionalID: profID,
			Date:           date,
			Patient: appointment.PatientContact{
				Name:  req.Patient.Name,
				Email: req.Patient.Email,
				Phone: req.Patient.Phone,
			},
		}
		if req.Time != nil {
			t, err := appointment.ParseTimeOfDay(*req.Time)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
				return
			}
			booking.Time = &t
		}
		if req.ShiftName != nil {
			name := appointment.ShiftName(*req.ShiftName)
			booking.ShiftName = &name
		}

		appt, err := svc.CreateAppointment(r.Context(), booking)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, newAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profID, ok := parseIDParam(w, r, "id", "invalid_professional_id")
		if !ok {
			return
		}
		date, ok := parseDateQuery(w, r)
		if !ok {
			return
		}

		appts, err := svc.ListAppointments(r.Context(), profID, date)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, newAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func queueHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profID, ok := parseIDParam(w, r, "id", "invalid_professional_id")
		if !ok {
			return
		}
		date, ok := parseDateQuery(w, r)
		if !ok {
			return
		}
		shift := appointment.ShiftName(r.URL.Query().Get("shift"))

		entries, err := svc.ListQueue(r.Context(), profID, date, shift)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := QueueResponse{
			ProfessionalID: profID.String(),
			Date:           appointment.FormatDate(date),
			ShiftName:      string(shift),
			Entries:        make([]AppointmentResponse, 0, len(entries)),
		}
		for i := range entries {
			resp.Entries = append(resp.Entries, newAppointmentResponse(&entries[i].Appointment))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// queueActionHandler serves the arrive/attend/undo/cancel endpoints.
func queueActionHandler(apply func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := apply(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func createBlockedTimeHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profID, ok := parseIDParam(w, r, "id", "invalid_professional_id")
		if !ok {
			return
		}
		var req BlockedTimeRequest
		if !decodeBody(w, r, &req) {
			return
		}

		date, err := appointment.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}
		start, err := appointment.ParseTimeOfDay(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
			return
		}
		end, err := appointment.ParseTimeOfDay(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
			return
		}

		b, err := svc.CreateBlockedTime(r.Context(), appointment.BlockedTime{
			ProfessionalID: profID,
			Date:           date,
			Start:          start,
			End:            end,
			Reason:         req.Reason,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, BlockedTimeResponse{BlockedTime: *b, Date: appointment.FormatDate(b.Date)})
	}
}

func deleteBlockedTimeHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id", "invalid_blocked_time_id")
		if !ok {
			return
		}
		if err := svc.DeleteBlockedTime(r.Context(), id); err != nil {
			handleServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func upsertShiftHandler(svc SchedulingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profID, ok := parseIDParam(w, r, "id", "invalid_professional_id")
		if !ok {
			return
		}
		var req ShiftRequest
		if !decodeBody(w, r, &req) {
			return
		}

		start, err := appointment.ParseTimeOfDay(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
			return
		}
		end, err := appointment.ParseTimeOfDay(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
			return
		}

		sh, err := svc.UpsertShift(r.Context(), appointment.Shift{
			ProfessionalID: profID,
			DayOfWeek:      time.Weekday(req.DayOfWeek),
			Name:           appointment.ShiftName(req.ShiftName),
			Start:          start,
			End:            end,
			MaxSlots:       req.MaxSlots,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sh)
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, appointment.ErrProfessionalNotFound):
		writeError(w, http.StatusNotFound, "professional_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrShiftNotFound):
		writeError(w, http.StatusNotFound, "shift_not_found", err.Error())
	case errors.Is(err, appointment.ErrBlockedTimeNotFound):
		writeError(w, http.StatusNotFound, "blocked_time_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrShiftFull):
		writeError(w, http.StatusConflict, "shift_full", err.Error())
	case errors.Is(err, appointment.ErrShiftClosed):
		writeError(w, http.StatusConflict, "shift_closed", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrNonWorkingDay):
		writeError(w, http.StatusUnprocessableEntity, "non_working_day", err.Error())
	case errors.Is(err, appointment.ErrModeMismatch):
		writeError(w, http.StatusUnprocessableEntity, "mode_mismatch", err.Error())
	case errors.Is(err, appointment.ErrProfessionalInactive):
		writeError(w, http.StatusUnprocessableEntity, "professional_inactive", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
