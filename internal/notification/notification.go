package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
)

// BookingNotice is the structured record handed to whatever delivers patient
// messages. Rendering it into an email or SMS is the receiver's concern.
type BookingNotice struct {
	AppointmentID  string  `json:"appointment_id"`
	ProfessionalID string  `json:"professional_id"`
	Date           string  `json:"date"`
	Time           *string `json:"time,omitempty"`
	ShiftName      *string `json:"shift_name,omitempty"`
	PatientName    string  `json:"patient_name"`
	PatientEmail   string  `json:"patient_email"`
	PatientPhone   string  `json:"patient_phone"`
}

func NoticeFor(a appointment.Appointment) BookingNotice {
	n := BookingNotice{
		AppointmentID:  a.ID.String(),
		ProfessionalID: a.ProfessionalID.String(),
		Date:           appointment.FormatDate(a.Date),
		PatientName:    a.Patient.Name,
		PatientEmail:   a.Patient.Email,
		PatientPhone:   a.Patient.Phone,
	}
	if a.Time != nil {
		t := a.Time.String()
		n.Time = &t
	}
	if a.ShiftName != nil {
		s := string(*a.ShiftName)
		n.ShiftName = &s
	}
	return n
}

type Notifier interface {
	NotifyBooked(ctx context.Context, n BookingNotice) error
}

// LogNotifier records notices in the log. Used when no delivery endpoint is set.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyBooked(_ context.Context, notice BookingNotice) error {
	n.logger.Info("booking notification",
		zap.String("appointment_id", notice.AppointmentID),
		zap.String("professional_id", notice.ProfessionalID),
		zap.String("date", notice.Date),
		zap.String("patient_email", notice.PatientEmail),
	)
	return nil
}

// WebhookNotifier POSTs notices as JSON to a delivery service. Any non-2xx answer is
// an error so the task queue retries it.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, client: client}
}

func (n *WebhookNotifier) NotifyBooked(ctx context.Context, notice BookingNotice) error {
	body, err := json.Marshal(map[string]any{
		"type":   "appointment.booked",
		"notice": notice,
	})
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", notice.AppointmentID)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
