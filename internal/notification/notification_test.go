package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
)

func fakeAppointment() appointment.Appointment {
	slot := appointment.MustTimeOfDay("10:00")
	return appointment.Appointment{
		ID:             uuid.New(),
		ProfessionalID: uuid.New(),
		Date:           time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Time:           &slot,
		Status:         appointment.StatusScheduled,
		Patient: appointment.PatientContact{
			Name:  gofakeit.Name(),
			Email: gofakeit.Email(),
			Phone: "11987654321",
		},
	}
}

func TestNoticeFor(t *testing.T) {
	a := fakeAppointment()
	n := NoticeFor(a)

	if n.AppointmentID != a.ID.String() {
		t.Errorf("AppointmentID = %s", n.AppointmentID)
	}
	if n.Date != "2025-03-10" {
		t.Errorf("Date = %s", n.Date)
	}
	if n.Time == nil || *n.Time != "10:00" {
		t.Errorf("Time = %v", n.Time)
	}
	if n.ShiftName != nil {
		t.Errorf("ShiftName = %v, want nil", *n.ShiftName)
	}
}

func TestWebhookNotifier(t *testing.T) {
	a := fakeAppointment()

	var got struct {
		Type   string        `json:"type"`
		Notice BookingNotice `json:"notice"`
	}
	var idempotencyKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idempotencyKey = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	if err := n.NotifyBooked(context.Background(), NoticeFor(a)); err != nil {
		t.Fatalf("NotifyBooked: %v", err)
	}
	if got.Type != "appointment.booked" {
		t.Errorf("type = %q", got.Type)
	}
	if got.Notice.PatientEmail != a.Patient.Email {
		t.Errorf("patient email = %q, want %q", got.Notice.PatientEmail, a.Patient.Email)
	}
	if idempotencyKey != a.ID.String() {
		t.Errorf("Idempotency-Key = %q", idempotencyKey)
	}
}

func TestWebhookNotifierFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	if err := n.NotifyBooked(context.Background(), NoticeFor(fakeAppointment())); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(zap.NewNop())
	if err := n.NotifyBooked(context.Background(), NoticeFor(fakeAppointment())); err != nil {
		t.Fatalf("NotifyBooked: %v", err)
	}
}
