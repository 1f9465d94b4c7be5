package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), time.UTC, zap.NewNop(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func professionalWithCalendar(id string) appointment.Professional {
	return appointment.Professional{
		ID:                 uuid.New(),
		Mode:               appointment.ModeFixedSlot,
		WorkingDays:        appointment.Weekdays,
		WorkStart:          appointment.MustTimeOfDay("08:00"),
		WorkEnd:            appointment.MustTimeOfDay("12:00"),
		ExternalCalendarID: &id,
	}
}

func TestFetchBusy(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/freeBusy") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			TimeMin string `json:"timeMin"`
			Items   []struct {
				ID string `json:"id"`
			} `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.TimeMin != "2025-03-10T00:00:00Z" {
			t.Errorf("timeMin = %q", req.TimeMin)
		}
		if len(req.Items) != 1 || req.Items[0].ID != "doc@clinic.test" {
			t.Errorf("items = %+v", req.Items)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"kind": "calendar#freeBusy",
			"calendars": {
				"doc@clinic.test": {
					"busy": [
						{"start": "2025-03-10T09:00:00Z", "end": "2025-03-10T09:30:00Z"},
						{"start": "2025-03-10T11:15:00Z", "end": "2025-03-10T12:00:00Z"}
					]
				}
			}
		}`))
	})

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	ranges, err := c.FetchBusy(context.Background(), professionalWithCalendar("doc@clinic.test"), date)
	if err != nil {
		t.Fatalf("FetchBusy: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("got %d ranges, want 2", len(ranges))
	}
	if !ranges[0].Start.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("first start = %s", ranges[0].Start)
	}
}

func TestFetchBusyCalendarError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"calendars": {
				"doc@clinic.test": {"errors": [{"domain": "global", "reason": "notFound"}]}
			}
		}`))
	})

	_, err := c.FetchBusy(context.Background(), professionalWithCalendar("doc@clinic.test"), time.Now())
	if err == nil || !strings.Contains(err.Error(), "notFound") {
		t.Fatalf("err = %v, want notFound", err)
	}
}

func TestFetchBusyWithoutCalendar(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	p := professionalWithCalendar("")
	ranges, err := c.FetchBusy(context.Background(), p, time.Now())
	if err != nil || ranges != nil {
		t.Fatalf("got %v, %v", ranges, err)
	}
}

func TestSyncEventTreatsConflictAsSynced(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method != http.MethodPost || !strings.Contains(r.URL.Path, "/calendars/") {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			_, _ = w.Write([]byte(`{"id": "abc123"}`))
			return
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error": {"code": 409, "message": "The requested identifier already exists."}}`))
	})

	ev := Event{
		ID:      "abc123abc123",
		Summary: "Appointment",
		Start:   time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		End:     time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	}
	for i := 0; i < 2; i++ {
		if err := c.SyncEvent(context.Background(), "doc@clinic.test", ev); err != nil {
			t.Fatalf("SyncEvent #%d: %v", i+1, err)
		}
	}
}

func TestSyncEventServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"code": 500, "message": "backend error"}}`))
	})

	err := c.SyncEvent(context.Background(), "doc@clinic.test", Event{ID: "abcdef", Start: time.Now(), End: time.Now().Add(time.Hour)})
	if err == nil {
		t.Fatal("expected error")
	}
}
