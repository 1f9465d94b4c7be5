package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/calendar"
	"github.com/hackgods/clinic-scheduling-engine/internal/notification"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	seen  map[string]bool
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	var id string
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt {
			id = o.Value().(string)
		}
	}
	if f.seen[id] {
		return nil, asynq.ErrTaskIDConflict
	}
	f.seen[id] = true
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: id, Type: task.Type()}, nil
}

type fakeLookup struct {
	professional *appointment.Professional
	shifts       []appointment.Shift
}

func (f *fakeLookup) GetProfessionalByID(_ context.Context, id uuid.UUID) (*appointment.Professional, error) {
	if f.professional == nil || f.professional.ID != id {
		return nil, appointment.ErrProfessionalNotFound
	}
	return f.professional, nil
}

func (f *fakeLookup) ListShifts(_ context.Context, _ uuid.UUID, weekday time.Weekday) ([]appointment.Shift, error) {
	var out []appointment.Shift
	for _, s := range f.shifts {
		if s.DayOfWeek == weekday {
			out = append(out, s)
		}
	}
	return out, nil
}

type recordingSyncer struct {
	calendarID string
	events     []calendar.Event
	err        error
}

func (r *recordingSyncer) SyncEvent(_ context.Context, calendarID string, ev calendar.Event) error {
	r.calendarID = calendarID
	r.events = append(r.events, ev)
	return r.err
}

type recordingNotifier struct {
	notices []notification.BookingNotice
	err     error
}

func (r *recordingNotifier) NotifyBooked(_ context.Context, n notification.BookingNotice) error {
	r.notices = append(r.notices, n)
	return r.err
}

func shiftAppointment(profID uuid.UUID) appointment.Appointment {
	name := appointment.ShiftMorning
	return appointment.Appointment{
		ID:             uuid.New(),
		ProfessionalID: profID,
		Date:           time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), // Monday
		ShiftName:      &name,
		Status:         appointment.StatusScheduled,
		Patient: appointment.PatientContact{
			Name:  gofakeit.Name(),
			Email: gofakeit.Email(),
			Phone: "11987654321",
		},
	}
}

func TestDispatcherEnqueuesOncePerAppointment(t *testing.T) {
	q := &fakeEnqueuer{}
	d := NewDispatcher(q, 3, true, zap.NewNop())
	a := shiftAppointment(uuid.New())

	if err := d.AppointmentBooked(context.Background(), a); err != nil {
		t.Fatalf("AppointmentBooked: %v", err)
	}
	if err := d.AppointmentBooked(context.Background(), a); err != nil {
		t.Fatalf("repeat AppointmentBooked: %v", err)
	}

	if len(q.tasks) != 2 {
		t.Fatalf("enqueued %d tasks, want 2", len(q.tasks))
	}
	types := map[string]bool{q.tasks[0].Type(): true, q.tasks[1].Type(): true}
	if !types[TypeCalendarSync] || !types[TypeBookingNotification] {
		t.Errorf("task types = %v", types)
	}
}

func TestDispatcherWithoutCalendar(t *testing.T) {
	q := &fakeEnqueuer{}
	d := NewDispatcher(q, 3, false, zap.NewNop())

	if err := d.AppointmentBooked(context.Background(), shiftAppointment(uuid.New())); err != nil {
		t.Fatalf("AppointmentBooked: %v", err)
	}
	if len(q.tasks) != 1 || q.tasks[0].Type() != TypeBookingNotification {
		t.Fatalf("tasks = %v", q.tasks)
	}
}

func TestDispatcherReportsEnqueueFailure(t *testing.T) {
	boom := errors.New("redis down")
	d := NewDispatcher(&fakeEnqueuer{err: boom}, 3, true, zap.NewNop())

	err := d.AppointmentBooked(context.Background(), shiftAppointment(uuid.New()))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestHandleCalendarSyncShift(t *testing.T) {
	calID := "doc@clinic.test"
	prof := &appointment.Professional{
		ID:                 uuid.New(),
		Mode:               appointment.ModeArrivalOrder,
		ExternalCalendarID: &calID,
	}
	lookup := &fakeLookup{
		professional: prof,
		shifts: []appointment.Shift{{
			ProfessionalID: prof.ID,
			DayOfWeek:      time.Monday,
			Name:           appointment.ShiftMorning,
			Start:          appointment.MustTimeOfDay("08:00"),
			End:            appointment.MustTimeOfDay("12:00"),
			MaxSlots:       10,
		}},
	}
	syncer := &recordingSyncer{}
	h := NewHandlers(lookup, syncer, &recordingNotifier{}, time.UTC, zap.NewNop())

	a := shiftAppointment(prof.ID)
	task, err := NewCalendarSyncTask(a)
	if err != nil {
		t.Fatalf("NewCalendarSyncTask: %v", err)
	}
	if err := h.HandleCalendarSync(context.Background(), task); err != nil {
		t.Fatalf("HandleCalendarSync: %v", err)
	}

	if syncer.calendarID != calID || len(syncer.events) != 1 {
		t.Fatalf("synced %d events to %q", len(syncer.events), syncer.calendarID)
	}
	ev := syncer.events[0]
	if ev.ID != calendar.EventID(a) {
		t.Errorf("event id = %s", ev.ID)
	}
	if ev.Start.Hour() != 8 || ev.End.Hour() != 12 {
		t.Errorf("event spans %s..%s", ev.Start, ev.End)
	}
}

func TestHandleCalendarSyncSkipsUnknownProfessional(t *testing.T) {
	h := NewHandlers(&fakeLookup{}, &recordingSyncer{}, &recordingNotifier{}, time.UTC, zap.NewNop())

	task, _ := NewCalendarSyncTask(shiftAppointment(uuid.New()))
	err := h.HandleCalendarSync(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
}

func TestHandleCalendarSyncRetriesOnSyncError(t *testing.T) {
	calID := "doc@clinic.test"
	prof := &appointment.Professional{ID: uuid.New(), ExternalCalendarID: &calID, DurationMinutes: 30}
	syncer := &recordingSyncer{err: errors.New("503")}
	h := NewHandlers(&fakeLookup{professional: prof}, syncer, &recordingNotifier{}, time.UTC, zap.NewNop())

	slot := appointment.MustTimeOfDay("09:00")
	a := shiftAppointment(prof.ID)
	a.ShiftName = nil
	a.Time = &slot

	task, _ := NewCalendarSyncTask(a)
	err := h.HandleCalendarSync(context.Background(), task)
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want retryable error", err)
	}
}

func TestHandleBookingNotification(t *testing.T) {
	n := &recordingNotifier{}
	h := NewHandlers(&fakeLookup{}, nil, n, time.UTC, zap.NewNop())

	a := shiftAppointment(uuid.New())
	task, _ := NewBookingNotificationTask(a)
	if err := h.HandleBookingNotification(context.Background(), task); err != nil {
		t.Fatalf("HandleBookingNotification: %v", err)
	}
	if len(n.notices) != 1 || n.notices[0].AppointmentID != a.ID.String() {
		t.Fatalf("notices = %+v", n.notices)
	}
	if n.notices[0].ShiftName == nil || *n.notices[0].ShiftName != "morning" {
		t.Errorf("shift name lost in payload")
	}
}

func TestHandleBookingNotificationBadPayload(t *testing.T) {
	h := NewHandlers(&fakeLookup{}, nil, &recordingNotifier{}, time.UTC, zap.NewNop())

	err := h.HandleBookingNotification(context.Background(), asynq.NewTask(TypeBookingNotification, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
}
