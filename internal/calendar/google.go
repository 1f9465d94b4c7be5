package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
)

// Event is a booking projected onto a professional's external calendar.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// Client talks to Google Calendar for busy-time lookups and booking sync.
type Client struct {
	svc    *gcal.Service
	loc    *time.Location
	logger *zap.Logger
}

// NewFromCredentials authenticates with a service account key file.
func NewFromCredentials(ctx context.Context, credentialsFile string, loc *time.Location, logger *zap.Logger) (*Client, error) {
	return New(ctx, loc, logger,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gcal.CalendarScope),
	)
}

func New(ctx context.Context, loc *time.Location, logger *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{svc: svc, loc: loc, logger: logger}, nil
}

// FetchBusy returns the busy periods on the professional's calendar for the clinic
// day of date.
func (c *Client) FetchBusy(ctx context.Context, p appointment.Professional, date time.Time) ([]appointment.TimeRange, error) {
	if p.ExternalCalendarID == nil || *p.ExternalCalendarID == "" {
		return nil, nil
	}
	calendarID := *p.ExternalCalendarID

	dayStart := appointment.TimeOfDay(0).On(date, c.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	resp, err := c.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin:  dayStart.Format(time.RFC3339),
		TimeMax:  dayEnd.Format(time.RFC3339),
		TimeZone: c.loc.String(),
		Items:    []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query: %w", err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("freebusy query: calendar %s missing from response", calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("freebusy query: calendar %s: %s", calendarID, cal.Errors[0].Reason)
	}

	ranges := make([]appointment.TimeRange, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fmt.Errorf("parse busy start %q: %w", period.Start, err)
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fmt.Errorf("parse busy end %q: %w", period.End, err)
		}
		ranges = append(ranges, appointment.TimeRange{Start: start, End: end})
	}

	return ranges, nil
}

// SyncEvent inserts ev into calendarID. The event ID is deterministic, so a retried
// sync that finds the event already present succeeds without duplicating it.
func (c *Client) SyncEvent(ctx context.Context, calendarID string, ev Event) error {
	_, err := c.svc.Events.Insert(calendarID, &gcal.Event{
		Id:          ev.ID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.In(c.loc).Format(time.RFC3339), TimeZone: c.loc.String()},
		End:         &gcal.EventDateTime{DateTime: ev.End.In(c.loc).Format(time.RFC3339), TimeZone: c.loc.String()},
	}).Context(ctx).Do()
	if err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && gErr.Code == http.StatusConflict {
			c.logger.Debug("calendar event already synced",
				zap.String("calendar_id", calendarID),
				zap.String("event_id", ev.ID),
			)
			return nil
		}
		return fmt.Errorf("insert calendar event: %w", err)
	}

	c.logger.Info("calendar event synced",
		zap.String("calendar_id", calendarID),
		zap.String("event_id", ev.ID),
	)
	return nil
}
