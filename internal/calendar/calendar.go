// Package calendar supplies the available-hours signal for workload
// snapshots. A Google Calendar feed is optional; when it is absent or
// failing, callers fall back to the configured workday.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Source reports how many hours remain free between now and end of day.
type Source interface {
	AvailableHours(ctx context.Context, now time.Time) (float64, error)
}

// Fixed is the no-calendar source: a constant workday.
type Fixed struct {
	Hours float64
}

func (f Fixed) AvailableHours(ctx context.Context, now time.Time) (float64, error) {
	return f.Hours, nil
}

// GoogleSource reads busy time from one Google calendar and subtracts it
// from the configured workday.
type GoogleSource struct {
	srv          *calendar.Service
	calendarID   string
	workdayHours float64
}

// NewGoogleSource builds a read-only calendar client. credentialsFile is
// the OAuth client secrets JSON; a previously obtained token is expected
// at token.json next to it.
func NewGoogleSource(ctx context.Context, credentialsFile, calendarID string, workdayHours float64) (*GoogleSource, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", credentialsFile, err)
	}

	cfg, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file: %w", err)
	}

	tok, err := tokenFromFile(filepath.Join(filepath.Dir(credentialsFile), "token.json"))
	if err != nil {
		return nil, fmt.Errorf("no stored calendar token: %w", err)
	}

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create calendar service: %w", err)
	}

	if calendarID == "" {
		calendarID = "primary"
	}

	return &GoogleSource{srv: srv, calendarID: calendarID, workdayHours: workdayHours}, nil
}

// AvailableHours subtracts today's remaining busy time from the workday.
// The result never goes below zero.
func (g *GoogleSource) AvailableHours(ctx context.Context, now time.Time) (float64, error) {
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())

	events, err := g.srv.Events.List(g.calendarID).
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(endOfDay.Format(time.RFC3339)).
		SingleEvents(true).
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("unable to retrieve events from calendar: %w", err)
	}

	busy := busyHours(events.Items, now, endOfDay)
	available := g.workdayHours - busy
	if available < 0 {
		available = 0
	}
	return available, nil
}

// busyHours sums the event time overlapping [from, to). All-day events and
// events with unparseable times are skipped.
func busyHours(events []*calendar.Event, from, to time.Time) float64 {
	var total time.Duration
	for _, ev := range events {
		if ev.Start == nil || ev.End == nil || ev.Start.DateTime == "" || ev.End.DateTime == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, ev.End.DateTime)
		if err != nil {
			continue
		}
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		if end.After(start) {
			total += end.Sub(start)
		}
	}
	return total.Hours()
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}
