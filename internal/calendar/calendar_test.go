package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
)

func event(start, end time.Time) *calendar.Event {
	return &calendar.Event{
		Start: &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:   &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)},
	}
}

func TestBusyHours(t *testing.T) {
	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

	events := []*calendar.Event{
		event(from.Add(1*time.Hour), from.Add(2*time.Hour)),           // 1h inside
		event(from.Add(-1*time.Hour), from.Add(30*time.Minute)),      // clipped to 30m
		event(to.Add(-15*time.Minute), to.Add(2*time.Hour)),          // clipped to 15m
		event(to.Add(1*time.Hour), to.Add(2*time.Hour)),              // outside entirely
		{Start: &calendar.EventDateTime{Date: "2026-03-02"}, End: &calendar.EventDateTime{Date: "2026-03-03"}}, // all-day, skipped
	}

	assert.InDelta(t, 1.75, busyHours(events, from, to), 1e-9)
}

func TestBusyHoursEmpty(t *testing.T) {
	from := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	assert.Zero(t, busyHours(nil, from, from.Add(8*time.Hour)))
}

func TestFixedSource(t *testing.T) {
	src := Fixed{Hours: 6}
	got, err := src.AvailableHours(context.Background(), time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 6.0, got, 1e-9)
}
