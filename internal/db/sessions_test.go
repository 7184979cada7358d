package db

import (
	"context"
	"testing"
	"time"

	"github.com/primowaterSFMC/sqrly/pkg/models"
)

func TestSessionArchiveRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	archived := created.Add(12 * time.Minute)
	deadline := created.Add(72 * time.Hour)

	s := &models.Session{
		ID:     "sess-1",
		UserID: "u1",
		Stage:  models.SessionClosed,
		Turns: []models.Turn{
			{Role: models.TurnRoleUser, Content: "help me plan the move", At: created},
			{Role: models.TurnRoleAssistant, Content: "What is the deadline?", At: created.Add(time.Second)},
			{Role: models.TurnRoleUser, Content: "end of the month", At: created.Add(2 * time.Minute), Deadline: &deadline, EffortMinutes: 240},
		},
		TokensUsed: 512,
		APICalls:   2,
		CreatedAt:  created,
		UpdatedAt:  archived,
		ArchivedAt: &archived,
	}

	if err := db.SaveSession(ctx, s); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	fetched, err := db.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if fetched == nil {
		t.Fatalf("Session not found")
	}
	if fetched.Stage != models.SessionClosed {
		t.Errorf("Expected stage closed, got %s", fetched.Stage)
	}
	if len(fetched.Turns) != 3 {
		t.Fatalf("Expected 3 turns, got %d", len(fetched.Turns))
	}
	if fetched.Turns[2].EffortMinutes != 240 {
		t.Errorf("Expected effort hint 240, got %d", fetched.Turns[2].EffortMinutes)
	}
	if fetched.Turns[2].Deadline == nil || !fetched.Turns[2].Deadline.Equal(deadline) {
		t.Errorf("Expected deadline hint to survive the round trip")
	}
	if fetched.APICalls != 2 || fetched.TokensUsed != 512 {
		t.Errorf("Expected usage counters to survive, got %d calls %d tokens", fetched.APICalls, fetched.TokensUsed)
	}
	if fetched.ArchivedAt == nil {
		t.Errorf("Expected ArchivedAt to be set")
	}
}

func TestSaveSessionUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	s := &models.Session{
		ID:        "sess-2",
		UserID:    "u1",
		Stage:     models.SessionAbandoned,
		Turns:     []models.Turn{{Role: models.TurnRoleUser, Content: "hm", At: time.Now().UTC()}},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.SaveSession(ctx, s); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	// Saving again with a new stage overwrites the archived record
	s.Stage = models.SessionClosed
	s.APICalls = 1
	if err := db.SaveSession(ctx, s); err != nil {
		t.Fatalf("Failed to re-save session: %v", err)
	}

	fetched, _ := db.GetSession(ctx, "sess-2")
	if fetched.Stage != models.SessionClosed {
		t.Errorf("Expected stage closed after upsert, got %s", fetched.Stage)
	}
	if fetched.APICalls != 1 {
		t.Errorf("Expected api_calls 1 after upsert, got %d", fetched.APICalls)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sessions WHERE id = ?", "sess-2").Scan(&count); err != nil {
		t.Fatalf("Failed to count sessions: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected a single row after upsert, got %d", count)
	}
}

func TestGetSessionMissing(t *testing.T) {
	db := openTestDB(t)

	fetched, err := db.GetSession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Expected no error for missing session, got %v", err)
	}
	if fetched != nil {
		t.Errorf("Expected nil for missing session")
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s := &models.Session{
			ID:        []string{"old", "mid", "new"}[i],
			UserID:    "u1",
			Stage:     models.SessionClosed,
			Turns:     []models.Turn{},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := db.SaveSession(ctx, s); err != nil {
			t.Fatalf("Failed to save session %s: %v", s.ID, err)
		}
	}

	sessions, err := db.ListSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("Expected 3 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "new" || sessions[2].ID != "old" {
		t.Errorf("Expected newest first, got %s, %s, %s", sessions[0].ID, sessions[1].ID, sessions[2].ID)
	}

	sessions, err = db.ListSessions(ctx, "u2")
	if err != nil {
		t.Fatalf("Failed to list sessions for u2: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("Expected no sessions for u2, got %d", len(sessions))
	}
}
