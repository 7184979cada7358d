package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/primowaterSFMC/sqrly/pkg/models"
)

// SaveSession archives a finished session, turn log included. Saving the
// same session again overwrites the archived record; archived sessions
// are never deleted.
func (db *DB) SaveSession(ctx context.Context, s *models.Session) error {
	turns, err := json.Marshal(s.Turns)
	if err != nil {
		return fmt.Errorf("failed to marshal session turns: %w", err)
	}

	query := `
		INSERT INTO sessions (id, user_id, stage, turns, tokens_used, api_calls, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage = excluded.stage,
			turns = excluded.turns,
			tokens_used = excluded.tokens_used,
			api_calls = excluded.api_calls,
			updated_at = excluded.updated_at,
			archived_at = excluded.archived_at
	`
	_, err = db.ExecContext(ctx, query,
		s.ID, s.UserID, s.Stage, string(turns), s.TokensUsed, s.APICalls,
		s.CreatedAt, s.UpdatedAt, s.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// GetSession loads an archived session.
func (db *DB) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, user_id, stage, turns, tokens_used, api_calls, created_at, updated_at, archived_at
		FROM sessions
		WHERE id = ?
	`
	s := &models.Session{}
	var turns string
	err := db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.Stage, &turns, &s.TokensUsed, &s.APICalls,
		&s.CreatedAt, &s.UpdatedAt, &s.ArchivedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if err := json.Unmarshal([]byte(turns), &s.Turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session turns: %w", err)
	}
	return s, nil
}

// ListSessions returns a user's archived sessions, newest first.
func (db *DB) ListSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `
		SELECT id, user_id, stage, turns, tokens_used, api_calls, created_at, updated_at, archived_at
		FROM sessions
		WHERE user_id = ?
		ORDER BY created_at DESC
	`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s := &models.Session{}
		var turns string
		err := rows.Scan(
			&s.ID, &s.UserID, &s.Stage, &turns, &s.TokensUsed, &s.APICalls,
			&s.CreatedAt, &s.UpdatedAt, &s.ArchivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if err := json.Unmarshal([]byte(turns), &s.Turns); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session turns: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return sessions, nil
}
