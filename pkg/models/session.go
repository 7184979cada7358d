package models

import "time"

type SessionStage string

const (
	SessionStarted    SessionStage = "started"
	SessionClarifying SessionStage = "clarifying"
	SessionProposing  SessionStage = "proposing"
	SessionConfirmed  SessionStage = "confirmed"
	SessionClosed     SessionStage = "closed"
	SessionAbandoned  SessionStage = "abandoned"
)

// CompletionFraction maps a stage to how far along the collaboration is.
// The fraction is always derived from the stage, never stored, so the two
// cannot drift apart.
func (s SessionStage) CompletionFraction() float64 {
	switch s {
	case SessionStarted:
		return 0.0
	case SessionClarifying:
		return 0.2
	case SessionProposing:
		return 0.6
	case SessionConfirmed, SessionClosed:
		return 1.0
	default:
		return 0.0
	}
}

// Terminal reports whether the session can no longer advance.
func (s SessionStage) Terminal() bool {
	return s == SessionClosed || s == SessionAbandoned
}

type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// Turn is one entry in a session's conversation log. Deadline and
// EffortMinutes are structured hints supplied by the caller; the session
// manager never extracts them from free text.
type Turn struct {
	Role          TurnRole   `json:"role"`
	Content       string     `json:"content"`
	At            time.Time  `json:"at"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	EffortMinutes int        `json:"effort_minutes,omitempty"`
}

// Session is a breakdown collaboration. Live sessions are held in memory;
// the full record is archived to the database when the session ends.
type Session struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id"`
	Stage      SessionStage `json:"stage"`
	Turns      []Turn       `json:"turns"`
	TokensUsed int          `json:"tokens_used"`
	APICalls   int          `json:"api_calls"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	ArchivedAt *time.Time   `json:"archived_at,omitempty"`
}
