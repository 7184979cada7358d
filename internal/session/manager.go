// Package session runs breakdown collaborations as small per-user state
// machines: started, clarifying, proposing, confirmed, closed, with
// abandonment on inactivity. Live sessions are held in memory; ended
// sessions are archived to storage and never deleted.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/primowaterSFMC/sqrly/internal/breakdown"
	"github.com/primowaterSFMC/sqrly/internal/config"
	"github.com/primowaterSFMC/sqrly/internal/core"
	"github.com/primowaterSFMC/sqrly/pkg/models"
)

// Archiver persists a finished session's full record.
type Archiver interface {
	SaveSession(ctx context.Context, s *models.Session) error
}

// TurnInput is one user contribution to a session. Deadline and
// EffortMinutes are structured hints; free text is never mined for them.
type TurnInput struct {
	Content       string
	Deadline      *time.Time
	EffortMinutes int
	Confirm       bool
}

// State is what callers see after every session operation.
type State struct {
	ID         string              `json:"id"`
	Stage      models.SessionStage `json:"stage"`
	Completion float64             `json:"completion"`
	Reply      string              `json:"reply,omitempty"`
	Turns      int                 `json:"turns"`
	Breakdown  *breakdown.Result   `json:"breakdown,omitempty"`
}

type entry struct {
	mu sync.Mutex
	s  *models.Session

	// proposal is the latest breakdown result, kept until confirmation.
	proposal *breakdown.Result

	// inflight guards against overlapping provider calls for one session.
	inflight bool
}

// Manager owns every live session. The map lock is never held across a
// provider call; each session serializes its own writes.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	orch     *breakdown.Orchestrator
	archiver Archiver
	cfg      config.SessionConfig
	logger   *zap.Logger

	// now is swapped out by tests.
	now func() time.Time
}

func NewManager(orch *breakdown.Orchestrator, archiver Archiver, cfg config.SessionConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*entry),
		orch:     orch,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Start opens a new session for the user.
func (m *Manager) Start(ctx context.Context, userID string) (*State, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user_id must not be empty: %w", core.ErrInvalidInput)
	}

	now := m.now()
	s := &models.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Stage:     models.SessionStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = &entry{s: s}
	m.mu.Unlock()

	m.logger.Debug("session started", zap.String("session_id", s.ID), zap.String("user_id", userID))

	return &State{
		ID:         s.ID,
		Stage:      s.Stage,
		Completion: s.Stage.CompletionFraction(),
		Reply:      "What would you like to break down?",
	}, nil
}

// Advance applies one user turn. Depending on the stage and the turn this
// asks a clarifying question, produces or refines a proposal, or confirms
// the current one.
func (m *Manager) Advance(ctx context.Context, sessionID string, turn TurnInput) (*State, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := m.now()
	if e.s.Stage.Terminal() {
		return nil, fmt.Errorf("session %s has ended: %w", sessionID, core.ErrSessionExpired)
	}
	if now.Sub(e.s.UpdatedAt) > m.cfg.InactivityTimeout() {
		m.abandonLocked(ctx, e, now)
		return nil, fmt.Errorf("session %s idle too long: %w", sessionID, core.ErrSessionExpired)
	}
	if e.inflight {
		return m.stateLocked(e, "Still working on the previous proposal."), nil
	}
	if strings.TrimSpace(turn.Content) == "" && !turn.Confirm {
		return nil, fmt.Errorf("turn content must not be empty: %w", core.ErrInvalidInput)
	}

	e.s.Turns = append(e.s.Turns, models.Turn{
		Role:          models.TurnRoleUser,
		Content:       strings.TrimSpace(turn.Content),
		At:            now,
		Deadline:      turn.Deadline,
		EffortMinutes: turn.EffortMinutes,
	})
	e.s.UpdatedAt = now

	if turn.Confirm {
		if e.s.Stage != models.SessionProposing || e.proposal == nil {
			return nil, fmt.Errorf("nothing to confirm yet: %w", core.ErrInvalidInput)
		}
		e.s.Stage = models.SessionConfirmed
		m.appendAssistantLocked(e, "Plan confirmed. Close the session when you are ready.")
		return m.stateLocked(e, "Plan confirmed. Close the session when you are ready."), nil
	}

	// A confirmed plan never reopens; changing it means a fresh session.
	if e.s.Stage == models.SessionConfirmed {
		return nil, fmt.Errorf("plan already confirmed; close this session and start a new one to change it: %w", core.ErrInvalidInput)
	}

	if e.s.Stage == models.SessionStarted {
		e.s.Stage = models.SessionClarifying
	}

	if m.vagueLocked(e) {
		reply := "Could you say a bit more? A rough deadline or time estimate helps me split this up."
		m.appendAssistantLocked(e, reply)
		return m.stateLocked(e, reply), nil
	}

	return m.proposeLocked(ctx, e)
}

// Close ends the session and archives its record. Closing is idempotent
// for an already-closed session.
func (m *Manager) Close(ctx context.Context, sessionID string) (*State, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.s.Stage {
	case models.SessionAbandoned:
		return nil, fmt.Errorf("session %s was abandoned: %w", sessionID, core.ErrSessionExpired)
	case models.SessionClosed:
		return m.stateLocked(e, ""), nil
	}

	now := m.now()
	e.s.Stage = models.SessionClosed
	e.s.UpdatedAt = now
	m.archiveLocked(ctx, e, now)

	return m.stateLocked(e, "Session closed."), nil
}

// Get returns the current state of a live session without advancing it.
func (m *Manager) Get(sessionID string) (*State, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return m.stateLocked(e, ""), nil
}

// Sweep abandons every live session idle past the timeout and evicts
// ended sessions from memory; their archived records stay in storage.
// Callers run it periodically; Advance also catches expiry lazily.
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.RLock()
	entries := make(map[string]*entry, len(m.sessions))
	for id, e := range m.sessions {
		entries[id] = e
	}
	m.mu.RUnlock()

	now := m.now()
	swept := 0
	var ended []string
	for id, e := range entries {
		e.mu.Lock()
		if !e.s.Stage.Terminal() && now.Sub(e.s.UpdatedAt) > m.cfg.InactivityTimeout() {
			m.abandonLocked(ctx, e, now)
			swept++
		}
		if e.s.Stage.Terminal() {
			ended = append(ended, id)
		}
		e.mu.Unlock()
	}

	if len(ended) > 0 {
		m.mu.Lock()
		for _, id := range ended {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
	}
	return swept
}

func (m *Manager) lookup(sessionID string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, core.ErrSessionNotFound)
	}
	return e, nil
}

// proposeLocked runs the breakdown and moves the session to proposing.
// The session lock is released for the duration of the provider call;
// inflight keeps concurrent turns from racing a second call.
func (m *Manager) proposeLocked(ctx context.Context, e *entry) (*State, error) {
	in := m.breakdownInputLocked(e)
	e.inflight = true
	e.mu.Unlock()

	res, err := m.orch.Breakdown(ctx, in)

	e.mu.Lock()
	e.inflight = false
	e.s.APICalls++
	if res != nil {
		e.s.TokensUsed += res.TokensUsed
	}

	if err != nil {
		// Only input-contract failures reach here; the orchestrator absorbs
		// provider trouble. Ask for more instead of failing the session.
		m.logger.Warn("breakdown rejected session input", zap.String("session_id", e.s.ID), zap.Error(err))
		reply := "I could not work with that yet. What is the task, roughly?"
		m.appendAssistantLocked(e, reply)
		return m.stateLocked(e, reply), nil
	}

	if e.s.Stage.Terminal() {
		// Swept while the provider was thinking; drop the result.
		return nil, fmt.Errorf("session %s has ended: %w", e.s.ID, core.ErrSessionExpired)
	}

	e.s.Stage = models.SessionProposing
	e.proposal = res
	reply := fmt.Sprintf("Proposed %d steps (%s, confidence %.2f). Confirm, or tell me what to change.",
		len(res.Subtasks), res.Strategy, res.Confidence)
	m.appendAssistantLocked(e, reply)

	return m.stateLocked(e, reply), nil
}

func (m *Manager) breakdownInputLocked(e *entry) breakdown.Input {
	var title string
	var parts []string
	var effort int
	for _, t := range e.s.Turns {
		if t.Role != models.TurnRoleUser {
			continue
		}
		if title == "" {
			title = t.Content
		}
		parts = append(parts, t.Content)
		if t.EffortMinutes > 0 {
			effort = t.EffortMinutes
		}
	}
	if len(title) > 80 {
		cut := 80
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}

	available := effort
	if available <= 0 {
		available = 60
	}

	return breakdown.Input{
		Title:            title,
		Description:      strings.Join(parts, "\n"),
		AvailableMinutes: available,
		EstimatedMinutes: effort,
	}
}

// vagueLocked decides whether the user has given enough to propose from:
// enough words, or any structured deadline/effort hint.
func (m *Manager) vagueLocked(e *entry) bool {
	words := 0
	for _, t := range e.s.Turns {
		if t.Role != models.TurnRoleUser {
			continue
		}
		if t.Deadline != nil || t.EffortMinutes > 0 {
			return false
		}
		words += len(strings.Fields(t.Content))
	}
	return words < m.cfg.VagueWordThreshold
}

func (m *Manager) appendAssistantLocked(e *entry, content string) {
	e.s.Turns = append(e.s.Turns, models.Turn{
		Role:    models.TurnRoleAssistant,
		Content: content,
		At:      m.now(),
	})
}

func (m *Manager) abandonLocked(ctx context.Context, e *entry, now time.Time) {
	e.s.Stage = models.SessionAbandoned
	e.s.UpdatedAt = now
	m.archiveLocked(ctx, e, now)
	m.logger.Info("session abandoned for inactivity", zap.String("session_id", e.s.ID))
}

// archiveLocked persists the full record. Archive failures are logged, not
// surfaced: ending the session must not depend on storage health.
func (m *Manager) archiveLocked(ctx context.Context, e *entry, now time.Time) {
	if m.archiver == nil {
		return
	}
	archived := now
	e.s.ArchivedAt = &archived
	if err := m.archiver.SaveSession(ctx, e.s); err != nil {
		m.logger.Error("failed to archive session", zap.String("session_id", e.s.ID), zap.Error(err))
	}
}

func (m *Manager) stateLocked(e *entry, reply string) *State {
	st := &State{
		ID:         e.s.ID,
		Stage:      e.s.Stage,
		Completion: e.s.Stage.CompletionFraction(),
		Reply:      reply,
		Turns:      len(e.s.Turns),
	}
	if e.s.Stage == models.SessionProposing || e.s.Stage == models.SessionConfirmed {
		st.Breakdown = e.proposal
	}
	return st
}
