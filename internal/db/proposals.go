package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/primowaterSFMC/sqrly/pkg/models"
)

// Proposal is a breakdown result staged against a task but not yet
// written. Nothing touches the tasks table until the caller applies it.
type Proposal struct {
	TaskID   string
	Subtasks []*models.Subtask
}

// ProposalStore provides thread-safe in-memory staging of breakdown
// proposals, keyed by session. Restaging under the same session replaces
// the previous proposal, which is how refinement rounds work.
type ProposalStore struct {
	mu     sync.RWMutex
	staged map[string]*Proposal
}

func NewProposalStore() *ProposalStore {
	return &ProposalStore{
		staged: make(map[string]*Proposal),
	}
}

func (ps *ProposalStore) Stage(sessionID string, p *Proposal) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.staged[sessionID] = p
}

func (ps *ProposalStore) Peek(sessionID string) *Proposal {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.staged[sessionID]
}

func (ps *ProposalStore) GetAndClear(sessionID string) *Proposal {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	p, ok := ps.staged[sessionID]
	if !ok {
		return nil
	}
	delete(ps.staged, sessionID)
	return p
}

func (ps *ProposalStore) Discard(sessionID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.staged, sessionID)
}

// ApplyProposal writes the staged proposal for the session to its task,
// replacing any existing subtasks. The proposal is consumed even if the
// write fails validation, mirroring how a rejected draft is discarded.
func (db *DB) ApplyProposal(ctx context.Context, sessionID string) (*Proposal, error) {
	p := db.Proposals.GetAndClear(sessionID)
	if p == nil {
		return nil, fmt.Errorf("no staged proposal for session %s", sessionID)
	}

	task, err := db.GetTask(ctx, p.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task not found: %s", p.TaskID)
	}

	if err := db.ReplaceSubtasks(ctx, p.TaskID, p.Subtasks); err != nil {
		return nil, err
	}
	return p, nil
}
