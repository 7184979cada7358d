// Package breakdown turns a task description into an ordered list of small
// subtasks. An AI provider does the real work when one is configured and
// responsive; a deterministic chunk splitter covers every other case, so a
// breakdown request never fails once its input is valid.
package breakdown

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/primowaterSFMC/sqrly/internal/ai"
	"github.com/primowaterSFMC/sqrly/internal/config"
	"github.com/primowaterSFMC/sqrly/internal/core"
	"github.com/primowaterSFMC/sqrly/pkg/models"
)

const (
	StrategyAI       = "ai"
	StrategyFallback = "fallback"
)

type Input struct {
	// TaskID is optional; when set, callers may persist the result against
	// that task.
	TaskID           string
	Title            string
	Description      string
	UserEnergy       int
	AvailableMinutes int
	EstimatedMinutes int
	Style            string
}

type Result struct {
	Subtasks   []*models.Subtask `json:"subtasks"`
	Confidence float64           `json:"confidence"`
	Strategy   string            `json:"strategy"`

	// TokensUsed is the provider's reported usage for this request,
	// including attempts whose output was discarded. Zero on the pure
	// fallback path.
	TokensUsed int `json:"tokens_used,omitempty"`
}

// Orchestrator runs the breakdown pipeline: validate, prompt, bounded
// provider call with one retry, parse, fall back.
type Orchestrator struct {
	provider ai.Provider
	cfg      config.BreakdownConfig
	aiCfg    config.AIConfig
	logger   *zap.Logger
}

// New creates an orchestrator. provider may be nil, in which case every
// request takes the fallback path. aiCfg supplies the per-request token
// budget and temperature. logger may be nil.
func New(provider ai.Provider, cfg config.BreakdownConfig, aiCfg config.AIConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{provider: provider, cfg: cfg, aiCfg: aiCfg, logger: logger}
}

// Breakdown produces subtasks for the given input. After input validation
// it never returns an error: provider trouble of any kind degrades to the
// deterministic fallback.
func (o *Orchestrator) Breakdown(ctx context.Context, in Input) (*Result, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("title must not be empty: %w", core.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, fmt.Errorf("description must not be empty: %w", core.ErrInvalidInput)
	}
	if in.AvailableMinutes <= 0 {
		return nil, fmt.Errorf("available_minutes must be positive, got %d: %w", in.AvailableMinutes, core.ErrInvalidInput)
	}
	if in.UserEnergy != 0 {
		if err := validateEnergy(in.UserEnergy); err != nil {
			return nil, err
		}
	} else {
		in.UserEnergy = 5
	}

	// Too little time for even one chunk: a single all-in-one subtask is
	// the only honest answer, no provider needed.
	if in.AvailableMinutes < o.cfg.ChunkMinutes {
		return o.singleStep(in), nil
	}

	if o.provider == nil {
		return o.fallback(in), nil
	}

	drafts, confidence, tokens, err := o.generate(ctx, in)
	if err != nil {
		o.logger.Warn("breakdown provider failed, using fallback",
			zap.String("provider", o.provider.Name()),
			zap.Error(err))
		res := o.fallback(in)
		res.TokensUsed = tokens
		return res, nil
	}

	if confidence == 0 {
		confidence = o.cfg.AIConfidence
	}

	subtasks := make([]*models.Subtask, len(drafts))
	for i, d := range drafts {
		subtasks[i] = &models.Subtask{
			TaskID:            in.TaskID,
			Title:             d.Title,
			Action:            d.Action,
			SequenceOrder:     i + 1,
			Difficulty:        models.Difficulty(d.Difficulty),
			EstimatedMinutes:  d.EstimatedMinutes,
			RequiredEnergy:    d.EnergyRequired,
			RequiredFocus:     d.FocusRequired,
			InitiationSupport: d.InitiationSupport,
			Status:            models.TaskStatusPending,
			AIGenerated:       true,
			AIConfidence:      &confidence,
		}
	}

	return &Result{Subtasks: subtasks, Confidence: confidence, Strategy: StrategyAI, TokensUsed: tokens}, nil
}

// generate performs the bounded provider call: a per-attempt timeout and a
// single retry after a short backoff. Caller cancellation stops the loop
// between attempts. Token usage accumulates across attempts, discarded
// output included.
func (o *Orchestrator) generate(ctx context.Context, in Input) ([]draft, float64, int, error) {
	prompt, err := RenderPrompt(PromptData{
		Title:            in.Title,
		Description:      in.Description,
		UserEnergy:       in.UserEnergy,
		AvailableMinutes: in.AvailableMinutes,
		MaxSubtasks:      o.cfg.MaxSubtasks,
		Style:            in.Style,
	})
	if err != nil {
		return nil, 0, 0, err
	}

	maxTokens := o.aiCfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	req := ai.Request{Prompt: prompt, MaxTokens: maxTokens, Temperature: o.aiCfg.Temperature}

	tokens := 0
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, tokens, ctx.Err()
			case <-time.After(o.cfg.RetryBackoff()):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout())
		resp, err := o.provider.Generate(attemptCtx, req)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("attempt %d: %w", attempt+1, core.ErrProviderTimeout)
			}
			lastErr = err
			continue
		}
		tokens += resp.TokensUsed

		drafts, confidence, err := parsePlan(resp.Text, o.cfg.MaxSubtasks)
		if err != nil {
			lastErr = err
			continue
		}
		return drafts, confidence, tokens, nil
	}

	return nil, 0, tokens, lastErr
}

// fallback splits the work into fixed-size chunks. It knows nothing about
// the task's content, only its size.
func (o *Orchestrator) fallback(in Input) *Result {
	total := in.EstimatedMinutes
	if total <= 0 {
		total = in.AvailableMinutes
	}

	n := (total + o.cfg.ChunkMinutes - 1) / o.cfg.ChunkMinutes
	if n < 1 {
		n = 1
	}
	if o.cfg.MaxSubtasks > 0 && n > o.cfg.MaxSubtasks {
		n = o.cfg.MaxSubtasks
	}

	confidence := o.cfg.FallbackConfidence
	subtasks := make([]*models.Subtask, n)
	remaining := total
	for i := 0; i < n; i++ {
		minutes := o.cfg.ChunkMinutes
		if minutes > remaining {
			minutes = remaining
		}
		remaining -= minutes
		subtasks[i] = &models.Subtask{
			TaskID:           in.TaskID,
			Title:            fmt.Sprintf("Step %d of %d: %s", i+1, n, in.Title),
			SequenceOrder:    i + 1,
			Difficulty:       models.DifficultyMedium,
			EstimatedMinutes: minutes,
			RequiredEnergy:   5,
			RequiredFocus:    5,
			Status:           models.TaskStatusPending,
			AIGenerated:      false,
			AIConfidence:     &confidence,
		}
	}

	return &Result{Subtasks: subtasks, Confidence: confidence, Strategy: StrategyFallback}
}

// singleStep covers the case where available time is below one chunk.
func (o *Orchestrator) singleStep(in Input) *Result {
	confidence := o.cfg.FallbackConfidence
	minutes := in.EstimatedMinutes
	if minutes <= 0 {
		minutes = in.AvailableMinutes
	}
	return &Result{
		Subtasks: []*models.Subtask{{
			TaskID:           in.TaskID,
			Title:            in.Title,
			SequenceOrder:    1,
			Difficulty:       models.DifficultyMedium,
			EstimatedMinutes: minutes,
			RequiredEnergy:   5,
			RequiredFocus:    5,
			Status:           models.TaskStatusPending,
			AIGenerated:      false,
			AIConfidence:     &confidence,
		}},
		Confidence: confidence,
		Strategy:   StrategyFallback,
	}
}

func validateEnergy(v int) error {
	if v < 1 || v > 10 {
		return fmt.Errorf("user_energy must be between 1 and 10, got %d: %w", v, core.ErrInvalidScore)
	}
	return nil
}
