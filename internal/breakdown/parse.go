package breakdown

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/primowaterSFMC/sqrly/internal/core"
	"github.com/primowaterSFMC/sqrly/pkg/models"
)

// draft is one subtask as the provider proposes it, before validation.
type draft struct {
	Title             string `json:"title"`
	Action            string `json:"action"`
	EstimatedMinutes  int    `json:"estimated_minutes"`
	Difficulty        string `json:"difficulty"`
	EnergyRequired    int    `json:"energy_required"`
	FocusRequired     int    `json:"focus_required"`
	InitiationSupport string `json:"initiation_support"`
}

type providerPlan struct {
	Subtasks   []draft  `json:"subtasks"`
	Confidence *float64 `json:"confidence"`
}

// parsePlan turns raw provider output into validated drafts. A draft with
// an empty title or non-positive minutes is discarded; if nothing valid
// remains the whole response is rejected.
func parsePlan(text string, maxSubtasks int) ([]draft, float64, error) {
	cleaned := stripJSONFences(text)

	var plan providerPlan
	if err := json.Unmarshal([]byte(cleaned), &plan); err != nil {
		return nil, 0, fmt.Errorf("unmarshal provider plan: %v: %w", err, core.ErrProviderParse)
	}

	var valid []draft
	for _, d := range plan.Subtasks {
		d.Title = strings.TrimSpace(d.Title)
		if d.Title == "" || d.EstimatedMinutes <= 0 {
			continue
		}
		switch models.Difficulty(d.Difficulty) {
		case models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard:
		default:
			d.Difficulty = string(models.DifficultyMedium)
		}
		d.EnergyRequired = clampScore(d.EnergyRequired)
		d.FocusRequired = clampScore(d.FocusRequired)
		valid = append(valid, d)
	}

	if len(valid) == 0 {
		return nil, 0, fmt.Errorf("no usable subtasks in provider plan: %w", core.ErrProviderParse)
	}
	if maxSubtasks > 0 && len(valid) > maxSubtasks {
		valid = valid[:maxSubtasks]
	}

	confidence := 0.0
	if plan.Confidence != nil && *plan.Confidence > 0 && *plan.Confidence <= 1 {
		confidence = *plan.Confidence
	}
	return valid, confidence, nil
}

func clampScore(v int) int {
	if v < 1 {
		return 5
	}
	if v > 10 {
		return 10
	}
	return v
}

// stripJSONFences removes markdown code fences some models wrap around JSON.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
