// Package planner holds the deterministic decision logic: Eisenhower
// classification, energy matching and overwhelm detection. Nothing in this
// package talks to the database or an AI provider.
package planner

import (
	"fmt"

	"github.com/primowaterSFMC/sqrly/internal/core"
)

// Classifier assigns tasks to Eisenhower quadrants. Scores at or above the
// threshold count as high.
type Classifier struct {
	threshold int
}

func NewClassifier(threshold int) *Classifier {
	return &Classifier{threshold: threshold}
}

// Classify maps importance and urgency (1-10 each) to a quadrant:
//
//	1 urgent and important
//	2 important, not urgent
//	3 urgent, not important
//	4 neither
func (c *Classifier) Classify(importance, urgency int) (int, error) {
	if err := validateScore("importance", importance); err != nil {
		return 0, err
	}
	if err := validateScore("urgency", urgency); err != nil {
		return 0, err
	}

	important := importance >= c.threshold
	urgent := urgency >= c.threshold

	switch {
	case important && urgent:
		return 1, nil
	case important:
		return 2, nil
	case urgent:
		return 3, nil
	default:
		return 4, nil
	}
}

func validateScore(name string, v int) error {
	if v < 1 || v > 10 {
		return fmt.Errorf("%s must be between 1 and 10, got %d: %w", name, v, core.ErrInvalidScore)
	}
	return nil
}
