package models

import "time"

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Subtask is one step of a broken-down task. AI-generated subtasks carry
// the generation confidence and an initiation-support line, a concrete
// first physical action that lowers the cost of getting started.
type Subtask struct {
	ID                string     `json:"id"`
	TaskID            string     `json:"task_id"`
	Title             string     `json:"title"`
	Action            string     `json:"action"`
	SequenceOrder     int        `json:"sequence_order"`
	Difficulty        Difficulty `json:"difficulty"`
	EstimatedMinutes  int        `json:"estimated_minutes"`
	RequiredEnergy    int        `json:"required_energy"`
	RequiredFocus     int        `json:"required_focus"`
	InitiationSupport string     `json:"initiation_support,omitempty"`
	Status            TaskStatus `json:"status"`
	AIGenerated       bool       `json:"ai_generated"`
	AIConfidence      *float64   `json:"ai_confidence,omitempty"`
	DependsOn         []string   `json:"depends_on,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}
