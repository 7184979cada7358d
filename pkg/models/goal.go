package models

import "time"

// Goal groups tasks under a longer-horizon objective. Progress is the
// completed-milestones fraction and is recomputed from the milestone set
// on every milestone change, never edited directly.
type Goal struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	Progress    float64    `json:"progress"`
	TargetDate  *time.Time `json:"target_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Milestone struct {
	ID            string     `json:"id"`
	GoalID        string     `json:"goal_id"`
	Title         string     `json:"title"`
	SequenceOrder int        `json:"sequence_order"`
	Completed     bool       `json:"completed"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
