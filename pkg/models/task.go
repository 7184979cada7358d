package models

import "time"

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusSkipped    TaskStatus = "skipped"
)

// Task is a single unit of work. Quadrant is derived from importance and
// urgency by the classifier and recomputed whenever either score changes.
type Task struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	GoalID           *string    `json:"goal_id,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Importance       int        `json:"importance"`
	Urgency          int        `json:"urgency"`
	Quadrant         int        `json:"quadrant"`
	RequiredEnergy   int        `json:"required_energy"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	ActualMinutes    *int       `json:"actual_minutes,omitempty"`
	Status           TaskStatus `json:"status"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	ScheduledStart   *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd     *time.Time `json:"scheduled_end,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`

	// GoalTitle is populated by queries that join against goals.
	GoalTitle string `json:"goal_title,omitempty"`
}

// Active reports whether the task still competes for the user's attention.
func (t *Task) Active() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusInProgress
}

// Overdue reports whether the task has a due date in the past and is still active.
func (t *Task) Overdue(now time.Time) bool {
	return t.Active() && t.DueDate != nil && t.DueDate.Before(now)
}

// DueWithin reports whether the task's deadline falls inside [now, now+d).
func (t *Task) DueWithin(now time.Time, d time.Duration) bool {
	if !t.Active() || t.DueDate == nil {
		return false
	}
	return !t.DueDate.Before(now) && t.DueDate.Before(now.Add(d))
}

// QuadrantName returns the Eisenhower label for a quadrant number.
func QuadrantName(q int) string {
	switch q {
	case 1:
		return "urgent-important"
	case 2:
		return "important-not-urgent"
	case 3:
		return "urgent-not-important"
	case 4:
		return "neither"
	default:
		return "unknown"
	}
}
