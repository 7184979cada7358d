package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/primowaterSFMC/sqrly/pkg/models"
)

const taskColumns = `
	t.id, t.user_id, t.goal_id, t.title, t.description, t.importance, t.urgency,
	t.quadrant, t.required_energy, t.estimated_minutes, t.actual_minutes, t.status,
	t.due_date, t.scheduled_start, t.scheduled_end,
	t.created_at, t.updated_at, t.started_at, t.completed_at,
	COALESCE(g.title, '') AS goal_title
`

// CreateTask inserts a new task. If t.ID is empty, a new UUID is generated.
func (db *DB) CreateTask(ctx context.Context, t *models.Task) error {
	if err := db.createTask(ctx, db.DB, t); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) createTask(ctx context.Context, exec executor, t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}

	query := `
		INSERT INTO tasks (
			id, user_id, goal_id, title, description, importance, urgency, quadrant,
			required_energy, estimated_minutes, status, due_date, scheduled_start, scheduled_end
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err := exec.QueryRowContext(ctx, query,
		t.ID, t.UserID, t.GoalID, t.Title, t.Description, t.Importance, t.Urgency, t.Quadrant,
		t.RequiredEnergy, t.EstimatedMinutes, t.Status, t.DueDate, t.ScheduledStart, t.ScheduledEnd,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by its ID.
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		LEFT JOIN goals g ON t.goal_id = g.id
		WHERE t.id = ?
	`
	tasks, err := db.queryTasks(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

// ListTasks returns a user's tasks, optionally filtered by status.
func (db *DB) ListTasks(ctx context.Context, userID string, status *models.TaskStatus) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		LEFT JOIN goals g ON t.goal_id = g.id
		WHERE t.user_id = ?
	`
	args := []interface{}{userID}

	if status != nil {
		query += " AND t.status = ?"
		args = append(args, *status)
	}

	query += " ORDER BY t.quadrant ASC, t.created_at ASC"

	return db.queryTasks(ctx, query, args...)
}

// ActiveTasks returns a user's pending and in-progress tasks in insertion
// order, which is the order the energy matcher uses as its final tiebreaker.
func (db *DB) ActiveTasks(ctx context.Context, userID string) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		LEFT JOIN goals g ON t.goal_id = g.id
		WHERE t.user_id = ? AND t.status IN ('pending', 'in_progress')
		ORDER BY t.created_at ASC
	`
	return db.queryTasks(ctx, query, userID)
}

// queryTasks is a helper to execute a query that returns a list of tasks.
func (db *DB) queryTasks(ctx context.Context, query string, args ...interface{}) ([]*models.Task, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t := &models.Task{}
		err := rows.Scan(
			&t.ID, &t.UserID, &t.GoalID, &t.Title, &t.Description, &t.Importance, &t.Urgency,
			&t.Quadrant, &t.RequiredEnergy, &t.EstimatedMinutes, &t.ActualMinutes, &t.Status,
			&t.DueDate, &t.ScheduledStart, &t.ScheduledEnd,
			&t.CreatedAt, &t.UpdatedAt, &t.StartedAt, &t.CompletedAt,
			&t.GoalTitle,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tasks, nil
}

// UpdateTask rewrites the mutable fields of a task. The caller is expected
// to have recomputed the quadrant if importance or urgency changed.
func (db *DB) UpdateTask(ctx context.Context, t *models.Task) error {
	query := `
		UPDATE tasks
		SET goal_id = ?, title = ?, description = ?, importance = ?, urgency = ?,
		    quadrant = ?, required_energy = ?, estimated_minutes = ?, due_date = ?,
		    scheduled_start = ?, scheduled_end = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING updated_at
	`
	err := db.QueryRowContext(ctx, query,
		t.GoalID, t.Title, t.Description, t.Importance, t.Urgency,
		t.Quadrant, t.RequiredEnergy, t.EstimatedMinutes, t.DueDate,
		t.ScheduledStart, t.ScheduledEnd, t.ID,
	).Scan(&t.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("task not found: %s", t.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// UpdateTaskStatus moves a task through its lifecycle, stamping started_at
// and completed_at along the way. actualMinutes is recorded only when
// completing.
func (db *DB) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus, actualMinutes *int) error {
	current, err := db.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("task not found: %s", id)
	}

	if err := validateStatusTransition(current.Status, status); err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET status = ?,
		    updated_at = CURRENT_TIMESTAMP,
		    started_at = CASE WHEN ? = 'in_progress' AND started_at IS NULL THEN CURRENT_TIMESTAMP ELSE started_at END,
		    completed_at = CASE WHEN ? = 'completed' THEN CURRENT_TIMESTAMP ELSE NULL END,
		    actual_minutes = CASE WHEN ? = 'completed' THEN COALESCE(?, actual_minutes) ELSE actual_minutes END
		WHERE id = ?
	`
	if _, err := db.ExecContext(ctx, query, status, status, status, status, actualMinutes, id); err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// DeleteTask deletes a task by its ID.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	query := `DELETE FROM tasks WHERE id = ?`
	res, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("task not found: %s", id)
	}

	db.triggerChange(ctx)
	return nil
}

func validateStatusTransition(from, to models.TaskStatus) error {
	if from == to {
		return nil
	}

	switch from {
	case models.TaskStatusPending:
		if to != models.TaskStatusInProgress && to != models.TaskStatusSkipped {
			return fmt.Errorf("invalid transition from %s to %s", from, to)
		}
	case models.TaskStatusInProgress:
		if to != models.TaskStatusCompleted && to != models.TaskStatusPending && to != models.TaskStatusSkipped {
			return fmt.Errorf("invalid transition from %s to %s", from, to)
		}
	case models.TaskStatusCompleted:
		// Reopening finished work is allowed; skipping it is not.
		if to != models.TaskStatusInProgress {
			return fmt.Errorf("invalid transition from %s to %s", from, to)
		}
	case models.TaskStatusSkipped:
		if to != models.TaskStatusPending {
			return fmt.Errorf("invalid transition from %s to %s", from, to)
		}
	}

	return nil
}
