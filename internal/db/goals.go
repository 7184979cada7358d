package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/primowaterSFMC/sqrly/pkg/models"
)

func (db *DB) CreateGoal(ctx context.Context, g *models.Goal) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.Priority == 0 {
		g.Priority = 5
	}

	query := `
		INSERT INTO goals (id, user_id, title, description, priority, target_date)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err := db.QueryRowContext(ctx, query,
		g.ID, g.UserID, g.Title, g.Description, g.Priority, g.TargetDate,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create goal: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) GetGoal(ctx context.Context, id string) (*models.Goal, error) {
	query := `
		SELECT id, user_id, title, description, priority, progress, target_date, created_at, updated_at
		FROM goals
		WHERE id = ?
	`
	g := &models.Goal{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.UserID, &g.Title, &g.Description, &g.Priority, &g.Progress, &g.TargetDate, &g.CreatedAt, &g.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get goal: %w", err)
	}

	return g, nil
}

func (db *DB) ListGoals(ctx context.Context, userID string) ([]*models.Goal, error) {
	query := `
		SELECT id, user_id, title, description, priority, progress, target_date, created_at, updated_at
		FROM goals
		WHERE user_id = ?
		ORDER BY priority DESC, created_at ASC
	`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	var goals []*models.Goal
	for rows.Next() {
		g := &models.Goal{}
		err := rows.Scan(
			&g.ID, &g.UserID, &g.Title, &g.Description, &g.Priority, &g.Progress, &g.TargetDate, &g.CreatedAt, &g.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return goals, nil
}

func (db *DB) UpdateGoal(ctx context.Context, g *models.Goal) error {
	query := `
		UPDATE goals
		SET title = ?, description = ?, priority = ?, target_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING updated_at
	`
	err := db.QueryRowContext(ctx, query, g.Title, g.Description, g.Priority, g.TargetDate, g.ID).Scan(&g.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("goal not found: %s", g.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) DeleteGoal(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("goal not found: %s", id)
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) AddMilestone(ctx context.Context, m *models.Milestone) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO milestones (id, goal_id, title, sequence_order, due_date)
		VALUES (?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err := db.QueryRowContext(ctx, query,
		m.ID, m.GoalID, m.Title, m.SequenceOrder, m.DueDate,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to add milestone: %w", err)
	}

	if err := db.recomputeGoalProgress(ctx, m.GoalID); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) ListMilestones(ctx context.Context, goalID string) ([]*models.Milestone, error) {
	query := `
		SELECT id, goal_id, title, sequence_order, completed, due_date, created_at, updated_at
		FROM milestones
		WHERE goal_id = ?
		ORDER BY sequence_order ASC, created_at ASC
	`
	rows, err := db.QueryContext(ctx, query, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []*models.Milestone
	for rows.Next() {
		m := &models.Milestone{}
		var completed int
		err := rows.Scan(&m.ID, &m.GoalID, &m.Title, &m.SequenceOrder, &completed, &m.DueDate, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		m.Completed = completed == 1
		milestones = append(milestones, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return milestones, nil
}

// SetMilestoneCompleted toggles a milestone and recomputes the parent
// goal's progress from the milestone set. Progress is never written
// directly by callers.
func (db *DB) SetMilestoneCompleted(ctx context.Context, id string, completed bool) error {
	completedInt := 0
	if completed {
		completedInt = 1
	}

	var goalID string
	query := `
		UPDATE milestones
		SET completed = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING goal_id
	`
	err := db.QueryRowContext(ctx, query, completedInt, id).Scan(&goalID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("milestone not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("failed to update milestone: %w", err)
	}

	if err := db.recomputeGoalProgress(ctx, goalID); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}

// recomputeGoalProgress derives progress as the completed-milestones
// fraction. A goal with no milestones reads 0.
func (db *DB) recomputeGoalProgress(ctx context.Context, goalID string) error {
	query := `
		UPDATE goals
		SET progress = COALESCE((
			SELECT CAST(SUM(completed) AS REAL) / COUNT(*)
			FROM milestones
			WHERE goal_id = ?
		), 0.0),
		updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := db.ExecContext(ctx, query, goalID, goalID); err != nil {
		return fmt.Errorf("failed to recompute goal progress: %w", err)
	}
	return nil
}
