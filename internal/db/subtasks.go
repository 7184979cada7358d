package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/primowaterSFMC/sqrly/pkg/models"
)

// ReplaceSubtasks swaps a task's subtask list for the given one in a
// single transaction, renumbering sequence order from 1. Used when a
// breakdown result is applied to a task.
func (db *DB) ReplaceSubtasks(ctx context.Context, taskID string, subtasks []*models.Subtask) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subtasks WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to clear subtasks: %w", err)
	}

	for i, st := range subtasks {
		st.TaskID = taskID
		st.SequenceOrder = i + 1
		if err := db.createSubtask(ctx, tx, st); err != nil {
			return err
		}
	}

	// Dependencies refer to subtask IDs assigned above, so they go in last.
	for _, st := range subtasks {
		for _, depID := range st.DependsOn {
			if err := db.createSubtaskDependency(ctx, tx, st.ID, depID); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

func (db *DB) createSubtask(ctx context.Context, exec executor, st *models.Subtask) error {
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	if st.Status == "" {
		st.Status = models.TaskStatusPending
	}
	if st.Difficulty == "" {
		st.Difficulty = models.DifficultyMedium
	}

	aiGenerated := 0
	if st.AIGenerated {
		aiGenerated = 1
	}

	query := `
		INSERT INTO subtasks (
			id, task_id, title, action, sequence_order, difficulty, estimated_minutes,
			required_energy, required_focus, initiation_support, status, ai_generated, ai_confidence
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err := exec.QueryRowContext(ctx, query,
		st.ID, st.TaskID, st.Title, st.Action, st.SequenceOrder, st.Difficulty, st.EstimatedMinutes,
		st.RequiredEnergy, st.RequiredFocus, st.InitiationSupport, st.Status, aiGenerated, st.AIConfidence,
	).Scan(&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create subtask: %w", err)
	}
	return nil
}

func (db *DB) createSubtaskDependency(ctx context.Context, exec executor, subtaskID, dependsOnID string) error {
	query := `INSERT INTO subtask_dependencies (subtask_id, depends_on_subtask_id) VALUES (?, ?)`
	if _, err := exec.ExecContext(ctx, query, subtaskID, dependsOnID); err != nil {
		return fmt.Errorf("failed to create subtask dependency: %w", err)
	}
	return nil
}

func (db *DB) ListSubtasks(ctx context.Context, taskID string) ([]*models.Subtask, error) {
	query := `
		SELECT id, task_id, title, action, sequence_order, difficulty, estimated_minutes,
		       required_energy, required_focus, initiation_support, status, ai_generated,
		       ai_confidence, created_at, updated_at, started_at, completed_at
		FROM subtasks
		WHERE task_id = ?
		ORDER BY sequence_order ASC
	`
	rows, err := db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtasks: %w", err)
	}
	defer rows.Close()

	var subtasks []*models.Subtask
	byID := make(map[string]*models.Subtask)
	for rows.Next() {
		st := &models.Subtask{}
		var aiGenerated int
		err := rows.Scan(
			&st.ID, &st.TaskID, &st.Title, &st.Action, &st.SequenceOrder, &st.Difficulty, &st.EstimatedMinutes,
			&st.RequiredEnergy, &st.RequiredFocus, &st.InitiationSupport, &st.Status, &aiGenerated,
			&st.AIConfidence, &st.CreatedAt, &st.UpdatedAt, &st.StartedAt, &st.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subtask: %w", err)
		}
		st.AIGenerated = aiGenerated == 1
		subtasks = append(subtasks, st)
		byID[st.ID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(subtasks) == 0 {
		return subtasks, nil
	}

	depRows, err := db.QueryContext(ctx, `
		SELECT d.subtask_id, d.depends_on_subtask_id
		FROM subtask_dependencies d
		JOIN subtasks s ON d.subtask_id = s.id
		WHERE s.task_id = ?
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtask dependencies: %w", err)
	}
	defer depRows.Close()

	for depRows.Next() {
		var id, dependsOn string
		if err := depRows.Scan(&id, &dependsOn); err != nil {
			return nil, fmt.Errorf("failed to scan subtask dependency: %w", err)
		}
		if st, ok := byID[id]; ok {
			st.DependsOn = append(st.DependsOn, dependsOn)
		}
	}
	if err := depRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return subtasks, nil
}

// StartSubtask claims a subtask if its dependency set is complete.
// Returns an error naming the blockers otherwise.
func (db *DB) StartSubtask(ctx context.Context, id string) error {
	query := `
		UPDATE subtasks
		SET status = 'in_progress',
		    started_at = COALESCE(started_at, CURRENT_TIMESTAMP),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		  AND status = 'pending'
		  AND NOT EXISTS (
			SELECT 1
			FROM subtask_dependencies d
			JOIN subtasks dep ON d.depends_on_subtask_id = dep.id
			WHERE d.subtask_id = subtasks.id
			  AND dep.status != 'completed'
		)
		RETURNING id
	`
	var claimed string
	err := db.QueryRowContext(ctx, query, id).Scan(&claimed)
	if err == sql.ErrNoRows {
		return db.explainStartRefusal(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("failed to start subtask: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// explainStartRefusal distinguishes a missing subtask, a bad status and
// unfinished dependencies for the error message.
func (db *DB) explainStartRefusal(ctx context.Context, id string) error {
	var status models.TaskStatus
	err := db.QueryRowContext(ctx, `SELECT status FROM subtasks WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("subtask not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("failed to inspect subtask: %w", err)
	}
	if status != models.TaskStatusPending {
		return fmt.Errorf("subtask %s is %s, only pending subtasks can be started", id, status)
	}

	var blockers int
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM subtask_dependencies d
		JOIN subtasks dep ON d.depends_on_subtask_id = dep.id
		WHERE d.subtask_id = ? AND dep.status != 'completed'
	`, id).Scan(&blockers)
	if err != nil {
		return fmt.Errorf("failed to count blockers: %w", err)
	}
	return fmt.Errorf("subtask %s is blocked by %d unfinished dependencies", id, blockers)
}

// CompleteSubtask finishes a subtask.
func (db *DB) CompleteSubtask(ctx context.Context, id string) error {
	query := `
		UPDATE subtasks
		SET status = 'completed',
		    completed_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ('pending', 'in_progress')
	`
	res, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to complete subtask: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("subtask not found or already finished: %s", id)
	}

	db.triggerChange(ctx)
	return nil
}
