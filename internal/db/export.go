package db

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/primowaterSFMC/sqrly/pkg/models"
)

// EnableAutoExport sets up a hook that rewrites the JSONL archive after
// every successful write operation.
func (db *DB) EnableAutoExport(path string) {
	db.SetOnChange(func(ctx context.Context) {
		// Best-effort: an export failure must not fail the original write.
		_ = db.ExportArchive(ctx, path)
	})
}

type archiveRecord struct {
	RecordType string            `json:"record_type"`
	ExportedAt *time.Time        `json:"exported_at,omitempty"`
	Goal       *models.Goal      `json:"goal,omitempty"`
	Milestone  *models.Milestone `json:"milestone,omitempty"`
	Task       *models.Task      `json:"task,omitempty"`
	Subtask    *models.Subtask   `json:"subtask,omitempty"`
}

// ExportArchive writes every goal, milestone, task and subtask as one
// JSONL line each, atomically via a temporary file.
func (db *DB) ExportArchive(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "archive-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	w := bufio.NewWriter(tempFile)
	writeRecord := func(r archiveRecord) error {
		line, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal archive record: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write archive line: %w", err)
		}
		return nil
	}

	now := time.Now().UTC()
	if err := writeRecord(archiveRecord{RecordType: "meta", ExportedAt: &now}); err != nil {
		return err
	}

	if err := db.exportGoals(ctx, writeRecord); err != nil {
		return err
	}
	if err := db.exportTasks(ctx, writeRecord); err != nil {
		return err
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush archive: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil // Prevent defer from removing it

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func (db *DB) exportGoals(ctx context.Context, write func(archiveRecord) error) error {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT user_id FROM goals ORDER BY user_id`)
	if err != nil {
		return fmt.Errorf("failed to query goal users: %w", err)
	}
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return err
		}
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, user := range users {
		goals, err := db.ListGoals(ctx, user)
		if err != nil {
			return err
		}
		for _, g := range goals {
			if err := write(archiveRecord{RecordType: "goal", Goal: g}); err != nil {
				return err
			}
			milestones, err := db.ListMilestones(ctx, g.ID)
			if err != nil {
				return err
			}
			for _, m := range milestones {
				if err := write(archiveRecord{RecordType: "milestone", Milestone: m}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (db *DB) exportTasks(ctx context.Context, write func(archiveRecord) error) error {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		LEFT JOIN goals g ON t.goal_id = g.id
		ORDER BY t.user_id, t.created_at ASC
	`
	tasks, err := db.queryTasks(ctx, query)
	if err != nil {
		return err
	}

	for _, t := range tasks {
		if err := write(archiveRecord{RecordType: "task", Task: t}); err != nil {
			return err
		}
		subtasks, err := db.ListSubtasks(ctx, t.ID)
		if err != nil {
			return err
		}
		for _, st := range subtasks {
			if err := write(archiveRecord{RecordType: "subtask", Subtask: st}); err != nil {
				return err
			}
		}
	}
	return nil
}

// ImportArchive reads a JSONL archive and upserts its records. IDs are
// stable UUIDs, so records merge by primary key.
func (db *DB) ImportArchive(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive file: %w", err)
	}
	defer file.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec archiveRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal archive record: %w", err)
		}

		switch rec.RecordType {
		case "meta":
			// Skip meta
		case "goal":
			g := rec.Goal
			if g == nil {
				return fmt.Errorf("goal record missing payload")
			}
			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO goals (id, user_id, title, description, priority, progress, target_date, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				g.ID, g.UserID, g.Title, g.Description, g.Priority, g.Progress, g.TargetDate, g.CreatedAt, g.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to import goal %s: %w", g.ID, err)
			}
		case "milestone":
			m := rec.Milestone
			if m == nil {
				return fmt.Errorf("milestone record missing payload")
			}
			completed := 0
			if m.Completed {
				completed = 1
			}
			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO milestones (id, goal_id, title, sequence_order, completed, due_date, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID, m.GoalID, m.Title, m.SequenceOrder, completed, m.DueDate, m.CreatedAt, m.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to import milestone %s: %w", m.ID, err)
			}
		case "task":
			t := rec.Task
			if t == nil {
				return fmt.Errorf("task record missing payload")
			}
			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO tasks (
					id, user_id, goal_id, title, description, importance, urgency, quadrant,
					required_energy, estimated_minutes, actual_minutes, status, due_date,
					scheduled_start, scheduled_end, created_at, updated_at, started_at, completed_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ID, t.UserID, t.GoalID, t.Title, t.Description, t.Importance, t.Urgency, t.Quadrant,
				t.RequiredEnergy, t.EstimatedMinutes, t.ActualMinutes, t.Status, t.DueDate,
				t.ScheduledStart, t.ScheduledEnd, t.CreatedAt, t.UpdatedAt, t.StartedAt, t.CompletedAt)
			if err != nil {
				return fmt.Errorf("failed to import task %s: %w", t.ID, err)
			}
		case "subtask":
			st := rec.Subtask
			if st == nil {
				return fmt.Errorf("subtask record missing payload")
			}
			aiGenerated := 0
			if st.AIGenerated {
				aiGenerated = 1
			}
			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO subtasks (
					id, task_id, title, action, sequence_order, difficulty, estimated_minutes,
					required_energy, required_focus, initiation_support, status, ai_generated,
					ai_confidence, created_at, updated_at, started_at, completed_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				st.ID, st.TaskID, st.Title, st.Action, st.SequenceOrder, st.Difficulty, st.EstimatedMinutes,
				st.RequiredEnergy, st.RequiredFocus, st.InitiationSupport, st.Status, aiGenerated,
				st.AIConfidence, st.CreatedAt, st.UpdatedAt, st.StartedAt, st.CompletedAt)
			if err != nil {
				return fmt.Errorf("failed to import subtask %s: %w", st.ID, err)
			}
			for _, dep := range st.DependsOn {
				_, err = tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO subtask_dependencies (subtask_id, depends_on_subtask_id) VALUES (?, ?)`,
					st.ID, dep)
				if err != nil {
					return fmt.Errorf("failed to import subtask dependency: %w", err)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}
