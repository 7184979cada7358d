package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/primowaterSFMC/sqrly/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	return db
}

func TestTaskCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// 1. Create a goal first so the task can link to it
	g := &models.Goal{
		UserID:      "u1",
		Title:       "Ship the report",
		Description: "Quarterly report",
	}
	if err := db.CreateGoal(ctx, g); err != nil {
		t.Fatalf("Failed to create goal: %v", err)
	}

	// 2. Create Task
	due := time.Now().Add(24 * time.Hour).UTC()
	task := &models.Task{
		UserID:           "u1",
		GoalID:           &g.ID,
		Title:            "Draft summary",
		Description:      "Write the executive summary",
		Importance:       8,
		Urgency:          7,
		Quadrant:         1,
		RequiredEnergy:   6,
		EstimatedMinutes: 90,
		DueDate:          &due,
	}

	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	if len(task.ID) != 36 {
		t.Errorf("Expected ID length 36, got %d (%s)", len(task.ID), task.ID)
	}

	// Verify ID contains dashes (standard UUID format)
	if !strings.Contains(task.ID, "-") {
		t.Errorf("Expected ID to contain dashes, got %s", task.ID)
	}

	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Errorf("Expected CreatedAt and UpdatedAt to be set")
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("Expected default status pending, got %s", task.Status)
	}

	// 3. Get Task
	fetched, err := db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if fetched == nil {
		t.Fatalf("Task not found")
	}
	if fetched.Title != task.Title {
		t.Errorf("Expected title %s, got %s", task.Title, fetched.Title)
	}
	if fetched.GoalTitle != g.Title {
		t.Errorf("Expected goal title %s, got %s", g.Title, fetched.GoalTitle)
	}
	if fetched.Quadrant != 1 {
		t.Errorf("Expected quadrant 1, got %d", fetched.Quadrant)
	}
	if fetched.DueDate == nil {
		t.Errorf("Expected due date to be set")
	}

	// 4. Update Task
	task.Title = "Draft full summary"
	task.Importance = 9
	task.Quadrant = 1
	if err := db.UpdateTask(ctx, task); err != nil {
		t.Fatalf("Failed to update task: %v", err)
	}

	fetched, err = db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if fetched.Title != "Draft full summary" {
		t.Errorf("Expected title Draft full summary, got %s", fetched.Title)
	}
	if fetched.Importance != 9 {
		t.Errorf("Expected importance 9, got %d", fetched.Importance)
	}

	// 5. Status lifecycle
	err = db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusInProgress, nil)
	if err != nil {
		t.Fatalf("Failed to update status to in_progress: %v", err)
	}

	fetched, _ = db.GetTask(ctx, task.ID)
	if fetched.Status != models.TaskStatusInProgress {
		t.Errorf("Expected status in_progress, got %s", fetched.Status)
	}
	if fetched.StartedAt == nil {
		t.Errorf("Expected StartedAt to be set")
	}

	actual := 75
	err = db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusCompleted, &actual)
	if err != nil {
		t.Fatalf("Failed to update status to completed: %v", err)
	}

	fetched, _ = db.GetTask(ctx, task.ID)
	if fetched.Status != models.TaskStatusCompleted {
		t.Errorf("Expected status completed, got %s", fetched.Status)
	}
	if fetched.CompletedAt == nil {
		t.Errorf("Expected CompletedAt to be set")
	}
	if fetched.ActualMinutes == nil || *fetched.ActualMinutes != actual {
		t.Errorf("Expected actual minutes %d", actual)
	}

	// 6. Invalid Status Transition
	err = db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusPending, nil)
	if err == nil {
		t.Errorf("Expected error for invalid transition from completed to pending")
	}

	// 7. List Tasks
	tasks, err := db.ListTasks(ctx, "u1", nil)
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("Expected 1 task, got %d", len(tasks))
	}

	status := models.TaskStatusCompleted
	tasks, err = db.ListTasks(ctx, "u1", &status)
	if err != nil {
		t.Fatalf("Failed to list tasks with filter: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("Expected 1 task with filter, got %d", len(tasks))
	}

	// Other users see nothing
	tasks, err = db.ListTasks(ctx, "u2", nil)
	if err != nil {
		t.Fatalf("Failed to list tasks for u2: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("Expected 0 tasks for u2, got %d", len(tasks))
	}

	// 8. Delete Task
	if err := db.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}

	fetched, err = db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get task after deletion: %v", err)
	}
	if fetched != nil {
		t.Errorf("Expected task to be deleted, but it still exists")
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	tests := []struct {
		from    models.TaskStatus
		to      models.TaskStatus
		allowed bool
	}{
		{models.TaskStatusPending, models.TaskStatusInProgress, true},
		{models.TaskStatusPending, models.TaskStatusSkipped, true},
		{models.TaskStatusPending, models.TaskStatusCompleted, false},
		{models.TaskStatusInProgress, models.TaskStatusCompleted, true},
		{models.TaskStatusInProgress, models.TaskStatusPending, true},
		{models.TaskStatusInProgress, models.TaskStatusSkipped, true},
		{models.TaskStatusCompleted, models.TaskStatusInProgress, true},
		{models.TaskStatusCompleted, models.TaskStatusSkipped, false},
		{models.TaskStatusCompleted, models.TaskStatusPending, false},
		{models.TaskStatusSkipped, models.TaskStatusPending, true},
		{models.TaskStatusSkipped, models.TaskStatusCompleted, false},
		{models.TaskStatusPending, models.TaskStatusPending, true},
	}

	for _, tt := range tests {
		err := validateStatusTransition(tt.from, tt.to)
		if tt.allowed && err != nil {
			t.Errorf("Expected %s -> %s to be allowed, got %v", tt.from, tt.to, err)
		}
		if !tt.allowed && err == nil {
			t.Errorf("Expected %s -> %s to be rejected", tt.from, tt.to)
		}
	}
}

func TestReopenClearsCompletedAt(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	task := &models.Task{
		UserID:         "u1",
		Title:          "Revisit",
		Importance:     5,
		Urgency:        5,
		Quadrant:       4,
		RequiredEnergy: 3,
	}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	if err := db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusInProgress, nil); err != nil {
		t.Fatalf("Failed to start task: %v", err)
	}
	if err := db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusCompleted, nil); err != nil {
		t.Fatalf("Failed to complete task: %v", err)
	}
	if err := db.UpdateTaskStatus(ctx, task.ID, models.TaskStatusInProgress, nil); err != nil {
		t.Fatalf("Failed to reopen task: %v", err)
	}

	fetched, _ := db.GetTask(ctx, task.ID)
	if fetched.Status != models.TaskStatusInProgress {
		t.Errorf("Expected status in_progress after reopen, got %s", fetched.Status)
	}
	if fetched.CompletedAt != nil {
		t.Errorf("Expected CompletedAt to be cleared on reopen")
	}
	if fetched.StartedAt == nil {
		t.Errorf("Expected StartedAt to survive the reopen")
	}
}

func TestActiveTasksOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	titles := []string{"first", "second", "third"}
	ids := make([]string, 0, len(titles))
	for i, title := range titles {
		task := &models.Task{
			UserID:         "u1",
			Title:          title,
			Importance:     5,
			Urgency:        5,
			Quadrant:       4,
			RequiredEnergy: 3,
		}
		if err := db.CreateTask(ctx, task); err != nil {
			t.Fatalf("Failed to create task %s: %v", title, err)
		}
		// CURRENT_TIMESTAMP has one-second resolution, so spread the
		// creation times out explicitly to make the order deterministic.
		created := time.Date(2026, 1, 1, 9, 0, i, 0, time.UTC)
		if _, err := db.Exec("UPDATE tasks SET created_at = ? WHERE id = ?", created, task.ID); err != nil {
			t.Fatalf("Failed to backdate task %s: %v", title, err)
		}
		ids = append(ids, task.ID)
	}

	// Finished tasks drop out of the active set
	if err := db.UpdateTaskStatus(ctx, ids[1], models.TaskStatusSkipped, nil); err != nil {
		t.Fatalf("Failed to skip task: %v", err)
	}

	active, err := db.ActiveTasks(ctx, "u1")
	if err != nil {
		t.Fatalf("Failed to list active tasks: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("Expected 2 active tasks, got %d", len(active))
	}
	if active[0].Title != "first" || active[1].Title != "third" {
		t.Errorf("Expected insertion order first, third; got %s, %s", active[0].Title, active[1].Title)
	}
}
