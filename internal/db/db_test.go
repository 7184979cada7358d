package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenAppliesPragmas(t *testing.T) {
	// A nested path: Open creates the directory itself.
	db, err := Open(filepath.Join(t.TempDir(), "data", "planner.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("Expected journal_mode wal, got %s", mode)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("Failed to query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("Expected foreign_keys on, got %d", fk)
	}
}

func TestInitCreatesSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"goals", "milestones", "tasks", "subtasks", "subtask_dependencies", "sessions"} {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
		if err != nil {
			t.Fatalf("Failed to query sqlite_master for %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("Expected table %s to exist", table)
		}
	}

	// The schema is re-runnable; a second Init must be a no-op.
	if err := db.Init(ctx); err != nil {
		t.Fatalf("Second Init failed: %v", err)
	}
}

func TestChangeHook(t *testing.T) {
	db := openTestDB(t)

	calls := 0
	db.SetOnChange(func(ctx context.Context) { calls++ })

	createTestTask(t, db, "First write")
	if calls == 0 {
		t.Fatalf("Expected the hook to fire after a write")
	}

	before := calls
	db.DisableOnChange()
	createTestTask(t, db, "Silent write")
	if calls != before {
		t.Errorf("Expected no hook calls while paused, got %d extra", calls-before)
	}

	db.EnableOnChange()
	createTestTask(t, db, "Audible write")
	if calls <= before {
		t.Errorf("Expected the hook to fire again after resuming")
	}
}
