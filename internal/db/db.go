// Package db persists tasks, goals, subtasks and archived sessions in a
// single SQLite file. Every write funnels through *DB so the change hook
// fires once per mutation; the proposal store rides along because staged
// breakdowns are applied through the same handle.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	embedsql "github.com/primowaterSFMC/sqrly/embed/sql"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
	Proposals *ProposalStore

	changeMu     sync.RWMutex
	change       func(ctx context.Context)
	changePaused bool
}

// executor lets store methods run against either the DB or a transaction.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA foreign_keys=ON;",
}

// Open opens the SQLite file at path, creating its directory if needed.
// ":memory:" gives a private throwaway database.
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection: SQLite serializes writes anyway, and it keeps
	// the pragmas below in force for every statement.
	sqldb.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if _, err := sqldb.Exec(pragma); err != nil {
			sqldb.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{DB: sqldb, Proposals: NewProposalStore()}, nil
}

// Init applies the embedded schema. The schema is written to be re-runnable,
// so Init is called on every open.
func (db *DB) Init(ctx context.Context) error {
	return db.Migrate(ctx, embedsql.Schema)
}

func (db *DB) Migrate(ctx context.Context, schema string) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	db.triggerChange(ctx)
	return nil
}

// SetOnChange registers a hook invoked after every committed mutation.
// The auto-export archive hangs off this.
func (db *DB) SetOnChange(fn func(ctx context.Context)) {
	db.changeMu.Lock()
	defer db.changeMu.Unlock()
	db.change = fn
}

// DisableOnChange pauses the hook, for bulk operations that should not
// fire it per statement. EnableOnChange resumes it.
func (db *DB) DisableOnChange() {
	db.changeMu.Lock()
	defer db.changeMu.Unlock()
	db.changePaused = true
}

func (db *DB) EnableOnChange() {
	db.changeMu.Lock()
	defer db.changeMu.Unlock()
	db.changePaused = false
}

func (db *DB) triggerChange(ctx context.Context) {
	db.changeMu.RLock()
	fn, paused := db.change, db.changePaused
	db.changeMu.RUnlock()

	if fn == nil || paused {
		return
	}
	fn(ctx)
}
