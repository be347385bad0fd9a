// Package store provides SQLite-backed persistence for goals, plans,
// tasks, plan feedback, and suspended-run snapshots.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates a missing row.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness violation, such as a second feedback
// submission for the same plan.
var ErrConflict = errors.New("conflict")

// SchemaVersion is the latest schema version supported by the migrator.
const SchemaVersion = 1

// Store provides SQLite-backed persistence for the planner.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
// Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// table-locked errors from concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// New returns a Store bound to an existing, migrated database handle.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate ensures the SQLite schema exists and is upgraded to SchemaVersion.
func Migrate(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current)
	if err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}

	if current >= SchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS goals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			description TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create goals table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS plans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			goal_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			summary TEXT NOT NULL,
			status TEXT NOT NULL,
			approved INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY(goal_id) REFERENCES goals(id)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create plans table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			plan_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			title TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			duration_minutes INTEGER NOT NULL DEFAULT 0,
			start_at TEXT NULL,
			end_at TEXT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(plan_id) REFERENCES plans(id)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create tasks table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS plan_feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			plan_id INTEGER NOT NULL UNIQUE,
			goal_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			action TEXT NOT NULL,
			feedback_text TEXT NOT NULL DEFAULT '',
			suggested_changes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			FOREIGN KEY(plan_id) REFERENCES plans(id)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create plan_feedback table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS run_snapshots (
			run_id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			node TEXT NOT NULL,
			state TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create run_snapshots table: %w", err)
	}

	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_plans_goal_id ON plans(goal_id);`)
	if err != nil {
		return fmt.Errorf("migrate: create idx_plans_goal_id: %w", err)
	}

	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_tasks_plan_id ON tasks(plan_id, position);`)
	if err != nil {
		return fmt.Errorf("migrate: create idx_tasks_plan_id: %w", err)
	}

	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_run_snapshots_user ON run_snapshots(user_id);`)
	if err != nil {
		return fmt.Errorf("migrate: create idx_run_snapshots_user: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?);`, SchemaVersion)
	if err != nil {
		return fmt.Errorf("migrate: record schema version: %w", err)
	}

	return tx.Commit()
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}
