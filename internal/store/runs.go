package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunSnapshot is the minimal resumption state for a suspended workflow
// run: which node it is waiting at and the serialized graph state.
type RunSnapshot struct {
	RunID     string
	UserID    int64
	Node      string
	State     []byte
	UpdatedAt time.Time
}

// SaveRunSnapshot upserts the snapshot for a run.
func (s *Store) SaveRunSnapshot(ctx context.Context, snap RunSnapshot) error {
	if snap.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if snap.Node == "" {
		return fmt.Errorf("node is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_snapshots (run_id, user_id, node, state, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET node = excluded.node, state = excluded.state, updated_at = excluded.updated_at;`,
		snap.RunID, snap.UserID, snap.Node, string(snap.State),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save run snapshot: %w", err)
	}
	return nil
}

// LoadRunSnapshot fetches a snapshot by run ID.
func (s *Store) LoadRunSnapshot(ctx context.Context, runID string) (RunSnapshot, error) {
	return s.scanSnapshot(s.db.QueryRowContext(ctx,
		`SELECT run_id, user_id, node, state, updated_at FROM run_snapshots WHERE run_id = ?;`, runID))
}

// LoadRunSnapshotForUser fetches the user's suspended run, if any. Runs
// are user-scoped serially, so at most one exists.
func (s *Store) LoadRunSnapshotForUser(ctx context.Context, userID int64) (RunSnapshot, error) {
	return s.scanSnapshot(s.db.QueryRowContext(ctx,
		`SELECT run_id, user_id, node, state, updated_at FROM run_snapshots
		 WHERE user_id = ? ORDER BY updated_at DESC LIMIT 1;`, userID))
}

// DeleteRunSnapshot removes a snapshot. Deleting a missing snapshot is a
// no-op.
func (s *Store) DeleteRunSnapshot(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM run_snapshots WHERE run_id = ?;`, runID)
	if err != nil {
		return fmt.Errorf("delete run snapshot: %w", err)
	}
	return nil
}

func (s *Store) scanSnapshot(row *sql.Row) (RunSnapshot, error) {
	var snap RunSnapshot
	var state, updatedAt string
	err := row.Scan(&snap.RunID, &snap.UserID, &snap.Node, &state, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSnapshot{}, fmt.Errorf("run snapshot: %w", ErrNotFound)
	}
	if err != nil {
		return RunSnapshot{}, fmt.Errorf("scan run snapshot: %w", err)
	}

	snap.State = []byte(state)
	if snap.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return RunSnapshot{}, fmt.Errorf("parse snapshot updated_at: %w", err)
	}
	return snap, nil
}
