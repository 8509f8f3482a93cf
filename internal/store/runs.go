// ABOUTME: Run lifecycle persistence for the onboarding agent
// ABOUTME: Creates runs and moves them from running to a terminal status exactly once

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateRun inserts a new run. CreatedAt and UpdatedAt default to now and
// Status defaults to running.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	var input any
	if len(run.Input) > 0 {
		input = string(run.Input)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, project_id, trace_id, kind, input, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.ProjectID, run.TraceID, run.Kind, input, string(run.Status),
		run.CreatedAt.Format(timeLayout), run.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// GetRun returns a run by id or ErrNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var r Run
	var input sql.NullString
	var status, createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, project_id, trace_id, kind, input, status, created_at, updated_at
		FROM runs
		WHERE run_id = ?
	`, id).Scan(&r.ID, &r.ProjectID, &r.TraceID, &r.Kind, &input, &status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}

	if input.Valid {
		r.Input = []byte(input.String)
	}
	r.Status = RunStatus(status)
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// FinishRun sets the terminal status of a running run. It returns false when
// the run exists but already finished, and ErrNotFound when it does not exist.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status RunStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, updated_at = ?
		WHERE run_id = ? AND status = ?
	`, string(status), time.Now().UTC().Format(timeLayout), id, string(RunStatusRunning))
	if err != nil {
		return false, fmt.Errorf("updating run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	if _, err := s.GetRun(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
