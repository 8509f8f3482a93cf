// ABOUTME: Append-only trace event log with per-trace sequence assignment
// ABOUTME: Backs the SSE replay of onboarding events

package store

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultEventLimit = 500
	maxEventLimit     = 5000
)

// AppendEvent assigns the next sequence number for traceID inside a
// transaction, encodes the payload with it and inserts the row.
func (s *SQLiteStore) AppendEvent(ctx context.Context, traceID, projectID, eventType string, ts time.Time, encode EncodeFunc) (*TraceEvent, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM trace_events WHERE trace_id = ?`,
		traceID,
	).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("reading next sequence: %w", err)
	}

	payload, err := encode(seq)
	if err != nil {
		return nil, fmt.Errorf("encoding event %d: %w", seq, err)
	}

	ts = ts.UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO trace_events (trace_id, seq, project_id, type, payload, ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`, traceID, seq, projectID, eventType, string(payload), ts.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing event: %w", err)
	}

	s.logger.Debug("appended trace event",
		"trace_id", traceID,
		"seq", seq,
		"type", eventType,
	)

	return &TraceEvent{
		TraceID:   traceID,
		Seq:       seq,
		ProjectID: projectID,
		Type:      eventType,
		Payload:   payload,
		TS:        ts,
	}, nil
}

// GetEvents returns up to limit events of traceID with seq > afterSeq, oldest
// first. A limit <= 0 uses the default page size.
func (s *SQLiteStore) GetEvents(ctx context.Context, traceID string, afterSeq int64, limit int) ([]*TraceEvent, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, seq, project_id, type, payload, ts
		FROM trace_events
		WHERE trace_id = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, traceID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*TraceEvent
	for rows.Next() {
		var e TraceEvent
		var payload, ts string
		if err := rows.Scan(&e.TraceID, &e.Seq, &e.ProjectID, &e.Type, &payload, &ts); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Payload = []byte(payload)
		if e.TS, err = parseTime(ts); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}
