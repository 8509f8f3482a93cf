// ABOUTME: Store interface and data types for the onboarding agent's persistence
// ABOUTME: Defines trace events, artifacts, runs, and the sentinel errors

package store

import (
	"context"
	"errors"
	"time"

	"github.com/opencontainers/go-digest"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDigestMismatch is returned when artifact content does not match its recorded digest
var ErrDigestMismatch = errors.New("artifact digest mismatch")

// TraceEvent is one persisted entry of a trace's event log.
type TraceEvent struct {
	TraceID   string
	Seq       int64
	ProjectID string
	Type      string
	Payload   []byte // full event JSON, including type, ts and seq
	TS        time.Time
}

// EncodeFunc renders an event payload once its sequence number is known.
type EncodeFunc func(seq int64) ([]byte, error)

// Artifact is a stored, content-addressed document.
type Artifact struct {
	ProjectID  string
	ArtifactID string
	Digest     digest.Digest
	Content    []byte
	UpdatedAt  time.Time
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// Run is a unit of agent work started by a client.
type Run struct {
	ID        string
	ProjectID string
	TraceID   string
	Kind      string
	Input     []byte // raw JSON, may be nil
	Status    RunStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the persistence surface used by the agent service.
type Store interface {
	// AppendEvent assigns the next sequence number for traceID, encodes the
	// payload with it and persists the event atomically.
	AppendEvent(ctx context.Context, traceID, projectID, eventType string, ts time.Time, encode EncodeFunc) (*TraceEvent, error)
	// GetEvents returns events of traceID with seq > afterSeq in seq order.
	GetEvents(ctx context.Context, traceID string, afterSeq int64, limit int) ([]*TraceEvent, error)

	PutArtifact(ctx context.Context, projectID, artifactID string, content []byte) (*Artifact, error)
	GetArtifact(ctx context.Context, projectID, artifactID string) (*Artifact, error)

	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	// FinishRun moves a running run to status. It reports false when the run
	// had already finished.
	FinishRun(ctx context.Context, id string, status RunStatus) (bool, error)

	Close() error
}
