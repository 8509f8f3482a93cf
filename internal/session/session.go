// ABOUTME: Onboarding session wiring manifest recovery, trace stream, and state machine
// ABOUTME: Publishes a fresh snapshot to subscribers after every successful mutation

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/2389/coven-onboard/internal/agentapi"
	"github.com/2389/coven-onboard/internal/artifact"
	"github.com/2389/coven-onboard/internal/cache"
	"github.com/2389/coven-onboard/internal/onboarding"
	"github.com/2389/coven-onboard/internal/projection"
	"github.com/2389/coven-onboard/internal/trace"
)

var (
	// ErrAlreadyStarted is returned by Start while a stream is running.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
)

// Config configures a Session. Zero durations and sizes take defaults.
type Config struct {
	BaseURL   string
	ProjectID string
	// TraceID, if set, scopes manifest fetches and runs before Start.
	TraceID string

	StreamRetryDelays   []time.Duration
	ManifestRetryDelays []time.Duration
	ManifestTimeout     time.Duration

	ToolsCacheTTL  time.Duration
	ToolsCacheSize int

	// HTTPClient is used for request/response calls. Streams use a copy
	// without a timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger

	// OnStreamError, if set, observes transport and validation errors from
	// the trace stream. It runs on the stream goroutine.
	OnStreamError func(error)
}

const (
	defaultManifestTimeout = 15 * time.Second
	defaultToolsCacheTTL   = 5 * time.Minute
	defaultToolsCacheSize  = 16
)

// Session owns one onboarding machine and everything that feeds it.
type Session struct {
	cfg         Config
	machine     *onboarding.Machine
	fetcher     *artifact.Fetcher
	stream      *trace.Client
	agent       *agentapi.Client
	tools       *cache.Cache[[]agentapi.Tool]
	broadcaster *Broadcaster
	logger      *slog.Logger

	mu       sync.Mutex
	traceID  string
	teardown func()
	starting bool
	closed   bool
}

// New creates a session for cfg.ProjectID. Nothing is fetched until Start.
func New(cfg Config) (*Session, error) {
	machine, err := onboarding.NewMachine(cfg.ProjectID, nil)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	if cfg.ManifestTimeout <= 0 {
		cfg.ManifestTimeout = defaultManifestTimeout
	}
	if cfg.ToolsCacheTTL <= 0 {
		cfg.ToolsCacheTTL = defaultToolsCacheTTL
	}
	if cfg.ToolsCacheSize <= 0 {
		cfg.ToolsCacheSize = defaultToolsCacheSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	requestClient := cfg.HTTPClient
	if requestClient == nil {
		requestClient = &http.Client{Timeout: 10 * time.Second}
	}
	streamClient := *requestClient
	streamClient.Timeout = 0

	tools := cache.New[[]agentapi.Tool](cfg.ToolsCacheTTL, cfg.ToolsCacheSize)

	return &Session{
		cfg:         cfg,
		machine:     machine,
		fetcher:     artifact.NewFetcher(cfg.BaseURL, requestClient, cfg.ManifestRetryDelays, logger),
		stream:      trace.NewClient(cfg.BaseURL, &streamClient, logger),
		agent:       agentapi.NewClient(cfg.BaseURL, requestClient, tools, logger),
		tools:       tools,
		broadcaster: NewBroadcaster(logger),
		logger:      logger.With("component", "session", "project_id", cfg.ProjectID),
		traceID:     cfg.TraceID,
	}, nil
}

// ProjectID returns the session's project.
func (s *Session) ProjectID() string { return s.cfg.ProjectID }

// TraceID returns the trace the session follows, or "" before Start.
func (s *Session) TraceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traceID
}

// Start seeds the machine from the server manifest and then follows traceID
// until ctx is cancelled or Stop is called. A manifest fetch failure aborts
// Start without opening the stream. A fetch that completes after ctx is
// cancelled is discarded.
func (s *Session) Start(ctx context.Context, traceID string) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.teardown != nil || s.starting:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.traceID = traceID
	s.starting = true
	s.mu.Unlock()

	err := s.recover(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.starting = false
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	if s.closed {
		return ErrClosed
	}

	s.teardown = s.stream.Stream(ctx, traceID, s.streamOptions(traceID))
	s.logger.Info("session started", "trace_id", traceID)
	return nil
}

// Stop tears down the trace stream. The machine keeps its state.
func (s *Session) Stop() {
	s.mu.Lock()
	teardown := s.teardown
	s.teardown = nil
	s.mu.Unlock()

	if teardown != nil {
		teardown()
		s.logger.Info("session stopped")
	}
}

// Resync fetches the server manifest again and applies it if one exists.
func (s *Session) Resync(ctx context.Context) error {
	if err := s.recover(ctx); err != nil {
		return fmt.Errorf("resyncing session: %w", err)
	}
	return nil
}

func (s *Session) recover(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.ManifestTimeout)
	defer cancel()

	manifest, err := s.fetcher.FetchManifest(fetchCtx, s.cfg.ProjectID, s.TraceID())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if manifest == nil {
		return nil
	}

	if err := s.machine.ApplyManifest(*manifest); err != nil {
		return fmt.Errorf("applying manifest: %w", err)
	}
	s.logger.Info("manifest applied", "status", manifest.Status)
	s.publish()
	return nil
}

func (s *Session) streamOptions(traceID string) trace.Options {
	return trace.Options{
		ProjectID:   s.cfg.ProjectID,
		RetryDelays: s.cfg.StreamRetryDelays,
		OnEvent:     s.applyEvent,
		OnError:     s.streamError,
		OnOpen: func() {
			s.logger.Info("trace stream connected", "trace_id", traceID)
		},
	}
}

func (s *Session) applyEvent(e onboarding.Event) {
	s.machine.ApplyEvent(e)
	s.publish()
}

func (s *Session) streamError(err error) {
	s.logger.Debug("trace stream error", "error", err)
	if s.cfg.OnStreamError != nil {
		s.cfg.OnStreamError(err)
	}
}

func (s *Session) publish() {
	s.broadcaster.Publish(s.machine.Snapshot())
}

// Reset clears the machine back to an empty snapshot and publishes it.
func (s *Session) Reset() {
	s.machine.Reset()
	s.publish()
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() onboarding.Snapshot {
	return s.machine.Snapshot()
}

// View returns the projection of the current state.
func (s *Session) View() projection.View {
	return projection.Build(s.machine.Snapshot())
}

// Subscribe returns a channel receiving each new snapshot, starting with the
// current one. It is closed when ctx is cancelled or the session closes.
func (s *Session) Subscribe(ctx context.Context) (<-chan onboarding.Snapshot, string) {
	ch, subID := s.broadcaster.Subscribe(ctx)
	s.publish()
	return ch, subID
}

// Tools lists the agent's tools, cached per session.
func (s *Session) Tools(ctx context.Context) ([]agentapi.Tool, error) {
	return s.agent.ListTools(ctx)
}

// Submit starts a run of kind on the session's trace. When the session has no
// trace yet the agent assigns one, which the session adopts.
func (s *Session) Submit(ctx context.Context, kind agentapi.RunKind, input json.RawMessage) (*agentapi.RunResponse, error) {
	resp, err := s.agent.CreateRun(ctx, agentapi.RunRequest{
		ProjectID: s.cfg.ProjectID,
		TraceID:   s.TraceID(),
		Kind:      kind,
		Input:     input,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.traceID == "" {
		s.traceID = resp.TraceID
	}
	s.mu.Unlock()

	s.logger.Info("run submitted", "run_id", resp.RunID, "kind", kind, "trace_id", resp.TraceID)
	return resp, nil
}

// Cancel asks the agent to stop a run.
func (s *Session) Cancel(ctx context.Context, runID string) error {
	return s.agent.CancelRun(ctx, runID)
}

// Close stops the stream, closes all subscriptions and releases the cache.
func (s *Session) Close() {
	s.Stop()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.broadcaster.Close()
	s.tools.Close()
}
