// ABOUTME: HTTP surface of the development onboarding agent
// ABOUTME: Routes run, artifact, tool and trace stream requests over the SQLite store

package fakeagent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/2389/coven-onboard/internal/agentapi"
	"github.com/2389/coven-onboard/internal/artifact"
	"github.com/2389/coven-onboard/internal/store"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultIdleTimeout  = 5 * time.Minute
)

// Config tunes the agent. Zero values take defaults.
type Config struct {
	// PollInterval is how often an open trace stream checks for new events.
	PollInterval time.Duration
	// IdleTimeout closes a trace stream that saw no new events for this long.
	IdleTimeout time.Duration
	// StepDelay is slept before each scripted event, to make runs observable.
	StepDelay time.Duration
	// Now overrides the clock for event timestamps.
	Now func() time.Time
}

// Server is the development agent.
type Server struct {
	store  store.Store
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	running    map[string]context.CancelFunc // run id -> cancel
	traceLocks map[string]*sync.Mutex
}

// New creates an agent over st. Pass nil logger for default.
func New(st store.Store, cfg Config, logger *slog.Logger) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		store:      st,
		cfg:        cfg,
		logger:     logger.With("component", "fakeagent"),
		ctx:        ctx,
		cancel:     cancel,
		running:    make(map[string]context.CancelFunc),
		traceLocks: make(map[string]*sync.Mutex),
	}
}

// Handler returns the agent's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/tools", s.handleListTools)
	mux.HandleFunc("GET /api/artifacts/{artifact_id}", s.handleGetArtifact)
	mux.HandleFunc("GET /api/trace/stream", s.handleTraceStream)
	mux.HandleFunc("POST /api/runs", s.handleCreateRun)
	mux.HandleFunc("POST /api/runs/{run_id}/cancel", s.handleCancelRun)
	return mux
}

// Close cancels in-flight runs, ends open streams and waits for runs to finish.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, agentapi.ToolsResponse{Tools: tools})
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	artifactID := r.PathValue("artifact_id")
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		sendJSONError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	a, err := s.store.GetArtifact(r.Context(), projectID, artifactID)
	if errors.Is(err, store.ErrNotFound) {
		sendJSONError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to read artifact", "artifact_id", artifactID, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// JSON artifacts are served inline, anything else as a JSON string.
	content := json.RawMessage(a.Content)
	if !json.Valid(a.Content) {
		encoded, err := json.Marshal(string(a.Content))
		if err != nil {
			sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		content = encoded
	}

	writeJSON(w, http.StatusOK, artifact.Document{
		ArtifactID: a.ArtifactID,
		ProjectID:  a.ProjectID,
		Digest:     a.Digest.String(),
		Content:    content,
	})
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, agentapi.ErrorResponse{Error: message})
}
