// ABOUTME: Run lifecycle for the development agent
// ABOUTME: Accepts runs, executes scripts one at a time per trace, and handles cancellation

package fakeagent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-onboard/internal/agentapi"
	"github.com/2389/coven-onboard/internal/store"
)

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req agentapi.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ProjectID == "" {
		sendJSONError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if !req.Kind.Valid() {
		sendJSONError(w, http.StatusBadRequest, "unknown run kind")
		return
	}
	if req.TraceID == "" {
		req.TraceID = uuid.NewString()
	}

	run := &store.Run{
		ID:        uuid.NewString(),
		ProjectID: req.ProjectID,
		TraceID:   req.TraceID,
		Kind:      string(req.Kind),
		Input:     req.Input,
	}
	if err := s.store.CreateRun(r.Context(), run); err != nil {
		s.logger.Error("failed to create run", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !s.start(run) {
		sendJSONError(w, http.StatusServiceUnavailable, "agent shutting down")
		return
	}

	s.logger.Info("run accepted",
		"run_id", run.ID,
		"kind", run.Kind,
		"trace_id", run.TraceID,
		"request_id", r.Header.Get("X-Request-ID"))
	writeJSON(w, http.StatusAccepted, agentapi.RunResponse{RunID: run.ID, TraceID: run.TraceID})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	finished, err := s.store.FinishRun(r.Context(), runID, store.RunStatusCancelled)
	if errors.Is(err, store.ErrNotFound) {
		sendJSONError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to cancel run", "run_id", runID, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !finished {
		sendJSONError(w, http.StatusConflict, "run already finished")
		return
	}

	s.mu.Lock()
	if cancel, ok := s.running[runID]; ok {
		cancel()
	}
	s.mu.Unlock()

	s.logger.Info("run cancelled", "run_id", runID)
	w.WriteHeader(http.StatusAccepted)
}

// start launches run in the background. It returns false once Close was called.
func (s *Server) start(run *store.Run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return false
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.running[run.ID] = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, run.ID)
			s.mu.Unlock()
			cancel()
		}()
		s.execute(ctx, run)
	}()
	return true
}

// execute runs the script for run while holding its trace's lock.
func (s *Server) execute(ctx context.Context, run *store.Run) {
	lock := s.traceLock(run.TraceID)
	lock.Lock()
	defer lock.Unlock()

	logger := s.logger.With("run_id", run.ID, "trace_id", run.TraceID, "kind", run.Kind)

	status := store.RunStatusCompleted
	if err := s.runScript(ctx, run); err != nil {
		if ctx.Err() != nil {
			logger.Info("run stopped", "reason", ctx.Err())
			return
		}
		logger.Error("run failed", "error", err)
		status = store.RunStatusFailed
	}

	if _, err := s.store.FinishRun(context.WithoutCancel(ctx), run.ID, status); err != nil {
		logger.Error("failed to record run status", "error", err)
		return
	}
	logger.Info("run finished", "status", status)
}

func (s *Server) traceLock(traceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.traceLocks[traceID]
	if !ok {
		lock = &sync.Mutex{}
		s.traceLocks[traceID] = lock
	}
	return lock
}
