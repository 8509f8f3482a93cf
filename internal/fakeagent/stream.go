// ABOUTME: SSE trace stream handler replaying stored events and tailing new ones
// ABOUTME: Resumes after Last-Event-ID and closes after an idle timeout

package fakeagent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-onboard/internal/store"
)

// replayPageSize bounds each store read while replaying.
const replayPageSize = 200

func (s *Server) handleTraceStream(w http.ResponseWriter, r *http.Request) {
	traceID := r.URL.Query().Get("trace_id")
	if traceID == "" {
		sendJSONError(w, http.StatusBadRequest, "trace_id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	after := parseLastEventID(r.Header.Get("Last-Event-ID"))
	logger := s.logger.With("trace_id", traceID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	logger.Debug("trace stream opened", "after", after)

	ctx := r.Context()
	after, _, err := s.sendEventsAfter(ctx, w, flusher, traceID, after)
	if err != nil {
		logger.Warn("trace replay failed", "error", err)
		return
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	idleTimer := time.NewTimer(s.cfg.IdleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-idleTimer.C:
			// Idle too long; the client resumes with Last-Event-ID.
			logger.Debug("trace stream idle, closing")
			return
		case <-ticker.C:
			next, sent, err := s.sendEventsAfter(ctx, w, flusher, traceID, after)
			if err != nil {
				logger.Warn("trace poll failed", "error", err)
				return
			}
			if sent > 0 {
				after = next
				if !idleTimer.Stop() {
					select {
					case <-idleTimer.C:
					default:
					}
				}
				idleTimer.Reset(s.cfg.IdleTimeout)
			}
		}
	}
}

// sendEventsAfter writes every stored event after seq and returns the last
// seq written and how many were sent.
func (s *Server) sendEventsAfter(ctx context.Context, w io.Writer, flusher http.Flusher, traceID string, after int64) (int64, int, error) {
	sent := 0
	for {
		events, err := s.store.GetEvents(ctx, traceID, after, replayPageSize)
		if err != nil {
			return after, sent, fmt.Errorf("reading events: %w", err)
		}
		for _, e := range events {
			writeSSEEvent(w, e)
			after = e.Seq
			sent++
		}
		if len(events) > 0 {
			flusher.Flush()
		}
		if len(events) < replayPageSize {
			return after, sent, nil
		}
	}
}

// writeSSEEvent writes a stored event as one SSE message.
func writeSSEEvent(w io.Writer, e *store.TraceEvent) {
	fmt.Fprintf(w, "id: %d\n", e.Seq)
	fmt.Fprintf(w, "event: %s\n", e.Type)
	fmt.Fprintf(w, "data: %s\n\n", e.Payload)
}

// parseLastEventID returns the resume position, or 0 when absent or invalid.
func parseLastEventID(value string) int64 {
	seq, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || seq < 0 {
		return 0
	}
	return seq
}
