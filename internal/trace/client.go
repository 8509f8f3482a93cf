// ABOUTME: Supervised SSE client for onboarding trace streams
// ABOUTME: Validates each message, reconnects with capped backoff, and tears down cleanly

package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/2389/coven-onboard/internal/onboarding"
)

const streamPath = "/api/trace/stream"

// DefaultRetryDelays is the reconnect schedule used when Options.RetryDelays is empty.
var DefaultRetryDelays = []time.Duration{
	500 * time.Millisecond,
	1500 * time.Millisecond,
	3000 * time.Millisecond,
}

// ErrStreamClosed is reported when the server ends the stream.
var ErrStreamClosed = errors.New("stream closed by server")

// TransportError wraps a connection-level failure. Attempt counts failures
// since the last successful open, starting at 1.
type TransportError struct {
	Attempt int
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("trace stream (attempt %d): %v", e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Options configures one stream subscription.
type Options struct {
	OnEvent     func(onboarding.Event)
	OnError     func(error)
	OnOpen      func()
	RetryDelays []time.Duration
	ProjectID   string
}

// Backoff returns the delay before reconnect attempt (0-based). Attempts past
// the end of delays reuse the last delay.
func Backoff(delays []time.Duration, attempt int) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	return delays[min(attempt, len(delays)-1)]
}

// Client opens trace streams against one agent service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	// wait blocks for d or until ctx is done.
	wait func(ctx context.Context, d time.Duration) error
}

// NewClient creates a stream client. Pass nil httpClient or logger for defaults.
// The HTTP client must not set a Timeout, since streams are long-lived.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		logger:  logger.With("component", "trace"),
		wait:    sleepContext,
	}
}

// Stream subscribes to traceID until the returned teardown is called or ctx
// is cancelled. Teardown is idempotent and, once it returns, no new callback
// starts. Calling it from inside a callback is allowed.
func (c *Client) Stream(ctx context.Context, traceID string, opts Options) (teardown func()) {
	delays := opts.RetryDelays
	if len(delays) == 0 {
		delays = DefaultRetryDelays
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &subscription{
		client:  c,
		ctx:     subCtx,
		cancel:  cancel,
		traceID: traceID,
		opts:    opts,
		delays:  delays,
		logger:  c.logger.With("trace_id", traceID),
		done:    make(chan struct{}),
	}
	go s.run()
	return s.teardown
}

type subscription struct {
	client  *Client
	ctx     context.Context
	cancel  context.CancelFunc
	traceID string
	opts    Options
	delays  []time.Duration
	logger  *slog.Logger

	lastEventID string
	delivering  atomic.Bool
	done        chan struct{}
}

func (s *subscription) teardown() {
	s.cancel()
	if s.delivering.Load() {
		// Called from a callback; the loop exits once it returns.
		return
	}
	<-s.done
}

func (s *subscription) run() {
	defer close(s.done)
	defer s.cancel()

	attempt := 0
	for {
		opened, err := s.connect()
		if s.ctx.Err() != nil {
			return
		}
		if opened {
			attempt = 0
		}

		delay := Backoff(s.delays, attempt)
		attempt++
		s.logger.Warn("trace stream interrupted",
			"attempt", attempt,
			"retry_in", delay,
			"error", err)
		s.reportError(&TransportError{Attempt: attempt, Err: err})

		if err := s.client.wait(s.ctx, delay); err != nil {
			return
		}
	}
}

// connect runs one connection until it fails. opened reports whether the
// server accepted the stream.
func (s *subscription) connect() (opened bool, err error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.streamURL(), nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.lastEventID != "" {
		req.Header.Set("Last-Event-ID", s.lastEventID)
	}

	resp, err := s.client.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("connecting: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("stream returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	s.logger.Debug("trace stream open", "last_event_id", s.lastEventID)
	if s.opts.OnOpen != nil {
		s.deliver(s.opts.OnOpen)
	}

	dec := newDecoder(resp.Body)
	for {
		msg, err := dec.next()
		if errors.Is(err, io.EOF) {
			return true, ErrStreamClosed
		}
		if err != nil {
			return true, fmt.Errorf("reading stream: %w", err)
		}
		if msg.HasID {
			s.lastEventID = msg.ID
		}
		if msg.Data != "" {
			s.handleMessage(msg)
		}
		if s.ctx.Err() != nil {
			return true, s.ctx.Err()
		}
	}
}

func (s *subscription) handleMessage(msg message) {
	ev, err := onboarding.ParseEvent([]byte(msg.Data))
	if err != nil {
		s.logger.Debug("dropping invalid trace message", "event", msg.Event, "id", msg.ID, "error", err)
		s.reportError(fmt.Errorf("trace message %q: %w", msg.ID, err))
		return
	}
	if msg.Event != "" && msg.Event != string(ev.Kind()) {
		s.logger.Debug("sse event name differs from payload type", "event", msg.Event, "type", ev.Kind())
	}
	if s.opts.OnEvent != nil {
		s.deliver(func() { s.opts.OnEvent(ev) })
	}
}

func (s *subscription) reportError(err error) {
	if s.opts.OnError != nil {
		s.deliver(func() { s.opts.OnError(err) })
	}
}

// deliver runs fn unless the subscription has been torn down.
func (s *subscription) deliver(fn func()) {
	if s.ctx.Err() != nil {
		return
	}
	s.delivering.Store(true)
	defer s.delivering.Store(false)
	fn()
}

func (s *subscription) streamURL() string {
	q := url.Values{}
	q.Set("trace_id", s.traceID)
	if s.opts.ProjectID != "" {
		q.Set("project_id", s.opts.ProjectID)
	}
	return s.client.baseURL + streamPath + "?" + q.Encode()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
