// ABOUTME: HTTP client for the onboarding agent's run and tool endpoints
// ABOUTME: Creates and cancels runs and caches the tool catalog

// Package agentapi is the client side of the agent service's command surface:
// starting runs, cancelling them and listing tools. Events produced by runs are
// observed through the trace stream, not through this package.
package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-onboard/internal/cache"
)

const toolsCacheKey = "tools"

var (
	// ErrInvalidRun is returned before any request is sent when a run request
	// is missing its project or has an unknown kind.
	ErrInvalidRun = errors.New("invalid run request")
)

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d request_id=%s body=%s", e.StatusCode, e.RequestID, e.Body)
}

// Client talks to the agent service.
type Client struct {
	baseURL string
	http    *http.Client
	tools   *cache.Cache[[]Tool]
	logger  *slog.Logger
}

// NewClient creates a client. tools may be nil to disable caching of ListTools.
func NewClient(baseURL string, httpClient *http.Client, tools *cache.Cache[[]Tool], logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		tools:   tools,
		logger:  logger.With("component", "agentapi"),
	}
}

// CreateRun asks the agent to start a run.
func (c *Client) CreateRun(ctx context.Context, req RunRequest) (*RunResponse, error) {
	if req.ProjectID == "" {
		return nil, fmt.Errorf("%w: project_id is required", ErrInvalidRun)
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRun, req.Kind)
	}
	if len(req.Input) > 0 && !json.Valid(req.Input) {
		return nil, fmt.Errorf("%w: input is not valid JSON", ErrInvalidRun)
	}

	var resp RunResponse
	if err := c.do(ctx, http.MethodPost, "/api/runs", req, &resp); err != nil {
		return nil, fmt.Errorf("creating %s run: %w", req.Kind, err)
	}
	return &resp, nil
}

// CancelRun asks the agent to stop a run.
func (c *Client) CancelRun(ctx context.Context, runID string) error {
	path := "/api/runs/" + url.PathEscape(runID) + "/cancel"
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("cancelling run %s: %w", runID, err)
	}
	return nil
}

// ListTools returns the agent's tool catalog, served from cache when fresh.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	if c.tools != nil {
		if tools, ok := c.tools.Get(toolsCacheKey); ok {
			return append([]Tool(nil), tools...), nil
		}
	}

	var resp ToolsResponse
	if err := c.do(ctx, http.MethodGet, "/api/tools", nil, &resp); err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}

	if c.tools != nil {
		c.tools.Set(toolsCacheKey, resp.Tools)
	}
	return append([]Tool(nil), resp.Tools...), nil
}

// InvalidateTools drops the cached tool catalog.
func (c *Client) InvalidateTools() {
	if c.tools != nil {
		c.tools.Delete(toolsCacheKey)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Debug("agent request failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"request_id", requestID)
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
			RequestID:  requestID,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
