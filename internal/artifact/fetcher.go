// ABOUTME: HTTP fetcher for server-held artifacts with bounded retries
// ABOUTME: Recovers the onboarding manifest, treating 404 as "not created yet"

package artifact

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

	"github.com/2389/coven-onboard/internal/onboarding"
)

// ManifestArtifactID is the artifact holding the onboarding manifest.
const ManifestArtifactID = "onboarding-manifest"

const artifactsPath = "/api/artifacts/"

// DefaultRetryDelays is the retry schedule for transient failures.
var DefaultRetryDelays = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

var (
	// ErrNotFound is returned by Fetch when the server has no such artifact.
	ErrNotFound = errors.New("artifact not found")

	// ErrNoContent is returned when a document carries no content.
	ErrNoContent = errors.New("artifact has no content")
)

// StatusError is a non-2xx response other than 404.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("artifact request failed: status=%d body=%s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Document is the wire form of an artifact.
type Document struct {
	ArtifactID string          `json:"artifact_id"`
	ProjectID  string          `json:"project_id"`
	Digest     string          `json:"digest,omitempty"`
	Content    json.RawMessage `json:"content"`
}

// Payload returns the artifact JSON, unwrapping string-encoded content.
func (d *Document) Payload() ([]byte, error) {
	raw := bytes.TrimSpace(d.Content)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrNoContent
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decoding string content: %w", err)
	}
	if strings.TrimSpace(s) == "" {
		return nil, ErrNoContent
	}
	return []byte(s), nil
}

// Fetcher reads artifacts from an agent service.
type Fetcher struct {
	baseURL string
	http    *http.Client
	delays  []time.Duration
	logger  *slog.Logger

	wait func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a fetcher. Nil httpClient and logger use defaults; an
// empty retryDelays uses DefaultRetryDelays.
func NewFetcher(baseURL string, httpClient *http.Client, retryDelays []time.Duration, logger *slog.Logger) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if len(retryDelays) == 0 {
		retryDelays = DefaultRetryDelays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
		delays:  retryDelays,
		logger:  logger.With("component", "artifact"),
		wait:    sleepContext,
	}
}

// FetchManifest returns the validated manifest for a project, or nil when the
// server has none yet.
func (f *Fetcher) FetchManifest(ctx context.Context, projectID, traceID string) (*onboarding.Manifest, error) {
	doc, err := f.Fetch(ctx, projectID, traceID, ManifestArtifactID)
	if errors.Is(err, ErrNotFound) {
		f.logger.Debug("no manifest on server", "project_id", projectID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	payload, err := doc.Payload()
	if err != nil {
		return nil, fmt.Errorf("reading manifest artifact: %w", err)
	}
	manifest, err := onboarding.ValidateManifest(payload)
	if err != nil {
		return nil, fmt.Errorf("reading manifest artifact: %w", err)
	}
	return manifest, nil
}

// Fetch retrieves one artifact document, retrying transient failures.
func (f *Fetcher) Fetch(ctx context.Context, projectID, traceID, artifactID string) (*Document, error) {
	for attempt := 0; ; attempt++ {
		doc, retry, err := f.fetchOnce(ctx, projectID, traceID, artifactID)
		if err == nil {
			return doc, nil
		}
		if !retry || attempt >= len(f.delays) {
			return nil, fmt.Errorf("fetching artifact %s: %w", artifactID, err)
		}

		delay := f.delays[attempt]
		f.logger.Warn("artifact fetch failed, retrying",
			"artifact_id", artifactID,
			"attempt", attempt+1,
			"retry_in", delay,
			"error", err)
		if err := f.wait(ctx, delay); err != nil {
			return nil, fmt.Errorf("fetching artifact %s: %w", artifactID, err)
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, projectID, traceID, artifactID string) (doc *Document, retry bool, err error) {
	q := url.Values{}
	q.Set("project_id", projectID)
	if traceID != "" {
		q.Set("trace_id", traceID)
	}
	endpoint := f.baseURL + artifactsPath + url.PathEscape(artifactID) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		// Network failures are retryable unless the caller gave up.
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		return nil, statusErr.Temporary(), statusErr
	}

	var out Document
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("decoding artifact response: %w", err)
	}
	return &out, false, nil
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
