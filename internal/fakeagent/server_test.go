// ABOUTME: End-to-end tests for the development agent over HTTP
// ABOUTME: Drives scripted runs, replays the trace stream, and checks manifest checkpoints

package fakeagent

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-onboard/internal/agentapi"
	"github.com/2389/coven-onboard/internal/artifact"
	"github.com/2389/coven-onboard/internal/onboarding"
	"github.com/2389/coven-onboard/internal/store"
	"github.com/2389/coven-onboard/internal/trace"
)

const testProject = "proj-1"

type testAgent struct {
	server *Server
	store  *store.SQLiteStore
	http   *httptest.Server
	api    *agentapi.Client
}

func setupAgent(t *testing.T, cfg Config) *testAgent {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	agent := New(st, cfg, nil)
	srv := httptest.NewServer(agent.Handler())
	t.Cleanup(func() {
		agent.Close()
		srv.Close()
		st.Close()
	})

	return &testAgent{
		server: agent,
		store:  st,
		http:   srv,
		api:    agentapi.NewClient(srv.URL, srv.Client(), nil, nil),
	}
}

// runAndWait submits a run and waits for it to leave the running state.
func (a *testAgent) runAndWait(t *testing.T, traceID string, kind agentapi.RunKind, input string) *store.Run {
	t.Helper()

	req := agentapi.RunRequest{ProjectID: testProject, TraceID: traceID, Kind: kind}
	if input != "" {
		req.Input = json.RawMessage(input)
	}
	resp, err := a.api.CreateRun(context.Background(), req)
	require.NoError(t, err)
	if traceID != "" {
		require.Equal(t, traceID, resp.TraceID)
	}

	var run *store.Run
	require.Eventually(t, func() bool {
		run, err = a.store.GetRun(context.Background(), resp.RunID)
		return err == nil && run.Status != store.RunStatusRunning
	}, 5*time.Second, 5*time.Millisecond)
	return run
}

func (a *testAgent) eventTypes(t *testing.T, traceID string) []string {
	t.Helper()
	events, err := a.store.GetEvents(context.Background(), traceID, 0, 0)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestRuns_CanonicalLockSequence(t *testing.T) {
	a := setupAgent(t, Config{})
	traceID := "trace-1"

	for _, kind := range agentapi.RunKinds {
		run := a.runAndWait(t, traceID, kind, "")
		assert.Equal(t, store.RunStatusCompleted, run.Status, kind)
	}

	assert.Equal(t, []string{
		"SPECS_DRAFT_UPDATED",
		"SPECS_CONFIRMATION_READY",
		"STACKS_RECOMMENDED",
		"STACK_SELECTED",
		"TEMPLATES_LISTED",
		"TEMPLATES_LOCKED",
	}, a.eventTypes(t, traceID))

	fetcher := artifact.NewFetcher(a.http.URL, a.http.Client(), nil, nil)
	manifest, err := fetcher.FetchManifest(context.Background(), testProject, traceID)
	require.NoError(t, err)
	require.NotNil(t, manifest)

	assert.Equal(t, onboarding.StatusLocked, manifest.Status)
	require.NotNil(t, manifest.Stack)
	assert.Equal(t, "go-htmx-sqlite", manifest.Stack.ID)
	assert.NotEmpty(t, manifest.SpecsHash)
	require.NotNil(t, manifest.Templates)
	assert.Len(t, manifest.Templates.Items, 2)
	assert.NotNil(t, manifest.Templates.LockedAt)

	// The lock artifact holds the locked template list under the announced digest.
	events, err := a.store.GetEvents(context.Background(), traceID, 5, 1)
	require.NoError(t, err)
	ev, err := onboarding.ParseEvent(events[0].Payload)
	require.NoError(t, err)
	locked := ev.(*onboarding.TemplatesLocked)
	assert.Equal(t, locked.LockDigest, manifest.Templates.LockDigest)

	lock, err := a.store.GetArtifact(context.Background(), testProject, locked.LockArtifactID)
	require.NoError(t, err)
	assert.Equal(t, locked.LockDigest, lock.Digest.String())
}

func TestRuns_SelectStackByID(t *testing.T) {
	a := setupAgent(t, Config{})
	traceID := "trace-1"

	a.runAndWait(t, traceID, agentapi.RunSpecsDraft, `{"title":"Shop"}`)
	a.runAndWait(t, traceID, agentapi.RunConfirmSpecs, "")
	a.runAndWait(t, traceID, agentapi.RunSelectStack, `{"stack_id":"python-django-postgres"}`)

	machine, err := a.server.replay(context.Background(), traceID, testProject)
	require.NoError(t, err)
	snap := machine.Snapshot()
	assert.Equal(t, onboarding.StatusStackSelected, snap.Status)
	assert.Equal(t, "python-django-postgres", snap.SelectedStackID)
	require.Len(t, snap.Templates, 1)
	assert.Equal(t, "django-app", snap.Templates[0].ID)
	assert.JSONEq(t, `{"title":"Shop"}`, string(snap.SpecsDraft))

	// Re-selecting does not recommend again.
	a.runAndWait(t, traceID, agentapi.RunSelectStack, `{"stack_id":"go-htmx-sqlite"}`)
	types := a.eventTypes(t, traceID)
	assert.Equal(t, "TEMPLATES_LISTED", types[len(types)-1])
	count := 0
	for _, typ := range types {
		if typ == "STACKS_RECOMMENDED" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRuns_PreconditionFailuresEmitErrors(t *testing.T) {
	tests := []struct {
		kind  agentapi.RunKind
		input string
		code  string
	}{
		{agentapi.RunLockTemplates, "", CodeTemplatesMissing},
		{agentapi.RunConfirmSpecs, "", CodeDraftMissing},
		{agentapi.RunSelectStack, "", CodeSpecsUnconfirmed},
		{agentapi.RunSpecsDraft, `["not","an","object"]`, CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			a := setupAgent(t, Config{})

			run := a.runAndWait(t, "trace-1", tt.kind, tt.input)
			assert.Equal(t, store.RunStatusCompleted, run.Status)

			events, err := a.store.GetEvents(context.Background(), "trace-1", 0, 0)
			require.NoError(t, err)
			require.Len(t, events, 1)
			ev, err := onboarding.ParseEvent(events[0].Payload)
			require.NoError(t, err)
			require.IsType(t, &onboarding.ErrorEvent{}, ev)
			assert.Equal(t, tt.code, ev.(*onboarding.ErrorEvent).Code)
		})
	}
}

func TestRuns_UnknownStack(t *testing.T) {
	a := setupAgent(t, Config{})

	a.runAndWait(t, "trace-1", agentapi.RunSpecsDraft, "")
	a.runAndWait(t, "trace-1", agentapi.RunConfirmSpecs, "")
	a.runAndWait(t, "trace-1", agentapi.RunSelectStack, `{"stack_id":"cobol-mainframe"}`)

	types := a.eventTypes(t, "trace-1")
	assert.Equal(t, "ERROR", types[len(types)-1])
}

func TestRuns_AssignsTraceID(t *testing.T) {
	a := setupAgent(t, Config{})

	resp, err := a.api.CreateRun(context.Background(), agentapi.RunRequest{ProjectID: testProject, Kind: agentapi.RunSpecsDraft})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.TraceID)
	assert.NotEmpty(t, resp.RunID)
}

func TestRuns_Cancel(t *testing.T) {
	a := setupAgent(t, Config{StepDelay: time.Hour})
	ctx := context.Background()

	resp, err := a.api.CreateRun(ctx, agentapi.RunRequest{ProjectID: testProject, TraceID: "trace-1", Kind: agentapi.RunSpecsDraft})
	require.NoError(t, err)

	require.NoError(t, a.api.CancelRun(ctx, resp.RunID))

	run, err := a.store.GetRun(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusCancelled, run.Status)

	err = a.api.CancelRun(ctx, resp.RunID)
	var apiErr *agentapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	err = a.api.CancelRun(ctx, "missing")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	assert.Empty(t, a.eventTypes(t, "trace-1"), "cancelled run emits nothing")
}

func TestCreateRun_BadRequests(t *testing.T) {
	a := setupAgent(t, Config{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing project", `{"kind":"specs_draft"}`},
		{"unknown kind", `{"project_id":"p","kind":"bake"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := a.http.Client().Post(a.http.URL+"/api/runs", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body agentapi.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestListTools(t *testing.T) {
	a := setupAgent(t, Config{})

	got, err := a.api.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, got, len(agentapi.RunKinds))
	for i, kind := range agentapi.RunKinds {
		assert.Equal(t, string(kind), got[i].Name)
	}
}

func TestGetArtifact(t *testing.T) {
	a := setupAgent(t, Config{})
	ctx := context.Background()
	fetcher := artifact.NewFetcher(a.http.URL, a.http.Client(), nil, nil)

	_, err := fetcher.Fetch(ctx, testProject, "", "missing")
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	_, err = a.store.PutArtifact(ctx, testProject, "notes", []byte("plain text"))
	require.NoError(t, err)
	doc, err := fetcher.Fetch(ctx, testProject, "", "notes")
	require.NoError(t, err)
	payload, err := doc.Payload()
	require.NoError(t, err)
	assert.Equal(t, "plain text", string(payload))
	assert.Equal(t, "notes", doc.ArtifactID)
	assert.Contains(t, doc.Digest, "sha256:")

	resp, err := a.http.Client().Get(a.http.URL + "/api/artifacts/notes")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "project_id is required")
}

func TestTraceStream_ReplaysAndTails(t *testing.T) {
	a := setupAgent(t, Config{})
	traceID := "trace-1"

	a.runAndWait(t, traceID, agentapi.RunSpecsDraft, "")
	a.runAndWait(t, traceID, agentapi.RunConfirmSpecs, "")

	events := make(chan onboarding.Event, 16)
	client := trace.NewClient(a.http.URL, a.http.Client(), nil)
	stop := client.Stream(context.Background(), traceID, trace.Options{
		ProjectID: testProject,
		OnEvent:   func(e onboarding.Event) { events <- e },
	})
	defer stop()

	var seqs []int64
	for range 2 {
		seqs = append(seqs, receiveEvent(t, events).Header().Seq)
	}
	assert.Equal(t, []int64{1, 2}, seqs)

	a.runAndWait(t, traceID, agentapi.RunSelectStack, "")
	for want := int64(3); want <= 5; want++ {
		assert.Equal(t, want, receiveEvent(t, events).Header().Seq)
	}
	stop()
}

func TestTraceStream_ResumesAfterLastEventID(t *testing.T) {
	a := setupAgent(t, Config{})
	traceID := "trace-1"
	a.runAndWait(t, traceID, agentapi.RunSpecsDraft, "")
	a.runAndWait(t, traceID, agentapi.RunConfirmSpecs, "")

	req, err := http.NewRequest(http.MethodGet, a.http.URL+"/api/trace/stream?trace_id="+traceID, nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := a.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var seen []string
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream ended early")
			seen = append(seen, line)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out reading stream")
		}
		if seen[len(seen)-1] == "event: SPECS_CONFIRMATION_READY" {
			break
		}
	}
	cancel()

	assert.Contains(t, seen, "id: 2")
	assert.NotContains(t, seen, "id: 1")
}

func TestTraceStream_RequiresTraceID(t *testing.T) {
	a := setupAgent(t, Config{})

	resp, err := a.http.Client().Get(a.http.URL + "/api/trace/stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("abc"))
	assert.Equal(t, int64(0), parseLastEventID("-4"))
	assert.Equal(t, int64(12), parseLastEventID(" 12 "))
}

func TestManifestFor_BeforeLock(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := manifestFor(onboarding.Snapshot{
		Status:          onboarding.StatusStackSelected,
		SelectedStackID: "go-htmx-sqlite",
		Templates:       templatesFor("go-htmx-sqlite"),
		SpecsDraft:      json.RawMessage(`{"title":"x"}`),
	}, testProject, now)

	require.NoError(t, m.Validate())
	assert.Equal(t, onboarding.StatusStackSelected, m.Status)
	assert.Equal(t, "go-htmx-sqlite", m.Stack.ID)
	require.NotNil(t, m.Templates)
	assert.Len(t, m.Templates.Items, 2)
	assert.Nil(t, m.Templates.LockedAt)
	assert.Equal(t, now, m.UpdatedAt)
}

func receiveEvent(t *testing.T, ch <-chan onboarding.Event) onboarding.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}
