// ABOUTME: Tests for the console commands against an in-process development agent
// ABOUTME: Covers run submission, tool listing, manifest recovery, and watch rendering

package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-onboard/internal/agentapi"
	"github.com/2389/coven-onboard/internal/config"
	"github.com/2389/coven-onboard/internal/fakeagent"
	"github.com/2389/coven-onboard/internal/onboarding"
	"github.com/2389/coven-onboard/internal/projection"
	"github.com/2389/coven-onboard/internal/store"
)

type consoleEnv struct {
	url   string
	store *store.SQLiteStore
}

func setupConsole(t *testing.T) *consoleEnv {
	t.Helper()

	color.NoColor = true
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	agent := fakeagent.New(st, fakeagent.Config{PollInterval: 10 * time.Millisecond}, nil)
	srv := httptest.NewServer(agent.Handler())
	t.Cleanup(func() {
		agent.Close()
		srv.Close()
		st.Close()
	})

	return &consoleEnv{url: srv.URL, store: st}
}

// exec runs the console with args and returns its stdout.
func (e *consoleEnv) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--base-url", e.url, "--project", "proj-1", "--log-level", "error"}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// waitRun waits until runID leaves the running state.
func (e *consoleEnv) waitRun(t *testing.T, runID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		run, err := e.store.GetRun(context.Background(), runID)
		return err == nil && run.Status != store.RunStatusRunning
	}, 5*time.Second, 5*time.Millisecond)
}

func runIDFrom(t *testing.T, out string) string {
	t.Helper()
	fields := strings.Fields(out)
	for i, f := range fields {
		if f == "run" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	t.Fatalf("no run id in output %q", out)
	return ""
}

func TestConsole_RunAndManifest(t *testing.T) {
	env := setupConsole(t)

	for _, kind := range agentapi.RunKinds {
		out, err := env.exec(t, "run", string(kind), "--trace", "trace-1")
		require.NoError(t, err)
		assert.Contains(t, out, "accepted")
		assert.Contains(t, out, "on trace trace-1")
		env.waitRun(t, runIDFrom(t, out))
	}

	out, err := env.exec(t, "manifest", "--trace", "trace-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Project proj-1")
	assert.Contains(t, out, "Status: Locked")
	assert.Contains(t, out, "go-htmx-sqlite")

	out, err = env.exec(t, "manifest", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "Locked"`)
}

func TestConsole_ManifestMissing(t *testing.T) {
	env := setupConsole(t)

	out, err := env.exec(t, "manifest")
	require.NoError(t, err)
	assert.Contains(t, out, "no manifest for this project yet")
}

func TestConsole_WatchUntilLocked(t *testing.T) {
	env := setupConsole(t)

	for _, kind := range agentapi.RunKinds {
		out, err := env.exec(t, "run", string(kind), "--trace", "trace-w")
		require.NoError(t, err)
		env.waitRun(t, runIDFrom(t, out))
	}

	out, err := env.exec(t, "watch", "--trace", "trace-w", "--until-locked")
	require.NoError(t, err)
	assert.Contains(t, out, "trace trace-w")
	assert.Contains(t, out, "Locked")
}

func TestConsole_RunInput(t *testing.T) {
	env := setupConsole(t)

	out, err := env.exec(t, "run", "specs_draft", "--trace", "trace-in", "--input", `{"goal":"ship"}`)
	require.NoError(t, err)
	env.waitRun(t, runIDFrom(t, out))

	events, err := env.store.GetEvents(context.Background(), "trace-in", 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Payload), `"goal":"ship"`)
}

func TestConsole_RunRejectsBadArgs(t *testing.T) {
	env := setupConsole(t)

	_, err := env.exec(t, "run", "deploy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown run kind")

	_, err = env.exec(t, "run", "specs_draft", "--input", "{not json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")

	_, err = env.exec(t, "run")
	require.Error(t, err)
}

func TestConsole_Tools(t *testing.T) {
	env := setupConsole(t)

	out, err := env.exec(t, "tools")
	require.NoError(t, err)
	for _, kind := range agentapi.RunKinds {
		assert.Contains(t, out, string(kind))
	}
}

func TestConsole_CancelUnknownRun(t *testing.T) {
	env := setupConsole(t)

	_, err := env.exec(t, "cancel", "no-such-run")
	require.Error(t, err)
	var apiErr *agentapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
}

func TestConsole_WatchRequiresTrace(t *testing.T) {
	env := setupConsole(t)

	_, err := env.exec(t, "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trace")
}

func TestReadInput(t *testing.T) {
	raw, err := readInput("")
	require.NoError(t, err)
	assert.Nil(t, raw)

	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"stack_id":"go-htmx-sqlite"}`), 0o644))
	raw, err = readInput("@" + path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stack_id":"go-htmx-sqlite"}`, string(raw))

	_, err = readInput("@" + filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestRenderView(t *testing.T) {
	color.NoColor = true

	v := projection.View{
		Step:            3,
		StepLabel:       "Templates",
		Status:          onboarding.StatusStackSelected,
		SelectedStackID: "go-htmx-sqlite",
		RankedStacks: []onboarding.StackRecommendation{
			{ID: "go-htmx-sqlite", FitScore: 0.86, Rationale: "small team"},
			{ID: "node-react-postgres", FitScore: 0.74},
		},
		Chapters: []projection.Chapter{{ID: "overview", Title: "Overview", Markdown: "Build a **thing**."}},
		Templates: []onboarding.TemplateDescriptor{
			{ID: "service", Digest: "sha256:0123456789abcdef0123456789abcdef"},
		},
		CanLockTemplates: true,
		Banner:           &projection.Banner{Kind: projection.BannerViolation, Code: onboarding.ReasonDuplicate, Message: "seq 3 already applied", Seq: 3},
	}

	var buf bytes.Buffer
	renderView(&buf, "proj-1", "trace-1", v)
	out := buf.String()

	assert.Contains(t, out, "Project proj-1  trace trace-1")
	assert.Contains(t, out, "[3 Templates]")
	assert.Contains(t, out, "Status: StackSelected")
	assert.Contains(t, out, "! "+onboarding.ReasonDuplicate+": seq 3 already applied (seq 3)")
	assert.Contains(t, out, "Build a **thing**.")
	assert.Contains(t, out, "> go-htmx-sqlite")
	assert.Contains(t, out, "small team")
	assert.Contains(t, out, "sha256:0123456789ab")
	assert.NotContains(t, out, "sha256:0123456789abcdef0123")
	assert.Contains(t, out, "next: lock_templates")
}

func TestShortDigest(t *testing.T) {
	assert.Equal(t, "sha256:0123456789ab", shortDigest("sha256:0123456789abcdef"))
	assert.Equal(t, "sha256:short", shortDigest("sha256:short"))
	assert.Equal(t, "plain", shortDigest("plain"))
}

func TestSetupLogger(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "text"}, &buf)
	logger.Info("hidden")
	logger.With("component", "session").Warn("shown", "attempt", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN shown component=session attempt=2")

	buf.Reset()
	logger = setupLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	logger.Debug("json line")
	assert.Contains(t, buf.String(), `"msg":"json line"`)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
