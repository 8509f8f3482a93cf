// ABOUTME: Wire types shared by the agent API client and the development agent
// ABOUTME: Run kinds, run requests and responses, and tool descriptors

package agentapi

import "encoding/json"

// RunKind names a scripted onboarding step the agent can run.
type RunKind string

const (
	RunSpecsDraft    RunKind = "specs_draft"
	RunConfirmSpecs  RunKind = "confirm_specs"
	RunSelectStack   RunKind = "select_stack"
	RunLockTemplates RunKind = "lock_templates"
)

// RunKinds lists every known run kind in wizard order.
var RunKinds = []RunKind{RunSpecsDraft, RunConfirmSpecs, RunSelectStack, RunLockTemplates}

// Valid reports whether k is a known run kind.
func (k RunKind) Valid() bool {
	for _, known := range RunKinds {
		if k == known {
			return true
		}
	}
	return false
}

// RunRequest is the body of POST /api/runs.
type RunRequest struct {
	ProjectID string          `json:"project_id"`
	TraceID   string          `json:"trace_id,omitempty"`
	Kind      RunKind         `json:"kind"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// RunResponse is returned when a run is accepted.
type RunResponse struct {
	RunID   string `json:"run_id"`
	TraceID string `json:"trace_id"`
}

// Tool describes a capability the agent exposes.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolsResponse is the body of GET /api/tools.
type ToolsResponse struct {
	Tools []Tool `json:"tools"`
}

// ErrorResponse is the JSON error body returned by the agent.
type ErrorResponse struct {
	Error string `json:"error"`
}
