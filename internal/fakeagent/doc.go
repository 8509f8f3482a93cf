// Package fakeagent is a development implementation of the onboarding agent
// service. It scripts the onboarding steps instead of reasoning about them,
// which makes it useful for end-to-end tests and for running the console
// without a real agent.
//
// # Endpoints
//
//	GET  /api/trace/stream?trace_id=...      SSE replay + live tail, honors Last-Event-ID
//	GET  /api/artifacts/{artifact_id}?project_id=...
//	POST /api/runs                           {project_id, trace_id?, kind, input?}
//	POST /api/runs/{run_id}/cancel
//	GET  /api/tools
//	GET  /health
//
// # Runs
//
// Each run appends events to its trace through the store, which assigns the
// sequence numbers. Runs on the same trace execute one at a time. The agent
// rebuilds its view of a trace by replaying the stored events through an
// onboarding.Machine, so precondition checks use the same rules as the
// console. A failed precondition is reported as an ERROR event rather than an
// HTTP error, since the run was already accepted.
//
// After every completed run the agent checkpoints the onboarding manifest as
// an artifact, so a console can recover its state with a single fetch.
package fakeagent
