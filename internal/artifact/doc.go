// Package artifact fetches server-held artifacts, in particular the onboarding
// manifest used to seed the state machine after a reload.
//
// Artifacts are served as JSON documents:
//
//	GET /api/artifacts/{artifact_id}?project_id=...&trace_id=...
//	{"artifact_id": "...", "project_id": "...", "digest": "sha256:...", "content": ...}
//
// content is either the artifact JSON inline or a string holding it. A 404
// means the artifact does not exist yet, which for the manifest is the normal
// state of a fresh project. Server errors (5xx, 429) and network failures are
// retried on a short fixed schedule; other 4xx responses fail immediately.
package artifact
