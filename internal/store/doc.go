// Package store provides persistent storage for the development agent using SQLite.
//
// # Data Models
//
//   - TraceEvent: one entry of a trace's append-only event log. Sequence
//     numbers are assigned by the store, per trace, starting at 1 and strictly
//     increasing.
//   - Artifact: a content-addressed document keyed by (project, artifact id).
//     The digest is the SHA-256 of the content in OCI digest form
//     ("sha256:<hex>") and is verified on every read.
//   - Run: a unit of scripted agent work with a lifecycle status.
//
// # SQLite Configuration
//
// The store uses the pure-Go modernc.org/sqlite driver with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Database file locations:
//
//   - Development: ~/.local/share/coven/onboard-agent.db
//   - Testing: a file under t.TempDir()
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDigestMismatch: stored artifact content no longer matches its digest
//
// All methods accept context.Context for cancellation support.
package store
