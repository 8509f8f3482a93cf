// Package onboarding implements the onboarding state machine and its wire schema.
//
// # Overview
//
// An onboarding run is described by two things the remote agent service
// produces: a durable Manifest checkpoint held in the artifact store, and an
// append-only, sequence-numbered stream of trace events. This package turns
// both into a single Snapshot that the console renders.
//
// # Status Lattice
//
// Progress moves forward through five stages:
//
//	NotStarted < SpecsDrafting < SpecsConfirmed < StackSelected < Locked
//
// Live events can only raise the status (the machine takes the maximum of the
// current and proposed stage). TEMPLATES_LOCKED is terminal and always sets
// Locked. A manifest is the server's ground truth and is assigned directly.
//
// # Event Types
//
// The trace stream carries seven event variants:
//
//   - SPECS_DRAFT_UPDATED: replaces the working specs draft
//   - SPECS_CONFIRMATION_READY: confirmation summary (chapters) is ready
//   - STACKS_RECOMMENDED: replaces the recommended stack list
//   - STACK_SELECTED: records the chosen stack id
//   - TEMPLATES_LISTED: replaces the candidate template list
//   - TEMPLATES_LOCKED: locks the template set and rewrites the manifest
//   - ERROR: a processing failure reported by the agent
//
// # Ordering
//
// Every event carries a seq that is strictly increasing per trace. An event
// whose seq is not greater than the last applied one is never applied;
// instead a SequenceViolation is recorded on the snapshot. This is what makes
// redelivery after a reconnect harmless.
//
// # Validation
//
// ParseEvent and ValidateManifest check raw JSON against embedded JSON
// Schemas before anything reaches the machine. Failures are *SchemaError
// values that match ErrSchema:
//
//	ev, err := onboarding.ParseEvent(data)
//	if errors.Is(err, onboarding.ErrSchema) {
//	    // drop and report the message
//	}
//	machine.ApplyEvent(ev)
//
// # Usage
//
//	m, err := onboarding.NewMachine("demo", manifest)
//	if err != nil {
//	    return err
//	}
//	m.ApplyEvent(ev)
//	snap := m.Snapshot() // deep copy, safe to mutate
//	step := snap.CurrentStep()
package onboarding
