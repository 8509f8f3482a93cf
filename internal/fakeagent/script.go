// ABOUTME: Scripted onboarding steps executed by development agent runs
// ABOUTME: Replays the trace into a machine, emits the step's events, and checkpoints the manifest

package fakeagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/2389/coven-onboard/internal/agentapi"
	"github.com/2389/coven-onboard/internal/artifact"
	"github.com/2389/coven-onboard/internal/onboarding"
	"github.com/2389/coven-onboard/internal/store"
)

// Error codes carried by ERROR events.
const (
	CodeInvalidInput     = "invalid_input"
	CodeDraftMissing     = "draft_missing"
	CodeSpecsUnconfirmed = "specs_unconfirmed"
	CodeUnknownStack     = "unknown_stack"
	CodeTemplatesMissing = "templates_missing"
)

var defaultDraft = json.RawMessage(`{"title":"Untitled project","goals":[]}`)

// runner executes one run against the trace's replayed state.
type runner struct {
	s       *Server
	ctx     context.Context
	traceID string
	project string
	machine *onboarding.Machine
}

func (s *Server) runScript(ctx context.Context, run *store.Run) error {
	machine, err := s.replay(ctx, run.TraceID, run.ProjectID)
	if err != nil {
		return err
	}

	r := &runner{s: s, ctx: ctx, traceID: run.TraceID, project: run.ProjectID, machine: machine}

	switch agentapi.RunKind(run.Kind) {
	case agentapi.RunSpecsDraft:
		err = r.specsDraft(run.Input)
	case agentapi.RunConfirmSpecs:
		err = r.confirmSpecs(run.Input)
	case agentapi.RunSelectStack:
		err = r.selectStack(run.Input)
	case agentapi.RunLockTemplates:
		err = r.lockTemplates()
	default:
		err = r.fail(CodeInvalidInput, fmt.Sprintf("unknown run kind %q", run.Kind))
	}
	if err != nil {
		return err
	}

	return r.checkpoint()
}

// replay rebuilds the trace's onboarding state from the stored log.
func (s *Server) replay(ctx context.Context, traceID, projectID string) (*onboarding.Machine, error) {
	machine, err := onboarding.NewMachine(projectID, nil)
	if err != nil {
		return nil, err
	}

	var after int64
	for {
		events, err := s.store.GetEvents(ctx, traceID, after, replayPageSize)
		if err != nil {
			return nil, fmt.Errorf("replaying trace: %w", err)
		}
		for _, e := range events {
			ev, err := onboarding.ParseEvent(e.Payload)
			if err != nil {
				return nil, fmt.Errorf("replaying event %d: %w", e.Seq, err)
			}
			machine.ApplyEvent(ev)
			after = e.Seq
		}
		if len(events) < replayPageSize {
			return machine, nil
		}
	}
}

// emit appends ev to the trace after the configured step delay.
func (r *runner) emit(ev onboarding.Event) error {
	if r.s.cfg.StepDelay > 0 {
		timer := time.NewTimer(r.s.cfg.StepDelay)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return r.ctx.Err()
		case <-timer.C:
		}
	}

	ts := r.s.cfg.Now().UTC()
	_, err := r.s.store.AppendEvent(r.ctx, r.traceID, r.project, string(ev.Kind()), ts, func(seq int64) ([]byte, error) {
		onboarding.Stamp(ev, ts, seq)
		return onboarding.MarshalEvent(ev)
	})
	if err != nil {
		return fmt.Errorf("emitting %s: %w", ev.Kind(), err)
	}
	r.machine.ApplyEvent(ev)
	return nil
}

// fail reports a precondition failure on the trace.
func (r *runner) fail(code, message string) error {
	return r.emit(&onboarding.ErrorEvent{Code: code, Message: message})
}

func (r *runner) specsDraft(input json.RawMessage) error {
	draft := defaultDraft
	if len(bytes.TrimSpace(input)) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(input, &obj); err != nil || obj == nil {
			return r.fail(CodeInvalidInput, "specs draft input must be a JSON object")
		}
		draft = input
	}
	return r.emit(&onboarding.SpecsDraftUpdated{Draft: draft})
}

func (r *runner) confirmSpecs(input json.RawMessage) error {
	snap := r.machine.Snapshot()
	if len(snap.SpecsDraft) == 0 {
		return r.fail(CodeDraftMissing, "draft specs before confirming them")
	}

	var summary onboarding.ConfirmationSummary
	if len(bytes.TrimSpace(input)) > 0 {
		if err := json.Unmarshal(input, &summary); err != nil {
			return r.fail(CodeInvalidInput, "confirmation input must be {\"chapters\": [...]}")
		}
	}
	if len(summary.Chapters) == 0 {
		summary.Chapters = defaultChapters(snap.SpecsDraft)
	}
	return r.emit(&onboarding.SpecsConfirmationReady{Summary: summary})
}

func defaultChapters(draft json.RawMessage) []onboarding.Chapter {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, draft, "", "  "); err != nil {
		pretty.Write(draft)
	}
	return []onboarding.Chapter{
		{ID: "overview", Title: "Overview", Content: "The draft as captured:\n\n```json\n" + pretty.String() + "\n```\n"},
		{ID: "next-steps", Title: "Next steps", Content: "- Review the recommended stacks\n- Select one and lock its templates\n"},
	}
}

func (r *runner) selectStack(input json.RawMessage) error {
	snap := r.machine.Snapshot()
	if snap.Confirmation == nil {
		return r.fail(CodeSpecsUnconfirmed, "confirm specs before selecting a stack")
	}

	var req struct {
		StackID string `json:"stack_id"`
	}
	if len(bytes.TrimSpace(input)) > 0 {
		if err := json.Unmarshal(input, &req); err != nil {
			return r.fail(CodeInvalidInput, "stack selection input must be {\"stack_id\": \"...\"}")
		}
	}
	if req.StackID == "" {
		req.StackID = stackCatalog[0].ID
	}
	if _, ok := findStack(req.StackID); !ok {
		return r.fail(CodeUnknownStack, fmt.Sprintf("stack %q is not recommended", req.StackID))
	}

	if len(snap.Stacks) == 0 {
		if err := r.emit(&onboarding.StacksRecommended{Items: stackCatalog}); err != nil {
			return err
		}
	}
	if err := r.emit(&onboarding.StackSelected{ID: req.StackID}); err != nil {
		return err
	}
	return r.emit(&onboarding.TemplatesListed{Items: templatesFor(req.StackID)})
}

func (r *runner) lockTemplates() error {
	snap := r.machine.Snapshot()
	if len(snap.Templates) == 0 {
		return r.fail(CodeTemplatesMissing, "select a stack before locking templates")
	}

	lockContent, err := json.Marshal(snap.Templates)
	if err != nil {
		return fmt.Errorf("encoding template lock: %w", err)
	}
	lockID := "template-lock-" + digest.FromBytes(lockContent).Encoded()[:12]
	lock, err := r.s.store.PutArtifact(r.ctx, r.project, lockID, lockContent)
	if err != nil {
		return fmt.Errorf("storing template lock: %w", err)
	}

	return r.emit(&onboarding.TemplatesLocked{
		LockArtifactID: lockID,
		LockDigest:     lock.Digest.String(),
	})
}

// checkpoint writes the manifest derived from the trace's current state.
func (r *runner) checkpoint() error {
	manifest := manifestFor(r.machine.Snapshot(), r.project, r.s.cfg.Now().UTC())
	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("checkpointing manifest: %w", err)
	}

	raw, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if _, err := r.s.store.PutArtifact(context.WithoutCancel(r.ctx), r.project, artifact.ManifestArtifactID, raw); err != nil {
		return fmt.Errorf("storing manifest: %w", err)
	}
	return nil
}

// manifestFor builds the durable checkpoint of snap. A lock-synthesized
// manifest is kept and completed with the stack and specs hash.
func manifestFor(snap onboarding.Snapshot, projectID string, now time.Time) onboarding.Manifest {
	m := onboarding.Manifest{ProjectID: projectID}
	if snap.Manifest != nil {
		m = snap.Manifest.Clone()
	}
	m.Status = snap.Status
	m.UpdatedAt = now

	if len(snap.SpecsDraft) > 0 {
		m.SpecsHash = digest.FromBytes(snap.SpecsDraft).String()
	}
	if snap.SelectedStackID != "" {
		m.Stack = &onboarding.ManifestStack{ID: snap.SelectedStackID}
	}
	if m.Templates == nil && len(snap.Templates) > 0 {
		m.Templates = &onboarding.ManifestTemplates{
			Items: append([]onboarding.TemplateDescriptor(nil), snap.Templates...),
		}
	}
	return m
}
