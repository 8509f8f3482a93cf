// ABOUTME: Manifest, stack, template and diagnostic types for onboarding state
// ABOUTME: Includes deep-copy helpers used to keep snapshots isolated

package onboarding

import (
	"encoding/json"
	"slices"
	"time"
)

// Manifest is the durable, server-authoritative checkpoint of an onboarding run.
type Manifest struct {
	ProjectID string             `json:"projectId"`
	Status    Status             `json:"status"`
	SpecsHash string             `json:"specsHash,omitempty"`
	Stack     *ManifestStack     `json:"stack,omitempty"`
	Templates *ManifestTemplates `json:"templates,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// ManifestStack records the selected stack in a manifest.
type ManifestStack struct {
	ID           string `json:"id"`
	RationaleRef string `json:"rationaleRef,omitempty"`
}

// ManifestTemplates records the template set, and its lock once locked.
type ManifestTemplates struct {
	Items      []TemplateDescriptor `json:"items"`
	LockedAt   *time.Time           `json:"lockedAt,omitempty"`
	LockDigest string               `json:"lockDigest,omitempty"`
}

// Clone returns a deep copy of the manifest.
func (m Manifest) Clone() Manifest {
	out := m
	if m.Stack != nil {
		stack := *m.Stack
		out.Stack = &stack
	}
	if m.Templates != nil {
		tpl := *m.Templates
		tpl.Items = slices.Clone(m.Templates.Items)
		if m.Templates.LockedAt != nil {
			lockedAt := *m.Templates.LockedAt
			tpl.LockedAt = &lockedAt
		}
		out.Templates = &tpl
	}
	return out
}

// StackRecommendation is one candidate technology stack proposed by the agent.
type StackRecommendation struct {
	ID            string          `json:"id"`
	Pros          []string        `json:"pros"`
	Cons          []string        `json:"cons"`
	Risks         []string        `json:"risks"`
	OpsNotes      []string        `json:"opsNotes"`
	ExpectedCosts json.RawMessage `json:"expectedCosts,omitempty"`
	FitScore      float64         `json:"fit_score"`
	Rationale     string          `json:"rationale,omitempty"`
}

// Clone returns a deep copy of the recommendation.
func (r StackRecommendation) Clone() StackRecommendation {
	out := r
	out.Pros = slices.Clone(r.Pros)
	out.Cons = slices.Clone(r.Cons)
	out.Risks = slices.Clone(r.Risks)
	out.OpsNotes = slices.Clone(r.OpsNotes)
	out.ExpectedCosts = cloneRaw(r.ExpectedCosts)
	return out
}

// TemplateDescriptor identifies a project template by its content digest.
type TemplateDescriptor struct {
	ID      string `json:"id"`
	Digest  string `json:"digest"`
	Source  string `json:"source,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Chapter is one section of the specs confirmation summary. Content is markdown.
type Chapter struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// ConfirmationSummary is the payload of SPECS_CONFIRMATION_READY.
type ConfirmationSummary struct {
	Chapters []Chapter `json:"chapters"`
}

// Clone returns a deep copy of the summary.
func (c ConfirmationSummary) Clone() ConfirmationSummary {
	return ConfirmationSummary{Chapters: slices.Clone(c.Chapters)}
}

// Violation reasons recorded for rejected events.
const (
	ReasonDuplicate  = "duplicate"
	ReasonOutOfOrder = "out_of_order"
)

// SequenceViolation records an event rejected by the sequence check.
type SequenceViolation struct {
	Seq       int64     `json:"seq"`
	EventType EventType `json:"eventType"`
	Reason    string    `json:"reason"`
}

// DomainError is an ERROR event reported by the remote agent.
type DomainError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"seq"`
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneStacks(in []StackRecommendation) []StackRecommendation {
	if in == nil {
		return nil
	}
	out := make([]StackRecommendation, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
