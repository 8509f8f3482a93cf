// ABOUTME: Snapshot is the externally observable state of the onboarding machine
// ABOUTME: Provides deep copy and the derived wizard predicates

package onboarding

import (
	"encoding/json"
	"slices"
)

// Snapshot is the complete observable state of a Machine at one point in time.
// Values returned by Machine.Snapshot share no memory with the machine.
type Snapshot struct {
	Status          Status                `json:"status"`
	Manifest        *Manifest             `json:"manifest"`
	SpecsDraft      json.RawMessage       `json:"specsDraft"`
	Confirmation    *ConfirmationSummary  `json:"confirmation"`
	Stacks          []StackRecommendation `json:"stacks"`
	SelectedStackID string                `json:"selectedStackId"`
	Templates       []TemplateDescriptor  `json:"templates"`
	LockArtifactID  string                `json:"lockArtifactId"`
	LockDigest      string                `json:"lockDigest"`
	LastSeq         *int64                `json:"lastSeq"`
	Violations      []SequenceViolation   `json:"violations"`
	Errors          []DomainError         `json:"errors"`
}

func emptySnapshot() Snapshot {
	return Snapshot{Status: StatusNotStarted}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Manifest != nil {
		m := s.Manifest.Clone()
		out.Manifest = &m
	}
	out.SpecsDraft = cloneRaw(s.SpecsDraft)
	if s.Confirmation != nil {
		c := s.Confirmation.Clone()
		out.Confirmation = &c
	}
	out.Stacks = cloneStacks(s.Stacks)
	out.Templates = slices.Clone(s.Templates)
	if s.LastSeq != nil {
		seq := *s.LastSeq
		out.LastSeq = &seq
	}
	out.Violations = slices.Clone(s.Violations)
	out.Errors = slices.Clone(s.Errors)
	return out
}

// CanEditSpecs reports whether the specs draft may still be edited.
func (s Snapshot) CanEditSpecs() bool {
	return s.Status == StatusNotStarted || s.Status == StatusSpecsDrafting
}

// CanSelectStack reports whether a stack may be chosen.
func (s Snapshot) CanSelectStack() bool {
	return s.Status == StatusSpecsConfirmed || s.Status == StatusStackSelected
}

// CanLockTemplates reports whether the template set may be locked.
func (s Snapshot) CanLockTemplates() bool {
	return s.Status == StatusStackSelected && len(s.Templates) > 0
}

// CurrentStep maps the status onto the three wizard steps. StackSelected only
// counts as step 3 once a stack id is known.
func (s Snapshot) CurrentStep() int {
	switch s.Status {
	case StatusLocked:
		return 3
	case StatusStackSelected:
		if s.SelectedStackID != "" {
			return 3
		}
		return 2
	case StatusSpecsConfirmed:
		return 2
	default:
		return 1
	}
}

// LatestViolation returns the most recently recorded sequence violation.
func (s Snapshot) LatestViolation() (SequenceViolation, bool) {
	if len(s.Violations) == 0 {
		return SequenceViolation{}, false
	}
	return s.Violations[len(s.Violations)-1], true
}

// LatestError returns the most recently recorded agent error.
func (s Snapshot) LatestError() (DomainError, bool) {
	if len(s.Errors) == 0 {
		return DomainError{}, false
	}
	return s.Errors[len(s.Errors)-1], true
}
