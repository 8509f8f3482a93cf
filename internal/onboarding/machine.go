// ABOUTME: Onboarding state machine projecting manifests and trace events into a Snapshot
// ABOUTME: Enforces strictly increasing seq and forward-only status progression

package onboarding

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrProjectIDRequired is returned when a machine is built without a project id.
var ErrProjectIDRequired = errors.New("project id required")

// Machine is the ordered-log projector for one onboarding session.
// All methods are safe for concurrent use; mutations are serialized.
type Machine struct {
	mu        sync.Mutex
	projectID string
	state     Snapshot
}

// NewMachine creates a machine for projectID, seeded with manifest when it is
// not nil.
func NewMachine(projectID string, manifest *Manifest) (*Machine, error) {
	if projectID == "" {
		return nil, ErrProjectIDRequired
	}
	m := &Machine{
		projectID: projectID,
		state:     emptySnapshot(),
	}
	if manifest != nil {
		if err := m.ApplyManifest(*manifest); err != nil {
			return nil, fmt.Errorf("seeding machine: %w", err)
		}
	}
	return m, nil
}

// ProjectID returns the project the machine was built for.
func (m *Machine) ProjectID() string {
	return m.projectID
}

// ApplyManifest overwrites the machine's checkpoint fields from a validated
// manifest. The manifest status is assigned directly, even if it is behind
// the current status. lastSeq, violations and errors are left untouched.
func (m *Machine) ApplyManifest(manifest Manifest) error {
	if err := manifest.Validate(); err != nil {
		return err
	}
	c := manifest.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.state
	s.Manifest = &c
	s.Status = c.Status
	if c.Stack != nil && c.Stack.ID != "" {
		s.SelectedStackID = c.Stack.ID
	}
	if c.Templates != nil {
		if len(c.Templates.Items) > 0 {
			s.Templates = slices.Clone(c.Templates.Items)
		}
		if c.Templates.LockDigest != "" {
			s.LockDigest = c.Templates.LockDigest
		}
	}
	return nil
}

// ApplyEvent applies one trace event. Events whose seq does not exceed the
// last applied seq are recorded as violations and otherwise ignored.
// ApplyEvent never fails; a nil event is ignored.
func (m *Machine) ApplyEvent(e Event) {
	if e == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	h := e.Header()
	if last := m.state.LastSeq; last != nil && h.Seq <= *last {
		reason := ReasonOutOfOrder
		if h.Seq == *last {
			reason = ReasonDuplicate
		}
		m.state.Violations = append(m.state.Violations, SequenceViolation{
			Seq:       h.Seq,
			EventType: e.Kind(),
			Reason:    reason,
		})
		return
	}

	seq := h.Seq
	m.state.LastSeq = &seq
	e.dispatch(m)
}

// Snapshot returns a deep copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Reset discards all state, including violations and errors.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = emptySnapshot()
}

// CanEditSpecs reports whether the specs draft may still be edited.
func (m *Machine) CanEditSpecs() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CanEditSpecs()
}

// CanSelectStack reports whether a stack may be chosen.
func (m *Machine) CanSelectStack() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CanSelectStack()
}

// CanLockTemplates reports whether the template set may be locked.
func (m *Machine) CanLockTemplates() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CanLockTemplates()
}

// CurrentStep returns the wizard step (1-3) for the current state.
func (m *Machine) CurrentStep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CurrentStep()
}

// The handlers below run with mu held.

func (m *Machine) advance(to Status) {
	m.state.Status = MaxStatus(m.state.Status, to)
}

func (m *Machine) specsDraftUpdated(e *SpecsDraftUpdated) {
	m.advance(StatusSpecsDrafting)
	m.state.SpecsDraft = cloneRaw(e.Draft)
}

func (m *Machine) specsConfirmationReady(e *SpecsConfirmationReady) {
	m.advance(StatusSpecsDrafting)
	summary := e.Summary.Clone()
	m.state.Confirmation = &summary
}

func (m *Machine) stacksRecommended(e *StacksRecommended) {
	m.advance(StatusSpecsConfirmed)
	m.state.Stacks = cloneStacks(e.Items)
}

func (m *Machine) stackSelected(e *StackSelected) {
	m.advance(StatusStackSelected)
	m.state.SelectedStackID = e.ID
}

func (m *Machine) templatesListed(e *TemplatesListed) {
	m.state.Templates = slices.Clone(e.Items)
}

func (m *Machine) templatesLocked(e *TemplatesLocked) {
	s := &m.state
	s.Status = StatusLocked
	s.LockArtifactID = e.LockArtifactID
	s.LockDigest = e.LockDigest

	items := slices.Clone(s.Templates)
	if items == nil {
		items = []TemplateDescriptor{}
	}
	lockedAt := e.TS
	block := &ManifestTemplates{
		Items:      items,
		LockedAt:   &lockedAt,
		LockDigest: e.LockDigest,
	}

	if s.Manifest == nil {
		s.Manifest = &Manifest{
			ProjectID: m.projectID,
			Status:    StatusLocked,
			UpdatedAt: e.TS,
			Templates: block,
		}
		return
	}
	s.Manifest.Status = StatusLocked
	s.Manifest.UpdatedAt = e.TS
	s.Manifest.Templates = block
}

func (m *Machine) agentError(e *ErrorEvent) {
	m.state.Errors = append(m.state.Errors, DomainError{
		Code:      e.Code,
		Message:   e.Message,
		Timestamp: e.TS,
		Seq:       e.Seq,
	})
}
