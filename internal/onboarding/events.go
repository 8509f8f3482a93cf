// ABOUTME: Trace event variants delivered on the onboarding stream
// ABOUTME: Event is a sealed interface; each variant routes itself to a machine handler

package onboarding

import (
	"encoding/json"
	"time"
)

// EventType is the wire discriminator of a trace event.
type EventType string

const (
	EventSpecsDraftUpdated      EventType = "SPECS_DRAFT_UPDATED"
	EventSpecsConfirmationReady EventType = "SPECS_CONFIRMATION_READY"
	EventStacksRecommended      EventType = "STACKS_RECOMMENDED"
	EventStackSelected          EventType = "STACK_SELECTED"
	EventTemplatesListed        EventType = "TEMPLATES_LISTED"
	EventTemplatesLocked        EventType = "TEMPLATES_LOCKED"
	EventError                  EventType = "ERROR"
)

// EventTypes lists every event variant.
var EventTypes = []EventType{
	EventSpecsDraftUpdated,
	EventSpecsConfirmationReady,
	EventStacksRecommended,
	EventStackSelected,
	EventTemplatesListed,
	EventTemplatesLocked,
	EventError,
}

// EventHeader holds the fields common to every event.
type EventHeader struct {
	Type EventType `json:"type"`
	TS   time.Time `json:"ts"`
	Seq  int64     `json:"seq"`
}

// Header returns the common event fields.
func (h EventHeader) Header() EventHeader { return h }

func (h *EventHeader) header() *EventHeader { return h }

// Event is one message of the trace stream. The set of implementations is
// closed: every variant must be handled by the state machine.
type Event interface {
	Header() EventHeader
	Kind() EventType
	header() *EventHeader
	dispatch(h eventHandler)
}

// eventHandler receives each variant. Adding a variant without a handler
// method fails to compile.
type eventHandler interface {
	specsDraftUpdated(e *SpecsDraftUpdated)
	specsConfirmationReady(e *SpecsConfirmationReady)
	stacksRecommended(e *StacksRecommended)
	stackSelected(e *StackSelected)
	templatesListed(e *TemplatesListed)
	templatesLocked(e *TemplatesLocked)
	agentError(e *ErrorEvent)
}

// SpecsDraftUpdated replaces the working specs draft.
type SpecsDraftUpdated struct {
	EventHeader
	Draft json.RawMessage `json:"draft"`
}

func (e *SpecsDraftUpdated) Kind() EventType         { return EventSpecsDraftUpdated }
func (e *SpecsDraftUpdated) dispatch(h eventHandler) { h.specsDraftUpdated(e) }

// SpecsConfirmationReady carries the summary the user confirms.
type SpecsConfirmationReady struct {
	EventHeader
	Summary ConfirmationSummary `json:"summary"`
}

func (e *SpecsConfirmationReady) Kind() EventType         { return EventSpecsConfirmationReady }
func (e *SpecsConfirmationReady) dispatch(h eventHandler) { h.specsConfirmationReady(e) }

// StacksRecommended replaces the recommended stack list.
type StacksRecommended struct {
	EventHeader
	Items []StackRecommendation `json:"items"`
}

func (e *StacksRecommended) Kind() EventType         { return EventStacksRecommended }
func (e *StacksRecommended) dispatch(h eventHandler) { h.stacksRecommended(e) }

// StackSelected records the chosen stack.
type StackSelected struct {
	EventHeader
	ID string `json:"id"`
}

func (e *StackSelected) Kind() EventType         { return EventStackSelected }
func (e *StackSelected) dispatch(h eventHandler) { h.stackSelected(e) }

// TemplatesListed replaces the candidate template list.
type TemplatesListed struct {
	EventHeader
	Items []TemplateDescriptor `json:"items"`
}

func (e *TemplatesListed) Kind() EventType         { return EventTemplatesListed }
func (e *TemplatesListed) dispatch(h eventHandler) { h.templatesListed(e) }

// TemplatesLocked locks the current template set.
type TemplatesLocked struct {
	EventHeader
	LockArtifactID string `json:"lock_artifact_id"`
	LockDigest     string `json:"lock_digest"`
}

func (e *TemplatesLocked) Kind() EventType         { return EventTemplatesLocked }
func (e *TemplatesLocked) dispatch(h eventHandler) { h.templatesLocked(e) }

// ErrorEvent is a processing failure reported by the agent.
type ErrorEvent struct {
	EventHeader
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorEvent) Kind() EventType         { return EventError }
func (e *ErrorEvent) dispatch(h eventHandler) { h.agentError(e) }

// newEvent returns an empty variant for t, or nil for an unknown type.
func newEvent(t EventType) Event {
	switch t {
	case EventSpecsDraftUpdated:
		return &SpecsDraftUpdated{}
	case EventSpecsConfirmationReady:
		return &SpecsConfirmationReady{}
	case EventStacksRecommended:
		return &StacksRecommended{}
	case EventStackSelected:
		return &StackSelected{}
	case EventTemplatesListed:
		return &TemplatesListed{}
	case EventTemplatesLocked:
		return &TemplatesLocked{}
	case EventError:
		return &ErrorEvent{}
	default:
		return nil
	}
}

// MarshalEvent encodes e in its wire form, stamping the type discriminator.
func MarshalEvent(e Event) ([]byte, error) {
	e.header().Type = e.Kind()
	return json.Marshal(e)
}

// Stamp sets the header of e for the log position it is being written to.
func Stamp(e Event, ts time.Time, seq int64) {
	h := e.header()
	h.Type = e.Kind()
	h.TS = ts
	h.Seq = seq
}
