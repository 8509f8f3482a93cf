// ABOUTME: JSON Schema validation for manifests and trace events
// ABOUTME: Embeds the wire schemas and compiles them once with santhosh-tekuri/jsonschema

package onboarding

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	manifestSchemaURL = "https://schemas.coven.2389.ai/onboarding/manifest.schema.json"
	eventSchemaURL    = "https://schemas.coven.2389.ai/onboarding/event.schema.json"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrSchema matches every *SchemaError.
var ErrSchema = errors.New("schema violation")

// SchemaError reports a manifest or event payload that does not match the
// wire contract.
type SchemaError struct {
	Subject string // "manifest" or "event"
	Err     error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Subject, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSchema) true for any SchemaError.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

type schemaSet struct {
	manifest *jsonschema.Schema
	event    *jsonschema.Schema
}

var loadSchemas = sync.OnceValues(compileSchemas)

func compileSchemas() (*schemaSet, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	resources := []struct {
		url  string
		file string
	}{
		{manifestSchemaURL, "schemas/manifest.schema.json"},
		{eventSchemaURL, "schemas/event.schema.json"},
	}
	for _, r := range resources {
		raw, err := schemaFS.ReadFile(r.file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", r.file, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", r.file, err)
		}
		if err := c.AddResource(r.url, doc); err != nil {
			return nil, fmt.Errorf("adding %s: %w", r.file, err)
		}
	}

	manifest, err := c.Compile(manifestSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling manifest schema: %w", err)
	}
	event, err := c.Compile(eventSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling event schema: %w", err)
	}
	return &schemaSet{manifest: manifest, event: event}, nil
}

// validateRaw decodes raw and checks it against the schema picked by pick.
func validateRaw(subject string, raw []byte, pick func(*schemaSet) *jsonschema.Schema) error {
	set, err := loadSchemas()
	if err != nil {
		return fmt.Errorf("loading schemas: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &SchemaError{Subject: subject, Err: fmt.Errorf("decoding json: %w", err)}
	}
	if err := pick(set).Validate(inst); err != nil {
		return &SchemaError{Subject: subject, Err: err}
	}
	return nil
}

// ValidateManifest parses raw JSON into a Manifest, failing with a
// *SchemaError when it does not match the manifest contract.
func ValidateManifest(raw []byte) (*Manifest, error) {
	if err := validateRaw("manifest", raw, func(s *schemaSet) *jsonschema.Schema { return s.manifest }); err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &SchemaError{Subject: "manifest", Err: err}
	}
	return &m, nil
}

// Validate checks a manifest built in Go against the same contract as
// ValidateManifest.
func (m Manifest) Validate() error {
	if m.UpdatedAt.IsZero() {
		return &SchemaError{Subject: "manifest", Err: errors.New("updatedAt is required")}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return &SchemaError{Subject: "manifest", Err: err}
	}
	return validateRaw("manifest", raw, func(s *schemaSet) *jsonschema.Schema { return s.manifest })
}

// ParseEvent decodes one trace message. Exactly one event variant must match;
// anything else is a *SchemaError.
func ParseEvent(raw []byte) (Event, error) {
	if err := validateRaw("event", raw, func(s *schemaSet) *jsonschema.Schema { return s.event }); err != nil {
		return nil, err
	}

	var head EventHeader
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, &SchemaError{Subject: "event", Err: err}
	}
	ev := newEvent(head.Type)
	if ev == nil {
		return nil, &SchemaError{Subject: "event", Err: fmt.Errorf("unknown event type %q", head.Type)}
	}
	if err := json.Unmarshal(raw, ev); err != nil {
		return nil, &SchemaError{Subject: "event", Err: err}
	}
	return ev, nil
}
