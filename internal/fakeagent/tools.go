// ABOUTME: Static tool catalog and stack/template catalogs of the development agent
// ABOUTME: Stands in for the recommendations a real agent would reason out

package fakeagent

import (
	"encoding/json"

	"github.com/opencontainers/go-digest"

	"github.com/2389/coven-onboard/internal/agentapi"
	"github.com/2389/coven-onboard/internal/onboarding"
)

var tools = []agentapi.Tool{
	{Name: string(agentapi.RunSpecsDraft), Description: "Draft project specs from the input brief"},
	{Name: string(agentapi.RunConfirmSpecs), Description: "Summarize the draft into confirmation chapters"},
	{Name: string(agentapi.RunSelectStack), Description: "Recommend stacks and select one (input: {\"stack_id\"})"},
	{Name: string(agentapi.RunLockTemplates), Description: "Lock the listed templates into the manifest"},
}

var stackCatalog = []onboarding.StackRecommendation{
	{
		ID:            "go-htmx-sqlite",
		Pros:          []string{"single binary deploys", "low memory footprint"},
		Cons:          []string{"smaller UI component ecosystem"},
		Risks:         []string{"SQLite write contention at high volume"},
		OpsNotes:      []string{"back up the database file with litestream"},
		ExpectedCosts: json.RawMessage(`{"monthly_usd":20}`),
		FitScore:      0.86,
		Rationale:     "Small team, CRUD-heavy workload, modest traffic.",
	},
	{
		ID:            "node-react-postgres",
		Pros:          []string{"large hiring pool", "rich UI libraries"},
		Cons:          []string{"two deployables to operate"},
		Risks:         []string{"dependency churn"},
		OpsNotes:      []string{"managed Postgres recommended"},
		ExpectedCosts: json.RawMessage(`{"monthly_usd":60}`),
		FitScore:      0.74,
	},
	{
		ID:        "python-django-postgres",
		Pros:      []string{"batteries-included admin"},
		Cons:      []string{"async support is uneven"},
		Risks:     []string{},
		OpsNotes:  []string{"run migrations in a release step"},
		FitScore:  0.69,
		Rationale: "Strong fit if an admin back office matters most.",
	},
}

type templateSource struct {
	id      string
	source  string
	summary string
}

var templateCatalog = map[string][]templateSource{
	"go-htmx-sqlite": {
		{"go-service", "git+https://github.com/2389/templates#go-service", "HTTP service with slog and SQLite"},
		{"htmx-web", "git+https://github.com/2389/templates#htmx-web", "Server-rendered pages with htmx"},
	},
	"node-react-postgres": {
		{"node-api", "git+https://github.com/2389/templates#node-api", "Express API with Postgres"},
		{"react-web", "git+https://github.com/2389/templates#react-web", "Vite React frontend"},
	},
	"python-django-postgres": {
		{"django-app", "git+https://github.com/2389/templates#django-app", "Django project with admin"},
	},
}

// templatesFor returns descriptors for a stack, identified by the digest of
// their source reference.
func templatesFor(stackID string) []onboarding.TemplateDescriptor {
	sources := templateCatalog[stackID]
	out := make([]onboarding.TemplateDescriptor, 0, len(sources))
	for _, t := range sources {
		out = append(out, onboarding.TemplateDescriptor{
			ID:      t.id,
			Digest:  digest.FromString(t.source).String(),
			Source:  t.source,
			Summary: t.summary,
		})
	}
	return out
}

func findStack(id string) (onboarding.StackRecommendation, bool) {
	for _, s := range stackCatalog {
		if s.ID == id {
			return s, true
		}
	}
	return onboarding.StackRecommendation{}, false
}
