// ABOUTME: Tests for the snapshot projection
// ABOUTME: Covers stack ranking, chapter rendering, banner choice, and purity

package projection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-onboard/internal/onboarding"
)

var ts = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func stacksSnapshot() onboarding.Snapshot {
	return onboarding.Snapshot{
		Status:          onboarding.StatusStackSelected,
		SelectedStackID: "stack-b",
		Stacks: []onboarding.StackRecommendation{
			{ID: "stack-c", FitScore: 0.4, Pros: []string{"cheap"}},
			{ID: "stack-b", FitScore: 0.9, Pros: []string{"fast"}},
			{ID: "stack-a", FitScore: 0.9},
		},
	}
}

func TestBuild_RanksStacks(t *testing.T) {
	v := Build(stacksSnapshot())

	var ids []string
	for _, s := range v.RankedStacks {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"stack-a", "stack-b", "stack-c"}, ids)

	require.NotNil(t, v.SelectedStack)
	assert.Equal(t, "stack-b", v.SelectedStack.ID)
	assert.Equal(t, []string{"fast"}, v.SelectedStack.Pros)
}

func TestBuild_SelectedStackNotRecommended(t *testing.T) {
	v := Build(onboarding.Snapshot{
		Status:          onboarding.StatusStackSelected,
		SelectedStackID: "from-manifest",
	})

	assert.Equal(t, "from-manifest", v.SelectedStackID)
	assert.Nil(t, v.SelectedStack)
	assert.Equal(t, 3, v.Step)
	assert.Equal(t, "Templates", v.StepLabel)
}

func TestBuild_DoesNotMutateSnapshot(t *testing.T) {
	s := stacksSnapshot()
	v := Build(s)

	v.RankedStacks[0].Pros = append(v.RankedStacks[0].Pros, "mutated")
	v.SelectedStack.Pros[0] = "mutated"

	assert.Equal(t, "stack-c", s.Stacks[0].ID, "input order is preserved")
	assert.Equal(t, []string{"fast"}, s.Stacks[1].Pros)
	assert.Nil(t, s.Stacks[2].Pros)
}

func TestBuild_Predicates(t *testing.T) {
	tests := []struct {
		status     onboarding.Status
		step       int
		editSpecs  bool
		selectStk  bool
		lockTempls bool
	}{
		{onboarding.StatusNotStarted, 1, true, false, false},
		{onboarding.StatusSpecsDrafting, 1, true, false, false},
		{onboarding.StatusSpecsConfirmed, 2, false, true, false},
		{onboarding.StatusStackSelected, 2, false, true, false},
		{onboarding.StatusLocked, 3, false, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			v := Build(onboarding.Snapshot{Status: tt.status})
			assert.Equal(t, tt.step, v.Step)
			assert.Equal(t, tt.editSpecs, v.CanEditSpecs)
			assert.Equal(t, tt.selectStk, v.CanSelectStack)
			assert.Equal(t, tt.lockTempls, v.CanLockTemplates)
			assert.Equal(t, tt.status == onboarding.StatusLocked, v.Locked)
		})
	}
}

func TestBuild_RendersChapters(t *testing.T) {
	v := Build(onboarding.Snapshot{
		Status: onboarding.StatusSpecsConfirmed,
		Confirmation: &onboarding.ConfirmationSummary{
			Chapters: []onboarding.Chapter{
				{ID: "goals", Title: "Goals", Content: "# Goals\n\n- ship **fast**"},
				{Title: "Empty"},
			},
		},
	})

	require.Len(t, v.Chapters, 2)
	assert.Equal(t, "goals", v.Chapters[0].ID)
	assert.Contains(t, v.Chapters[0].HTML, "<h1>Goals</h1>")
	assert.Contains(t, v.Chapters[0].HTML, "<strong>fast</strong>")
	assert.Equal(t, "Empty", v.Chapters[1].Title)
	assert.Empty(t, v.Chapters[1].HTML)
}

func TestRenderMarkdown_OmitsRawHTML(t *testing.T) {
	out := RenderMarkdown("hello <script>alert(1)</script>")
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "hello")
}

func TestRenderMarkdown_Tables(t *testing.T) {
	out := RenderMarkdown("| a | b |\n|---|---|\n| 1 | 2 |\n")
	assert.Contains(t, out, "<table>")
}

func TestBuild_BannerPrefersLatestError(t *testing.T) {
	s := onboarding.Snapshot{
		Violations: []onboarding.SequenceViolation{
			{Seq: 3, EventType: onboarding.EventStackSelected, Reason: onboarding.ReasonDuplicate},
		},
		Errors: []onboarding.DomainError{
			{Code: "E1", Message: "first", Timestamp: ts, Seq: 1},
			{Code: "E2", Message: "second", Timestamp: ts, Seq: 2},
		},
	}

	v := Build(s)
	require.NotNil(t, v.Banner)
	assert.Equal(t, BannerError, v.Banner.Kind)
	assert.Equal(t, "E2", v.Banner.Code)
	assert.Equal(t, "second", v.Banner.Message)
}

func TestBuild_BannerFallsBackToViolation(t *testing.T) {
	s := onboarding.Snapshot{
		Violations: []onboarding.SequenceViolation{
			{Seq: 3, EventType: onboarding.EventStackSelected, Reason: onboarding.ReasonOutOfOrder},
		},
	}

	v := Build(s)
	require.NotNil(t, v.Banner)
	assert.Equal(t, BannerViolation, v.Banner.Kind)
	assert.Equal(t, onboarding.ReasonOutOfOrder, v.Banner.Code)
	assert.Contains(t, v.Banner.Message, "STACK_SELECTED")
	assert.Equal(t, int64(3), v.Banner.Seq)
}

func TestBuild_NoBanner(t *testing.T) {
	assert.Nil(t, Build(onboarding.Snapshot{Status: onboarding.StatusNotStarted}).Banner)
}

func TestBuild_FromMachine(t *testing.T) {
	m, err := onboarding.NewMachine("proj-1", nil)
	require.NoError(t, err)

	m.ApplyEvent(&onboarding.StacksRecommended{
		EventHeader: onboarding.EventHeader{TS: ts, Seq: 1},
		Items: []onboarding.StackRecommendation{
			{ID: "low", FitScore: 0.1},
			{ID: "high", FitScore: 0.8},
		},
	})
	m.ApplyEvent(&onboarding.StackSelected{EventHeader: onboarding.EventHeader{TS: ts, Seq: 2}, ID: "high"})
	m.ApplyEvent(&onboarding.StackSelected{EventHeader: onboarding.EventHeader{TS: ts, Seq: 2}, ID: "low"})

	v := Build(m.Snapshot())
	assert.Equal(t, "high", v.RankedStacks[0].ID)
	require.NotNil(t, v.SelectedStack)
	assert.Equal(t, "high", v.SelectedStack.ID)
	require.NotNil(t, v.Banner)
	assert.Equal(t, onboarding.ReasonDuplicate, v.Banner.Code)
}

func TestBuild_LockableWithTemplates(t *testing.T) {
	v := Build(onboarding.Snapshot{
		Status:          onboarding.StatusStackSelected,
		SelectedStackID: "stack-a",
		Templates:       []onboarding.TemplateDescriptor{{ID: "api", Digest: "sha256:1"}},
	})
	assert.True(t, v.CanLockTemplates)
	assert.Equal(t, []onboarding.TemplateDescriptor{{ID: "api", Digest: "sha256:1"}}, v.Templates)
}
