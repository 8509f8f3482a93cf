// ABOUTME: Pure projection of an onboarding snapshot into view state
// ABOUTME: Ranks stacks, renders confirmation chapters to HTML, and picks the banner

// Package projection derives what a console shows from an onboarding snapshot.
// Build is a pure function of the snapshot; it is recomputed on every
// published snapshot.
package projection

import (
	"bytes"
	"fmt"
	"html"
	"sort"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/coven-onboard/internal/onboarding"
)

// BannerKind tells a consumer how to style a banner.
type BannerKind string

const (
	BannerError     BannerKind = "error"
	BannerViolation BannerKind = "violation"
)

// Banner is the single most relevant problem to surface.
type Banner struct {
	Kind    BannerKind
	Code    string
	Message string
	Seq     int64
}

// Chapter is a confirmation chapter with its markdown rendered.
type Chapter struct {
	ID       string
	Title    string
	Markdown string
	HTML     string
}

// View is the derived console state.
type View struct {
	Step      int
	StepLabel string
	Status    onboarding.Status

	CanEditSpecs     bool
	CanSelectStack   bool
	CanLockTemplates bool

	SelectedStackID string
	// SelectedStack is nil when the selected id is not among the recommendations,
	// e.g. after seeding from a manifest.
	SelectedStack *onboarding.StackRecommendation
	RankedStacks  []onboarding.StackRecommendation

	Chapters   []Chapter
	Templates  []onboarding.TemplateDescriptor
	Locked     bool
	LockDigest string

	Banner *Banner
}

var stepLabels = map[int]string{
	1: "Specs",
	2: "Stack",
	3: "Templates",
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Build projects a snapshot. The snapshot is not modified.
func Build(s onboarding.Snapshot) View {
	step := s.CurrentStep()
	v := View{
		Step:             step,
		StepLabel:        stepLabels[step],
		Status:           s.Status,
		CanEditSpecs:     s.CanEditSpecs(),
		CanSelectStack:   s.CanSelectStack(),
		CanLockTemplates: s.CanLockTemplates(),
		SelectedStackID:  s.SelectedStackID,
		RankedStacks:     RankStacks(s.Stacks),
		Templates:        append([]onboarding.TemplateDescriptor(nil), s.Templates...),
		Locked:           s.Status == onboarding.StatusLocked,
		LockDigest:       s.LockDigest,
		Banner:           banner(s),
	}

	for i := range v.RankedStacks {
		if v.RankedStacks[i].ID == s.SelectedStackID {
			selected := v.RankedStacks[i].Clone()
			v.SelectedStack = &selected
			break
		}
	}

	if s.Confirmation != nil {
		for _, ch := range s.Confirmation.Chapters {
			v.Chapters = append(v.Chapters, Chapter{
				ID:       ch.ID,
				Title:    ch.Title,
				Markdown: ch.Content,
				HTML:     RenderMarkdown(ch.Content),
			})
		}
	}

	return v
}

// RankStacks returns a copy of stacks ordered by fit score, best first, with
// ties broken by id.
func RankStacks(stacks []onboarding.StackRecommendation) []onboarding.StackRecommendation {
	ranked := make([]onboarding.StackRecommendation, len(stacks))
	for i := range stacks {
		ranked[i] = stacks[i].Clone()
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].FitScore != ranked[j].FitScore {
			return ranked[i].FitScore > ranked[j].FitScore
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

// RenderMarkdown converts chapter markdown to HTML. Raw HTML in the source is
// omitted.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "<p>" + html.EscapeString(src) + "</p>"
	}
	return buf.String()
}

func banner(s onboarding.Snapshot) *Banner {
	if e, ok := s.LatestError(); ok {
		return &Banner{
			Kind:    BannerError,
			Code:    e.Code,
			Message: e.Message,
			Seq:     e.Seq,
		}
	}
	if v, ok := s.LatestViolation(); ok {
		return &Banner{
			Kind:    BannerViolation,
			Code:    v.Reason,
			Message: fmt.Sprintf("ignored %s event with seq %d (%s)", v.EventType, v.Seq, v.Reason),
			Seq:     v.Seq,
		}
	}
	return nil
}
