// ABOUTME: Terminal rendering of the onboarding view and tool catalog
// ABOUTME: Uses fatih/color for status, banners, and the step indicator

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/coven-onboard/internal/agentapi"
	"github.com/2389/coven-onboard/internal/onboarding"
	"github.com/2389/coven-onboard/internal/projection"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	activeColor  = color.New(color.FgGreen, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
)

var steps = []struct {
	n     int
	label string
}{
	{1, "Specs"},
	{2, "Stack"},
	{3, "Templates"},
}

// renderView writes a full view of the onboarding state.
func renderView(w io.Writer, projectID, traceID string, v projection.View) {
	headingColor.Fprintf(w, "Project %s", projectID)
	if traceID != "" {
		dimColor.Fprintf(w, "  trace %s", traceID)
	}
	fmt.Fprintln(w)

	renderSteps(w, v)
	fmt.Fprintf(w, "Status: %s\n", statusColor(v.Status).Sprint(v.Status))

	if v.Banner != nil {
		renderBanner(w, v.Banner)
	}

	if len(v.Chapters) > 0 {
		fmt.Fprintln(w)
		headingColor.Fprintln(w, "Specs")
		for _, ch := range v.Chapters {
			fmt.Fprintf(w, "  %s\n", color.New(color.Bold).Sprint(ch.Title))
			for _, line := range strings.Split(strings.TrimRight(ch.Markdown, "\n"), "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}

	if len(v.RankedStacks) > 0 || v.SelectedStackID != "" {
		fmt.Fprintln(w)
		headingColor.Fprintln(w, "Stacks")
		for _, st := range v.RankedStacks {
			marker := "  "
			if st.ID == v.SelectedStackID {
				marker = activeColor.Sprint("> ")
			}
			fmt.Fprintf(w, "  %s%-28s %s\n", marker, st.ID, dimColor.Sprintf("fit %.2f", st.FitScore))
			if st.ID == v.SelectedStackID && st.Rationale != "" {
				dimColor.Fprintf(w, "      %s\n", st.Rationale)
			}
		}
		if v.SelectedStack == nil && v.SelectedStackID != "" {
			fmt.Fprintf(w, "  %s%s\n", activeColor.Sprint("> "), v.SelectedStackID)
		}
	}

	if len(v.Templates) > 0 {
		fmt.Fprintln(w)
		headingColor.Fprintln(w, "Templates")
		for _, t := range v.Templates {
			fmt.Fprintf(w, "  %-28s %s\n", t.ID, dimColor.Sprint(shortDigest(t.Digest)))
		}
	}

	if v.Locked {
		fmt.Fprintln(w)
		activeColor.Fprint(w, "Locked")
		if v.LockDigest != "" {
			dimColor.Fprintf(w, "  %s", v.LockDigest)
		}
		fmt.Fprintln(w)
	}

	renderActions(w, v)
}

func renderSteps(w io.Writer, v projection.View) {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		label := fmt.Sprintf("%d %s", s.n, s.label)
		switch {
		case s.n == v.Step:
			parts = append(parts, activeColor.Sprint("["+label+"]"))
		case s.n < v.Step || v.Locked:
			parts = append(parts, label)
		default:
			parts = append(parts, dimColor.Sprint(label))
		}
	}
	fmt.Fprintln(w, strings.Join(parts, dimColor.Sprint(" > ")))
}

func renderBanner(w io.Writer, b *projection.Banner) {
	switch b.Kind {
	case projection.BannerError:
		errorColor.Fprintf(w, "! %s", b.Code)
	default:
		warnColor.Fprintf(w, "! %s", b.Code)
	}
	fmt.Fprintf(w, ": %s", b.Message)
	if b.Seq > 0 {
		dimColor.Fprintf(w, " (seq %d)", b.Seq)
	}
	fmt.Fprintln(w)
}

func renderActions(w io.Writer, v projection.View) {
	var next []string
	if v.CanEditSpecs {
		next = append(next, string(agentapi.RunSpecsDraft), string(agentapi.RunConfirmSpecs))
	}
	if v.CanSelectStack {
		next = append(next, string(agentapi.RunSelectStack))
	}
	if v.CanLockTemplates {
		next = append(next, string(agentapi.RunLockTemplates))
	}
	if len(next) == 0 {
		return
	}
	dimColor.Fprintf(w, "\nnext: %s\n", strings.Join(next, ", "))
}

func statusColor(s onboarding.Status) *color.Color {
	switch s {
	case onboarding.StatusLocked:
		return activeColor
	case onboarding.StatusNotStarted:
		return dimColor
	default:
		return color.New(color.FgBlue)
	}
}

func shortDigest(d string) string {
	if _, hex, ok := strings.Cut(d, ":"); ok && len(hex) > 12 {
		return d[:len(d)-len(hex)] + hex[:12]
	}
	return d
}

// renderTools writes the agent's tool catalog.
func renderTools(w io.Writer, tools []agentapi.Tool) {
	if len(tools) == 0 {
		dimColor.Fprintln(w, "no tools advertised")
		return
	}
	for _, t := range tools {
		fmt.Fprintf(w, "%s  %s\n", headingColor.Sprintf("%-16s", t.Name), t.Description)
	}
}
