// ABOUTME: Cobra subcommands for the console: watch, manifest, run, cancel, tools
// ABOUTME: Each command opens a session against the configured agent service

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-onboard/internal/agentapi"
	"github.com/2389/coven-onboard/internal/projection"
	"github.com/2389/coven-onboard/internal/trace"
)

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var (
		traceID     string
		untilLocked bool
		clearScreen bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a trace and render each state change",
		Long: `Seed state from the project manifest, then follow the trace stream and
re-render the onboarding view on every change. Reconnects automatically.

Examples:
  onboard-console watch --project proj-1 --trace 7f0c...
  onboard-console watch --trace 7f0c... --until-locked`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			s, logger, err := opts.openSession(traceID, func(err error) {
				var te *trace.TransportError
				if errors.As(err, &te) {
					color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "stream interrupted (attempt %d), reconnecting\n", te.Attempt)
				}
			})
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Start(ctx, traceID); err != nil {
				return err
			}
			logger.Debug("watching trace", "trace_id", traceID)

			updates, _ := s.Subscribe(ctx)
			for snap := range updates {
				view := projection.Build(snap)
				if clearScreen {
					fmt.Fprint(out, "\033[H\033[2J")
				}
				renderView(out, s.ProjectID(), traceID, view)
				if untilLocked && view.Locked {
					return nil
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&traceID, "trace", "", "trace id to follow (required)")
	_ = cmd.MarkFlagRequired("trace")
	cmd.Flags().BoolVar(&untilLocked, "until-locked", false, "exit once templates are locked")
	cmd.Flags().BoolVar(&clearScreen, "clear", false, "clear the screen before each render")

	return cmd
}

func newManifestCommand(opts *rootOptions) *cobra.Command {
	var (
		traceID string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Fetch the project manifest and render the recovered state",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := opts.openSession(traceID, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Resync(cmd.Context()); err != nil {
				return err
			}

			snap := s.Snapshot()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap.Manifest)
			}
			if snap.Manifest == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no manifest for this project yet")
				return nil
			}
			renderView(cmd.OutOrStdout(), s.ProjectID(), traceID, s.View())
			return nil
		},
	}

	cmd.Flags().StringVar(&traceID, "trace", "", "trace id to scope the fetch to")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the manifest as JSON")

	return cmd
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var (
		traceID string
		input   string
	)

	kinds := make([]string, len(agentapi.RunKinds))
	for i, k := range agentapi.RunKinds {
		kinds[i] = string(k)
	}

	cmd := &cobra.Command{
		Use:       "run <kind>",
		Short:     "Submit an onboarding run",
		Long:      "Submit a run to the agent. Kinds: " + strings.Join(kinds, ", ") + ".\nInput is inline JSON or @path to a JSON file.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := agentapi.RunKind(args[0])
			if !kind.Valid() {
				return fmt.Errorf("unknown run kind %q (want one of %s)", args[0], strings.Join(kinds, ", "))
			}

			raw, err := readInput(input)
			if err != nil {
				return err
			}

			s, _, err := opts.openSession(traceID, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			resp, err := s.Submit(cmd.Context(), kind, raw)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprint(out, "accepted ")
			fmt.Fprintf(out, "run %s on trace %s\n", resp.RunID, resp.TraceID)
			return nil
		},
	}

	cmd.Flags().StringVar(&traceID, "trace", "", "trace id to run on (assigned by the agent when empty)")
	cmd.Flags().StringVar(&input, "input", "", "run input as JSON, or @file")

	return cmd
}

// readInput returns the run input, reading @path references from disk.
func readInput(input string) (json.RawMessage, error) {
	if input == "" {
		return nil, nil
	}

	data := []byte(input)
	if path, ok := strings.CutPrefix(input, "@"); ok {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading input file: %w", err)
		}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("input is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func newCancelCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a running onboarding run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := opts.openSession("", nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancel requested for run %s\n", args[0])
			return nil
		},
	}
}

func newToolsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the agent advertises",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := opts.openSession("", nil)
			if err != nil {
				return err
			}
			defer s.Close()

			tools, err := s.Tools(cmd.Context())
			if err != nil {
				return err
			}
			renderTools(cmd.OutOrStdout(), tools)
			return nil
		},
	}
}
