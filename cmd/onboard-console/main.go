// ABOUTME: Entry point for onboard-console, the terminal front end for project onboarding
// ABOUTME: Wires config, logging, and the session into cobra subcommands

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-onboard/internal/config"
	"github.com/2389/coven-onboard/internal/session"
)

// Version is set by goreleaser at build time.
var version = "dev"

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
	baseURL    string
	projectID  string
	logLevel   string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "onboard-console",
		Short:         "Follow and drive project onboarding",
		Long:          "Terminal console for the onboarding wizard: specs, stack selection, and template locking.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/coven/onboard.yaml)")
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "agent service URL (overrides console.base_url)")
	cmd.PersistentFlags().StringVarP(&opts.projectID, "project", "p", "", "project id (overrides console.project_id)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides logging.level)")

	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newManifestCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newCancelCommand(opts))
	cmd.AddCommand(newToolsCommand(opts))

	return cmd
}

// load resolves the config file and applies flag overrides.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, path, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	if o.baseURL != "" {
		cfg.Console.BaseURL = o.baseURL
	}
	if o.projectID != "" {
		cfg.Console.ProjectID = o.projectID
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validating config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stderr)
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}
	return cfg, logger, nil
}

// openSession builds a session from the resolved configuration.
func (o *rootOptions) openSession(traceID string, onStreamError func(error)) (*session.Session, *slog.Logger, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, nil, err
	}

	s, err := session.New(session.Config{
		BaseURL:             cfg.Console.BaseURL,
		ProjectID:           cfg.Console.ProjectID,
		TraceID:             traceID,
		StreamRetryDelays:   cfg.Stream.RetryDelays,
		ManifestRetryDelays: cfg.Manifest.RetryDelays,
		ManifestTimeout:     cfg.Manifest.Timeout,
		ToolsCacheTTL:       cfg.Tools.CacheTTL,
		ToolsCacheSize:      cfg.Tools.CacheSize,
		Logger:              logger,
		OnStreamError:       onStreamError,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating session: %w", err)
	}
	return s, logger, nil
}
