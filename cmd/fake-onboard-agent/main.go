// ABOUTME: Development agent service for the onboarding console, backed by SQLite
// ABOUTME: Usage: fake-onboard-agent [-config path] [-addr 127.0.0.1:8090] [-db path]

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/coven-onboard/internal/config"
	"github.com/2389/coven-onboard/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "config file (default $XDG_CONFIG_HOME/coven/onboard.yaml)")
	addr := flag.String("addr", "", "listen address (overrides agent.http_addr)")
	dbPath := flag.String("db", "", "SQLite database path (overrides agent.database_path)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *addr, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, addr, dbPath string) error {
	cfg, path, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr != "" {
		cfg.Agent.HTTPAddr = addr
	}
	if dbPath != "" {
		cfg.Agent.DatabasePath = dbPath
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	color.New(color.FgCyan, color.Bold).Println("fake-onboard-agent")
	gray.Printf("    version: %s\n\n", version)
	if path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Config:   %s\n", path)
	}
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Agent.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n\n", cfg.Agent.DatabasePath)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
