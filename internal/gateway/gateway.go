// ABOUTME: Gateway hosts the development agent service: store, HTTP server, and lifecycle
// ABOUTME: Supervises the server with errgroup and shuts down gracefully on context cancel

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-onboard/internal/config"
	"github.com/2389/coven-onboard/internal/fakeagent"
	"github.com/2389/coven-onboard/internal/store"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// Gateway owns the agent service and everything it needs to run.
type Gateway struct {
	config     *config.Config
	store      *store.SQLiteStore
	agent      *fakeagent.Server
	httpServer *http.Server
	logger     *slog.Logger
}

// New opens the store and builds the HTTP server. Nothing listens until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.Agent.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	st, err := store.NewSQLiteStore(cfg.Agent.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	agent := fakeagent.New(st, fakeagent.Config{
		PollInterval: cfg.Agent.PollInterval,
		IdleTimeout:  cfg.Agent.IdleTimeout,
	}, logger)

	return &Gateway{
		config: cfg,
		store:  st,
		agent:  agent,
		httpServer: &http.Server{
			Addr:              cfg.Agent.HTTPAddr,
			Handler:           agent.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "gateway"),
	}, nil
}

// Run listens on the configured address and serves until ctx is cancelled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Agent.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Agent.HTTPAddr, err)
	}
	return g.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		return g.gracefulShutdown()
	})

	return group.Wait()
}

// gracefulShutdown runs Shutdown with a fresh timeout since the serving context is done.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, ends open streams and runs, and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	// Shutdown waits for open connections, so end streams and runs first.
	g.agent.Close()
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}
