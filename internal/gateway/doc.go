// Package gateway hosts the development agent service.
//
// # Overview
//
// A Gateway owns the SQLite store, the fakeagent HTTP handler, and the
// http.Server in front of it:
//
//	type Gateway struct {
//	    config     *config.Config
//	    store      *store.SQLiteStore
//	    agent      *fakeagent.Server
//	    httpServer *http.Server
//	}
//
// # Lifecycle
//
// New opens the store at agent.database_path, creating its directory.
// Run listens on agent.http_addr and serves until the context is cancelled;
// Serve does the same on a caller-supplied listener. Serving and shutdown are
// supervised by an errgroup: a server failure cancels the group and triggers
// shutdown, and a cancelled context shuts the server down gracefully.
//
// Shutdown order:
//
//  1. Cancel the agent context, ending SSE streams and scripted runs
//  2. Shut down the HTTP server within a 5 second budget
//  3. Close the store
//
// # Usage
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return fmt.Errorf("creating gateway: %w", err)
//	}
//	return gw.Run(ctx)
package gateway
