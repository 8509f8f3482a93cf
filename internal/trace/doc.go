// Package trace supervises the server-sent event stream of one onboarding trace.
//
// A Client opens GET /api/trace/stream for a trace id, parses each SSE
// message, validates it with onboarding.ParseEvent, and hands valid events to
// the caller. Messages that fail validation are reported through OnError and
// never reach OnEvent.
//
// When the connection fails or the server closes it, the client reports a
// *TransportError and reconnects after Backoff(RetryDelays, attempt). Delays
// beyond the end of the list reuse the last entry, and a successful open
// resets the attempt counter. The last SSE id seen is sent back as
// Last-Event-ID so the server can resume the log.
//
//	stop := client.Stream(ctx, traceID, trace.Options{
//	    ProjectID: "demo",
//	    OnEvent:   machine.ApplyEvent,
//	    OnError:   func(err error) { logger.Warn("trace", "error", err) },
//	})
//	defer stop()
//
// Calling the returned teardown function, or cancelling ctx, closes the
// connection, cancels any pending reconnect and stops all callbacks.
package trace
