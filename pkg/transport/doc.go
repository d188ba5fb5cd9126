// Package transport defines the handler interfaces and middleware chain for
// the trianswer HTTP transport layer.
//
// # Handler Interfaces
//
//   - TurnSubmitter accepts a query for a conversation and starts the
//     per-style generation of its assistant turn.
//   - ConversationManager exposes snapshots, tab selection, clearing, the
//     theme preference, and event subscriptions.
//   - ConversationStore is the persistence contract implemented by the
//     memory, postgres, and sqlite stores.
//
// # Middleware
//
// The middleware chain wraps TurnSubmitter with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog.
//
// # Single flight
//
// InFlightRegistry holds at most one running turn per conversation and the
// cancel function used to abandon it on shutdown.
package transport
