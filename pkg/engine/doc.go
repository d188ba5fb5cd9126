// Package engine implements multi-style response orchestration for
// trianswer. The Engine implements transport.TurnSubmitter and
// transport.ConversationManager: it records a user turn with a pending
// assistant turn, generates one response per style concurrently through
// the provider with bounded retry, merges each result into the store as it
// arrives, and signals when the turn has settled.
package engine
