package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a turn does not exist or belongs to
	// another tenant.
	ErrNotFound = errors.New("turn not found")

	// ErrConflict is returned when a turn with the given ID already exists.
	ErrConflict = errors.New("turn already exists")

	// ErrUnknownStyle is returned when a style key is not part of a turn's
	// fixed key set.
	ErrUnknownStyle = errors.New("style not in turn's key set")

	// ErrAlreadyResolved is returned when patching a key that has already
	// left the pending state.
	ErrAlreadyResolved = errors.New("response already resolved")

	// ErrNotAssistantTurn is returned for response or tab operations on a
	// user turn.
	ErrNotAssistantTurn = errors.New("not an assistant turn")
)
