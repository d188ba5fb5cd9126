package api

import (
	"regexp"

	"github.com/google/uuid"
)

const (
	turnIDPrefix         = "turn_"
	conversationIDPrefix = "conv_"
)

var (
	turnIDPattern = regexp.MustCompile(`^turn_[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[0-9a-f]{4}-[0-9a-f]{12}$`)

	// Conversation IDs are chosen by clients, so only the charset is enforced.
	conversationIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)
)

// NewTurnID generates a turn ID: "turn_" followed by a UUIDv7. UUIDv7 values
// generated in one process sort in creation order, which keeps turn IDs
// monotonically ordered.
func NewTurnID() string {
	return turnIDPrefix + uuid.Must(uuid.NewV7()).String()
}

// NewConversationID generates a conversation ID for clients that do not
// bring their own.
func NewConversationID() string {
	return conversationIDPrefix + uuid.Must(uuid.NewV7()).String()
}

// ValidateTurnID checks whether the given string is a valid turn ID.
func ValidateTurnID(id string) bool {
	return turnIDPattern.MatchString(id)
}

// ValidateConversationID checks whether the given string can be used as a
// conversation ID.
func ValidateConversationID(id string) bool {
	return conversationIDPattern.MatchString(id)
}
