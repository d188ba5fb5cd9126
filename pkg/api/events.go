package api

// EventType identifies a conversation mutation.
type EventType string

const (
	EventTurnCreated         EventType = "turn.created"
	EventResponseResolved    EventType = "response.resolved"
	EventTurnSettled         EventType = "turn.settled"
	EventTabChanged          EventType = "tab.changed"
	EventConversationCleared EventType = "conversation.cleared"
	EventThemeChanged        EventType = "theme.changed"
)

// Event describes one observable change. Turn carries a snapshot of the
// affected turn after the change, when there is one.
type Event struct {
	Type           EventType      `json:"type"`
	SequenceNumber int64          `json:"sequence_number"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Turns          []*Turn        `json:"turns,omitempty"`
	Turn           *Turn          `json:"turn,omitempty"`
	Style          StyleKey       `json:"style,omitempty"`
	Value          *ResponseValue `json:"value,omitempty"`
	Theme          Theme          `json:"theme,omitempty"`
}
