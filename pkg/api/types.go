package api

import (
	"fmt"
	"time"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mode selects the fan-out of a turn. It is fixed when the turn is created.
type Mode string

const (
	ModeMultiView Mode = "multi_view"
	ModeAgent     Mode = "agent"
)

// StyleKey identifies one response register.
type StyleKey string

const (
	StyleConcise  StyleKey = "concise"
	StyleDetailed StyleKey = "detailed"
	StyleCreative StyleKey = "creative"
	StyleAgent    StyleKey = "agent"
)

var modeKeys = map[Mode][]StyleKey{
	ModeMultiView: {StyleConcise, StyleDetailed, StyleCreative},
	ModeAgent:     {StyleAgent},
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	_, ok := modeKeys[m]
	return ok
}

// Keys returns the style keys generated for a turn of this mode, in dispatch
// order. The first key is the default active tab.
func (m Mode) Keys() []StyleKey {
	keys := modeKeys[m]
	out := make([]StyleKey, len(keys))
	copy(out, keys)
	return out
}

// DefaultTab returns the style key shown first for this mode.
func (m Mode) DefaultTab() StyleKey {
	keys := modeKeys[m]
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// HasKey reports whether k belongs to the key set of m.
func (m Mode) HasKey(k StyleKey) bool {
	for _, key := range modeKeys[m] {
		if key == k {
			return true
		}
	}
	return false
}

// ResponseStatus is the lifecycle state of one style's response.
type ResponseStatus string

const (
	ResponseStatusPending ResponseStatus = "pending"
	ResponseStatusText    ResponseStatus = "text"
	ResponseStatusError   ResponseStatus = "error"
)

// ErrorKind classifies a failed style response.
type ErrorKind string

const (
	// ErrorKindTransportExhausted means every retry attempt failed.
	ErrorKindTransportExhausted ErrorKind = "transport_exhausted"
	// ErrorKindCanceled means generation was abandoned, for example on shutdown.
	ErrorKindCanceled ErrorKind = "canceled"
)

// NoResponseText is the neutral value used when the upstream answered
// without any candidate text.
const NoResponseText = "No response generated."

// StyleErrorMessage returns the user-facing message for a failed style.
func StyleErrorMessage(style StyleKey) string {
	return fmt.Sprintf("Error generating %s response. Please try again.", style)
}

// ResponseError is the structured error carried by an error value.
type ResponseError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ResponseValue is the state of one style key on an assistant turn.
type ResponseValue struct {
	Status ResponseStatus `json:"status"`
	Text   string         `json:"text,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// PendingValue returns an unresolved value.
func PendingValue() ResponseValue {
	return ResponseValue{Status: ResponseStatusPending}
}

// TextValue returns a resolved text value.
func TextValue(text string) ResponseValue {
	return ResponseValue{Status: ResponseStatusText, Text: text}
}

// ErrorValue returns a resolved error value for style.
func ErrorValue(style StyleKey, kind ErrorKind) ResponseValue {
	return ResponseValue{
		Status: ResponseStatusError,
		Error:  &ResponseError{Kind: kind, Message: StyleErrorMessage(style)},
	}
}

// Resolved reports whether the value has left the pending state.
func (v ResponseValue) Resolved() bool {
	return v.Status == ResponseStatusText || v.Status == ResponseStatusError
}

// Turn is one record in a conversation: a user query or the assistant
// output paired with it.
type Turn struct {
	ID             string                     `json:"id"`
	ConversationID string                     `json:"conversation_id"`
	Role           Role                       `json:"role"`
	Mode           Mode                       `json:"mode"`
	Text           string                     `json:"text,omitempty"`
	PairID         string                     `json:"pair_id,omitempty"`
	Responses      map[StyleKey]ResponseValue `json:"responses,omitempty"`
	ActiveTab      StyleKey                   `json:"active_tab,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
}

// NewTurnPair builds the user turn and its assistant turn for query. Every
// response key of the assistant turn starts pending.
func NewTurnPair(conversationID, query string, mode Mode, now time.Time) (user, assistant *Turn) {
	user = &Turn{
		ID:             NewTurnID(),
		ConversationID: conversationID,
		Role:           RoleUser,
		Mode:           mode,
		Text:           query,
		CreatedAt:      now,
	}

	responses := make(map[StyleKey]ResponseValue, len(modeKeys[mode]))
	for _, k := range modeKeys[mode] {
		responses[k] = PendingValue()
	}
	assistant = &Turn{
		ID:             NewTurnID(),
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Mode:           mode,
		PairID:         user.ID,
		Responses:      responses,
		ActiveTab:      mode.DefaultTab(),
		CreatedAt:      now,
	}
	user.PairID = assistant.ID
	return user, assistant
}

// Clone returns a deep copy of t.
func (t *Turn) Clone() *Turn {
	if t == nil {
		return nil
	}
	c := *t
	if t.Responses != nil {
		c.Responses = make(map[StyleKey]ResponseValue, len(t.Responses))
		for k, v := range t.Responses {
			if v.Error != nil {
				e := *v.Error
				v.Error = &e
			}
			c.Responses[k] = v
		}
	}
	return &c
}

// Keys returns the response keys of an assistant turn in dispatch order.
func (t *Turn) Keys() []StyleKey {
	var keys []StyleKey
	for _, k := range modeKeys[t.Mode] {
		if _, ok := t.Responses[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// ResolvedCount returns the number of response keys no longer pending.
func (t *Turn) ResolvedCount() int {
	n := 0
	for _, v := range t.Responses {
		if v.Resolved() {
			n++
		}
	}
	return n
}

// Settled reports whether an assistant turn has no pending keys left.
// User turns are always settled.
func (t *Turn) Settled() bool {
	return t.ResolvedCount() == len(t.Responses)
}

// SameKeys reports whether two response maps share an identical key set.
func SameKeys(a, b map[StyleKey]ResponseValue) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// Theme is the persisted display preference.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"

	DefaultTheme = ThemeDark
)

// Valid reports whether th is a known theme.
func (th Theme) Valid() bool {
	return th == ThemeDark || th == ThemeLight
}

// Toggle returns the opposite theme.
func (th Theme) Toggle() Theme {
	if th == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}
