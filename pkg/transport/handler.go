package transport

import (
	"context"

	"github.com/rhuss/trianswer/pkg/api"
)

// TurnSubmitter handles the core submit operation: accept a query for a
// conversation, record the pending turn pair, and start generation.
// Submit returns as soon as the pair is recorded; generation continues in
// the background and is observable through the returned Submission.
type TurnSubmitter interface {
	Submit(ctx context.Context, conversationID string, req *api.SubmitRequest) (*Submission, error)
}

// TurnSubmitterFunc is an adapter that allows using an ordinary function
// as a TurnSubmitter.
type TurnSubmitterFunc func(ctx context.Context, conversationID string, req *api.SubmitRequest) (*Submission, error)

// Submit calls f(ctx, conversationID, req).
func (f TurnSubmitterFunc) Submit(ctx context.Context, conversationID string, req *api.SubmitRequest) (*Submission, error) {
	return f(ctx, conversationID, req)
}

// Submission is the handle for an accepted turn. User and Assistant are
// snapshots taken right after the pair was recorded, so every assistant
// response is still pending in them.
type Submission struct {
	User      *api.Turn
	Assistant *api.Turn

	done     <-chan struct{}
	resolved func() int
}

// NewSubmission creates a Submission whose Done channel is done.
func NewSubmission(user, assistant *api.Turn, done <-chan struct{}) *Submission {
	return &Submission{User: user, Assistant: assistant, done: done}
}

// WithProgress attaches a live resolved-key counter to s.
func (s *Submission) WithProgress(resolved func() int) *Submission {
	s.resolved = resolved
	return s
}

// Resolved returns how many response keys have resolved so far. Without a
// progress counter it only knows "none" or "all".
func (s *Submission) Resolved() int {
	if s.resolved != nil {
		return s.resolved()
	}
	select {
	case <-s.done:
		return len(s.Assistant.Responses)
	default:
		return 0
	}
}

// Done is closed exactly once, when every response key of the assistant
// turn has resolved.
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the turn settles or ctx is done.
func (s *Submission) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConversationManager covers the read and UI-side write operations on
// conversations. The UI is the only writer of active tabs.
type ConversationManager interface {
	// Snapshot returns the ordered turns of a conversation.
	Snapshot(ctx context.Context, conversationID string) ([]*api.Turn, error)

	// SetActiveTab selects the displayed style of an assistant turn.
	SetActiveTab(ctx context.Context, conversationID, turnID string, key api.StyleKey) (*api.Turn, error)

	// Clear removes every turn of a conversation.
	Clear(ctx context.Context, conversationID string) error

	// Theme returns the persisted theme preference.
	Theme(ctx context.Context) (api.Theme, error)

	// SetTheme persists the theme preference.
	SetTheme(ctx context.Context, theme api.Theme) error

	// Subscribe streams events of one conversation until cancel is called.
	// An empty conversationID follows preference events such as theme
	// changes.
	Subscribe(ctx context.Context, conversationID string) (events <-chan api.Event, cancel func())
}

// ConversationStore holds conversations and the theme preference.
// Implementations must be safe for concurrent use and must apply
// PatchResponse as an atomic read-modify-write of the single key, so that
// concurrent patches to different keys of the same turn are never lost.
type ConversationStore interface {
	// Append records turns atomically, in order. Either all turns are
	// stored or none are.
	Append(ctx context.Context, turns ...*api.Turn) error

	// PatchResponse resolves one pending response key of an assistant turn
	// and returns the updated turn. Returns storage.ErrNotFound for an
	// unknown turn, storage.ErrUnknownStyle when the key is not part of the
	// turn's key set, and storage.ErrAlreadyResolved when the key has left
	// the pending state.
	PatchResponse(ctx context.Context, turnID string, key api.StyleKey, value api.ResponseValue) (*api.Turn, error)

	// SetActiveTab updates the active tab of an assistant turn.
	SetActiveTab(ctx context.Context, turnID string, key api.StyleKey) (*api.Turn, error)

	// GetTurn returns a single turn by ID.
	GetTurn(ctx context.Context, turnID string) (*api.Turn, error)

	// Clear deletes every turn of a conversation.
	Clear(ctx context.Context, conversationID string) error

	// Snapshot returns the turns of a conversation in creation order.
	// The returned turns are copies.
	Snapshot(ctx context.Context, conversationID string) ([]*api.Turn, error)

	// GetTheme returns the stored theme, or api.DefaultTheme when none has
	// been stored.
	GetTheme(ctx context.Context) (api.Theme, error)

	// SetTheme stores the theme preference.
	SetTheme(ctx context.Context, theme api.Theme) error

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases database connections and resources.
	Close() error
}
