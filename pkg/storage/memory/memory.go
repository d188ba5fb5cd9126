// Package memory provides an in-memory implementation of
// transport.ConversationStore for testing and lightweight deployments.
// Conversations are lost when the process restarts. Optional LRU eviction
// bounds the number of conversations kept.
package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/rhuss/trianswer/pkg/api"
	"github.com/rhuss/trianswer/pkg/storage"
	"github.com/rhuss/trianswer/pkg/transport"
)

// conversation holds the ordered turns of one tenant's conversation.
type conversation struct {
	key     convKey
	turns   []*api.Turn
	lruElem *list.Element // position in LRU list
}

type convKey struct {
	tenantID       string
	conversationID string
}

// entry indexes a turn by ID.
type entry struct {
	turn     *api.Turn
	tenantID string
}

// Store is an in-memory ConversationStore with optional LRU eviction.
//
// A single mutex guards all state, so every PatchResponse is an atomic
// read-modify-write of one key.
type Store struct {
	mu            sync.RWMutex
	conversations map[convKey]*conversation
	entries       map[string]*entry
	themes        map[string]api.Theme
	lruList       *list.List // front = most recently used, back = least recently used
	maxSize       int        // maximum conversations, 0 = unlimited
}

// Ensure Store implements transport.ConversationStore at compile time.
var _ transport.ConversationStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently used settled
// conversation is evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		conversations: make(map[convKey]*conversation),
		entries:       make(map[string]*entry),
		themes:        make(map[string]api.Theme),
		lruList:       list.New(),
		maxSize:       maxSize,
	}
}

// Append stores copies of turns in order. All turns must belong to the same
// conversation.
func (s *Store) Append(ctx context.Context, turns ...*api.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	if err := storage.ValidateAppend(turns); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range turns {
		if _, exists := s.entries[t.ID]; exists {
			return storage.ErrConflict
		}
	}

	tenantID := storage.GetTenant(ctx)
	key := convKey{tenantID: tenantID, conversationID: turns[0].ConversationID}
	conv, ok := s.conversations[key]
	if !ok {
		if s.maxSize > 0 && len(s.conversations) >= s.maxSize {
			s.evictOldest()
		}
		conv = &conversation{key: key}
		conv.lruElem = s.lruList.PushFront(key)
		s.conversations[key] = conv
	} else {
		s.lruList.MoveToFront(conv.lruElem)
	}

	for _, t := range turns {
		c := t.Clone()
		conv.turns = append(conv.turns, c)
		s.entries[c.ID] = &entry{turn: c, tenantID: tenantID}
	}
	return nil
}

// PatchResponse resolves one pending key of an assistant turn.
func (s *Store) PatchResponse(ctx context.Context, turnID string, key api.StyleKey, value api.ResponseValue) (*api.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, turnID)
	if err != nil {
		return nil, err
	}
	if err := storage.ApplyPatch(e.turn, key, value); err != nil {
		return nil, err
	}
	return e.turn.Clone(), nil
}

// SetActiveTab updates the active tab of an assistant turn.
func (s *Store) SetActiveTab(ctx context.Context, turnID string, key api.StyleKey) (*api.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, turnID)
	if err != nil {
		return nil, err
	}
	if err := storage.ApplyActiveTab(e.turn, key); err != nil {
		return nil, err
	}
	return e.turn.Clone(), nil
}

// GetTurn returns a copy of a single turn.
func (s *Store) GetTurn(ctx context.Context, turnID string) (*api.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.lookup(ctx, turnID)
	if err != nil {
		return nil, err
	}
	return e.turn.Clone(), nil
}

// Clear removes every turn of a conversation. Clearing an unknown
// conversation is not an error.
func (s *Store) Clear(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := convKey{tenantID: storage.GetTenant(ctx), conversationID: conversationID}
	conv, ok := s.conversations[key]
	if !ok {
		return nil
	}
	s.remove(conv)
	return nil
}

// Snapshot returns copies of a conversation's turns in creation order.
// An unknown conversation yields an empty slice.
func (s *Store) Snapshot(ctx context.Context, conversationID string) ([]*api.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := convKey{tenantID: storage.GetTenant(ctx), conversationID: conversationID}
	conv, ok := s.conversations[key]
	if !ok {
		return []*api.Turn{}, nil
	}
	s.lruList.MoveToFront(conv.lruElem)

	out := make([]*api.Turn, len(conv.turns))
	for i, t := range conv.turns {
		out[i] = t.Clone()
	}
	return out, nil
}

// GetTheme returns the tenant's theme, or api.DefaultTheme.
func (s *Store) GetTheme(ctx context.Context) (api.Theme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if th, ok := s.themes[storage.GetTenant(ctx)]; ok {
		return th, nil
	}
	return api.DefaultTheme, nil
}

// SetTheme stores the tenant's theme.
func (s *Store) SetTheme(ctx context.Context, theme api.Theme) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.themes[storage.GetTenant(ctx)] = theme
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of conversations held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// lookup finds a turn visible to the context's tenant.
// Must be called with s.mu held.
func (s *Store) lookup(ctx context.Context, turnID string) (*entry, error) {
	e, ok := s.entries[turnID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	tenantID := storage.GetTenant(ctx)
	if tenantID != "" && e.tenantID != tenantID {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

// evictOldest removes the least recently used conversation that has no
// pending responses. Conversations still generating are skipped.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	for elem := s.lruList.Back(); elem != nil; elem = elem.Prev() {
		conv := s.conversations[elem.Value.(convKey)]
		if conv != nil && settled(conv) {
			s.remove(conv)
			return
		}
	}
}

// remove deletes a conversation and its turn index entries.
// Must be called with s.mu held.
func (s *Store) remove(conv *conversation) {
	for _, t := range conv.turns {
		delete(s.entries, t.ID)
	}
	s.lruList.Remove(conv.lruElem)
	delete(s.conversations, conv.key)
}

func settled(conv *conversation) bool {
	for _, t := range conv.turns {
		if !t.Settled() {
			return false
		}
	}
	return true
}
