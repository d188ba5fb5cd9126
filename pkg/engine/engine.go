package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rhuss/trianswer/pkg/api"
	"github.com/rhuss/trianswer/pkg/debug"
	"github.com/rhuss/trianswer/pkg/events"
	"github.com/rhuss/trianswer/pkg/observability"
	"github.com/rhuss/trianswer/pkg/provider"
	"github.com/rhuss/trianswer/pkg/storage"
	"github.com/rhuss/trianswer/pkg/transport"
)

// Engine orchestrates turns between the transport layer, the provider
// backend and the conversation store.
type Engine struct {
	gen      *Generator
	provider provider.Provider
	store    transport.ConversationStore
	hub      *events.Hub
	inflight *transport.InFlightRegistry
	cfg      Config

	// base outlives individual requests; Close cancels it.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards closed; Submit holds it shared until its workers are
	// registered so Close never waits on a half-started turn.
	mu     sync.RWMutex
	closed bool
}

// Ensure Engine implements the transport interfaces at compile time.
var (
	_ transport.TurnSubmitter       = (*Engine)(nil)
	_ transport.ConversationManager = (*Engine)(nil)
)

// New creates an Engine. Provider and store must not be nil.
func New(p provider.Provider, store transport.ConversationStore, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("engine: store must not be nil")
	}

	p = Instrument(p)
	hub := events.NewHub(cfg.EventBuffer)
	hub.OnDrop = observability.EventsDroppedTotal.Inc

	base, cancel := context.WithCancel(context.Background())
	return &Engine{
		gen:      NewGenerator(p, cfg),
		provider: p,
		store:    store,
		hub:      hub,
		inflight: transport.NewInFlightRegistry(),
		cfg:      cfg,
		base:     base,
		cancel:   cancel,
	}, nil
}

// turnRun tracks the resolution of one assistant turn.
type turnRun struct {
	slot      string
	topic     string
	turnID    string
	mode      api.Mode
	total     int32
	resolved  atomic.Int32
	done      chan struct{}
	settle    sync.Once
	cancel    context.CancelFunc
	startedAt time.Time
}

// Submit records the user turn and a pending assistant turn, then starts
// one generation per response key. It returns once the pair is stored.
func (e *Engine) Submit(ctx context.Context, conversationID string, req *api.SubmitRequest) (*transport.Submission, error) {
	if strings.TrimSpace(req.Query) == "" {
		observability.SubmissionsRejectedTotal.WithLabelValues("empty_query").Inc()
		return nil, ErrEmptyQuery
	}
	mode := req.Mode
	if mode == "" {
		mode = api.ModeMultiView
	}
	if !mode.Valid() {
		observability.SubmissionsRejectedTotal.WithLabelValues("invalid_mode").Inc()
		return nil, ErrInvalidMode
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}

	tenantID := storage.GetTenant(ctx)
	runCtx, cancel := context.WithCancel(storage.SetTenant(e.base, tenantID))

	slot := slotKey(tenantID, conversationID)
	if !e.inflight.Acquire(slot, cancel) {
		cancel()
		observability.SubmissionsRejectedTotal.WithLabelValues("turn_in_flight").Inc()
		return nil, ErrTurnInFlight
	}

	user, assistant := api.NewTurnPair(conversationID, req.Query, mode, e.cfg.now())
	if err := e.store.Append(ctx, user, assistant); err != nil {
		e.inflight.Release(slot)
		cancel()
		observability.SubmissionsRejectedTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("recording turn: %w", err)
	}

	run := &turnRun{
		slot:      slot,
		topic:     slot,
		turnID:    assistant.ID,
		mode:      mode,
		total:     int32(len(assistant.Responses)),
		done:      make(chan struct{}),
		cancel:    cancel,
		startedAt: time.Now(),
	}

	observability.TurnsSubmittedTotal.WithLabelValues(string(mode)).Inc()
	observability.TurnsInFlight.Inc()
	e.publish(run.topic, api.Event{
		Type:           api.EventTurnCreated,
		ConversationID: conversationID,
		Turns:          []*api.Turn{user.Clone(), assistant.Clone()},
	})

	slog.Info("turn submitted",
		"conversation_id", conversationID,
		"turn_id", assistant.ID,
		"mode", mode,
	)

	// The pair is stored and announced before any generation starts.
	for _, key := range mode.Keys() {
		e.wg.Add(1)
		go e.resolve(runCtx, run, conversationID, req.Query, key)
	}

	sub := transport.NewSubmission(user, assistant, run.done)
	return sub.WithProgress(func() int { return int(run.resolved.Load()) }), nil
}

// resolve generates one style and merges it into the assistant turn.
func (e *Engine) resolve(ctx context.Context, run *turnRun, conversationID, query string, key api.StyleKey) {
	defer e.wg.Done()

	value := e.gen.Generate(ctx, query, key)

	// The result must land even when generation was canceled.
	storeCtx := context.WithoutCancel(ctx)
	turn, err := e.store.PatchResponse(storeCtx, run.turnID, key, value)
	if err != nil {
		slog.Error("failed to record style response",
			"conversation_id", conversationID,
			"turn_id", run.turnID,
			"style", key,
			"error", err,
		)
	} else {
		debug.Log("store", "response patched", "turn_id", run.turnID, "style", key, "status", value.Status)
		v := value
		e.publish(run.topic, api.Event{
			Type:           api.EventResponseResolved,
			ConversationID: conversationID,
			Turn:           turn,
			Style:          key,
			Value:          &v,
		})
	}

	// Errors count as resolved; the turn settles once every key is done.
	if run.resolved.Add(1) == run.total {
		e.settle(storeCtx, run, conversationID)
	}
}

// settle runs once per turn after its last key resolved.
func (e *Engine) settle(ctx context.Context, run *turnRun, conversationID string) {
	run.settle.Do(func() {
		e.inflight.Release(run.slot)
		run.cancel()

		observability.TurnsInFlight.Dec()
		observability.TurnSettleDuration.WithLabelValues(string(run.mode)).Observe(time.Since(run.startedAt).Seconds())

		turn, err := e.store.GetTurn(ctx, run.turnID)
		if err != nil {
			slog.Warn("settled turn not readable", "turn_id", run.turnID, "error", err)
		}
		e.publish(run.topic, api.Event{
			Type:           api.EventTurnSettled,
			ConversationID: conversationID,
			Turn:           turn,
		})
		slog.Info("turn settled",
			"conversation_id", conversationID,
			"turn_id", run.turnID,
			"duration", time.Since(run.startedAt),
		)
		close(run.done)
	})
}

// Snapshot returns the ordered turns of a conversation.
func (e *Engine) Snapshot(ctx context.Context, conversationID string) ([]*api.Turn, error) {
	return e.store.Snapshot(ctx, conversationID)
}

// SetActiveTab selects the displayed style of an assistant turn. Selecting
// the current tab is a no-op and publishes nothing.
func (e *Engine) SetActiveTab(ctx context.Context, conversationID, turnID string, key api.StyleKey) (*api.Turn, error) {
	turn, err := e.store.GetTurn(ctx, turnID)
	if err != nil {
		return nil, err
	}
	if turn.ConversationID != conversationID {
		return nil, storage.ErrNotFound
	}
	if turn.Role != api.RoleAssistant {
		return nil, storage.ErrNotAssistantTurn
	}
	if _, ok := turn.Responses[key]; !ok {
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownStyle, key)
	}
	if turn.ActiveTab == key {
		return turn, nil
	}

	updated, err := e.store.SetActiveTab(ctx, turnID, key)
	if err != nil {
		return nil, err
	}
	e.publish(slotKey(storage.GetTenant(ctx), conversationID), api.Event{
		Type:           api.EventTabChanged,
		ConversationID: conversationID,
		Turn:           updated,
		Style:          key,
	})
	return updated, nil
}

// Clear removes every turn of a conversation. It is rejected while a turn
// is generating.
func (e *Engine) Clear(ctx context.Context, conversationID string) error {
	slot := slotKey(storage.GetTenant(ctx), conversationID)
	// Holding the slot keeps Submit out while the store is cleared.
	if !e.inflight.Acquire(slot, func() {}) {
		return ErrTurnInFlight
	}
	defer e.inflight.Release(slot)

	if err := e.store.Clear(ctx, conversationID); err != nil {
		return fmt.Errorf("clearing conversation: %w", err)
	}
	e.publish(slot, api.Event{
		Type:           api.EventConversationCleared,
		ConversationID: conversationID,
	})
	slog.Info("conversation cleared", "conversation_id", conversationID)
	return nil
}

// Theme returns the persisted theme preference.
func (e *Engine) Theme(ctx context.Context) (api.Theme, error) {
	return e.store.GetTheme(ctx)
}

// SetTheme persists the theme preference and notifies preference
// subscribers when it changed.
func (e *Engine) SetTheme(ctx context.Context, theme api.Theme) error {
	if !theme.Valid() {
		return api.NewInvalidRequestError("theme", fmt.Sprintf("unknown theme %q", theme))
	}
	current, err := e.store.GetTheme(ctx)
	if err != nil {
		return err
	}
	if err := e.store.SetTheme(ctx, theme); err != nil {
		return err
	}
	if current != theme {
		e.publish(slotKey(storage.GetTenant(ctx), ""), api.Event{
			Type:  api.EventThemeChanged,
			Theme: theme,
		})
	}
	return nil
}

// Subscribe streams the events of one conversation of the context's
// tenant. An empty conversationID follows preference events.
func (e *Engine) Subscribe(ctx context.Context, conversationID string) (<-chan api.Event, func()) {
	return e.hub.Subscribe(slotKey(storage.GetTenant(ctx), conversationID))
}

// InFlight reports whether a turn of the conversation is still generating.
func (e *Engine) InFlight(ctx context.Context, conversationID string) bool {
	return e.inflight.Active(slotKey(storage.GetTenant(ctx), conversationID))
}

// Close stops accepting submissions, cancels in-flight generation and
// waits until every pending key has been resolved as canceled. Then the
// event hub and provider are closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if n := e.inflight.CancelAll(); n > 0 {
		slog.Info("canceling in-flight turns", "count", n)
	}
	e.cancel()
	e.wg.Wait()
	e.hub.Close()

	return e.provider.Close()
}

func (e *Engine) publish(topic string, ev api.Event) {
	e.hub.Publish(topic, ev)
}

// slotKey scopes a conversation to its tenant for the single-flight
// registry and event topics.
func slotKey(tenantID, conversationID string) string {
	return tenantID + "/" + conversationID
}
