package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/trianswer/pkg/api"
	"github.com/rhuss/trianswer/pkg/provider"
	"github.com/rhuss/trianswer/pkg/retry"
	"github.com/rhuss/trianswer/pkg/storage/memory"
)

// stubProvider answers each request through fn, keyed by the style whose
// system instruction the request carries.
type stubProvider struct {
	mu    sync.Mutex
	calls []*provider.Request
	fn    func(ctx context.Context, style api.StyleKey, attempt int) (*provider.Response, error)

	attempts map[api.StyleKey]int
	closed   bool
}

func newStub(fn func(ctx context.Context, style api.StyleKey, attempt int) (*provider.Response, error)) *stubProvider {
	return &stubProvider{fn: fn, attempts: make(map[api.StyleKey]int)}
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	style := styleOf(req)
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.attempts[style]++
	attempt := p.attempts[style]
	p.mu.Unlock()
	return p.fn(ctx, style, attempt)
}

func (p *stubProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *stubProvider) attemptsFor(style api.StyleKey) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[style]
}

func styleOf(req *provider.Request) api.StyleKey {
	for k, prompt := range DefaultPrompts {
		if prompt == req.SystemInstruction {
			return k
		}
	}
	return ""
}

func textResponse(text string) *provider.Response {
	return &provider.Response{Model: "stub-model", Candidates: []string{text}}
}

// echo answers every style with "<style>: <ok>".
func echo(_ context.Context, style api.StyleKey, _ int) (*provider.Response, error) {
	return textResponse(string(style) + " answer"), nil
}

// fastPolicy retries without waiting.
func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Sleep:       func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

func newTestEngine(t *testing.T, p *stubProvider) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.New(0)
	e, err := New(p, store, Config{Retry: fastPolicy(2)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e, store
}

func nextEvent(t *testing.T, ch <-chan api.Event) api.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return api.Event{}
}

func waitSettled(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not settle")
	}
}
