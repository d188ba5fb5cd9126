package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInProcessLimiter_WindowResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewInProcessLimiter(TiersFromRPM(map[string]int{"free": 1}), 0)
	l.now = func() time.Time { return now }

	id := &Identity{Subject: "alice", ServiceTier: "free"}
	if err := l.Allow(context.Background(), id); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := l.Allow(context.Background(), id); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("second request: err = %v, want ErrTooManyRequests", err)
	}

	now = now.Add(time.Minute)
	if err := l.Allow(context.Background(), id); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestInProcessLimiter_DefaultTier(t *testing.T) {
	l := NewInProcessLimiter(nil, 2)
	id := &Identity{Subject: "bob"}

	for i := 0; i < 2; i++ {
		if err := l.Allow(context.Background(), id); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if err := l.Allow(context.Background(), id); err == nil {
		t.Fatal("expected default tier limit to apply")
	}
	if id.Tier() != "default" {
		t.Errorf("Tier = %q, want default", id.Tier())
	}
}

func TestInProcessLimiter_SubjectsIndependent(t *testing.T) {
	l := NewInProcessLimiter(nil, 1)
	if err := l.Allow(context.Background(), &Identity{Subject: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow(context.Background(), &Identity{Subject: "b"}); err != nil {
		t.Fatalf("second subject limited: %v", err)
	}
}

func TestInProcessLimiter_Unlimited(t *testing.T) {
	l := NewInProcessLimiter(nil, 0)
	for i := 0; i < 50; i++ {
		if err := l.Allow(context.Background(), &Identity{Subject: "a"}); err != nil {
			t.Fatalf("request %d limited", i)
		}
	}
}
