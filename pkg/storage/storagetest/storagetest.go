// Package storagetest provides a conformance suite for
// transport.ConversationStore implementations.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/trianswer/pkg/api"
	"github.com/rhuss/trianswer/pkg/storage"
	"github.com/rhuss/trianswer/pkg/transport"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) transport.ConversationStore

// Run exercises the ConversationStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s transport.ConversationStore)
	}{
		{"AppendAndSnapshot", testAppendAndSnapshot},
		{"AppendDuplicate", testAppendDuplicate},
		{"PatchResponse", testPatchResponse},
		{"PatchResponseErrors", testPatchResponseErrors},
		{"ConcurrentPatchesKeepSiblings", testConcurrentPatches},
		{"SetActiveTab", testSetActiveTab},
		{"Clear", testClear},
		{"Theme", testTheme},
		{"TenantIsolation", testTenantIsolation},
		{"SnapshotIsCopy", testSnapshotIsCopy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

var baseTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func appendPair(t *testing.T, ctx context.Context, s transport.ConversationStore, cid, query string, mode api.Mode) (*api.Turn, *api.Turn) {
	t.Helper()
	user, assistant := api.NewTurnPair(cid, query, mode, baseTime)
	if err := s.Append(ctx, user, assistant); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return user, assistant
}

func testAppendAndSnapshot(t *testing.T, s transport.ConversationStore) {
	ctx := context.Background()
	u1, a1 := appendPair(t, ctx, s, "conv-a", "Explain gradient descent", api.ModeMultiView)
	u2, a2 := appendPair(t, ctx, s, "conv-a", "list large files", api.ModeAgent)
	appendPair(t, ctx, s, "conv-b", "other", api.ModeAgent)

	turns, err := s.Snapshot(ctx, "conv-a")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	wantIDs := []string{u1.ID, a1.ID, u2.ID, a2.ID}
	if len(turns) != len(wantIDs) {
		t.Fatalf("len(turns) = %d, want %d", len(turns), len(wantIDs))
	}
	for i, id := range wantIDs {
		if turns[i].ID != id {
			t.Errorf("turns[%d].ID = %q, want %q", i, turns[i].ID, id)
		}
	}

	if turns[0].Role != api.RoleUser || turns[0].Text != "Explain gradient descent" {
		t.Errorf("user turn = %+v", turns[0])
	}
	if turns[0].PairID != a1.ID || turns[1].PairID != u1.ID {
		t.Error("pair IDs not preserved")
	}
	got := turns[1]
	if got.Mode != api.ModeMultiView || got.ActiveTab != api.StyleConcise {
		t.Errorf("assistant turn mode/tab = %q/%q", got.Mode, got.ActiveTab)
	}
	if !api.SameKeys(got.Responses, a1.Responses) {
		t.Errorf("responses keys = %v, want %v", got.Responses, a1.Responses)
	}
	for k, v := range got.Responses {
		if v.Status != api.ResponseStatusPending {
			t.Errorf("Responses[%q] = %q, want pending", k, v.Status)
		}
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, baseTime)
	}
	if turns[3].Responses[api.StyleAgent].Status != api.ResponseStatusPending {
		t.Error("agent turn should have a pending agent key")
	}

	empty, err := s.Snapshot(ctx, "conv-none")
	if err != nil {
		t.Fatalf("Snapshot(unknown): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown conversation has %d turns", len(empty))
	}
}

func testAppendDuplicate(t *testing.T, s transport.ConversationStore) {
	ctx := context.Background()
	user, assistant := appendPair(t, ctx, s, "conv", "q", api.ModeAgent)

	err := s.Append(ctx, user, assistant)
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate Append error = %v, want ErrConflict", err)
	}
	turns, _ := s.Snapshot(ctx, "conv")
	if len(turns) != 2 {
		t.Errorf("len(turns) = %d after rejected append, want 2", len(turns))
	}
}

func testPatchResponse(t *testing.T, s transport.ConversationStore) {
	ctx := context.Background()
	_, a := appendPair(t, ctx, s, "conv", "q", api.ModeMultiView)

	got, err := s.PatchResponse(ctx, a.ID, api.StyleConcise, api.TextValue("Gradient descent iteratively..."))
	if err != nil {
		t.Fatalf("PatchResponse: %v", err)
	}
	if got.Responses[api.StyleConcise].Text != "Gradient descent iteratively..." {
		t.Errorf("returned turn not updated: %+v", got.Responses)
	}
	if got.Settled() {
		t.Error("turn should not be settled yet")
	}

	if _, err := s.PatchResponse(ctx, a.ID, api.StyleDetailed, api.ErrorValue(api.StyleDetailed, api.ErrorKindTransportExhausted)); err != nil {
		t.Fatalf("PatchResponse(error value): %v", err)
	}
	got, err = s.PatchResponse(ctx, a.ID, api.StyleCreative, api.TextValue("What if..."))
	if err != nil {
		t.Fatalf("PatchResponse: %v", err)
	}
	if !got.Settled() {
		t.Error("turn should be settled")
	}

	stored, err := s.GetTurn(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetTurn: %v", err)
	}
	d := stored.Responses[api.StyleDetailed]
	if d.Status != api.ResponseStatusError || d.Error == nil {
		t.Fatalf("detailed = %+v, want error value", d)
	}
	if d.Error.Kind != api.ErrorKindTransportExhausted || d.Error.Message != api.StyleErrorMessage(api.StyleDetailed) {
		t.Errorf("detailed error = %+v", d.Error)
	}
}

func testPatchResponseErrors(t *testing.T, s transport.ConversationStore) {
	ctx := context.Background()
	u, a := appendPair(t, ctx, s, "conv", "q", api.ModeAgent)

	if _, err := s.PatchResponse(ctx, "turn_missing", api.StyleAgent, api.TextValue("x")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown turn error = %v, want ErrNotFound", err)
	}
	if _, err := s.PatchResponse(ctx, a.ID, api.StyleConcise, api.TextValue("x")); !errors.Is(err, storage.ErrUnknownStyle) {
		t.Errorf("foreign key error = %v, want ErrUnknownStyle", err)
	}
	if _, err := s.PatchResponse(ctx, u.ID, api.StyleAgent, api.TextValue("x")); err == nil {
		t.Error("patching a user turn should fail")
	}
	if _, err := s.PatchResponse(ctx, a.ID, api.StyleAgent, api.TextValue("first")); err != nil {
		t.Fatalf("PatchResponse: %v", err)
	}
	if _, err := s.PatchResponse(ctx, a.ID, api.StyleAgent, api.TextValue("second")); !errors.Is(err, storage.ErrAlreadyResolved) {
		t.Errorf("second patch error = %v, want ErrAlreadyResolved", err)
	}

	got, _ := s.GetTurn(ctx, a.ID)
	if got.Responses[api.StyleAgent].Text != "first" {
		t.Errorf("agent text = %q, want first", got.Responses[api.StyleAgent].Text)
	}
	if len(got.Responses) != 1 {
		t.Errorf("key set size = %d, want 1", len(got.Responses))
	}
}

func testConcurrentPatches(t *testing.T, s transport.ConversationStore) {
	ctx := context.Background()
	const turns = 5

	var assistants []*api.Turn
	for i := 0; i < turns; i++ {
		_, a := appendPair(t, ctx, s, "conv", "q", api.ModeMultiView)
		assistants = append(assistants, a)
	}

	var wg sync.WaitGroup
	for _, a := range assistants {
		for _, k := range api.ModeMultiView.Keys() {
			wg.Add(1)
			go func(id string, k api.StyleKey) {
				defer wg.Done()
				if _, err := s.PatchResponse(ctx, id, k, api.TextValue(string(k))); err != nil {
					t.Errorf("PatchResponse(%s, %s): %v", id, k, err)
				}
			}(a.ID, k)
		}
	}
	wg.Wait()

	for _, a := range assistants {
		got, err := s.GetTurn(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetTurn: %v", err)
		}
		for _, k := range api.ModeMultiView.Keys() {
			if v := got.Responses[k]; v.Status != api.ResponseStatusText || v.Text != string(k) {
				t.Errorf("turn %s key %s = %+v, a concurrent patch was lost", a.ID, k, v)
			}
		}
	}
}

func testSetActiveTab(t *testing.T, s transport.ConversationStore) {
	ctx := context.Background()
	u, a := appendPair(t, ctx, s, "conv", "q", api.ModeMultiView)
	if _, err := s.PatchResponse(ctx, a.ID, api.StyleConcise, api.TextValue("c")); err != nil {
		t.Fatalf("PatchResponse: %v", err)
	}

	for i := 0; i < 2; i++ {
		got, err := s.SetActiveTab(ctx, a.ID, api.StyleCreative)
		if err != nil {
			t.Fatalf("SetActiveTab: %v", err)
		}
		if got.ActiveTab != api.StyleCreative {
			t.Errorf("ActiveTab = %q", got.ActiveTab)
		}
	}

	got, _ := s.GetTurn(ctx, a.ID)
	if got.Responses[api.StyleConcise].Text != "c" || got.Responses[api.StyleCreative].Status != api.ResponseStatusPending {
		t.Errorf("SetActiveTab changed responses: %+v", got.Responses)
	}

	if _, err := s.SetActiveTab(ctx, a.ID, api.StyleAgent); !errors.Is(err, storage.ErrUnknownStyle) {
		t.Errorf("foreign tab error = %v, want ErrUnknownStyle", err)
	}
	if _, err := s.SetActiveTab(ctx, u.ID, api.StyleConcise); err == nil {
		t.Error("SetActiveTab on a user turn should fail")
	}
	if _, err := s.SetActiveTab(ctx, "turn_missing", api.StyleConcise); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown turn error = %v, want ErrNotFound", err)
	}
}

func testClear(t *testing.T, s transport.ConversationStore) {
	ctx := context.Background()
	_, a := appendPair(t, ctx, s, "conv", "q", api.ModeAgent)
	appendPair(t, ctx, s, "other", "q", api.ModeAgent)

	if err := s.Clear(ctx, "conv"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	turns, _ := s.Snapshot(ctx, "conv")
	if len(turns) != 0 {
		t.Errorf("len(turns) = %d after Clear", len(turns))
	}
	if _, err := s.GetTurn(ctx, a.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetTurn after Clear = %v, want ErrNotFound", err)
	}
	others, _ := s.Snapshot(ctx, "other")
	if len(others) != 2 {
		t.Errorf("Clear removed turns of another conversation")
	}
	if err := s.Clear(ctx, "never-existed"); err != nil {
		t.Errorf("Clear(unknown) = %v, want nil", err)
	}

	appendPair(t, ctx, s, "conv", "again", api.ModeAgent)
	turns, _ = s.Snapshot(ctx, "conv")
	if len(turns) != 2 {
		t.Errorf("len(turns) = %d after re-append, want 2", len(turns))
	}
}

func testTheme(t *testing.T, s transport.ConversationStore) {
	ctx := context.Background()
	th, err := s.GetTheme(ctx)
	if err != nil {
		t.Fatalf("GetTheme: %v", err)
	}
	if th != api.DefaultTheme {
		t.Errorf("default theme = %q, want %q", th, api.DefaultTheme)
	}

	if err := s.SetTheme(ctx, api.ThemeLight); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	if th, _ := s.GetTheme(ctx); th != api.ThemeLight {
		t.Errorf("theme = %q, want light", th)
	}
	if err := s.SetTheme(ctx, api.ThemeDark); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	if th, _ := s.GetTheme(ctx); th != api.ThemeDark {
		t.Errorf("theme = %q, want dark", th)
	}

	// Turns are unaffected by theme changes.
	turns, _ := s.Snapshot(ctx, "conv")
	if len(turns) != 0 {
		t.Errorf("theme write created turns")
	}
}

func testTenantIsolation(t *testing.T, s transport.ConversationStore) {
	alice := storage.SetTenant(context.Background(), "alice")
	bob := storage.SetTenant(context.Background(), "bob")

	_, a := appendPair(t, alice, s, "shared-name", "alice query", api.ModeAgent)
	appendPair(t, bob, s, "shared-name", "bob query", api.ModeAgent)

	turns, _ := s.Snapshot(alice, "shared-name")
	if len(turns) != 2 || turns[0].Text != "alice query" {
		t.Errorf("alice snapshot = %d turns", len(turns))
	}
	if _, err := s.PatchResponse(bob, a.ID, api.StyleAgent, api.TextValue("x")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cross-tenant patch error = %v, want ErrNotFound", err)
	}

	if err := s.SetTheme(alice, api.ThemeLight); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	if th, _ := s.GetTheme(bob); th != api.DefaultTheme {
		t.Errorf("bob theme = %q, want default", th)
	}

	if err := s.Clear(bob, "shared-name"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	turns, _ = s.Snapshot(alice, "shared-name")
	if len(turns) != 2 {
		t.Errorf("bob's Clear removed alice's turns")
	}
}

func testSnapshotIsCopy(t *testing.T, s transport.ConversationStore) {
	ctx := context.Background()
	_, a := appendPair(t, ctx, s, "conv", "q", api.ModeMultiView)

	turns, _ := s.Snapshot(ctx, "conv")
	turns[1].Responses[api.StyleConcise] = api.TextValue("mutated")
	turns[1].ActiveTab = api.StyleCreative

	got, _ := s.GetTurn(ctx, a.ID)
	if got.Responses[api.StyleConcise].Status != api.ResponseStatusPending {
		t.Error("mutating a snapshot changed the store")
	}
	if got.ActiveTab != api.StyleConcise {
		t.Error("mutating a snapshot changed the active tab")
	}
}
