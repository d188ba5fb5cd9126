package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/rhuss/trianswer/pkg/api"
)

func TestApplyPatch(t *testing.T) {
	user, assistant := api.NewTurnPair("c", "q", api.ModeMultiView, time.Now())

	if err := ApplyPatch(assistant, api.StyleDetailed, api.TextValue("long")); err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if assistant.Responses[api.StyleDetailed].Text != "long" {
		t.Error("patched key not updated")
	}
	if assistant.Responses[api.StyleConcise].Status != api.ResponseStatusPending {
		t.Error("sibling key must stay pending")
	}

	err := ApplyPatch(assistant, api.StyleDetailed, api.TextValue("again"))
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("second patch error = %v, want ErrAlreadyResolved", err)
	}
	if assistant.Responses[api.StyleDetailed].Text != "long" {
		t.Error("resolved value must not change")
	}

	if err := ApplyPatch(assistant, api.StyleAgent, api.TextValue("x")); !errors.Is(err, ErrUnknownStyle) {
		t.Errorf("unknown key error = %v, want ErrUnknownStyle", err)
	}
	if len(assistant.Responses) != 3 {
		t.Errorf("key set grew to %d", len(assistant.Responses))
	}

	if err := ApplyPatch(user, api.StyleConcise, api.TextValue("x")); !errors.Is(err, ErrNotAssistantTurn) {
		t.Errorf("user turn error = %v, want ErrNotAssistantTurn", err)
	}

	if err := ApplyPatch(assistant, api.StyleCreative, api.PendingValue()); err == nil {
		t.Error("patching to pending should fail")
	}
}

func TestApplyActiveTab(t *testing.T) {
	_, assistant := api.NewTurnPair("c", "q", api.ModeMultiView, time.Now())

	for i := 0; i < 3; i++ {
		if err := ApplyActiveTab(assistant, api.StyleCreative); err != nil {
			t.Fatalf("ApplyActiveTab: %v", err)
		}
	}
	if assistant.ActiveTab != api.StyleCreative {
		t.Errorf("ActiveTab = %q", assistant.ActiveTab)
	}
	for k, v := range assistant.Responses {
		if v.Status != api.ResponseStatusPending {
			t.Errorf("tab change altered response %q", k)
		}
	}

	if err := ApplyActiveTab(assistant, api.StyleAgent); !errors.Is(err, ErrUnknownStyle) {
		t.Errorf("error = %v, want ErrUnknownStyle", err)
	}
}

func TestValidateAppend(t *testing.T) {
	user, assistant := api.NewTurnPair("c", "q", api.ModeAgent, time.Now())
	if err := ValidateAppend([]*api.Turn{user, assistant}); err != nil {
		t.Fatalf("valid pair rejected: %v", err)
	}

	bad := assistant.Clone()
	bad.Responses[api.StyleConcise] = api.PendingValue()
	if err := ValidateAppend([]*api.Turn{bad}); err == nil {
		t.Error("extra key accepted")
	}

	bad = assistant.Clone()
	bad.ActiveTab = api.StyleConcise
	if err := ValidateAppend([]*api.Turn{bad}); err == nil {
		t.Error("active tab outside key set accepted")
	}

	bad = user.Clone()
	bad.Mode = "chat"
	if err := ValidateAppend([]*api.Turn{bad}); err == nil {
		t.Error("unknown mode accepted")
	}
}
