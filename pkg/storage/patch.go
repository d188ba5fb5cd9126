package storage

import (
	"fmt"

	"github.com/rhuss/trianswer/pkg/api"
)

// ApplyPatch resolves key on turn in place. It is the shared merge rule of
// every store: only the named key changes, the key must belong to the
// turn's key set, and it must still be pending. Callers hold whatever lock
// or transaction makes the read-modify-write atomic.
func ApplyPatch(turn *api.Turn, key api.StyleKey, value api.ResponseValue) error {
	if turn.Role != api.RoleAssistant {
		return ErrNotAssistantTurn
	}
	current, ok := turn.Responses[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStyle, key)
	}
	if current.Resolved() {
		return fmt.Errorf("%w: %q", ErrAlreadyResolved, key)
	}
	if apiErr := api.ValidateResponseTransition(current.Status, value.Status); apiErr != nil {
		return apiErr
	}
	turn.Responses[key] = value
	return nil
}

// ApplyActiveTab sets the active tab of turn in place. The key must belong
// to the turn's key set.
func ApplyActiveTab(turn *api.Turn, key api.StyleKey) error {
	if turn.Role != api.RoleAssistant {
		return ErrNotAssistantTurn
	}
	if _, ok := turn.Responses[key]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStyle, key)
	}
	turn.ActiveTab = key
	return nil
}

// ValidateAppend checks turns before they are stored: IDs are present, all
// turns share one conversation, modes are known, and assistant turns carry
// exactly their mode's key set with an active tab from that set.
func ValidateAppend(turns []*api.Turn) error {
	for _, t := range turns {
		if t == nil || t.ID == "" || t.ConversationID == "" {
			return fmt.Errorf("storage: turn id and conversation id are required")
		}
		if t.ConversationID != turns[0].ConversationID {
			return fmt.Errorf("storage: appended turns span conversations %q and %q",
				turns[0].ConversationID, t.ConversationID)
		}
		if !t.Mode.Valid() {
			return fmt.Errorf("storage: turn %s has unknown mode %q", t.ID, t.Mode)
		}
		if t.Role != api.RoleAssistant {
			continue
		}
		if len(t.Responses) != len(t.Mode.Keys()) {
			return fmt.Errorf("storage: turn %s has %d response keys, mode %s requires %d",
				t.ID, len(t.Responses), t.Mode, len(t.Mode.Keys()))
		}
		for k := range t.Responses {
			if !t.Mode.HasKey(k) {
				return fmt.Errorf("%w: %q on turn %s", ErrUnknownStyle, k, t.ID)
			}
		}
		if _, ok := t.Responses[t.ActiveTab]; !ok {
			return fmt.Errorf("%w: active tab %q on turn %s", ErrUnknownStyle, t.ActiveTab, t.ID)
		}
	}
	return nil
}
