package api

import (
	"sort"
	"testing"
)

func TestNewTurnID(t *testing.T) {
	id := NewTurnID()
	if !ValidateTurnID(id) {
		t.Errorf("NewTurnID() = %q, want valid turn ID", id)
	}
}

func TestTurnIDsAreCreationOrdered(t *testing.T) {
	ids := make([]string, 200)
	for i := range ids {
		ids[i] = NewTurnID()
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("turn IDs generated in sequence should sort in creation order")
	}
}

func TestValidateTurnID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "turn_01920d8e-3c4a-7b21-8f00-1a2b3c4d5e6f", true},
		{"uuid v4", "turn_01920d8e-3c4a-4b21-8f00-1a2b3c4d5e6f", false},
		{"wrong prefix", "item_01920d8e-3c4a-7b21-8f00-1a2b3c4d5e6f", false},
		{"uppercase", "turn_01920D8E-3C4A-7B21-8F00-1A2B3C4D5E6F", false},
		{"empty", "", false},
		{"prefix only", "turn_", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateTurnID(tt.id); got != tt.want {
				t.Errorf("ValidateTurnID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestValidateConversationID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"default", true},
		{NewConversationID(), true},
		{"team-a_chat-1", true},
		{"", false},
		{"has space", false},
		{"slash/inside", false},
	}
	for _, tt := range tests {
		if got := ValidateConversationID(tt.id); got != tt.want {
			t.Errorf("ValidateConversationID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
