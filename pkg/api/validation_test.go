package api

import (
	"strings"
	"testing"
)

func TestSubmitRequestValidate(t *testing.T) {
	tests := []struct {
		name      string
		req       SubmitRequest
		wantParam string
	}{
		{"valid multi view", SubmitRequest{Query: "hi", Mode: ModeMultiView}, ""},
		{"valid agent", SubmitRequest{Query: "list files", Mode: ModeAgent}, ""},
		{"empty mode allowed", SubmitRequest{Query: "hi"}, ""},
		{"missing query", SubmitRequest{Mode: ModeAgent}, "query"},
		{"oversized query", SubmitRequest{Query: strings.Repeat("a", MaxQueryLength+1)}, "query"},
		{"unknown mode", SubmitRequest{Query: "hi", Mode: "chat"}, "mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := ValidationError(tt.req.Validate())
			if tt.wantParam == "" {
				if apiErr != nil {
					t.Fatalf("unexpected error: %v", apiErr)
				}
				return
			}
			if apiErr == nil {
				t.Fatal("expected validation error")
			}
			if apiErr.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", apiErr.Param, tt.wantParam)
			}
			if apiErr.Type != ErrorTypeInvalidRequest {
				t.Errorf("Type = %q, want invalid_request", apiErr.Type)
			}
		})
	}
}

func TestActiveTabRequestValidate(t *testing.T) {
	if err := (&ActiveTabRequest{Tab: StyleDetailed}).Validate(); err != nil {
		t.Errorf("valid tab rejected: %v", err)
	}
	if err := (&ActiveTabRequest{Tab: "summary"}).Validate(); err == nil {
		t.Error("unknown tab accepted")
	}
	if err := (&ActiveTabRequest{}).Validate(); err == nil {
		t.Error("empty tab accepted")
	}
}

func TestThemeRequestValidate(t *testing.T) {
	if err := (&ThemeRequest{Theme: ThemeLight}).Validate(); err != nil {
		t.Errorf("valid theme rejected: %v", err)
	}
	apiErr := ValidationError((&ThemeRequest{Theme: "sepia"}).Validate())
	if apiErr == nil || apiErr.Param != "theme" {
		t.Errorf("ValidationError = %v, want param theme", apiErr)
	}
}
