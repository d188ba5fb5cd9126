package provider

import (
	"errors"
	"strings"
	"testing"

	"github.com/rhuss/trianswer/pkg/api"
)

func TestMapStatusError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		message     string
		wantType    api.ErrorType
		wantMessage string
	}{
		{"400 with message", 400, "bad model param", api.ErrorTypeInvalidRequest, "bad model param"},
		{"400 no message", 400, "", api.ErrorTypeInvalidRequest, "invalid request to backend"},
		{"401", 401, "", api.ErrorTypeServerError, "backend authentication failed"},
		{"403", 403, "key revoked", api.ErrorTypeServerError, "key revoked"},
		{"404", 404, "", api.ErrorTypeNotFound, "backend resource not found"},
		{"429", 429, "", api.ErrorTypeTooManyRequests, "backend rate limit exceeded"},
		{"503", 503, "", api.ErrorTypeModelError, "backend server error (HTTP 503)"},
		{"418", 418, "", api.ErrorTypeServerError, "unexpected backend error (HTTP 418)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := MapStatusError(tt.status, tt.message)
			if apiErr.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", apiErr.Type, tt.wantType)
			}
			if apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
		})
	}
}

func TestMapNetworkError(t *testing.T) {
	apiErr := MapNetworkError(errors.New("dial tcp: connection refused"))
	if apiErr.Type != api.ErrorTypeServerError {
		t.Errorf("Type = %q, want server_error", apiErr.Type)
	}
	if !strings.Contains(apiErr.Message, "connection refused") {
		t.Errorf("Message = %q, want it to mention the cause", apiErr.Message)
	}
}

func TestResponseFirstText(t *testing.T) {
	tests := []struct {
		name   string
		resp   *Response
		want   string
		wantOK bool
	}{
		{"nil", nil, "", false},
		{"no candidates", &Response{}, "", false},
		{"empty first", &Response{Candidates: []string{"", "second"}}, "", false},
		{"first wins", &Response{Candidates: []string{"one", "two"}}, "one", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.resp.FirstText()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("FirstText() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
