package gemini

import (
	"net/http"
	"time"
)

// Config holds configuration for the Gemini provider adapter.
type Config struct {
	// APIKey for the Gemini API. Required.
	APIKey string

	// BaseURL overrides the API endpoint (e.g., a local mock backend).
	// Empty uses the SDK default.
	BaseURL string

	// APIVersion overrides the API version segment. Defaults to "v1beta".
	APIVersion string

	// Timeout for individual HTTP requests. Defaults to 120s.
	Timeout time.Duration

	// HTTPClient replaces the default client, mainly for tests.
	HTTPClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:     apiKey,
		APIVersion: "v1beta",
		Timeout:    120 * time.Second,
	}
}
