package openai

import (
	"net/http"
	"time"
)

// Config holds configuration for the OpenAI-compatible provider adapter.
type Config struct {
	// BaseURL is the API root including the version segment
	// (e.g., "https://api.openai.com/v1" or "http://localhost:8000/v1").
	BaseURL string

	// APIKey for the backend (optional for local servers).
	APIKey string

	// Timeout for individual HTTP requests. Defaults to 120s.
	Timeout time.Duration

	// HTTPClient replaces the default client, mainly for tests.
	HTTPClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Timeout: 120 * time.Second,
	}
}
