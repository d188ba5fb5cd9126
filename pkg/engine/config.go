package engine

import (
	"time"

	"github.com/rhuss/trianswer/pkg/api"
	"github.com/rhuss/trianswer/pkg/retry"
)

// Config holds configuration for the engine.
type Config struct {
	// Model is sent with every generation call. Empty means DefaultModel.
	Model string

	// Retry bounds the attempts per style response.
	Retry retry.Policy

	// CallTimeout limits a single upstream call. A timed out call counts as
	// a failed attempt. Zero disables the limit.
	CallTimeout time.Duration

	// Temperature and MaxTokens are passed through when set.
	Temperature *float64
	MaxTokens   *int

	// Prompts overrides system instructions per style. Missing styles use
	// DefaultPrompts.
	Prompts map[api.StyleKey]string

	// EventBuffer is the per-subscriber event buffer (default 64).
	EventBuffer int

	// Now returns the creation time for new turns. Defaults to time.Now.
	Now func() time.Time
}

func (c Config) model() string {
	if c.Model == "" {
		return DefaultModel
	}
	return c.Model
}

func (c Config) prompt(style api.StyleKey) string {
	if p, ok := c.Prompts[style]; ok && p != "" {
		return p
	}
	return DefaultPrompts[style]
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
