package config

import (
	"errors"
	"fmt"
)

var knownStyles = map[string]bool{
	"concise":  true,
	"detailed": true,
	"creative": true,
	"agent":    true,
}

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	// engine.provider decides which credentials are required.
	switch c.Engine.Provider {
	case "gemini":
		if c.Engine.APIKey == "" && c.Engine.APIKeyFile == "" {
			errs = append(errs, fmt.Errorf("engine.api_key or engine.api_key_file is required when engine.provider is \"gemini\""))
		}
	case "openai":
		if c.Engine.BaseURL == "" {
			errs = append(errs, fmt.Errorf("engine.base_url is required when engine.provider is \"openai\""))
		}
	default:
		errs = append(errs, fmt.Errorf("engine.provider must be \"gemini\" or \"openai\", got %q", c.Engine.Provider))
	}

	if c.Engine.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("engine.retry.max_attempts must be >= 1, got %d", c.Engine.Retry.MaxAttempts))
	}
	if c.Engine.Retry.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("engine.retry.base_delay must not be negative, got %v", c.Engine.Retry.BaseDelay))
	}
	if c.Engine.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.call_timeout must not be negative, got %v", c.Engine.CallTimeout))
	}
	if t := c.Engine.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("engine.temperature must be within [0, 2], got %v", *t))
	}
	if m := c.Engine.MaxTokens; m != nil && *m <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_tokens must be > 0, got %d", *m))
	}
	for style := range c.Engine.Prompts {
		if !knownStyles[style] {
			errs = append(errs, fmt.Errorf("engine.prompts: unknown style %q", style))
		}
	}

	// storage.type must be a known value.
	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("storage.sqlite.path is required when storage.type is \"sqlite\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\" or \"sqlite\", got %q", c.Storage.Type))
	}

	// auth.type must be a known value.
	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	if c.MCP.Enabled && c.MCP.Path == "" {
		errs = append(errs, fmt.Errorf("mcp.path is required when mcp.enabled is true"))
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"json\" or \"text\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
