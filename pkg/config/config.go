// Package config provides unified configuration for the trianswer service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TRIANSWER_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the trianswer service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error; default: info
	Format string `yaml:"format"` // json or text; default: text
	Debug  string `yaml:"debug"`  // comma separated debug categories
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 1 MiB
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	WaitTimeout     time.Duration `yaml:"wait_timeout"`     // default: 2m
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// EngineConfig holds orchestration and provider settings.
type EngineConfig struct {
	Provider    string            `yaml:"provider"`     // "gemini" or "openai", default: "gemini"
	Model       string            `yaml:"model"`        // default: engine.DefaultModel
	BaseURL     string            `yaml:"base_url"`     // required for openai
	APIKey      string            `yaml:"api_key"`      // required for gemini
	APIKeyFile  string            `yaml:"api_key_file"` // _file variant for api_key
	APIVersion  string            `yaml:"api_version"`  // gemini only
	Timeout     time.Duration     `yaml:"timeout"`      // HTTP client timeout, default: 120s
	CallTimeout time.Duration     `yaml:"call_timeout"` // per attempt, default: none
	Temperature *float64          `yaml:"temperature"`
	MaxTokens   *int              `yaml:"max_tokens"`
	Retry       RetryConfig       `yaml:"retry"`
	Prompts     map[string]string `yaml:"prompts"` // style key -> system instruction
	EventBuffer int               `yaml:"event_buffer"`
}

// RetryConfig bounds the attempts per style response.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"` // default: 6
	BaseDelay   time.Duration `yaml:"base_delay"`   // default: 1s
}

// StorageConfig holds conversation persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory", "postgres" or "sqlite", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: true
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path          string `yaml:"path"`            // default: "trianswer.db"
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"` // default: 5000
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig configures bearer token validation against a JWKS endpoint.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`
	TenantClaim string        `yaml:"tenant_claim"`
	ScopesClaim string        `yaml:"scopes_claim"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// RateLimitConfig limits requests per subject. Zero means unlimited.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers"` // service tier -> requests per minute
}

// MCPConfig controls the MCP tool endpoint.
type MCPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"` // default: "/mcp"
	Stateless bool   `yaml:"stateless"`
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			MaxBodySize:     1 << 20,
			ShutdownTimeout: 30 * time.Second,
			WaitTimeout:     2 * time.Minute,
		},
		Engine: EngineConfig{
			Provider: "gemini",
			Timeout:  120 * time.Second,
			Retry: RetryConfig{
				MaxAttempts: 6,
				BaseDelay:   time.Second,
			},
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns:       10,
				MigrateOnStart: true,
			},
			SQLite: SQLiteConfig{
				Path:          "trianswer.db",
				BusyTimeoutMS: 5000,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		MCP: MCPConfig{
			Path: "/mcp",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
