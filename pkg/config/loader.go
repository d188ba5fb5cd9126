package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, TRIANSWER_CONFIG env, ./config.yaml, /etc/trianswer/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg, err := LoadUnvalidated(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadUnvalidated runs every loading step except validation, so callers
// can apply flag overrides before validating.
func LoadUnvalidated(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. TRIANSWER_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/trianswer/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("TRIANSWER_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/trianswer/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty file decodes to io.EOF and leaves the defaults alone.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides maps TRIANSWER_* environment variables to config
// fields. Malformed numeric or duration values are reported rather than
// silently ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []string
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = d
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				return
			}
			*dst = b
		}
	}

	setInt("TRIANSWER_PORT", &cfg.Server.Port)
	setDuration("TRIANSWER_WAIT_TIMEOUT", &cfg.Server.WaitTimeout)
	if v := os.Getenv("TRIANSWER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	setString("TRIANSWER_PROVIDER", &cfg.Engine.Provider)
	setString("TRIANSWER_MODEL", &cfg.Engine.Model)
	setString("TRIANSWER_BASE_URL", &cfg.Engine.BaseURL)
	setString("TRIANSWER_API_KEY", &cfg.Engine.APIKey)
	setString("TRIANSWER_API_KEY_FILE", &cfg.Engine.APIKeyFile)
	setDuration("TRIANSWER_CALL_TIMEOUT", &cfg.Engine.CallTimeout)
	setInt("TRIANSWER_RETRY_MAX_ATTEMPTS", &cfg.Engine.Retry.MaxAttempts)
	setDuration("TRIANSWER_RETRY_BASE_DELAY", &cfg.Engine.Retry.BaseDelay)

	// Vendor variables are a fallback for the provider credential only.
	if cfg.Engine.APIKey == "" && cfg.Engine.APIKeyFile == "" {
		switch cfg.Engine.Provider {
		case "gemini":
			setString("GEMINI_API_KEY", &cfg.Engine.APIKey)
		case "openai":
			setString("OPENAI_API_KEY", &cfg.Engine.APIKey)
		}
	}

	setString("TRIANSWER_STORAGE", &cfg.Storage.Type)
	setInt("TRIANSWER_STORAGE_SIZE", &cfg.Storage.MaxSize)
	setString("TRIANSWER_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	setString("TRIANSWER_SQLITE_PATH", &cfg.Storage.SQLite.Path)

	setString("TRIANSWER_AUTH_TYPE", &cfg.Auth.Type)
	if v := os.Getenv("TRIANSWER_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("TRIANSWER_API_KEYS: %v", err))
		} else if len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}
	setString("TRIANSWER_JWKS_URL", &cfg.Auth.JWT.JWKSURL)

	setBool("TRIANSWER_MCP_ENABLED", &cfg.MCP.Enabled)
	setBool("TRIANSWER_MCP_STATELESS", &cfg.MCP.Stateless)
	setBool("TRIANSWER_METRICS_ENABLED", &cfg.Observability.Metrics.Enabled)

	setString("TRIANSWER_LOG_LEVEL", &cfg.Logging.Level)
	setString("TRIANSWER_LOG_FORMAT", &cfg.Logging.Format)
	setString("TRIANSWER_DEBUG", &cfg.Logging.Debug)

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// engine.api_key_file -> engine.api_key
	if cfg.Engine.APIKeyFile != "" && cfg.Engine.APIKey == "" {
		val, err := readSecretFile(cfg.Engine.APIKeyFile)
		if err != nil {
			return fmt.Errorf("engine.api_key_file: %w", err)
		}
		cfg.Engine.APIKey = val
	}

	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
