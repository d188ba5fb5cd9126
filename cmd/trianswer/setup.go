package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/trianswer/pkg/api"
	"github.com/rhuss/trianswer/pkg/auth"
	"github.com/rhuss/trianswer/pkg/auth/apikey"
	"github.com/rhuss/trianswer/pkg/auth/jwt"
	"github.com/rhuss/trianswer/pkg/config"
	"github.com/rhuss/trianswer/pkg/engine"
	"github.com/rhuss/trianswer/pkg/provider"
	"github.com/rhuss/trianswer/pkg/provider/gemini"
	"github.com/rhuss/trianswer/pkg/provider/openai"
	"github.com/rhuss/trianswer/pkg/retry"
	"github.com/rhuss/trianswer/pkg/storage/memory"
	"github.com/rhuss/trianswer/pkg/storage/postgres"
	"github.com/rhuss/trianswer/pkg/storage/sqlite"
	"github.com/rhuss/trianswer/pkg/transport"
)

func buildProvider(ctx context.Context, cfg config.EngineConfig) (provider.Provider, error) {
	switch cfg.Provider {
	case "gemini":
		p, err := gemini.New(ctx, gemini.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			APIVersion: cfg.APIVersion,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "openai":
		p, err := openai.New(openai.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func buildStore(ctx context.Context, cfg config.StorageConfig) (transport.ConversationStore, error) {
	switch cfg.Type {
	case "", "memory":
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("storage enabled", "type", "postgres", "max_conns", cfg.Postgres.MaxConns)
		return store, nil
	case "sqlite":
		store, err := sqlite.New(ctx, sqlite.Config{
			Path:          cfg.SQLite.Path,
			BusyTimeoutMS: cfg.SQLite.BusyTimeoutMS,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("storage enabled", "type", "sqlite", "path", cfg.SQLite.Path)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

func engineConfig(cfg config.EngineConfig) (engine.Config, error) {
	if cfg.Provider == "openai" && cfg.Model == "" {
		return engine.Config{}, fmt.Errorf("engine.model is required for the openai provider")
	}

	out := engine.Config{
		Model:       cfg.Model,
		CallTimeout: cfg.CallTimeout,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		EventBuffer: cfg.EventBuffer,
		Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
		},
	}
	if out.Model == "" {
		out.Model = engine.DefaultModel
	}
	if len(cfg.Prompts) > 0 {
		out.Prompts = make(map[api.StyleKey]string, len(cfg.Prompts))
		for k, v := range cfg.Prompts {
			out.Prompts[api.StyleKey(k)] = v
		}
	}
	return out, nil
}

// buildAuth returns nil middleware for auth type "none". The returned
// close function is always safe to call.
func buildAuth(ctx context.Context, cfg config.AuthConfig) (func(http.Handler) http.Handler, func(), error) {
	noop := func() {}

	var authn auth.Authenticator
	switch cfg.Type {
	case "", "none":
		return nil, noop, nil
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			entries = append(entries, apikey.Entry(k.Key, k.Subject, k.TenantID, k.ServiceTier))
		}
		authn = apikey.New(entries)
	case "jwt":
		j, err := jwt.New(ctx, jwt.Config{
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			JWKSURL:     cfg.JWT.JWKSURL,
			UserClaim:   cfg.JWT.UserClaim,
			TenantClaim: cfg.JWT.TenantClaim,
			ScopesClaim: cfg.JWT.ScopesClaim,
			CacheTTL:    cfg.JWT.CacheTTL,
		})
		if err != nil {
			return nil, noop, err
		}
		authn = j
		noop = j.Close
	default:
		return nil, noop, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	var limiter auth.RateLimiter
	if cfg.RateLimit.DefaultRPM > 0 || len(cfg.RateLimit.Tiers) > 0 {
		limiter = auth.NewInProcessLimiter(auth.TiersFromRPM(cfg.RateLimit.Tiers), cfg.RateLimit.DefaultRPM)
	}

	chain := &auth.AuthChain{
		Authenticators:  []auth.Authenticator{authn},
		DefaultDecision: auth.No,
	}
	slog.Info("authentication enabled", "type", cfg.Type, "rate_limited", limiter != nil)
	return auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints), noop, nil
}
