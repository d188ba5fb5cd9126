package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/trianswer/pkg/api"
	"github.com/rhuss/trianswer/pkg/debug"
	"github.com/rhuss/trianswer/pkg/observability"
	"github.com/rhuss/trianswer/pkg/provider"
	"github.com/rhuss/trianswer/pkg/retry"
)

// Generator produces the response value for one style. It never returns
// an error: failures become error values so that one style cannot affect
// another.
type Generator struct {
	provider provider.Provider
	cfg      Config
}

// NewGenerator creates a Generator over p.
func NewGenerator(p provider.Provider, cfg Config) *Generator {
	return &Generator{provider: p, cfg: cfg}
}

// Generate asks the provider for the style's answer to query, retrying
// failed calls per the configured policy.
//
// A successful call without candidate text yields the neutral
// api.NoResponseText value. Exhausted retries yield an error value of kind
// transport_exhausted; cancellation of ctx yields kind canceled. Transport
// details are logged, never returned.
func (g *Generator) Generate(ctx context.Context, query string, style api.StyleKey) api.ResponseValue {
	req := &provider.Request{
		Model:             g.cfg.model(),
		SystemInstruction: g.cfg.prompt(style),
		Query:             query,
		Temperature:       g.cfg.Temperature,
		MaxTokens:         g.cfg.MaxTokens,
	}

	policy := g.cfg.Retry
	policy.OnRetry = func(attempt int, err error, next time.Duration) {
		observability.RetryAttemptsTotal.WithLabelValues(string(style)).Inc()
		debug.Log("retry", "generation attempt failed",
			"style", style, "attempt", attempt, "next_delay", next, "error", err)
	}

	resp, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (*provider.Response, error) {
		if g.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.cfg.CallTimeout)
			defer cancel()
		}
		debug.Log("engine", "generation call", "style", style, "attempt", attempt, "model", req.Model)
		return g.provider.Generate(ctx, req)
	})

	if err != nil {
		kind := api.ErrorKindTransportExhausted
		if ctx.Err() != nil {
			kind = api.ErrorKindCanceled
		}
		slog.Warn("style generation failed", "style", style, "kind", kind, "error", err)
		observability.StyleResponsesTotal.WithLabelValues(string(style), string(kind)).Inc()
		return api.ErrorValue(style, kind)
	}

	text, ok := resp.FirstText()
	if !ok {
		observability.StyleResponsesTotal.WithLabelValues(string(style), "empty").Inc()
		return api.TextValue(api.NoResponseText)
	}
	observability.StyleResponsesTotal.WithLabelValues(string(style), "text").Inc()
	debug.Trace("engine", "style response", "style", style, "text", debug.Truncate(text, 200))
	return api.TextValue(text)
}
