package engine

import (
	"context"
	"time"

	"github.com/rhuss/trianswer/pkg/observability"
	"github.com/rhuss/trianswer/pkg/provider"
)

// instrumented records Prometheus metrics around every upstream call.
type instrumented struct {
	provider.Provider
}

// Instrument wraps p so each Generate call is counted and timed.
func Instrument(p provider.Provider) provider.Provider {
	if _, ok := p.(instrumented); ok {
		return p
	}
	return instrumented{Provider: p}
}

func (p instrumented) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	start := time.Now()
	resp, err := p.Provider.Generate(ctx, req)

	name := p.Name()
	observability.ProviderLatency.WithLabelValues(name, req.Model).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.ProviderRequestsTotal.WithLabelValues(name, req.Model, status).Inc()

	if err == nil && resp.Usage != nil {
		observability.ProviderTokensTotal.WithLabelValues(name, req.Model, "input").Add(float64(resp.Usage.InputTokens))
		observability.ProviderTokensTotal.WithLabelValues(name, req.Model, "output").Add(float64(resp.Usage.OutputTokens))
	}
	return resp, err
}
