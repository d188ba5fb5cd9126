package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsRegistered(t *testing.T) {
	TurnsSubmittedTotal.WithLabelValues("multi_view").Add(0)
	SubmissionsRejectedTotal.WithLabelValues("empty_query").Add(0)
	TurnSettleDuration.WithLabelValues("agent").Observe(0.1)
	StyleResponsesTotal.WithLabelValues("concise", "text").Add(0)
	RetryAttemptsTotal.WithLabelValues("concise").Add(0)
	ProviderRequestsTotal.WithLabelValues("gemini", "test", "ok").Add(0)
	ProviderLatency.WithLabelValues("gemini", "test").Observe(0.1)
	ProviderTokensTotal.WithLabelValues("gemini", "test", "input").Add(0)
	RateLimitRejectedTotal.WithLabelValues("default").Add(0)
	RequestsTotal.WithLabelValues("GET", "2xx", "test").Add(0)
	RequestDuration.WithLabelValues("GET", "test").Observe(0.1)
	StreamingConnections.WithLabelValues("sse").Add(0)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	expected := map[string]bool{
		"trianswer_http_requests_total":           false,
		"trianswer_http_request_duration_seconds": false,
		"trianswer_streaming_connections_active":  false,
		"trianswer_turns_submitted_total":         false,
		"trianswer_submissions_rejected_total":    false,
		"trianswer_turns_in_flight":               false,
		"trianswer_turn_settle_seconds":           false,
		"trianswer_style_responses_total":         false,
		"trianswer_retry_attempts_total":          false,
		"trianswer_provider_requests_total":       false,
		"trianswer_provider_latency_seconds":      false,
		"trianswer_provider_tokens_total":         false,
		"trianswer_events_dropped_total":          false,
		"trianswer_ratelimit_rejected_total":      false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/conversations/{cid}/turns", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := MetricsMiddleware(mux)

	route := "GET /v1/conversations/{cid}/turns"
	before := counterValue(t, RequestsTotal, "GET", "2xx", route)

	for _, cid := range []string{"a", "b"} {
		req := httptest.NewRequest("GET", "/v1/conversations/"+cid+"/turns", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if delta := counterValue(t, RequestsTotal, "GET", "2xx", route) - before; delta != 2 {
		t.Errorf("route counter delta = %f, want 2", delta)
	}
}

func TestMiddlewareUnmatchedRoute(t *testing.T) {
	before := counterValue(t, RequestsTotal, "POST", "4xx", "unmatched")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/nowhere", nil))

	if delta := counterValue(t, RequestsTotal, "POST", "4xx", "unmatched") - before; delta != 1 {
		t.Errorf("4xx counter delta = %f, want 1", delta)
	}
}

func TestMiddlewareRecordsDuration(t *testing.T) {
	before := histogramCount(t, RequestDuration, "POST", "unmatched")

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Millisecond)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/x", nil))

	if delta := histogramCount(t, RequestDuration, "POST", "unmatched") - before; delta != 1 {
		t.Errorf("histogram sample delta = %d, want 1", delta)
	}
}

func TestMiddlewareStreamingGauge(t *testing.T) {
	tests := []struct {
		transport string
		header    string
		value     string
	}{
		{"sse", "Accept", "text/event-stream"},
		{"websocket", "Upgrade", "websocket"},
	}

	for _, tt := range tests {
		t.Run(tt.transport, func(t *testing.T) {
			g := StreamingConnections.WithLabelValues(tt.transport)
			baseline := gaugeValue(t, g)

			var during float64
			handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				during = gaugeValue(t, g)
			}))
			req := httptest.NewRequest("GET", "/v1/conversations/c/events", nil)
			req.Header.Set(tt.header, tt.value)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if during != baseline+1 {
				t.Errorf("gauge during request = %f, want %f", during, baseline+1)
			}
			if after := gaugeValue(t, g); after != baseline {
				t.Errorf("gauge after request = %f, want %f", after, baseline)
			}
		})
	}
}

func TestStatusWriterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	sw.Flush()
	if !rec.Flushed {
		t.Error("expected underlying writer to be flushed")
	}
	if sw.Unwrap() != rec {
		t.Error("Unwrap should return the underlying writer")
	}
}

func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram metric: %v", err)
	}
	if err := obs.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("writing gauge metric: %v", err)
	}
	return m.GetGauge().GetValue()
}
