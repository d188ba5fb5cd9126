// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the trianswer service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for generation latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts HTTP requests by method, status class, and route pattern.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trianswer_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trianswer_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks open event streams by transport (sse, websocket).
	StreamingConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trianswer_streaming_connections_active",
			Help: "Active event stream connections",
		},
		[]string{"transport"},
	)

	// TurnsSubmittedTotal counts accepted submissions by mode.
	TurnsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trianswer_turns_submitted_total",
			Help: "Accepted turn submissions",
		},
		[]string{"mode"},
	)

	// SubmissionsRejectedTotal counts rejected submissions by reason
	// (empty_query, invalid_mode, turn_in_flight, store_error).
	SubmissionsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trianswer_submissions_rejected_total",
			Help: "Rejected turn submissions",
		},
		[]string{"reason"},
	)

	// TurnsInFlight tracks turns with at least one pending response.
	TurnsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trianswer_turns_in_flight",
			Help: "Turns still generating",
		},
	)

	// TurnSettleDuration records the time from submission until the last
	// response key resolved.
	TurnSettleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trianswer_turn_settle_seconds",
			Help:    "Time until every response of a turn resolved",
			Buckets: LLMBuckets,
		},
		[]string{"mode"},
	)

	// StyleResponsesTotal counts resolved style responses by outcome
	// (text, empty, transport_exhausted, canceled).
	StyleResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trianswer_style_responses_total",
			Help: "Resolved style responses",
		},
		[]string{"style", "outcome"},
	)

	// RetryAttemptsTotal counts attempts that failed and were retried.
	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trianswer_retry_attempts_total",
			Help: "Failed generation attempts followed by a retry",
		},
		[]string{"style"},
	)

	// ProviderRequestsTotal counts single generation calls sent upstream.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trianswer_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records upstream call latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trianswer_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trianswer_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// EventsDroppedTotal counts events not delivered to slow subscribers.
	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trianswer_events_dropped_total",
			Help: "Events dropped for slow subscribers",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trianswer_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		TurnsSubmittedTotal,
		SubmissionsRejectedTotal,
		TurnsInFlight,
		TurnSettleDuration,
		StyleResponsesTotal,
		RetryAttemptsTotal,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		EventsDroppedTotal,
		RateLimitRejectedTotal,
	)
}
