package metrics

import "github.com/prometheus/client_golang/prometheus"

// Generation Prometheus metrics.
var (
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Total number of chat completion requests",
		},
		[]string{"provider", "model", "mode", "status"}, // mode: "generate" / "stream"
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_request_duration_seconds",
			Help:      "Chat completion duration in seconds, until the last token",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		},
		[]string{"provider", "model", "mode"},
	)

	GenerationTimeToFirstToken = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_time_to_first_token_seconds",
			Help:      "Streaming latency until the first content chunk",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider", "model"},
	)

	GenerationTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_tokens_total",
			Help:      "Total tokens sent to and received from chat providers",
		},
		[]string{"provider", "model", "type"}, // type: "prompt" / "completion"
	)

	GenerationRateLimitWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_rate_limit_wait_seconds",
			Help:      "Time spent waiting for the per-provider rate limiter",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"provider"},
	)

	ResponseCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_total",
			Help:      "LLM response cache lookups",
		},
		[]string{"result"}, // "hit" / "miss" / "error"
	)
)

var genMetricsRegistered bool

// RegisterGenerationMetrics registers chat completion and response cache metrics.
func RegisterGenerationMetrics() {
	if genMetricsRegistered {
		return
	}
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	prometheus.MustRegister(GenerationTimeToFirstToken)
	prometheus.MustRegister(GenerationTokensTotal)
	prometheus.MustRegister(GenerationRateLimitWait)
	prometheus.MustRegister(ResponseCacheTotal)
	genMetricsRegistered = true
}
