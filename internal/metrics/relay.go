package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocket relay Prometheus metrics.
var (
	RelayConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_connections",
			Help:      "Currently open relay connections",
		},
	)

	RelayStreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_streams_total",
			Help:      "Relay streams by outcome",
		},
		[]string{"status"}, // "complete", "error" or "canceled"
	)

	RelayStreamLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_stream_duration_seconds",
			Help:      "Relay stream duration from request to completion",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
		},
	)

	RelayIdleClosedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_idle_closed_total",
			Help:      "Relay connections closed by the idle sweep",
		},
	)
)

var relayMetricsRegistered bool

// RegisterRelayMetrics registers WebSocket relay metrics.
func RegisterRelayMetrics() {
	if relayMetricsRegistered {
		return
	}
	prometheus.MustRegister(RelayConnections)
	prometheus.MustRegister(RelayStreamsTotal)
	prometheus.MustRegister(RelayStreamLatency)
	prometheus.MustRegister(RelayIdleClosedTotal)
	relayMetricsRegistered = true
}
