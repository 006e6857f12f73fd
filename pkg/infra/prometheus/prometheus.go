package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// Pipeline latency buckets in milliseconds. The executor call dominates,
	// so the upper buckets track the 30s executor ceiling.
	latencyBuckets = []float64{
		1, 5, 10, 25,
		50, 100, 250,
		500, 1000, 2500,
		5000, 10000, 30000,
	}

	RequestsTotal = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtguard_requests_total",
			Help: "Total number of queries processed, by verdict",
		},
		[]string{"verdict"},
	)

	PipelineLatency = promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "courtguard_pipeline_latency_ms",
			Help:    "End-to-end pipeline latency in milliseconds",
			Buckets: latencyBuckets,
		},
	)

	ThreatsDetected = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtguard_threats_detected_total",
			Help: "Threat detections by category",
		},
		[]string{"category"},
	)

	ExecutorFailures = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "courtguard_executor_failures_total",
			Help: "Executor calls that failed or timed out",
		},
	)

	EventsDropped = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "courtguard_events_dropped_total",
			Help: "Security events dropped because the sink buffer was full",
		},
	)
)

func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
