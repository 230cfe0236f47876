package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// LLMRequestsTotal counts backend LLM calls by provider and result.
	LLMRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incident",
		Subsystem: "llm",
		Name:      "requests_total",
		Help:      "Total number of LLM backend requests, labeled by provider and result.",
	}, []string{"provider", "result"})

	// LLMRequestDurationSeconds is end-to-end latency per LLM call.
	LLMRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "incident",
		Subsystem: "llm",
		Name:      "request_duration_seconds",
		Help:      "End-to-end latency of LLM backend requests.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60, 120},
	}, []string{"provider"})

	// ParseFallbackTotal counts turns salvaged without usable JSON, by the
	// ladder stage that produced the question.
	ParseFallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incident",
		Subsystem: "parser",
		Name:      "fallback_total",
		Help:      "Total number of assistant turns with no usable JSON, labeled by fallback stage.",
	}, []string{"stage"})

	// StoreOpsTotal counts store operations by store, operation and result.
	StoreOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "incident",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Total number of report/recording store operations, labeled by store, op and result.",
	}, []string{"store", "op", "result"})
)

// Register registers all collectors with the default registry. Safe to call
// more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			LLMRequestsTotal,
			LLMRequestDurationSeconds,
			ParseFallbackTotal,
			StoreOpsTotal,
		)
	})
}

// ObserveLLMRequest records one LLM backend call.
func ObserveLLMRequest(provider string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	LLMRequestsTotal.WithLabelValues(provider, result).Inc()
	LLMRequestDurationSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveStoreOp records one store operation.
func ObserveStoreOp(store, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StoreOpsTotal.WithLabelValues(store, op, result).Inc()
}
