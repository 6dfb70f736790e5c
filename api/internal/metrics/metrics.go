// Package metrics: счётчики Prometheus прокси.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "llm_proxy"

// UnknownModel: метка для идентификаторов вне таблицы маршрутов.
const UnknownModel = "unknown"

var (
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_calls_total",
		Help:      "Provider calls by provider, model and outcome.",
	}, []string{"provider", "model", "outcome"})

	ProviderCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_call_duration_seconds",
		Help:      "Duration of provider calls.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"provider"})

	FallbackAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fallback_attempts_total",
		Help:      "Failed attempts inside ordered fallback, by model and kind.",
	}, []string{"model", "kind"})

	DecodeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decode_results_total",
		Help:      "Decoder outcomes by winning strategy.",
	}, []string{"task", "strategy"})

	CallLogFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "call_log_failures_total",
		Help:      "Call log records that could not be written.",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Inbound HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Latency of inbound HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"method", "route"})
)

// Outcome: метка исхода вызова провайдера.
func Outcome(err error, contentPolicy bool) string {
	switch {
	case err == nil:
		return "ok"
	case contentPolicy:
		return "content_policy"
	default:
		return "error"
	}
}

// ModelLabel не пускает произвольные строки клиента в метки.
func ModelLabel(model string, known bool) string {
	if !known {
		return UnknownModel
	}
	return model
}
