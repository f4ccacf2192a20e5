package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup outcomes.
const (
	OutcomeHit    = "hit"
	OutcomeMiss   = "miss"
	OutcomeBypass = "bypass"
	OutcomeError  = "error"
)

// Metrics holds all Prometheus metrics for the cache proxy.
type Metrics struct {
	RequestTotal       *prometheus.CounterVec
	StoreErrorTotal    *prometheus.CounterVec
	DecodeErrorTotal   *prometheus.CounterVec
	ProviderDurationMs *prometheus.HistogramVec
	ProviderErrorTotal *prometheus.CounterVec
	StoredBytes        *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg uses
// the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmcache_requests_total",
			Help: "Total requests resolved, by request kind and cache outcome.",
		}, []string{"kind", "outcome"}),

		StoreErrorTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmcache_store_errors_total",
			Help: "Cache store failures absorbed as misses (get) or no-ops (set).",
		}, []string{"backend", "op"}),

		DecodeErrorTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmcache_decode_errors_total",
			Help: "Stored entries that could not be decoded and were treated as misses.",
		}, []string{"kind"}),

		ProviderDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmcache_provider_duration_ms",
			Help:    "Provider call duration in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"kind", "status"}),

		ProviderErrorTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llmcache_provider_errors_total",
			Help: "Failed provider calls, including timeouts.",
		}, []string{"kind"}),

		StoredBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmcache_stored_bytes",
			Help:    "Size of encoded payloads written to the store.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"kind"}),
	}
}

// RecordLookup counts one resolved request.
func (m *Metrics) RecordLookup(kind, outcome string) {
	m.RequestTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordStoreError counts an absorbed store failure. op is "get" or "set".
func (m *Metrics) RecordStoreError(backend, op string) {
	m.StoreErrorTotal.WithLabelValues(backend, op).Inc()
}

func (m *Metrics) RecordDecodeError(kind string) {
	m.DecodeErrorTotal.WithLabelValues(kind).Inc()
}

// RecordProviderCall observes one provider call.
func (m *Metrics) RecordProviderCall(kind string, durationMs float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.ProviderErrorTotal.WithLabelValues(kind).Inc()
	}
	m.ProviderDurationMs.WithLabelValues(kind, status).Observe(durationMs)
}

func (m *Metrics) RecordStored(kind string, size int) {
	m.StoredBytes.WithLabelValues(kind).Observe(float64(size))
}
