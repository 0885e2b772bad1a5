package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upb/electria-gateway/services/providers"
)

// Metrics records provider attempts and failover outcomes
type Metrics struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
	unavailable     *prometheus.CounterVec
}

// NewMetrics creates the collectors on a dedicated registry, together with the Go and process collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "electria_provider_attempts_total",
				Help: "Total number of provider attempts by outcome",
			},
			[]string{"kind", "provider", "outcome"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "electria_provider_attempt_duration_seconds",
				Help:    "Provider attempt duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"kind", "provider"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "electria_fallback_total",
				Help: "Total number of passes answered by a fallback value",
			},
			[]string{"kind"},
		),
		unavailable: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "electria_unavailable_total",
				Help: "Total number of passes where every provider failed and no fallback applied",
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		m.attempts,
		m.attemptDuration,
		m.fallbacks,
		m.unavailable,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveAttempt records one provider attempt
func (m *Metrics) ObserveAttempt(kind providers.RequestKind, provider, outcome string, duration time.Duration) {
	m.attempts.WithLabelValues(string(kind), provider, outcome).Inc()
	m.attemptDuration.WithLabelValues(string(kind), provider).Observe(duration.Seconds())
}

// IncFallback records a pass answered by a fallback value
func (m *Metrics) IncFallback(kind providers.RequestKind) {
	m.fallbacks.WithLabelValues(string(kind)).Inc()
}

// IncUnavailable records a pass that ended unavailable
func (m *Metrics) IncUnavailable(kind providers.RequestKind) {
	m.unavailable.WithLabelValues(string(kind)).Inc()
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
