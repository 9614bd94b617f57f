package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Security holds the gateway's security collectors.
// A nil *Security is valid and records nothing.
type Security struct {
	// Rejections counts requests refused by a security component.
	Rejections *prometheus.CounterVec

	// SlowDownDelay observes delays injected by the slow-down interceptor.
	SlowDownDelay prometheus.Histogram

	// BreakerState is the kv store circuit breaker state (0=closed, 1=half-open, 2=open).
	BreakerState *prometheus.GaugeVec

	// StoreFallbacks counts decisions taken under a store outage, by policy and mode.
	StoreFallbacks *prometheus.CounterVec
}

// New registers the security collectors on reg.
func New(reg prometheus.Registerer) *Security {
	f := promauto.With(reg)
	return &Security{
		Rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "security_rejections_total",
				Help: "Total number of requests rejected by a security component",
			},
			[]string{"component", "reason"},
		),
		SlowDownDelay: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "slowdown_delay_seconds",
				Help:    "Delay injected before handling repeated authentication attempts",
				Buckets: []float64{0.5, 1, 1.5, 2, 3, 4, 5},
			},
		),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kvstore_breaker_state",
				Help: "Current state of the kv store circuit breaker (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		StoreFallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_store_fallback_total",
				Help: "Total number of rate limit decisions taken while the kv store was unavailable",
			},
			[]string{"policy", "mode"},
		),
	}
}

func (s *Security) Reject(component, reason string) {
	if s == nil {
		return
	}
	s.Rejections.WithLabelValues(component, reason).Inc()
}

func (s *Security) ObserveDelay(d time.Duration) {
	if s == nil {
		return
	}
	s.SlowDownDelay.Observe(d.Seconds())
}

func (s *Security) SetBreakerState(name string, v float64) {
	if s == nil {
		return
	}
	s.BreakerState.WithLabelValues(name).Set(v)
}

func (s *Security) StoreFallback(policy, mode string) {
	if s == nil {
		return
	}
	s.StoreFallbacks.WithLabelValues(policy, mode).Inc()
}

// Handler exposes the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
