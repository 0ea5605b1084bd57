// Package metrics provides Prometheus metrics for the bean container.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution outcomes.
const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeError = "error"
)

// Collector holds all Prometheus metrics for the container. A nil
// *Collector is valid and records nothing, so the engine never has to
// branch on whether metrics are enabled.
type Collector struct {
	Resolutions    *prometheus.CounterVec
	Constructions  *prometheus.CounterVec
	Evictions      *prometheus.CounterVec
	ContextsActive *prometheus.GaugeVec
}

// New creates a collector with all metrics registered on reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		Resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brew",
				Name:      "resolutions_total",
				Help:      "Total number of bean resolutions by outcome",
			},
			[]string{"bean", "outcome"},
		),
		Constructions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brew",
				Name:      "constructions_total",
				Help:      "Total number of producer invocations",
			},
			[]string{"bean"},
		),
		Evictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "brew",
				Name:      "evictions_total",
				Help:      "Cache entries discarded by ended scope contexts",
			},
			[]string{"scope"},
		),
		ContextsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "brew",
				Name:      "contexts_active",
				Help:      "Currently active request and session contexts",
			},
			[]string{"scope"},
		),
	}
}

// Resolution records one resolve call.
func (c *Collector) Resolution(bean, outcome string) {
	if c == nil {
		return
	}
	c.Resolutions.WithLabelValues(bean, outcome).Inc()
}

// Construction records one producer invocation.
func (c *Collector) Construction(bean string) {
	if c == nil {
		return
	}
	c.Constructions.WithLabelValues(bean).Inc()
}

// Evicted records entries dropped when a context ends.
func (c *Collector) Evicted(scope string, n int) {
	if c == nil {
		return
	}
	c.Evictions.WithLabelValues(scope).Add(float64(n))
}

// ContextBegan tracks an opened scope context.
func (c *Collector) ContextBegan(scope string) {
	if c == nil {
		return
	}
	c.ContextsActive.WithLabelValues(scope).Inc()
}

// ContextEnded tracks a closed scope context.
func (c *Collector) ContextEnded(scope string) {
	if c == nil {
		return
	}
	c.ContextsActive.WithLabelValues(scope).Dec()
}
