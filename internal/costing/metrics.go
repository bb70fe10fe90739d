package costing

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics collects engine counters on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	recomputes          *prometheus.CounterVec
	retries             prometheus.Counter
	propagations        prometheus.Counter
	propagationDuration prometheus.Histogram
	guardRejections     *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them, together with the Go
// runtime collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recomputes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prepcost_recomputes_total",
				Help: "Prep cost recomputations by result",
			},
			[]string{"result"},
		),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prepcost_retries_total",
			Help: "Transient failures retried by the engine",
		}),
		propagations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prepcost_propagations_total",
			Help: "Ingredient cost changes propagated to dependent preps",
		}),
		propagationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prepcost_propagation_duration_seconds",
			Help:    "Wall time of a full propagation fan-out",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		guardRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prepcost_guard_rejections_total",
				Help: "Mutations rejected by the consistency guard by error kind",
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.recomputes,
		m.retries,
		m.propagations,
		m.propagationDuration,
		m.guardRejections,
	)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) recompute(result string) {
	if m == nil {
		return
	}
	m.recomputes.WithLabelValues(result).Inc()
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) propagated(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.propagations.Inc()
	m.propagationDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) rejected(err error) {
	if m == nil {
		return
	}
	kind := KindOf(err)
	if kind == "" {
		return
	}
	m.guardRejections.WithLabelValues(string(kind)).Inc()
}
