// Package metrics exposes Prometheus counters for simulation activity.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nidhogg/nuka-dialogue/internal/dialogue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the simulation collectors. It implements dialogue.TurnListener
// and memory.Observer.
type Metrics struct {
	Turns              *prometheus.CounterVec
	Step               prometheus.Gauge
	MemoryAdds         *prometheus.CounterVec
	MemoryImportance   prometheus.Histogram
	Reflections        *prometheus.CounterVec
	ReflectionInsights *prometheus.CounterVec
	ReflectionLatency  prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWith(reg, reg)
}

// NewWith registers collectors on reg and serves them from g.
func NewWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nuka_dialogue_turns_total",
			Help: "Scheduler ticks by speaker",
		}, []string{"speaker", "injected"}),

		Step: f.NewGauge(prometheus.GaugeOpts{
			Name: "nuka_dialogue_step",
			Help: "Current scheduler step",
		}),

		MemoryAdds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nuka_memory_records_added_total",
			Help: "Memory records stored by agent",
		}, []string{"agent"}),

		MemoryImportance: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nuka_memory_importance",
			Help:    "Importance assigned to stored memories",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),

		Reflections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nuka_memory_reflections_total",
			Help: "Completed reflection passes by agent",
		}, []string{"agent"}),

		ReflectionInsights: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nuka_memory_reflection_insights_total",
			Help: "Insights stored by reflection passes",
		}, []string{"agent"}),

		ReflectionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nuka_memory_reflection_duration_seconds",
			Help:    "Reflection pass latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		gatherer: g,
	}
}

// OnTurn records a scheduler tick.
func (m *Metrics) OnTurn(_ context.Context, t dialogue.Turn) {
	m.Turns.WithLabelValues(t.Speaker, strconv.FormatBool(t.Injected)).Inc()
	m.Step.Set(float64(t.Step + 1))
}

// MemoryAdded records a stored memory.
func (m *Metrics) MemoryAdded(agent string, importance float64) {
	m.MemoryAdds.WithLabelValues(agent).Inc()
	m.MemoryImportance.Observe(importance)
}

// ReflectionCompleted records a finished reflection pass.
func (m *Metrics) ReflectionCompleted(agent string, insights int, elapsed time.Duration) {
	m.Reflections.WithLabelValues(agent).Inc()
	m.ReflectionInsights.WithLabelValues(agent).Add(float64(insights))
	m.ReflectionLatency.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
