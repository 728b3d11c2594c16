package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/optikiln/optikiln/pkg/strategy"
)

// Metrics collects Prometheus metrics for the optimization service. It
// implements strategy.Metrics so the engine reports per-skill and per-cycle
// observations without depending on Prometheus directly. A disabled Metrics
// is a valid no-op collector.
type Metrics struct {
	config MetricsConfig

	cyclesTotal   *prometheus.CounterVec
	cycleDuration prometheus.Histogram

	skillExecutions *prometheus.CounterVec
	skillDuration   *prometheus.HistogramVec

	missingInputAborts prometheus.Counter

	recommendationsPersisted prometheus.Counter
	guardrailViolations      prometheus.Counter

	artifactCacheHits   prometheus.Gauge
	artifactCacheMisses prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. When disabled every method is a
// no-op and Handler serves an empty registry.
func NewMetrics(cfg MetricsConfig) *Metrics {
	m := &Metrics{config: cfg}
	if !cfg.Enabled {
		return m
	}

	ns := cfg.Namespace
	m.registry = prometheus.NewRegistry()
	m.cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cycles_total",
			Help:      "Total optimization cycles by outcome",
		},
		[]string{"status"},
	)
	m.cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of full optimization cycles",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)
	m.skillExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "skill_executions_total",
			Help:      "Total skill executions by kind and outcome",
		},
		[]string{"kind", "status"},
	)
	m.skillDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "skill_duration_seconds",
			Help:      "Duration of skill executions by kind",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"kind"},
	)
	m.missingInputAborts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "missing_input_aborts_total",
			Help:      "Cycles aborted because live data was incomplete",
		},
	)
	m.recommendationsPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "recommendations_persisted_total",
			Help:      "Recommendation sets written to the result store",
		},
	)
	m.guardrailViolations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "guardrail_violations_total",
			Help:      "Recommendation sets blocked by policy",
		},
	)
	m.artifactCacheHits = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "artifact_cache_hits",
			Help:      "Cumulative artifact cache hits",
		},
	)
	m.artifactCacheMisses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "artifact_cache_misses",
			Help:      "Cumulative artifact cache misses",
		},
	)

	m.registry.MustRegister(
		m.cyclesTotal,
		m.cycleDuration,
		m.skillExecutions,
		m.skillDuration,
		m.missingInputAborts,
		m.recommendationsPersisted,
		m.guardrailViolations,
		m.artifactCacheHits,
		m.artifactCacheMisses,
	)
	return m
}

// Enabled reports whether metrics are being collected.
func (m *Metrics) Enabled() bool { return m.registry != nil }

// Handler returns the HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SkillExecuted implements strategy.Metrics.
func (m *Metrics) SkillExecuted(_ string, kind strategy.Kind, duration time.Duration, err error) {
	if m.registry == nil {
		return
	}
	m.skillExecutions.WithLabelValues(string(kind), statusLabel(err)).Inc()
	m.skillDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// CycleCompleted implements strategy.Metrics.
func (m *Metrics) CycleCompleted(duration time.Duration, err error) {
	if m.registry == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(statusLabel(err)).Inc()
	m.cycleDuration.Observe(duration.Seconds())
	if strategy.IsInput(err) {
		m.missingInputAborts.Inc()
	}
}

// RecommendationsPersisted counts one persisted recommendation set.
func (m *Metrics) RecommendationsPersisted() {
	if m.registry != nil {
		m.recommendationsPersisted.Inc()
	}
}

// GuardrailViolation counts one blocked recommendation set.
func (m *Metrics) GuardrailViolation() {
	if m.registry != nil {
		m.guardrailViolations.Inc()
	}
}

// ArtifactCacheStats publishes the artifact cache counters.
func (m *Metrics) ArtifactCacheStats(hits, misses uint64) {
	if m.registry != nil {
		m.artifactCacheHits.Set(float64(hits))
		m.artifactCacheMisses.Set(float64(misses))
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
