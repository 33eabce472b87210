// Package metric provides Prometheus metrics for the provisioning backend.
package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Path generations for engine calls
const (
	PathCurrent = "current"
	PathLegacy  = "legacy"
)

// Metrics contains all platform-level metrics
type Metrics struct {
	// Engine client metrics
	EngineCalls        *prometheus.CounterVec
	EngineCallDuration *prometheus.HistogramVec
	EngineFallbacks    *prometheus.CounterVec

	// Provisioning metrics
	ProvisioningTotal       *prometheus.CounterVec
	ProvisioningStepFailure *prometheus.CounterVec
	ProvisioningDuration    prometheus.Histogram

	// Mirror metrics
	MirrorSyncs          *prometheus.CounterVec
	MirrorWorkflowsTotal prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EngineCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentd",
				Subsystem: "engine",
				Name:      "calls_total",
				Help:      "Total HTTP calls to the remote Workflow Engine",
			},
			[]string{"operation", "path", "outcome"},
		),

		EngineCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "agentd",
				Subsystem: "engine",
				Name:      "call_duration_seconds",
				Help:      "Duration of HTTP calls to the remote Workflow Engine",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		EngineFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentd",
				Subsystem: "engine",
				Name:      "legacy_fallbacks_total",
				Help:      "Calls retried against the legacy API path after a version mismatch",
			},
			[]string{"operation"},
		),

		ProvisioningTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentd",
				Subsystem: "provisioning",
				Name:      "requests_total",
				Help:      "Provisioning requests by outcome",
			},
			[]string{"outcome"},
		),

		ProvisioningStepFailure: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentd",
				Subsystem: "provisioning",
				Name:      "step_failures_total",
				Help:      "Provisioning failures by saga step",
			},
			[]string{"step"},
		),

		ProvisioningDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "agentd",
				Subsystem: "provisioning",
				Name:      "duration_seconds",
				Help:      "End-to-end provisioning duration",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		MirrorSyncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentd",
				Subsystem: "mirror",
				Name:      "syncs_total",
				Help:      "Local mirror sync transactions by outcome",
			},
			[]string{"outcome"},
		),

		MirrorWorkflowsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "agentd",
				Subsystem: "mirror",
				Name:      "workflows",
				Help:      "Workflows currently held in the local mirror",
			},
		),
	}
}

// Registry bundles the metrics with their private Prometheus registry
type Registry struct {
	registry *prometheus.Registry
	Metrics  *Metrics
}

// NewRegistry creates a registry with all platform metrics plus Go runtime
// collectors registered
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := NewMetrics()

	reg.MustRegister(
		m.EngineCalls,
		m.EngineCallDuration,
		m.EngineFallbacks,
		m.ProvisioningTotal,
		m.ProvisioningStepFailure,
		m.ProvisioningDuration,
		m.MirrorSyncs,
		m.MirrorWorkflowsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{registry: reg, Metrics: m}
}

// Handler returns the /metrics HTTP handler
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveEngineCall records one engine call observation
func (m *Metrics) ObserveEngineCall(operation, path string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.EngineCalls.WithLabelValues(operation, path, outcome).Inc()
	m.EngineCallDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
