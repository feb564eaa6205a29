// Package metrics provides Prometheus metrics collection for AgentGate.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for AgentGate.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Auth metrics
	AuthFailures *prometheus.CounterVec

	// Rate limit metrics
	RateLimitDeniedTotal *prometheus.CounterVec
	RateLimitUsageTotal  *prometheus.CounterVec

	// Task metrics
	TasksSubmitted *prometheus.CounterVec
	TasksFinished  *prometheus.CounterVec
	TaskQueueDepth prometheus.Gauge

	// Provider metrics
	ProviderDuration *prometheus.HistogramVec
	ProviderErrors   *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a new metrics collector registered on the default registry.
func New() *Collector {
	return newWith(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	return newWith(promauto.With(reg))
}

func newWith(factory promauto.Factory) *Collector {
	return &Collector{
		// Request metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentgate",
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "agentgate",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "agentgate",
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),

		// Auth metrics
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentgate",
				Name:      "auth_failures_total",
				Help:      "Total number of authentication failures",
			},
			[]string{"reason"},
		),

		// Rate limit metrics
		RateLimitDeniedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentgate",
				Name:      "rate_limit_denied_total",
				Help:      "Total number of rate limit denials",
			},
			[]string{"dimension", "window"},
		),
		RateLimitUsageTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentgate",
				Name:      "rate_limit_usage_total",
				Help:      "Total usage committed to rate limit counters",
			},
			[]string{"dimension"},
		),

		// Task metrics
		TasksSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentgate",
				Name:      "tasks_submitted_total",
				Help:      "Total number of tasks submitted",
			},
			[]string{"agent"},
		),
		TasksFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentgate",
				Name:      "tasks_finished_total",
				Help:      "Total number of tasks reaching a terminal status",
			},
			[]string{"status"},
		),
		TaskQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "agentgate",
				Name:      "task_queue_depth",
				Help:      "Number of tasks waiting for a worker",
			},
		),

		// Provider metrics
		ProviderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "agentgate",
				Name:      "provider_duration_seconds",
				Help:      "LLM provider call duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		),
		ProviderErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agentgate",
				Name:      "provider_errors_total",
				Help:      "Total number of LLM provider call failures",
			},
			[]string{"provider"},
		),

		// Config metrics
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "agentgate",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "agentgate",
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "agentgate",
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// RateLimitDenied implements app.RateLimitMetrics.
func (c *Collector) RateLimitDenied(dimension, window string) {
	c.RateLimitDeniedTotal.WithLabelValues(dimension, window).Inc()
}

// RateLimitUsage implements app.RateLimitMetrics.
func (c *Collector) RateLimitUsage(dimension string, amount float64) {
	c.RateLimitUsageTotal.WithLabelValues(dimension).Add(amount)
}

// TaskSubmitted implements app.TaskMetrics.
func (c *Collector) TaskSubmitted(agent string) {
	c.TasksSubmitted.WithLabelValues(agent).Inc()
}

// TaskFinished implements app.TaskMetrics.
func (c *Collector) TaskFinished(status string) {
	c.TasksFinished.WithLabelValues(status).Inc()
}

// QueueDepth implements app.TaskMetrics.
func (c *Collector) QueueDepth(n int) {
	c.TaskQueueDepth.Set(float64(n))
}

// NormalizePath reduces cardinality by collapsing dynamic path segments.
// Task IDs are UUIDs, so /tasks/<uuid> becomes /tasks/:id.
func NormalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if looksLikeUUID(seg) {
			segments[i] = ":id"
		}
	}
	path = strings.Join(segments, "/")
	if len(path) > 50 {
		return path[:50] + "..."
	}
	return path
}

func looksLikeUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
				return false
			}
		}
	}
	return true
}
