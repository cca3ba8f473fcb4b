// rewrite/pkg/metrics/metrics.go

// Package metrics exports engine and host activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rgehrsitz/rewrite/pkg/runtime"
)

type Config struct {
	Namespace string
	Subsystem string
}

func DefaultConfig() Config {
	return Config{Namespace: "rewrite", Subsystem: "vm"}
}

// RewriteMetrics implements runtime.Observer.
//
// Metrics:
//   - executions_total: ruleset executions by ruleset, outcome and final signal
//   - execution_duration_seconds: ruleset execution time
//   - scope_activations_total: ACTIVATE_SCOPE hits by scope
//   - reloads_total: configuration reloads by result
//   - http_requests_total: host responses by status code
type RewriteMetrics struct {
	registry *prometheus.Registry

	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	scopeActivations  *prometheus.CounterVec
	reloadsTotal      *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
}

// NewRewriteMetrics creates the metrics and registers them with registry. A nil
// registry gets a fresh one.
func NewRewriteMetrics(cfg Config, registry *prometheus.Registry) *RewriteMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &RewriteMetrics{
		registry: registry,
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "executions_total",
				Help:      "Total number of ruleset executions",
			},
			[]string{"ruleset", "outcome", "signal"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "execution_duration_seconds",
				Help:      "Duration of ruleset execution in seconds",
				// 100ns to ~3ms
				Buckets: prometheus.ExponentialBuckets(0.0000001, 2, 15),
			},
			[]string{"ruleset"},
		),
		scopeActivations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "scope_activations_total",
				Help:      "Total number of scope activations",
			},
			[]string{"scope"},
		),
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "reloads_total",
				Help:      "Total number of configuration reloads",
			},
			[]string{"result"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP responses by status code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.executionsTotal,
		m.executionDuration,
		m.scopeActivations,
		m.reloadsTotal,
		m.httpRequestsTotal,
	)
	return m
}

func (m *RewriteMetrics) ObserveExecution(ruleset string, outcome runtime.Outcome, signal runtime.Signal, elapsed time.Duration) {
	m.executionsTotal.WithLabelValues(ruleset, outcome.String(), signal.String()).Inc()
	m.executionDuration.WithLabelValues(ruleset).Observe(elapsed.Seconds())
}

func (m *RewriteMetrics) ObserveScopeActivation(scope string) {
	m.scopeActivations.WithLabelValues(scope).Inc()
}

// RecordReload counts a reload attempt.
func (m *RewriteMetrics) RecordReload(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.reloadsTotal.WithLabelValues(result).Inc()
}

// RecordResponse counts an HTTP response.
func (m *RewriteMetrics) RecordResponse(status int) {
	m.httpRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *RewriteMetrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *RewriteMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
