// Package metrics holds the Prometheus instruments shared by the server and
// the notifier. All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/liamcoop/expiry/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics:
//   - <ns>_expiry_decisions_total: evaluations by decision and matched rule kind
//   - <ns>_expiry_evaluation_duration_seconds: evaluation latency
//   - <ns>_rules_reloads_total: rule set reloads by source and result
//   - <ns>_rules_loaded: rules in the active snapshot
//   - <ns>_expiry_date_lookups_total: expiry date cache lookups by result
//   - <ns>_enforcement_changes_total: dates changed by the site walk
//   - <ns>_notifications_total: notification emails by kind and result
type Metrics struct {
	registry *prometheus.Registry

	decisions          *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	reloads            *prometheus.CounterVec
	rulesLoaded        prometheus.Gauge
	dateLookups        *prometheus.CounterVec
	enforcement        *prometheus.CounterVec
	notifications      *prometheus.CounterVec
}

// New creates and registers all instruments on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "content_expiry"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_decisions_total",
			Help:      "Total number of expiry rule evaluations",
		}, []string{"decision", "rule_kind"}),

		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "expiry_evaluation_duration_seconds",
			Help:      "Duration of expiry rule evaluation in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15),
		}),

		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_reloads_total",
			Help:      "Total number of rule set reloads",
		}, []string{"source", "result"}),

		rulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules_loaded",
			Help:      "Number of rules in the active rule set",
		}),

		dateLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_date_lookups_total",
			Help:      "Expiry date lookups by cache result",
		}, []string{"result"}),

		enforcement: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enforcement_changes_total",
			Help:      "Expire dates changed while enforcing the policy",
		}, []string{"action"}),

		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Expiry notification emails",
		}, []string{"kind", "result"}),
	}

	m.registry.MustRegister(
		m.decisions,
		m.evaluationDuration,
		m.reloads,
		m.rulesLoaded,
		m.dateLookups,
		m.enforcement,
		m.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_errors_total",
			Help:      "Errors logged, before sampling",
		}, func() float64 { return float64(logger.TotalErrors.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_warnings_total",
			Help:      "Warnings logged, before sampling",
		}, func() float64 { return float64(logger.TotalWarnings.Load()) }),
	)

	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordDecision(decision, ruleKind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision, ruleKind).Inc()
	m.evaluationDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordReload(source string, err error, rules int) {
	if m == nil {
		return
	}
	if err != nil {
		m.reloads.WithLabelValues(source, "error").Inc()
		return
	}
	m.reloads.WithLabelValues(source, "success").Inc()
	m.rulesLoaded.Set(float64(rules))
}

// RecordDateLookup counts a lookup; result is hit, miss or error.
func (m *Metrics) RecordDateLookup(result string) {
	if m == nil {
		return
	}
	m.dateLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordEnforcement(action string) {
	if m == nil {
		return
	}
	m.enforcement.WithLabelValues(action).Inc()
}

func (m *Metrics) RecordNotification(kind string, success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}
