// Package metrics exposes the agent's Prometheus instrumentation, named
// after the LiveMetrics taxonomy in the teacher's
// internal/monitoring/monitoring_system.go (counts, rates, per-operation
// throughput) but implemented with github.com/prometheus/client_golang
// rather than a hand-rolled aggregator, since the teacher's go.mod
// already carries that dependency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the collector set served by /metrics.
type Registry struct {
	FlowsProcessed     prometheus.Counter
	AlertsRaised       *prometheus.CounterVec
	AnomaliesFound     *prometheus.CounterVec
	StoreErrors        prometheus.Counter
	QuarantineApplied  prometheus.Counter
	RuleReloadFailures prometheus.Counter
}

// New builds a Registry and registers every metric with reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		FlowsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netsentinel",
			Name:      "flows_processed_total",
			Help:      "Total FlowEvents ingested by the pipeline.",
		}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netsentinel",
			Name:      "alerts_raised_total",
			Help:      "Total Alerts raised by the rule engine, labeled by severity.",
		}, []string{"severity"}),
		AnomaliesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netsentinel",
			Name:      "anomalies_found_total",
			Help:      "Total Anomalies found by the anomaly detector, labeled by kind.",
		}, []string{"kind"}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netsentinel",
			Name:      "store_errors_total",
			Help:      "Total errors returned by the encrypted store.",
		}),
		QuarantineApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netsentinel",
			Name:      "quarantine_applied_total",
			Help:      "Total quarantine decisions successfully applied by a policy backend.",
		}),
		RuleReloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netsentinel",
			Name:      "rule_reload_failures_total",
			Help:      "Total rule-file reloads that failed to parse.",
		}),
	}

	reg.MustRegister(
		m.FlowsProcessed,
		m.AlertsRaised,
		m.AnomaliesFound,
		m.StoreErrors,
		m.QuarantineApplied,
		m.RuleReloadFailures,
	)
	return m
}
