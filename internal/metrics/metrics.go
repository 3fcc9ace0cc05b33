// Package metrics exposes the engine's Prometheus counters and the /metrics
// handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// patternsDetected counts merged patterns per scan by type and severity
	patternsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automend_patterns_detected_total",
		Help: "Detected patterns by type and severity",
	}, []string{"type", "severity"})

	// executionsTotal counts execution outcomes by action type and final status
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automend_executions_total",
		Help: "Action executions by action type and final status",
	}, []string{"action_type", "status"})

	// rollbacksTotal counts rollback attempts by outcome
	rollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automend_rollbacks_total",
		Help: "Rollback attempts by outcome",
	}, []string{"outcome"})

	// escalationNotices counts delivered escalation notices by chain level
	escalationNotices = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "automend_escalation_notices_total",
		Help: "Escalation notices delivered by chain level",
	}, []string{"level"})
)

// RecordPatternDetected increments the detected-pattern counter
func RecordPatternDetected(patternType, severity string) {
	patternsDetected.WithLabelValues(patternType, severity).Inc()
}

// RecordExecution increments the execution counter for a final status
func RecordExecution(actionType, status string) {
	executionsTotal.WithLabelValues(actionType, status).Inc()
}

// RecordRollback increments the rollback counter ("completed" or "failed")
func RecordRollback(outcome string) {
	rollbacksTotal.WithLabelValues(outcome).Inc()
}

// RecordEscalationNotice increments the escalation notice counter
func RecordEscalationNotice(level string) {
	escalationNotices.WithLabelValues(level).Inc()
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
