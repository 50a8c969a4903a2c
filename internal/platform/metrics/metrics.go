package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AuditEntriesWritten counts audit entries durably persisted.
	AuditEntriesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_entries_written_total",
		Help: "Audit entries successfully persisted.",
	})

	// AuditWriteFailures counts persistence failures in the audit writer.
	// Repeated failures here are the operational alert signal for a broken
	// audit trail.
	AuditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_write_failures_total",
		Help: "Audit entry persistence failures (recovered, never surfaced to requests).",
	})

	// AuditDropped counts entries dropped because the writer queue was full.
	AuditDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_dropped_total",
		Help: "Audit entries dropped due to a saturated writer queue.",
	})

	// AuthFailures counts authentication failures by typed reason.
	AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Authentication failures by reason.",
		},
		[]string{"reason"},
	)

	// AuthLockouts counts account lockout transitions.
	AuthLockouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_lockouts_total",
		Help: "Accounts transitioned to locked after repeated failures.",
	})
)

// Register registers all collectors in the default registry.
func Register() {
	prometheus.MustRegister(
		AuditEntriesWritten,
		AuditWriteFailures,
		AuditDropped,
		AuthFailures,
		AuthLockouts,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
