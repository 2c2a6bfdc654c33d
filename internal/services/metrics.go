// Package services – Prometheus instrumentation
//
// Domain-level counters complementing the HTTP metrics middleware. Cardinality
// is deliberately flat (no per-user labels).
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// awardsGranted counts daily award grants.
	awardsGranted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "awards_granted_total",
		Help: "Total number of daily XP awards granted.",
	})

	// awardsRevoked counts daily award revocations.
	awardsRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "awards_revoked_total",
		Help: "Total number of daily XP awards revoked.",
	})

	// duplicateOperations counts progress mutations collapsed by the
	// operation-id unique index (retries and sync replays).
	duplicateOperations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_operations_total",
		Help: "Total number of deduplicated progress operations.",
	})

	// reconcileRepairs counts completion records overwritten from the event
	// log during reconciliation.
	reconcileRepairs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_repairs_total",
		Help: "Total number of completion records repaired from the event log.",
	})
)

func init() {
	prometheus.MustRegister(awardsGranted, awardsRevoked, duplicateOperations, reconcileRepairs)
}
