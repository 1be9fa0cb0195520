// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_runs_total",
			Help: "Total number of reconciliation runs",
		},
		[]string{"mode"},
	)

	UsersProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciler_users_processed_total",
			Help: "Total number of subjects processed across runs",
		},
	)

	UsersSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_users_skipped_total",
			Help: "Total number of subjects skipped, by reason",
		},
		[]string{"reason"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_notifications_sent_total",
			Help: "Total notifications delivered, by channel",
		},
		[]string{"channel"},
	)

	RemovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_removals_total",
			Help: "Total access/role removals performed, by target system",
		},
		[]string{"system"},
	)

	MutationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciler_mutation_failures_total",
			Help: "Total failed external mutations, by operation",
		},
		[]string{"operation"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "reconciler_run_duration_seconds",
			Help: "Duration of a full reconciliation run in seconds",
		},
	)
)
