// Package metrics exposes Prometheus counters for the analysis
// lifecycle. Counters register against the default registry; the worker
// serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VideosSubmitted counts accepted upload events that created a record.
	VideosSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goalwhisper_videos_submitted_total",
		Help: "Number of analysis records created from upload events.",
	})

	// JobsSubmitted counts detection jobs started, by kind.
	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goalwhisper_jobs_submitted_total",
		Help: "Number of detection jobs submitted to the capability provider.",
	}, []string{"kind"})

	// RefreshOutcomes counts refresh results, by outcome.
	RefreshOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goalwhisper_refresh_outcomes_total",
		Help: "Number of record refreshes by outcome.",
	}, []string{"outcome"})

	// FinalizeConflicts counts finalize attempts that lost their race to
	// a concurrent writer.
	FinalizeConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goalwhisper_finalize_conflicts_total",
		Help: "Number of terminal transitions that lost a conditional-write race.",
	})

	// TransientPollErrors counts provider status checks that failed
	// transiently and were retried on a later trigger.
	TransientPollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goalwhisper_transient_poll_errors_total",
		Help: "Number of provider polls treated as still pending after an error.",
	})

	// Notifications counts push notifications, by how they were applied.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goalwhisper_notifications_total",
		Help: "Number of push notifications by result (applied, duplicate, anomaly, stale, unknown).",
	}, []string{"result"})
)
