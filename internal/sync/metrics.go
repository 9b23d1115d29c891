package sync

import "github.com/prometheus/client_golang/prometheus"

var (
	syncsTriggeredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "integration_service",
		Subsystem: "sync",
		Name:      "syncs_triggered_total",
		Help:      "Number of sync attempts started, labeled by platform and trigger source.",
	}, []string{"platform", "triggered_by"})

	syncsFinishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "integration_service",
		Subsystem: "sync",
		Name:      "syncs_finished_total",
		Help:      "Number of sync attempts reaching a terminal status, labeled by platform and status.",
	}, []string{"platform", "status"})

	syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "integration_service",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Time from sync trigger to terminal status.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	reconcileOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "integration_service",
		Subsystem: "reconcile",
		Name:      "activities_total",
		Help:      "Reconciliation outcomes per external activity, labeled by platform and outcome.",
	}, []string{"platform", "outcome"})

	syncsInFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "integration_service",
		Subsystem: "sync",
		Name:      "in_flight",
		Help:      "Number of sync attempts currently running.",
	})
)

func init() {
	prometheus.MustRegister(syncsTriggeredCounter, syncsFinishedCounter, syncDuration, reconcileOutcomeCounter, syncsInFlightGauge)
}
