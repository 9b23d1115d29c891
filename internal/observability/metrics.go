package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncCompletedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "integration_service",
		Subsystem: "sync",
		Name:      "last_completed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent sync that reached completed.",
	})
	connectionUpsertGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "integration_service",
		Subsystem: "connections",
		Name:      "last_connected_timestamp_seconds",
		Help:      "Unix timestamp of the most recent connection activated via OAuth callback.",
	})
)

func init() {
	prometheus.MustRegister(syncCompletedGauge, connectionUpsertGauge)
}

// RecordSyncCompleted updates the completed-sync watermark gauge.
func RecordSyncCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	syncCompletedGauge.Set(float64(ts.Unix()))
}

// RecordConnectionActivated updates the connection watermark gauge.
func RecordConnectionActivated(ts time.Time) {
	if ts.IsZero() {
		return
	}
	connectionUpsertGauge.Set(float64(ts.Unix()))
}
