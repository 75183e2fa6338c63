package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "duckviz_active_sessions",
			Help: "Current number of conversation sessions held in memory.",
		},
	)
	sessionEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckviz_session_evictions_total",
			Help: "Total number of sessions removed, by reason.",
		},
		[]string{"reason"},
	)
	datasetRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "duckviz_dataset_rows",
			Help: "Row count of each loaded dataset.",
		},
		[]string{"dataset"},
	)
)

func init() {
	prometheus.MustRegister(activeSessions, sessionEvictionsTotal, datasetRows)
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// ObserveSessionRemoved counts a session leaving the registry. Reason is
// "idle", "capacity" or "deleted".
func ObserveSessionRemoved(reason string) {
	sessionEvictionsTotal.WithLabelValues(reason).Inc()
}

func SetDatasetRows(dataset string, rows int) {
	datasetRows.WithLabelValues(dataset).Set(float64(rows))
}
