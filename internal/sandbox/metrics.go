package sandbox

import "github.com/prometheus/client_golang/prometheus"

var (
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckviz_executions_total",
			Help: "Total number of script executions by outcome and result kind or failure class.",
		},
		[]string{"outcome", "detail"},
	)
	executionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckviz_execution_duration_seconds",
			Help:    "Script execution latency from prepare to validation.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"outcome"},
	)
	policyViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duckviz_query_policy_violations_total",
			Help: "Total number of non-SELECT statements rejected by the query gateway.",
		},
	)
	forbiddenOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckviz_forbidden_operations_total",
			Help: "Total number of scripts rejected by the static guard, by operation.",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		executionsTotal,
		executionDurationSeconds,
		policyViolationsTotal,
		forbiddenOperationsTotal,
	)
}

func observeExecution(execution *Execution) {
	outcome, detail := "succeeded", string(execution.Result.Kind)
	if execution.Err != nil {
		outcome, detail = "failed", string(execution.Err.Class)
	}
	executionsTotal.WithLabelValues(outcome, detail).Inc()
	executionDurationSeconds.WithLabelValues(outcome).Observe(execution.Duration.Seconds())
}
