// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StagesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stages_completed_total",
			Help: "Total number of stage executions completed",
		},
		[]string{"stage"},
	)

	StagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stages_failed_total",
			Help: "Total number of stage executions failed",
		},
		[]string{"stage", "error_code"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_stage_duration_seconds",
			Help: "Duration of stage execution in seconds",
		},
		[]string{"stage"},
	)

	ApplicationsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_applications_active",
			Help: "Number of applications currently advancing through the pipeline",
		},
	)

	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_decisions_total",
			Help: "Total number of admission decisions by status",
		},
		[]string{"status"},
	)

	RuleQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_rule_queries_total",
			Help: "Total number of rule index similarity queries",
		},
	)
)
