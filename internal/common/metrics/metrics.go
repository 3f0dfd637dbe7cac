// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksSucceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_tasks_succeeded_total",
			Help: "Total number of tasks that reached the Succeeded state",
		},
		[]string{"kind"},
	)

	TasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_tasks_failed_total",
			Help: "Total number of failed evaluation attempts",
		},
		[]string{"kind", "error_code"},
	)

	TasksDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_tasks_dead_lettered_total",
			Help: "Total number of tasks that reached the DeadLettered state",
		},
		[]string{"kind", "error_code"},
	)

	RetriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_retries_scheduled_total",
			Help: "Total number of delayed re-enqueues after retryable failures",
		},
		[]string{"kind"},
	)

	RedeliveriesShortCircuited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_redeliveries_short_circuited_total",
			Help: "Redelivered tasks answered from the recorded terminal outcome",
		},
		[]string{"kind"},
	)

	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_evaluation_duration_seconds",
			Help:    "Duration of a single evaluation attempt in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		},
		[]string{"kind"},
	)

	TasksInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_tasks_in_flight",
			Help: "Number of tasks currently being evaluated per lane",
		},
		[]string{"lane"},
	)

	ReportCompleteness = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_report_completeness_ratio",
			Help: "Completeness of the most recent report per assignment",
		},
		[]string{"assignment_id"},
	)
)
