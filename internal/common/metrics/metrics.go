// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 240, 480},
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	ResearchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_runs_total",
			Help: "Research runs by outcome (evidence, no_research, search_error, failed)",
		},
		[]string{"outcome"},
	)

	ResearchRounds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "research_rounds_total",
			Help: "Plan/search/summarize/judge cycles executed",
		},
	)

	ResearchPrivateCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_private_calls_total",
			Help: "Private chat calls by research stage and status",
		},
		[]string{"stage", "status"},
	)

	ResearchSearchQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_search_queries_total",
			Help: "Search queries issued by status (ok, error, cached)",
		},
		[]string{"status"},
	)

	ResearchPagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_pages_fetched_total",
			Help: "Page fetches by status (ok, unavailable, cached)",
		},
		[]string{"status"},
	)

	ResearchFanoutWidth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "research_fanout_width",
			Help:    "URLs summarized concurrently per round",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	ResearchNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_notifications_total",
			Help: "Progress notifications by status (delivered, no_channel, failed)",
		},
		[]string{"status"},
	)
)
