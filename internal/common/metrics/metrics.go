// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EnrichRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_requests_total",
			Help: "Total number of enrich calls by resolved domain and quality level",
		},
		[]string{"domain", "quality"},
	)

	EnrichDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrichment_duration_seconds",
			Help:    "End-to-end duration of enrich calls in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"domain"},
	)

	ClassifierVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_classifier_verdicts_total",
			Help: "Classifier verdicts by domain and priority",
		},
		[]string{"domain", "priority"},
	)

	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_provider_calls_total",
			Help: "Provider fetches by outcome",
		},
		[]string{"provider", "status"},
	)

	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "enrichment_provider_duration_seconds",
			Help: "Duration of provider fetches in seconds",
		},
		[]string{"provider"},
	)

	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_cache_operations_total",
			Help: "Cache operations by tier, operation and result",
		},
		[]string{"tier", "operation", "result"},
	)

	LimiterInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "enrichment_limiter_in_flight",
			Help: "Outbound calls currently holding a limiter slot",
		},
	)

	LimiterWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "enrichment_limiter_wait_seconds",
			Help: "Time spent waiting for a limiter slot",
		},
	)

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
)
