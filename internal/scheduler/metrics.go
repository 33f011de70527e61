package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telemetry_sync",
		Subsystem: "scheduler",
		Name:      "jobs_processed_total",
		Help:      "Fetch jobs driven to a terminal state, labeled by outcome.",
	}, []string{"status"})

	chunkFetches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "telemetry_sync",
		Subsystem: "scheduler",
		Name:      "chunk_fetch_attempts_total",
		Help:      "Upstream chunk fetch attempts, including retries.",
	})

	chunkFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "telemetry_sync",
		Subsystem: "scheduler",
		Name:      "chunk_failures_total",
		Help:      "Chunks that exhausted their retries and were skipped.",
	})

	jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "telemetry_sync",
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Wall time spent driving one fetch job to a terminal state.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(jobsProcessed, chunkFetches, chunkFailures, jobDuration)
}
