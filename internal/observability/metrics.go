// Package observability exposes Prometheus collectors shared across the
// service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	recordsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telemetry_sync",
		Subsystem: "persistence",
		Name:      "records_ingested_total",
		Help:      "Count of newly inserted telemetry records, labeled by data type.",
	}, []string{"data_type"})

	queriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telemetry_sync",
		Subsystem: "planner",
		Name:      "queries_total",
		Help:      "Range queries served, labeled by cache outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(recordsIngested, queriesTotal)
}

// RecordIngested adds newly inserted records to the ingest counter.
func RecordIngested(dataType string, count int) {
	if count <= 0 {
		return
	}
	recordsIngested.WithLabelValues(dataType).Add(float64(count))
}

// RecordQuery tracks whether a range query was served entirely from cache or
// scheduled a background fetch.
func RecordQuery(covered bool) {
	outcome := "cache_miss"
	if covered {
		outcome = "cache_hit"
	}
	queriesTotal.WithLabelValues(outcome).Inc()
}
