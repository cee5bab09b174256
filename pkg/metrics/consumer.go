package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConsumerDuration tracks the end-to-end latency of applying a fix inside the worker
	// We use larger buckets because Firebird 2.5 on HDDs can be slow
	ConsumerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "textmend_consumer_duration_seconds",
		Help:    "Time taken to process a repair request from reception to Firebird commit",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"status", "table"}) // status: success, fatal_error, transient_error

	// ConsumerRetries tracks how many times we had to retry internally due to locks
	ConsumerRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "textmend_consumer_lock_retries_total",
		Help: "Number of internal retries triggered by Firebird locks/deadlocks",
	}, []string{"table"})

	// CollectorRowsPublished tracks how many suspect rows each unit has exported
	CollectorRowsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "textmend_collector_rows_published_total",
		Help: "Total number of suspect rows published by the collector",
	}, []string{"table"})
)
