package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TextsRepaired tracks throughput of the repair daemon
	// Labels allow filtering by outcome (repaired/unchanged/error) and by detected encoding
	TextsRepaired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "textmend_texts_repaired_total",
		Help: "Total number of queue entries processed by the repair daemon",
	}, []string{"status", "encoding"})

	// BytesReplaced counts individual byte substitutions and translations
	// A sudden spike usually means a new mis-encoded data source appeared upstream
	BytesReplaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "textmend_bytes_replaced_total",
		Help: "Total number of bytes translated or substituted during repair",
	})

	// BatchDuration measures how long it takes to process an entire batch
	// Use this to identify performance degradation in Postgres or RabbitMQ
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "textmend_batch_duration_seconds",
		Help:    "Duration of batch processing in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// BatchSize tracks the number of entries actually claimed in each batch
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "textmend_batch_size",
		Help:    "Number of queue entries processed per batch",
		Buckets: []float64{1, 10, 50, 100, 500, 1000},
	})

	// RabbitMQReconnections counts how many times the service had to restore the link
	RabbitMQReconnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "textmend_rabbitmq_reconnections_total",
		Help: "Total number of RabbitMQ reconnection attempts",
	})

	// HealthStatus provides a binary 0/1 signal for the service's health
	// 1 = Healthy, 0 = Unhealthy (connection to RabbitMQ is down)
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "textmend_healthy",
		Help: "Current health status (1 for healthy, 0 for unhealthy)",
	})

	// QueueBacklog tracks pending entries in the Postgres repair queue
	// This is the primary indicator of system lag
	QueueBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "textmend_queue_backlog",
		Help: "Current number of pending/processing entries in the repair queue",
	})

	// DLQSize tracks entries that reached maximum attempts
	// If this number grows, manual inspection of the source data is required
	DLQSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "textmend_dlq_size",
		Help: "Current number of entries in the dead letter queue",
	})
)
