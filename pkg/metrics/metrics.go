package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncPageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_page_duration_seconds",
			Help:    "Folder page sync duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"folder", "status"},
	)

	SyncMessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_messages_processed_total",
			Help: "Messages seen by the diff engine, by outcome",
		},
		[]string{"outcome"}, // outcome: changed, unchanged, rejected
	)

	DebounceCollapsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_debounce_collapsed_total",
			Help: "Sync requests absorbed by the debounce coordinator",
		},
	)

	EnrichmentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrichment_duration_seconds",
			Help:    "Annotator call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~100s
		},
		[]string{"status"},
	)

	EnrichmentJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_jobs_total",
			Help: "Enrichment jobs by outcome",
		},
		[]string{"outcome"}, // outcome: completed, failed, skipped_inflight, skipped_enriched
	)

	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	WebsocketSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_sessions",
			Help: "Currently registered delivery channels",
		},
	)
)

func RecordSyncPage(folder, status string, duration time.Duration) {
	SyncPageDuration.WithLabelValues(folder, status).Observe(duration.Seconds())
}

func RecordEnrichment(status string, duration time.Duration) {
	EnrichmentDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}
