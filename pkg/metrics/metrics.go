// Package metrics provides Prometheus metrics for the sprout service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsProcessedTotal tracks processed records by source and outcome
	RecordsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sprout",
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Total number of source records processed by outcome",
		},
		[]string{"source", "outcome"},
	)

	// RecordDuration tracks per-record processing time
	RecordDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sprout",
			Subsystem: "ingest",
			Name:      "record_duration_seconds",
			Help:      "Duration of normalize, match and merge for one record",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"source"},
	)

	// MatchDecisionsTotal tracks matcher outcomes by reason
	MatchDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sprout",
			Subsystem: "match",
			Name:      "decisions_total",
			Help:      "Total number of match decisions by reason",
		},
		[]string{"reason"},
	)

	// HotLeadsTotal tracks newly created venues at or above the hot lead score
	HotLeadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sprout",
			Subsystem: "venue",
			Name:      "hot_leads_total",
			Help:      "Total number of hot leads by category",
		},
		[]string{"category"},
	)

	// QuarantinedTotal tracks records sent to quarantine
	QuarantinedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sprout",
			Subsystem: "quarantine",
			Name:      "records_total",
			Help:      "Total number of quarantined records by stage",
		},
		[]string{"stage"},
	)

	// BatchesTotal tracks ingestion batches by status
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sprout",
			Subsystem: "ingest",
			Name:      "batches_total",
			Help:      "Total number of ingestion batches by trigger and status",
		},
		[]string{"trigger", "status"},
	)

	// VenuesRescored tracks venues whose score changed on rescore
	VenuesRescored = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sprout",
			Subsystem: "venue",
			Name:      "rescored_total",
			Help:      "Total number of venues whose score changed during rescoring",
		},
	)

	// KafkaMessagesTotal tracks Kafka consume and publish results
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sprout",
			Subsystem: "kafka",
			Name:      "messages_total",
			Help:      "Total number of Kafka messages by topic, direction and status",
		},
		[]string{"topic", "direction", "status"},
	)

	// HTTPRequestsTotal tracks API requests by route and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sprout",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks API request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sprout",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// KafkaPublishDuration tracks Kafka publish latency
	KafkaPublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sprout",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"topic"},
	)
)

// RecordProcessed records the outcome of one record
func RecordProcessed(source, outcome string, durationSeconds float64) {
	RecordsProcessedTotal.WithLabelValues(source, outcome).Inc()
	RecordDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordMatchDecision records a matcher outcome
func RecordMatchDecision(reason string) {
	MatchDecisionsTotal.WithLabelValues(reason).Inc()
}

// RecordHotLead records a new hot lead
func RecordHotLead(category string) {
	HotLeadsTotal.WithLabelValues(category).Inc()
}

// RecordQuarantined records a quarantined record
func RecordQuarantined(stage string) {
	QuarantinedTotal.WithLabelValues(stage).Inc()
}

// RecordBatch records a finished batch
func RecordBatch(trigger, status string) {
	BatchesTotal.WithLabelValues(trigger, status).Inc()
}

// RecordKafkaPublish records a Kafka publish
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesTotal.WithLabelValues(topic, "publish", status).Inc()
	KafkaPublishDuration.WithLabelValues(topic).Observe(durationSeconds)
}

// RecordKafkaConsume records a consumed Kafka message
func RecordKafkaConsume(topic, status string) {
	KafkaMessagesTotal.WithLabelValues(topic, "consume", status).Inc()
}

// RecordHTTPRequest records a served API request
func RecordHTTPRequest(method, route, status string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}
