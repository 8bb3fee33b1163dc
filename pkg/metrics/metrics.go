// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// IdentifyRequestsTotal tracks identify calls by source and outcome
	IdentifyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "identify",
			Name:      "requests_total",
			Help:      "Total number of identify operations by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// IdentifyDuration tracks identify latency in seconds
	IdentifyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "identify",
			Name:      "duration_seconds",
			Help:      "Duration of identify operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"source"},
	)

	// ContactsCreatedTotal tracks inserted contacts by link precedence
	ContactsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "contacts",
			Name:      "created_total",
			Help:      "Total number of contacts created by link precedence",
		},
		[]string{"link_precedence"},
	)

	// PrimariesDemotedTotal tracks primaries folded into another cluster
	PrimariesDemotedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "contacts",
			Name:      "primaries_demoted_total",
			Help:      "Total number of primary contacts demoted during merges",
		},
	)

	// ContactsRepointedTotal tracks secondaries re-pointed at a new primary
	ContactsRepointedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "contacts",
			Name:      "repointed_total",
			Help:      "Total number of secondary contacts re-pointed during merges",
		},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaMessagesConsumed tracks observation messages consumed
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of observation messages consumed by status",
		},
		[]string{"status"},
	)

	// ObserverFailuresTotal tracks post-commit observer failures
	ObserverFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "observer",
			Name:      "failures_total",
			Help:      "Total number of post-commit observer failures",
		},
		[]string{"observer"},
	)
)

// RecordIdentify records one identify operation
func RecordIdentify(source, outcome string, durationSeconds float64) {
	IdentifyRequestsTotal.WithLabelValues(source, outcome).Inc()
	IdentifyDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordMerge records the mutations of one identify operation
func RecordMerge(created []string, demoted, repointed int) {
	for _, precedence := range created {
		ContactsCreatedTotal.WithLabelValues(precedence).Inc()
	}
	PrimariesDemotedTotal.Add(float64(demoted))
	ContactsRepointedTotal.Add(float64(repointed))
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

// RecordKafkaConsume records a consumed observation message
func RecordKafkaConsume(status string) {
	KafkaMessagesConsumed.WithLabelValues(status).Inc()
}

// RecordObserverFailure records a failed post-commit observer
func RecordObserverFailure(observer string) {
	ObserverFailuresTotal.WithLabelValues(observer).Inc()
}

// RegisterRoutes exposes the default registry at /metrics
func RegisterRoutes(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
