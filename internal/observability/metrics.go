// Package observability provides Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studiodesk_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WebSocketEventsTotal counts realtime events fanned out to forum subscribers.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studiodesk_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studiodesk_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// ForumVotes counts vote toggles by target type and resulting vote.
	ForumVotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studiodesk_forum_votes_total",
		Help: "Total forum vote toggles",
	}, []string{"target", "result"})

	// SheetGenerations counts finished sheet generation runs by outcome.
	SheetGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studiodesk_sheet_generations_total",
		Help: "Total sheet generation runs by outcome",
	}, []string{"outcome"})

	// SheetStepDuration records how long each generation step took.
	SheetStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studiodesk_sheet_step_duration_seconds",
		Help:    "Sheet generation step duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"step"})

	// CacheLookups counts server-side cache reads by key family and result.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studiodesk_cache_lookups_total",
		Help: "Server cache lookups by key family and result",
	}, []string{"family", "result"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// TrackStep returns a function that records a generation step's duration.
func TrackStep(step string) func() {
	start := time.Now()
	return func() {
		SheetStepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
	}
}
