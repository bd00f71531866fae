// Package metrics provides Prometheus metrics for the tripcue service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TripsTotal counts trips by final status.
	TripsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripcue",
			Subsystem: "orchestrator",
			Name:      "trips_total",
			Help:      "Total number of trips by final status",
		},
		[]string{"status"}, // "succeeded", "failed", "cancelled"
	)

	// TripsActive tracks currently running trips.
	TripsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tripcue",
			Subsystem: "orchestrator",
			Name:      "trips_active",
			Help:      "Number of currently running trips",
		},
	)

	// PointsTotal counts points by terminal point status.
	PointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripcue",
			Subsystem: "orchestrator",
			Name:      "points_total",
			Help:      "Total number of route points by terminal status",
		},
		[]string{"status"}, // "complete", "soft_degraded", "hard_degraded", "failed"
	)

	// PointsActive tracks points currently being reconciled.
	PointsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tripcue",
			Subsystem: "orchestrator",
			Name:      "points_active",
			Help:      "Number of points with an open collector",
		},
	)

	// PointWaitSeconds tracks how long collectors waited before resolving.
	PointWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tripcue",
			Subsystem: "orchestrator",
			Name:      "point_wait_seconds",
			Help:      "Collector wait duration per point in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
		},
		[]string{"status"},
	)

	// AgentOutcomesTotal counts agent reports by role and result.
	AgentOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripcue",
			Subsystem: "orchestrator",
			Name:      "agent_outcomes_total",
			Help:      "Total number of agent outcomes by role and result",
		},
		[]string{"role", "result"}, // result: "success", "failure", "panic"
	)

	// AgentSearchSeconds tracks per-role search latency.
	AgentSearchSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tripcue",
			Subsystem: "orchestrator",
			Name:      "agent_search_seconds",
			Help:      "Agent search duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"role"},
	)

	// EventsTotal counts events emitted by type.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripcue",
			Subsystem: "orchestrator",
			Name:      "events_total",
			Help:      "Total number of events emitted",
		},
		[]string{"type"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripcue",
			Subsystem: "orchestrator",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tripcue",
			Subsystem: "orchestrator",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SSEActiveConnections tracks open event streams.
	SSEActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tripcue",
			Subsystem: "orchestrator",
			Name:      "sse_active_connections",
			Help:      "Number of open SSE connections",
		},
	)

	// SSEConnectionDuration tracks how long event streams stay open.
	SSEConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tripcue",
			Subsystem: "orchestrator",
			Name:      "sse_connection_duration_seconds",
			Help:      "Duration of SSE connections in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	// TripStoreOperations counts tripstore operations.
	TripStoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripcue",
			Subsystem: "orchestrator",
			Name:      "tripstore_operations_total",
			Help:      "Total number of tripstore operations",
		},
		[]string{"operation", "result"}, // operation: create, update, get; result: success, error
	)

	// ArchiveExportsTotal counts archive exports by result.
	ArchiveExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tripcue",
			Subsystem: "orchestrator",
			Name:      "archive_exports_total",
			Help:      "Total number of trip archive exports",
		},
		[]string{"result"},
	)
)
