package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// singleton instance
	instance *Metrics
	once     sync.Once
)

// Metrics holds Prometheus metrics for the tracker
type Metrics struct {
	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Storage metrics
	StorageOperations        *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Broadcast metrics
	BroadcastConnectionsActive prometheus.Gauge
	BroadcastEventsTotal       *prometheus.CounterVec
	BroadcastSendErrorsTotal   prometheus.Counter
	BroadcastFanoutDuration    prometheus.Histogram

	// Classification metrics
	ClassifyRequestsTotal *prometheus.CounterVec
}

// GetMetrics returns the metrics singleton
func GetMetrics() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

// newMetrics initializes and registers all metrics
func newMetrics() *Metrics {
	m := &Metrics{}

	m.APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dailytrack_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	m.APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dailytrack_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"method", "path"},
	)

	m.APIErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dailytrack_api_errors_total",
			Help: "Total number of API errors",
		},
		[]string{"method", "path", "error_type"},
	)

	m.StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dailytrack_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "success"},
	)

	m.StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dailytrack_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"operation"},
	)

	m.BroadcastConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dailytrack_broadcast_connections_active",
			Help: "Number of currently open realtime connections",
		},
	)

	m.BroadcastEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dailytrack_broadcast_events_total",
			Help: "Total number of events broadcast, by topic prefix",
		},
		[]string{"domain"},
	)

	m.BroadcastSendErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dailytrack_broadcast_send_errors_total",
			Help: "Total number of per-connection send failures during broadcast",
		},
	)

	m.BroadcastFanoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dailytrack_broadcast_fanout_duration_seconds",
			Help:    "Time spent fanning one event out to all open connections",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	m.ClassifyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dailytrack_classify_requests_total",
			Help: "Total number of URL classification attempts, by outcome",
		},
		[]string{"outcome"},
	)

	return m
}
