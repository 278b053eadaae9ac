package prometheus

import (
	"contract-service/pkg/config"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal   prometheus.CounterVec
	HttpRequestDuration prometheus.HistogramVec

	// Authentication metrics
	AuthAttemptsCounter prometheus.Counter
	AuthSuccessCounter  prometheus.Counter
	AuthErrorsCounter   prometheus.Counter

	// Company context metrics
	CompanyContextMissingCounter prometheus.Counter

	// Database operation metrics
	DbOperationDuration prometheus.HistogramVec

	// Contract metrics
	ContractOperationsCounter prometheus.CounterVec
	SigningEventsCounter      prometheus.CounterVec
	ContractsByStatusGauge    prometheus.GaugeVec

	// Scheduler sweep metrics
	SweepDuration     prometheus.HistogramVec
	SweepItemsCounter prometheus.CounterVec
)

// InitMetrics initializes Prometheus metrics with configuration
func InitMetrics(config *config.Config) {
	// Use metric prefix from configuration
	prefix := config.Metrics.Prefix

	// HTTP request metrics
	HttpRequestsTotal = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration
	HttpRequestDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// Authentication metrics
	AuthAttemptsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
	)

	AuthSuccessCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_success_total",
			Help: "Total number of successful authentications",
		},
	)

	AuthErrorsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_errors_total",
			Help: "Total number of authentication errors",
		},
	)

	// Company context metrics
	CompanyContextMissingCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_company_context_missing_total",
			Help: "Total number of requests without company context",
		},
	)

	// Database operation metrics
	DbOperationDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type"},
	)

	// Contract metrics
	ContractOperationsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_contract_operations_total",
			Help: "Total number of contract operations",
		},
		[]string{"operation"},
	)

	SigningEventsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_signing_events_total",
			Help: "Total number of signing protocol events by outcome",
		},
		[]string{"event"},
	)

	ContractsByStatusGauge = *promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_contracts_by_status",
			Help: "Number of contracts per lifecycle status",
		},
		[]string{"status"},
	)

	// Scheduler sweep metrics
	SweepDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_sweep_duration_seconds",
			Help:    "Duration of scheduler sweep runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	SweepItemsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_sweep_items_total",
			Help: "Items handled by scheduler sweeps by outcome",
		},
		[]string{"job", "outcome"},
	)
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DbOperationDuration.WithLabelValues(operationType).Observe(duration)
	}
}

// RecordContractOperation increments the counter for contract operations
func RecordContractOperation(operation string) {
	ContractOperationsCounter.WithLabelValues(operation).Inc()
}

// RecordSigningEvent increments the counter for signing protocol outcomes
func RecordSigningEvent(event string) {
	SigningEventsCounter.WithLabelValues(event).Inc()
}

// ObserveSweep records duration and item outcomes for one sweep run
func ObserveSweep(job string, duration time.Duration, processed, notified, failed int) {
	SweepDuration.WithLabelValues(job).Observe(duration.Seconds())
	SweepItemsCounter.WithLabelValues(job, "processed").Add(float64(processed))
	SweepItemsCounter.WithLabelValues(job, "notified").Add(float64(notified))
	SweepItemsCounter.WithLabelValues(job, "failed").Add(float64(failed))
}

// UpdateContractsByStatus updates the gauge for one lifecycle status
func UpdateContractsByStatus(status string, count int) {
	ContractsByStatusGauge.WithLabelValues(status).Set(float64(count))
}
