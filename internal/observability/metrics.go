package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every custom collector the service exports.
type Metrics struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Auth Metrics
	AuthRejectionsTotal *prometheus.CounterVec
	SignupsTotal        prometheus.Counter
	LoginsTotal         *prometheus.CounterVec

	// Task Metrics
	TasksCreatedTotal       prometheus.Counter
	TaskStatusUpdatesTotal  *prometheus.CounterVec
	TasksDeletedTotal       prometheus.Counter
	TaskEventsHandledTotal  *prometheus.CounterVec
	TaskEventHandlingErrors *prometheus.CounterVec

	// Cache (Redis) Metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Queue (RabbitMQ) Metrics
	QueueMessagesPublished *prometheus.CounterVec
	QueueMessagesConsumed  *prometheus.CounterVec
	QueuePublishFailures   *prometheus.CounterVec
}

// NewMetrics registers all collectors on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		AuthRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_rejections_total",
				Help: "Protected requests rejected by the access gate",
			},
			[]string{"reason"}, // api_key, token
		),

		SignupsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "signups_total",
				Help: "Total number of users created",
			},
		),

		LoginsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"}, // success, rejected
		),

		TasksCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tasks_created_total",
				Help: "Total number of tasks created",
			},
		),

		TaskStatusUpdatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "task_status_updates_total",
				Help: "Total number of task status changes",
			},
			[]string{"status"},
		),

		TasksDeletedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tasks_deleted_total",
				Help: "Total number of tasks deleted explicitly",
			},
		),

		TaskEventsHandledTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "task_events_handled_total",
				Help: "Task lifecycle events handled by workers",
			},
			[]string{"type"},
		),

		TaskEventHandlingErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "task_event_handling_errors_total",
				Help: "Task lifecycle events that could not be handled",
			},
			[]string{"error_type"},
		),

		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"key_type"},
		),

		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"key_type"},
		),

		QueueMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_messages_published_total",
				Help: "Total number of messages published to the queue",
			},
			[]string{"queue_name"},
		),

		QueueMessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_messages_consumed_total",
				Help: "Total number of messages consumed from the queue",
			},
			[]string{"queue_name"},
		),

		QueuePublishFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_publish_failures_total",
				Help: "Messages that could not be published",
			},
			[]string{"queue_name"},
		),
	}
}
