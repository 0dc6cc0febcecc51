package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// STK push metrics
	PushInitiationsTotal  *prometheus.CounterVec
	PushInitiationSeconds *prometheus.HistogramVec
	PendingTransactions   prometheus.Gauge

	// Reconciliation metrics
	CallbacksTotal     *prometheus.CounterVec
	StatusQueriesTotal *prometheus.CounterVec

	// Webhook delivery metrics
	WebhookDeliveriesTotal *prometheus.CounterVec
	WebhookDeliverySeconds *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerRequests *prometheus.CounterVec

	// Worker metrics
	WorkerMessagesProcessed  *prometheus.CounterVec
	WorkerProcessingDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		PushInitiationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "push_initiations_total",
				Help:      "Total number of STK push initiations by result",
			},
			[]string{"result"},
		),
		PushInitiationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "push_initiation_duration_seconds",
				Help:      "STK push initiation round-trip duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"result"},
		),
		PendingTransactions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_transactions",
				Help:      "Number of transactions awaiting settlement",
			},
		),
		CallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callbacks_total",
				Help:      "Total number of Daraja callbacks by resolved status",
			},
			[]string{"status"},
		),
		StatusQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_queries_total",
				Help:      "Total number of status poll requests by resolved status",
			},
			[]string{"status"},
		),
		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_deliveries_total",
				Help:      "Total number of merchant webhook deliveries by result",
			},
			[]string{"result"},
		),
		WebhookDeliverySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "webhook_delivery_duration_seconds",
				Help:      "Merchant webhook delivery duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of circuit breaker requests",
			},
			[]string{"name", "result"},
		),
		WorkerMessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_messages_processed_total",
				Help:      "Total number of worker messages processed",
			},
			[]string{"stream", "status"},
		),
		WorkerProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_processing_duration_seconds",
				Help:      "Worker message processing duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stream"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.PushInitiationsTotal,
		m.PushInitiationSeconds,
		m.PendingTransactions,
		m.CallbacksTotal,
		m.StatusQueriesTotal,
		m.WebhookDeliveriesTotal,
		m.WebhookDeliverySeconds,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerRequests,
		m.WorkerMessagesProcessed,
		m.WorkerProcessingDuration,
	)

	return m
}
