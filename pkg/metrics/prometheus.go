package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
	httpTimeoutsTotal    *prometheus.CounterVec

	// Call Metrics
	callTransitionsTotal *prometheus.CounterVec
	callsActive          prometheus.Gauge
	callsDuration        prometheus.Histogram
	callsExpiredTotal    *prometheus.CounterVec

	// Payment Metrics
	paymentsTotal      *prometheus.CounterVec
	paymentAmountTotal prometheus.Counter
	webhookEventsTotal *prometheus.CounterVec
	refundsTotal       prometheus.Counter

	// Vendor Metrics
	vendorRequestsTotal   *prometheus.CounterVec
	vendorRequestDuration *prometheus.HistogramVec

	// Notification Metrics
	notificationsTotal *prometheus.CounterVec

	// WebSocket Metrics
	websocketConnections prometheus.Gauge

	// Rate Limiting Metrics
	rateLimitBlockedTotal *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics on a dedicated registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: registry,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),
		httpTimeoutsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_request_timeouts_total",
				Help:        "Total number of HTTP requests that hit the request timeout",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint"},
		),

		callTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_transitions_total",
				Help:        "Total number of call request status transitions",
				ConstLabels: labels,
			},
			[]string{"from", "to"},
		),
		callsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of calls currently active",
				ConstLabels: labels,
			},
		),
		callsDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "calls_duration_seconds",
				Help:        "Duration of completed calls in seconds",
				ConstLabels: labels,
				Buckets:     []float64{30, 60, 120, 300, 600, 900, 1800, 3600},
			},
		),
		callsExpiredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_expired_total",
				Help:        "Total number of call requests closed by the sweeper",
				ConstLabels: labels,
			},
			[]string{"from"},
		),

		paymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "payments_total",
				Help:        "Total number of payment attempts by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		paymentAmountTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "payment_amount_cents_total",
				Help:        "Total amount collected in cents",
				ConstLabels: labels,
			},
		),
		webhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "payment_webhook_events_total",
				Help:        "Total number of payment webhook events received",
				ConstLabels: labels,
			},
			[]string{"type", "result"},
		),
		refundsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name:        "payment_refunds_total",
				Help:        "Total number of refunds issued",
				ConstLabels: labels,
			},
		),

		vendorRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "vendor_requests_total",
				Help:        "Total number of requests to third-party providers",
				ConstLabels: labels,
			},
			[]string{"vendor", "operation", "status"},
		),
		vendorRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "vendor_request_duration_seconds",
				Help:        "Latency of third-party provider requests",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"vendor", "operation"},
		),

		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "notifications_total",
				Help:        "Total number of notifications sent",
				ConstLabels: labels,
			},
			[]string{"channel", "type", "status"},
		),

		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of open call status WebSocket connections",
				ConstLabels: labels,
			},
		),

		rateLimitBlockedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "rate_limit_blocked_total",
				Help:        "Total number of requests blocked by rate limiting",
				ConstLabels: labels,
			},
			[]string{"endpoint"},
		),
	}

	return m
}

// GetRegistry returns the registry backing these metrics
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// RecordRequestTimeout records a request that exceeded its deadline
func (m *Metrics) RecordRequestTimeout(method, endpoint string) {
	m.httpTimeoutsTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordCallTransition records a call request status change
func (m *Metrics) RecordCallTransition(from, to string) {
	m.callTransitionsTotal.WithLabelValues(from, to).Inc()
	switch {
	case to == "active":
		m.callsActive.Inc()
	case from == "active":
		m.callsActive.Dec()
	}
}

// SetActiveCalls sets the number of active calls
func (m *Metrics) SetActiveCalls(count int) {
	m.callsActive.Set(float64(count))
}

// RecordCallDuration records the duration of a completed call
func (m *Metrics) RecordCallDuration(duration time.Duration) {
	m.callsDuration.Observe(duration.Seconds())
}

// RecordCallExpired records a request closed by the sweeper
func (m *Metrics) RecordCallExpired(from string) {
	m.callsExpiredTotal.WithLabelValues(from).Inc()
}

// RecordPayment records a payment outcome; amount is only added on success
func (m *Metrics) RecordPayment(outcome string, amountCents int64) {
	m.paymentsTotal.WithLabelValues(outcome).Inc()
	if outcome == "succeeded" && amountCents > 0 {
		m.paymentAmountTotal.Add(float64(amountCents))
	}
}

// RecordWebhookEvent records a received webhook event
func (m *Metrics) RecordWebhookEvent(eventType, result string) {
	m.webhookEventsTotal.WithLabelValues(eventType, result).Inc()
}

// RecordRefund records an issued refund
func (m *Metrics) RecordRefund() {
	m.refundsTotal.Inc()
}

// RecordVendorRequest records a call to a third-party provider
func (m *Metrics) RecordVendorRequest(vendor, operation string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.vendorRequestsTotal.WithLabelValues(vendor, operation, status).Inc()
	m.vendorRequestDuration.WithLabelValues(vendor, operation).Observe(duration.Seconds())
}

// RecordNotification records a notification send attempt
func (m *Metrics) RecordNotification(channel, notifType string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.notificationsTotal.WithLabelValues(channel, notifType, status).Inc()
}

// IncWebSocketConnections increments the open WebSocket gauge
func (m *Metrics) IncWebSocketConnections() {
	m.websocketConnections.Inc()
}

// DecWebSocketConnections decrements the open WebSocket gauge
func (m *Metrics) DecWebSocketConnections() {
	m.websocketConnections.Dec()
}

// RecordRateLimitBlocked records a request blocked by rate limiting
func (m *Metrics) RecordRateLimitBlocked(endpoint string) {
	m.rateLimitBlockedTotal.WithLabelValues(endpoint).Inc()
}
