package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Webhook metrics
	WebhookEventsTotal *prometheus.CounterVec

	// Billing metrics
	ChargeAttemptsTotal  *prometheus.CounterVec
	SweepDuration        prometheus.Histogram
	SweepLastRunSeconds  prometheus.Gauge
	OrderSettlementTotal *prometheus.CounterVec

	// Notification metrics
	NotificationsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tact_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tact_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tact_webhook_events_total",
				Help: "Payment provider callbacks by provider, event kind and outcome",
			},
			[]string{"provider", "kind", "outcome"},
		),
		ChargeAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tact_recurring_charge_attempts_total",
				Help: "Recurring charge attempts by terminal outcome",
			},
			[]string{"outcome"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tact_billing_sweep_duration_seconds",
				Help:    "Duration of a recurring billing sweep",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		SweepLastRunSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tact_billing_sweep_last_run_timestamp_seconds",
				Help: "Unix time of the last completed billing sweep",
			},
		),
		OrderSettlementTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tact_order_settlements_total",
				Help: "Order settlement outcomes by provider",
			},
			[]string{"provider", "outcome"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tact_notifications_total",
				Help: "Billing notifications by type and status",
			},
			[]string{"type", "status"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WebhookEventsTotal,
		m.ChargeAttemptsTotal,
		m.SweepDuration,
		m.SweepLastRunSeconds,
		m.OrderSettlementTotal,
		m.NotificationsTotal,
	)

	return m
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// WebhookEvent records a processed callback.
func (m *Metrics) WebhookEvent(provider, kind, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(provider, kind, outcome).Inc()
}

// ChargeAttempt records the terminal outcome of one recurring charge attempt.
func (m *Metrics) ChargeAttempt(outcome string) {
	if m == nil {
		return
	}
	m.ChargeAttemptsTotal.WithLabelValues(outcome).Inc()
}

// SweepCompleted records a finished sweep.
func (m *Metrics) SweepCompleted(elapsed time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(elapsed.Seconds())
	m.SweepLastRunSeconds.Set(float64(finishedAt.Unix()))
}

// OrderSettlement records a settlement outcome.
func (m *Metrics) OrderSettlement(provider, outcome string) {
	if m == nil {
		return
	}
	m.OrderSettlementTotal.WithLabelValues(provider, outcome).Inc()
}

// Notification records a notification delivery attempt.
func (m *Metrics) Notification(eventType, status string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(eventType, status).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
