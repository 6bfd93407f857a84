package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics contains Prometheus metrics for push notification delivery.
type NotificationMetrics struct {
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	DeliveryErrors   *prometheus.CounterVec
	Suppressed       *prometheus.CounterVec // reason: severity, duplicate, rate_limit
	LastSuccessTime  prometheus.Gauge
	CircuitState     prometheus.Gauge // 0 closed, 1 half-open, 2 open

	registry *prometheus.Registry
}

// NewNotificationMetrics creates and registers notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

func (m *NotificationMetrics) initMetrics() {
	m.DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qcline_notification_deliveries_total",
		Help: "Total notification deliveries by status",
	}, []string{"status"})

	m.DeliveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qcline_notification_delivery_duration_seconds",
		Help:    "Time taken to deliver a notification to all targets",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	m.DeliveryErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qcline_notification_delivery_errors_total",
		Help: "Total notification delivery errors by category",
	}, []string{"error_category"})

	m.Suppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qcline_notification_suppressed_total",
		Help: "Alarms not forwarded as notifications, by reason",
	}, []string{"reason"})

	m.LastSuccessTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qcline_notification_last_success_timestamp_seconds",
		Help: "Unix timestamp of the last successful delivery",
	})

	m.CircuitState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qcline_notification_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	})
}

// RecordDelivery records a delivery attempt and its duration.
func (m *NotificationMetrics) RecordDelivery(status string, duration time.Duration) {
	m.DeliveriesTotal.WithLabelValues(status).Inc()
	m.DeliveryDuration.Observe(duration.Seconds())
	if status == "success" {
		m.LastSuccessTime.SetToCurrentTime()
	}
}

// RecordDeliveryError counts a failed delivery.
func (m *NotificationMetrics) RecordDeliveryError(errorCategory string) {
	m.DeliveryErrors.WithLabelValues(errorCategory).Inc()
}

// RecordSuppressed counts an alarm that was filtered out.
func (m *NotificationMetrics) RecordSuppressed(reason string) {
	m.Suppressed.WithLabelValues(reason).Inc()
}

// SetCircuitState records the circuit breaker state.
func (m *NotificationMetrics) SetCircuitState(state int) {
	m.CircuitState.Set(float64(state))
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DeliveriesTotal.Collect(ch)
	ch <- m.DeliveryDuration
	m.DeliveryErrors.Collect(ch)
	m.Suppressed.Collect(ch)
	ch <- m.LastSuccessTime
	ch <- m.CircuitState
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DeliveriesTotal.Describe(ch)
	ch <- m.DeliveryDuration.Desc()
	m.DeliveryErrors.Describe(ch)
	m.Suppressed.Describe(ch)
	ch <- m.LastSuccessTime.Desc()
	ch <- m.CircuitState.Desc()
}
