package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Publish outcomes recorded by RecordPublish.
const (
	PublishDelivered = "delivered"
	PublishTimeout   = "timeout"
	PublishFailed    = "error"
)

// MQTTMetrics contains Prometheus metrics for the MQTT alarm publisher.
type MQTTMetrics struct {
	connected      prometheus.Gauge
	lastConnect    prometheus.Gauge
	reconnects     prometheus.Counter
	connectionLost prometheus.Counter
	publishes      *prometheus.CounterVec
	publishLatency prometheus.Histogram
	payloadSize    prometheus.Histogram

	registry *prometheus.Registry
}

// NewMQTTMetrics creates and registers MQTT metrics.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

func (m *MQTTMetrics) initMetrics() {
	m.connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qcline_mqtt_connection_status",
		Help: "1 while connected to the MQTT broker, 0 otherwise",
	})
	m.lastConnect = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qcline_mqtt_last_connect_time_seconds",
		Help: "Unix time of the last successful broker connection",
	})
	m.reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qcline_mqtt_reconnect_attempts_total",
		Help: "Broker reconnection attempts made by the client",
	})
	m.connectionLost = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qcline_mqtt_connection_lost_total",
		Help: "Times the broker connection dropped unexpectedly",
	})
	m.publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qcline_mqtt_alarm_publishes_total",
			Help: "Alarm publish attempts by outcome",
		},
		[]string{"result"}, // delivered, timeout, error
	)
	m.publishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qcline_mqtt_publish_latency_seconds",
		Help:    "Time from publish to broker acknowledgement",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	m.payloadSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qcline_mqtt_payload_size_bytes",
		Help:    "Size of delivered alarm payloads",
		Buckets: prometheus.ExponentialBuckets(64, 2, 8),
	})
}

// UpdateConnectionStatus records a connection state change.
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if !connected {
		m.connected.Set(0)
		return
	}
	m.connected.Set(1)
	m.lastConnect.SetToCurrentTime()
}

// RecordReconnect counts a reconnection attempt.
func (m *MQTTMetrics) RecordReconnect() { m.reconnects.Inc() }

// RecordConnectionLost counts an unexpected disconnect.
func (m *MQTTMetrics) RecordConnectionLost() {
	m.connectionLost.Inc()
	m.connected.Set(0)
}

// RecordPublish records one publish attempt. Latency and size are only
// observed for delivered messages.
func (m *MQTTMetrics) RecordPublish(result string, payloadBytes int, latency time.Duration) {
	m.publishes.WithLabelValues(result).Inc()
	if result == PublishDelivered {
		m.publishLatency.Observe(latency.Seconds())
		m.payloadSize.Observe(float64(payloadBytes))
	}
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.connected
	ch <- m.lastConnect
	ch <- m.reconnects
	ch <- m.connectionLost
	m.publishes.Collect(ch)
	ch <- m.publishLatency
	ch <- m.payloadSize
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.connected.Desc()
	ch <- m.lastConnect.Desc()
	ch <- m.reconnects.Desc()
	ch <- m.connectionLost.Desc()
	m.publishes.Describe(ch)
	ch <- m.publishLatency.Desc()
	ch <- m.payloadSize.Desc()
}
