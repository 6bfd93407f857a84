// Package observability provides Prometheus metrics for the qcline simulator.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/qcline/internal/logger"
	"github.com/tphakala/qcline/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry     *prometheus.Registry
	Line         *metrics.LineMetrics
	MQTT         *metrics.MQTTMetrics
	Notification *metrics.NotificationMetrics
	HTTP         *metrics.HTTPMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry,
// together with the Go runtime and process collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	lineMetrics, err := metrics.NewLineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create line metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	notificationMetrics, err := metrics.NewNotificationMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	return &Metrics{
		registry:     registry,
		Line:         lineMetrics,
		MQTT:         mqttMetrics,
		Notification: notificationMetrics,
		HTTP:         httpMetrics,
	}, nil
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promLogger{},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// promLogger routes promhttp errors into the module logger.
type promLogger struct{}

func (promLogger) Println(v ...any) {
	log.Warn("metrics handler error", logger.String("detail", fmt.Sprint(v...)))
}
