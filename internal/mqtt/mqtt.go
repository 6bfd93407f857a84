// Package mqtt publishes line alarms to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/tphakala/qcline/internal/conf"
	"github.com/tphakala/qcline/internal/logger"
)

// Client defines the MQTT operations the alarm publisher needs.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected returns true if the client is currently connected.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	Topic             string // base topic; alarms go to <Topic>/alarms/<lane>
	QoS               byte
	Retain            bool
	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// Package-level logger for MQTT related events
var log = logger.Global().Module("mqtt")

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		Topic:             "qcline",
		QoS:               1,
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// ConfigFromSettings maps MQTT settings onto a client Config.
func ConfigFromSettings(settings *conf.Settings) Config {
	cfg := DefaultConfig()
	m := settings.MQTT

	cfg.Broker = m.Broker
	cfg.ClientID = m.ClientID
	if cfg.ClientID == "" {
		cfg.ClientID = settings.Main.Name
	}
	cfg.Username = m.Username
	cfg.Password = m.Password
	if m.Topic != "" {
		cfg.Topic = m.Topic
	}
	cfg.QoS = byte(m.QoS) //nolint:gosec // validated to 0..2
	cfg.Retain = m.Retain
	if m.Timeout > 0 {
		cfg.PublishTimeout = m.Timeout
	}
	return cfg
}
