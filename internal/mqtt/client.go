package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/logger"
	"github.com/tphakala/qcline/internal/observability/metrics"
)

// client implements the Client interface on top of paho.
type client struct {
	config          Config
	internalClient  paho.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	metrics         *metrics.MQTTMetrics
}

// NewClient creates a new MQTT client. m may be nil.
func NewClient(config Config, m *metrics.MQTTMetrics) Client {
	return &client{config: config, metrics: m}
}

func mqttError(err error, op string) *errors.ErrorBuilder {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTConnection).
		Context("operation", op)
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago", since).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil || u.Hostname() == "" {
		if err == nil {
			err = errors.NewStd("missing host")
		}
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryValidation).
			Context("broker", c.config.Broker).
			Build()
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return mqttError(err, "resolve").Context("host", host).Build()
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return mqttError(ctx.Err(), "connect").Build()
	}
	if err := token.Error(); err != nil {
		if c.metrics != nil {
			c.metrics.UpdateConnectionStatus(false)
		}
		return mqttError(err, "connect").Build()
	}

	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
	return nil
}

// Publish sends payload to topic and waits for the broker acknowledgement.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	start := time.Now()
	timeout := c.config.PublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	token := c.internalClient.Publish(topic, c.config.QoS, c.config.Retain, payload)
	if !token.WaitTimeout(timeout) {
		c.recordPublish(metrics.PublishTimeout, payload, start)
		return errors.Newf("publish timeout").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Timing("publish", timeout).
			Build()
	}
	if err := token.Error(); err != nil {
		c.recordPublish(metrics.PublishFailed, payload, start)
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	c.recordPublish(metrics.PublishDelivered, payload, start)
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds())) //nolint:gosec // small positive duration
		if c.metrics != nil {
			c.metrics.UpdateConnectionStatus(false)
		}
	}
}

func (c *client) onConnect(_ paho.Client) {
	log.Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	log.Warn("connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	if c.metrics != nil {
		c.metrics.RecordConnectionLost()
	}
}

func (c *client) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	log.Debug("reconnecting to MQTT broker", logger.String("broker", c.config.Broker))
	if c.metrics != nil {
		c.metrics.RecordReconnect()
	}
}

func (c *client) recordPublish(result string, payload []byte, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordPublish(result, len(payload), time.Since(start))
	}
}
