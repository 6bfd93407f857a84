package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/events"
	"github.com/tphakala/qcline/internal/logger"
)

// AlarmMessage is the JSON payload published for every alarm.
type AlarmMessage struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	SimTime   float64   `json:"sim_time"`
	Lane      string    `json:"lane"`
	Profile   string    `json:"profile"`
	ItemID    uint64    `json:"item_id"`
	Verdict   string    `json:"verdict"`
	Bin       string    `json:"bin"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
}

// Publisher forwards alarms from the event bus to the broker. It connects
// lazily on the first alarm and relies on paho's auto reconnect afterwards.
type Publisher struct {
	client Client
	topic  string
}

var _ events.AlarmConsumer = (*Publisher)(nil)

// NewPublisher creates a publisher writing below baseTopic.
func NewPublisher(client Client, baseTopic string) *Publisher {
	return &Publisher{client: client, topic: strings.TrimSuffix(baseTopic, "/")}
}

// Name implements events.AlarmConsumer.
func (p *Publisher) Name() string { return "mqtt" }

// Topic returns the topic alarms for lane are published to.
func (p *Publisher) Topic(lane string) string {
	return p.topic + "/alarms/" + lane
}

// ProcessAlarm implements events.AlarmConsumer.
func (p *Publisher) ProcessAlarm(event events.AlarmEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultConfig().ConnectTimeout)
	defer cancel()

	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(AlarmMessage{
		ID:        event.ID,
		Source:    event.Source,
		Timestamp: event.Timestamp,
		SimTime:   event.SimTime,
		Lane:      event.Lane,
		Profile:   event.Profile,
		ItemID:    uint64(event.ItemID),
		Verdict:   string(event.Kind),
		Bin:       string(event.Bin),
		Severity:  string(event.Severity),
		Message:   event.Message,
	})
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("alarm_id", event.ID).
			Build()
	}

	topic := p.Topic(event.Lane)
	if err := p.client.Publish(ctx, topic, payload); err != nil {
		return err
	}

	log.Debug("alarm published",
		logger.String("topic", topic),
		logger.String("alarm_id", event.ID))
	return nil
}
