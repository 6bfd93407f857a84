// Package notification forwards line alarms to push services (chat,
// e-mail, webhooks) through shoutrrr.
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/qcline/internal/conf"
	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/events"
	"github.com/tphakala/qcline/internal/line"
	"github.com/tphakala/qcline/internal/logger"
	"github.com/tphakala/qcline/internal/observability/metrics"
)

// Suppression reasons reported to metrics.
const (
	suppressedSeverity  = "severity"
	suppressedDuplicate = "duplicate"
	suppressedRateLimit = "rate_limit"
	suppressedCircuit   = "circuit_open"
)

// Config controls which alarms become notifications.
type Config struct {
	MinSeverity line.Severity
	RateLimit   int // notifications per minute, 0 disables limiting
	Timeout     time.Duration
	Dedup       *events.DeduplicationConfig
	Breaker     CircuitBreakerConfig
}

// ConfigFromSettings maps notification settings onto a Config.
func ConfigFromSettings(s *conf.NotificationSettings) Config {
	return Config{
		MinSeverity: line.Severity(s.MinSeverity),
		RateLimit:   s.RateLimit,
		Timeout:     s.Timeout,
		Dedup:       events.DefaultDeduplicationConfig(),
		Breaker:     DefaultCircuitBreakerConfig(),
	}
}

// Notifier is an event bus consumer that pushes qualifying alarms.
type Notifier struct {
	config  Config
	sender  Sender
	limiter *rate.Limiter
	dedup   *events.AlarmDeduplicator
	breaker *CircuitBreaker
	metrics *metrics.NotificationMetrics
}

var _ events.AlarmConsumer = (*Notifier)(nil)

// NewNotifier creates a notifier. m may be nil.
func NewNotifier(config Config, sender Sender, m *metrics.NotificationMetrics) *Notifier {
	if config.MinSeverity == "" {
		config.MinSeverity = line.SeverityHigh
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	n := &Notifier{
		config:  config,
		sender:  sender,
		dedup:   events.NewAlarmDeduplicator(config.Dedup),
		metrics: m,
	}
	if config.RateLimit > 0 {
		perSecond := rate.Limit(float64(config.RateLimit) / 60)
		n.limiter = rate.NewLimiter(perSecond, config.RateLimit)
	}
	n.breaker = NewCircuitBreaker(config.Breaker, func(s CircuitState) {
		if n.metrics != nil {
			n.metrics.SetCircuitState(int(s))
		}
	})
	return n
}

// Name implements events.AlarmConsumer.
func (n *Notifier) Name() string { return "notification" }

// ProcessAlarm implements events.AlarmConsumer. Filtered alarms are not
// errors.
func (n *Notifier) ProcessAlarm(event events.AlarmEvent) error {
	if event.Severity.Rank() < n.config.MinSeverity.Rank() {
		n.suppress(suppressedSeverity)
		return nil
	}
	if !n.dedup.ShouldProcess(event) {
		n.suppress(suppressedDuplicate)
		return nil
	}
	if n.limiter != nil && !n.limiter.Allow() {
		n.suppress(suppressedRateLimit)
		log.Debug("notification rate limited", logger.String("alarm_id", event.ID))
		return nil
	}

	title, body := Render(event)

	ctx, cancel := context.WithTimeout(context.Background(), n.config.Timeout)
	defer cancel()

	start := time.Now()
	err := n.breaker.Call(ctx, func(ctx context.Context) error {
		return n.sender.Send(ctx, title, body)
	})
	if errors.Is(err, ErrCircuitBreakerOpen) {
		n.suppress(suppressedCircuit)
		return nil
	}

	if n.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
			n.metrics.RecordDeliveryError(string(errors.CategoryNotification))
		}
		n.metrics.RecordDelivery(status, time.Since(start))
	}
	if err != nil {
		return err
	}

	log.Info("alarm notification sent",
		logger.String("alarm_id", event.ID),
		logger.String("lane", event.Lane),
		logger.String("severity", string(event.Severity)))
	return nil
}

func (n *Notifier) suppress(reason string) {
	if n.metrics != nil {
		n.metrics.RecordSuppressed(reason)
	}
}

// Render builds the notification title and body for an alarm.
func Render(event events.AlarmEvent) (title, body string) {
	title = fmt.Sprintf("[%s] %s %s", strings.ToUpper(string(event.Severity)), event.Lane, event.Kind)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", event.Message)
	fmt.Fprintf(&b, "Item %d (%s) routed to %s at t=%.1fs", event.ItemID, event.Profile, event.Bin, event.SimTime)
	if event.Source != "" {
		fmt.Fprintf(&b, " on %s", event.Source)
	}
	return title, b.String()
}
