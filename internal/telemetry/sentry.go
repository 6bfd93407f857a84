// Package telemetry provides opt-in, privacy-filtered error reporting to
// Sentry.
package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/qcline/internal/buildinfo"
	"github.com/tphakala/qcline/internal/conf"
	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/logger"
	"github.com/tphakala/qcline/internal/privacy"
)

var (
	log         = logger.Global().Module("telemetry")
	initialized atomic.Bool
)

// Option adjusts the Sentry client options.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// Init initializes Sentry if it is enabled in settings and wires the
// errors package reporter. With Sentry disabled reporting stays off.
func Init(settings *conf.Settings, info *buildinfo.Context, opts ...Option) error {
	if !settings.Sentry.Enabled {
		errors.SetTelemetryReporter(nil)
		log.Debug("error reporting disabled")
		return nil
	}

	options := sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		Environment:      settings.Sentry.Environment,
		SampleRate:       settings.Sentry.SampleRate,
		Release:          info.Release(),
		AttachStacktrace: false,
		ServerName:       "",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := sentry.Init(options); err != nil {
		return fmt.Errorf("sentry initialization failed: %w", privacy.WrapError(err))
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("run_id", info.GetRunID())
		scope.SetTag("build_date", info.GetBuildDate())
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized.Store(true)

	log.Info("error reporting enabled",
		logger.String("environment", settings.Sentry.Environment),
		logger.String("release", info.Release()))
	return nil
}

// applyPrivacyFilters strips host identity and scrubs URLs from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}
	return event
}

// Flush waits for queued events to be sent. It is a no-op when Sentry was
// never initialized.
func Flush(timeout time.Duration) bool {
	if !initialized.Load() {
		return true
	}
	return sentry.Flush(timeout)
}

// Shutdown disables reporting and flushes pending events.
func Shutdown(timeout time.Duration) {
	errors.SetTelemetryReporter(nil)
	if !Flush(timeout) {
		log.Warn("timed out flushing error reports", logger.Duration("timeout", timeout))
	}
	initialized.Store(false)
}
