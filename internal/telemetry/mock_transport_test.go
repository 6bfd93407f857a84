package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// MockTransport implements sentry.Transport for testing
type MockTransport struct {
	mu     sync.RWMutex
	events []*sentry.Event
}

//nolint:gocritic // hugeParam: interface requirement, cannot change signature
func (t *MockTransport) Configure(_ sentry.ClientOptions) {}

func (t *MockTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *MockTransport) Flush(_ time.Duration) bool { return true }

func (t *MockTransport) FlushWithContext(_ context.Context) bool { return true }

func (t *MockTransport) Close() {}

// Events returns a copy of the captured events
func (t *MockTransport) Events() []*sentry.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*sentry.Event(nil), t.events...)
}
