package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/qcline/internal/classifier"
	"github.com/tphakala/qcline/internal/line"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockConsumer implements AlarmConsumer for testing
type mockConsumer struct {
	name         string
	failWith     error
	panics       bool
	processDelay time.Duration
	block        chan struct{}

	count  atomic.Int32
	mu     sync.Mutex
	events []AlarmEvent
}

func (m *mockConsumer) Name() string { return m.name }

func (m *mockConsumer) ProcessAlarm(event AlarmEvent) error {
	if m.block != nil {
		<-m.block
	}
	if m.processDelay > 0 {
		time.Sleep(m.processDelay)
	}
	if m.panics {
		panic("boom")
	}

	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	m.count.Add(1)

	return m.failWith
}

func (m *mockConsumer) Events() []AlarmEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AlarmEvent(nil), m.events...)
}

func alarm(i int) line.Alarm {
	return line.Alarm{
		ID:       fmt.Sprintf("alarm-%d", i),
		Lane:     "L1",
		ItemID:   line.ItemID(i),
		Kind:     classifier.VerdictOverHeight,
		Severity: line.SeverityMedium,
	}
}

func TestBusDeliversToAllConsumers(t *testing.T) {
	bus := New(&Config{BufferSize: 100, Workers: 2, Source: "line-a"})
	t.Cleanup(func() { _ = bus.Shutdown(time.Second) })

	a := &mockConsumer{name: "a"}
	b := &mockConsumer{name: "b"}
	require.NoError(t, bus.RegisterConsumer(a))
	require.NoError(t, bus.RegisterConsumer(b))

	for i := range 10 {
		bus.PublishAlarm(alarm(i))
	}

	require.Eventually(t, func() bool {
		return a.count.Load() == 10 && b.count.Load() == 10
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "line-a", a.Events()[0].Source)
	stats := bus.Stats()
	assert.Equal(t, uint64(10), stats.EventsReceived)
	assert.Equal(t, uint64(20), stats.EventsProcessed)
	assert.Zero(t, stats.EventsDropped)
}

func TestBusRejectsDuplicateConsumer(t *testing.T) {
	bus := New(nil)
	t.Cleanup(func() { _ = bus.Shutdown(time.Second) })

	require.NoError(t, bus.RegisterConsumer(&mockConsumer{name: "mqtt"}))
	assert.Error(t, bus.RegisterConsumer(&mockConsumer{name: "mqtt"}))
}

func TestTryPublishWithoutConsumers(t *testing.T) {
	bus := New(nil)
	t.Cleanup(func() { _ = bus.Shutdown(time.Second) })

	assert.False(t, bus.TryPublish(AlarmEvent{Alarm: alarm(1)}))
	assert.Zero(t, bus.Stats().EventsReceived)
}

func TestTryPublishNeverBlocks(t *testing.T) {
	bus := New(&Config{BufferSize: 2, Workers: 1})
	release := make(chan struct{})
	slow := &mockConsumer{name: "slow", block: release}
	require.NoError(t, bus.RegisterConsumer(slow))

	start := time.Now()
	accepted := 0
	for i := range 50 {
		if bus.TryPublish(AlarmEvent{Alarm: alarm(i)}) {
			accepted++
		}
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// One event may sit in the blocked worker and two in the buffer
	assert.LessOrEqual(t, accepted, 3)
	assert.Equal(t, uint64(50-accepted), bus.Stats().EventsDropped)

	close(release)
	require.NoError(t, bus.Shutdown(2*time.Second))
	assert.Equal(t, int32(accepted), slow.count.Load(), "buffered events are drained on shutdown")
}

func TestConsumerFailuresAreIsolated(t *testing.T) {
	bus := New(&Config{BufferSize: 10, Workers: 1})
	t.Cleanup(func() { _ = bus.Shutdown(time.Second) })

	panicky := &mockConsumer{name: "panicky", panics: true}
	failing := &mockConsumer{name: "failing", failWith: fmt.Errorf("broker down")}
	healthy := &mockConsumer{name: "healthy"}
	require.NoError(t, bus.RegisterConsumer(panicky))
	require.NoError(t, bus.RegisterConsumer(failing))
	require.NoError(t, bus.RegisterConsumer(healthy))

	require.True(t, bus.TryPublish(AlarmEvent{Alarm: alarm(1)}))

	require.Eventually(t, func() bool { return healthy.count.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return bus.Stats().ConsumerErrors == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), bus.Stats().EventsProcessed)
}

func TestShutdownIsIdempotentAndStopsPublishing(t *testing.T) {
	bus := New(nil)
	require.NoError(t, bus.RegisterConsumer(&mockConsumer{name: "c"}))

	require.NoError(t, bus.Shutdown(time.Second))
	require.NoError(t, bus.Shutdown(time.Second))

	assert.False(t, bus.TryPublish(AlarmEvent{Alarm: alarm(1)}))
	assert.Error(t, bus.RegisterConsumer(&mockConsumer{name: "late"}))

	var nilBus *Bus
	assert.False(t, nilBus.TryPublish(AlarmEvent{}))
	assert.NoError(t, nilBus.Shutdown(time.Second))
}

func TestShutdownTimeout(t *testing.T) {
	bus := New(&Config{BufferSize: 1, Workers: 1})
	release := make(chan struct{})
	require.NoError(t, bus.RegisterConsumer(&mockConsumer{name: "stuck", block: release}))
	require.True(t, bus.TryPublish(AlarmEvent{Alarm: alarm(1)}))

	assert.Error(t, bus.Shutdown(20*time.Millisecond))

	close(release)
	// Let the worker exit before goleak runs
	bus.wg.Wait()
}
