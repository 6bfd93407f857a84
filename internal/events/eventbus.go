package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/line"
	"github.com/tphakala/qcline/internal/logger"
)

// Config holds event bus configuration
type Config struct {
	BufferSize int
	Workers    int
	Source     string // stamped on every event
}

// DefaultConfig returns the default event bus configuration
func DefaultConfig() *Config {
	return &Config{
		BufferSize: 1000,
		Workers:    2,
		Source:     "qcline",
	}
}

// Bus provides asynchronous alarm processing with non-blocking publish.
type Bus struct {
	eventChan chan AlarmEvent
	workers   int
	source    string

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	stopped atomic.Bool
	mu      sync.Mutex

	consumers []AlarmConsumer

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	errCount  atomic.Uint64

	log logger.Logger
}

// New creates a bus. Workers start when the first consumer registers.
func New(config *Config) *Bus {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		eventChan: make(chan AlarmEvent, config.BufferSize),
		workers:   config.Workers,
		source:    config.Source,
		ctx:       ctx,
		cancel:    cancel,
		log:       logger.Global().Module("events"),
	}

	b.log.Info("event bus initialized",
		logger.Int("buffer_size", config.BufferSize),
		logger.Int("workers", config.Workers))

	return b
}

// RegisterConsumer adds a consumer. Names must be unique.
func (b *Bus) RegisterConsumer(consumer AlarmConsumer) error {
	if b == nil {
		return fmt.Errorf("event bus not initialized")
	}
	if b.stopped.Load() {
		return errors.Newf("event bus is shut down").
			Component("events").
			Category(errors.CategoryState).
			Build()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.consumers {
		if existing.Name() == consumer.Name() {
			return errors.Newf("consumer %s already registered", consumer.Name()).
				Component("events").
				Category(errors.CategoryValidation).
				Context("consumer", consumer.Name()).
				Build()
		}
	}

	b.consumers = append(b.consumers, consumer)
	b.log.Info("registered event consumer", logger.String("consumer", consumer.Name()))

	if len(b.consumers) == 1 {
		b.start()
	}

	return nil
}

// PublishAlarm lets the bus act as the line engine's alarm publisher.
func (b *Bus) PublishAlarm(a line.Alarm) {
	b.TryPublish(AlarmEvent{Alarm: a, Source: b.source})
}

// TryPublish queues an event without blocking. It returns false when the
// event was dropped because the buffer is full or nobody is listening.
func (b *Bus) TryPublish(event AlarmEvent) bool {
	if b == nil || !b.running.Load() {
		return false
	}

	select {
	case b.eventChan <- event:
		b.received.Add(1)
		return true
	default:
		b.dropped.Add(1)
		b.log.Debug("event dropped due to full buffer",
			logger.String("lane", event.Lane),
			logger.String("kind", string(event.Kind)))
		return false
	}
}

// start begins the worker goroutines; callers hold b.mu
func (b *Bus) start() {
	if b.running.Swap(true) {
		return
	}

	b.log.Debug("starting event bus workers", logger.Int("count", b.workers))
	for i := range b.workers {
		b.wg.Add(1)
		go b.worker(i)
	}
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()

	log := b.log.With(logger.Int("worker_id", id))
	for {
		select {
		case <-b.ctx.Done():
			b.drain(log)
			return
		case event := <-b.eventChan:
			b.processEvent(event, log)
		}
	}
}

// drain processes whatever is still buffered after shutdown began
func (b *Bus) drain(log logger.Logger) {
	for {
		select {
		case event := <-b.eventChan:
			b.processEvent(event, log)
		default:
			return
		}
	}
}

func (b *Bus) processEvent(event AlarmEvent, log logger.Logger) {
	b.mu.Lock()
	consumers := make([]AlarmConsumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.Unlock()

	for _, consumer := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.errCount.Add(1)
					log.Error("consumer panicked",
						logger.String("consumer", consumer.Name()),
						logger.Any("panic", r),
						logger.String("alarm_id", event.ID))
				}
			}()

			if err := consumer.ProcessAlarm(event); err != nil {
				b.errCount.Add(1)
				log.Warn("consumer error",
					logger.String("consumer", consumer.Name()),
					logger.String("alarm_id", event.ID),
					logger.Error(err))
				return
			}
			b.processed.Add(1)
		}()
	}
}

// Shutdown stops accepting events, lets workers drain the buffer and waits
// up to timeout for them to exit.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if b == nil || b.stopped.Swap(true) {
		return nil
	}

	b.log.Info("shutting down event bus", logger.Duration("timeout", timeout))
	b.running.Store(false)
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("event bus shutdown complete")
		return nil
	case <-time.After(timeout):
		return errors.Newf("event bus shutdown timeout exceeded").
			Component("events").
			Category(errors.CategoryTimeout).
			Timing("shutdown", timeout).
			Build()
	}
}

// Stats returns current event bus statistics
func (b *Bus) Stats() Stats {
	if b == nil {
		return Stats{}
	}
	return Stats{
		EventsReceived:  b.received.Load(),
		EventsProcessed: b.processed.Load(),
		EventsDropped:   b.dropped.Load(),
		ConsumerErrors:  b.errCount.Load(),
	}
}
