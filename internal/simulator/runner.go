// Package simulator drives a line.Engine in real time. The runner goroutine
// is the engine's only writer; control operations from other goroutines are
// submitted as commands and readers use the latest published snapshot.
package simulator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/line"
	"github.com/tphakala/qcline/internal/logger"
)

const (
	// DefaultTickRate is used when no tick rate is configured.
	DefaultTickRate = 60
	// DefaultMaxStep bounds a single engine tick, in seconds.
	DefaultMaxStep = 0.05
	// maxFrame bounds the wall time simulated after a stall.
	maxFrame = 0.25
)

// ErrRunnerStarted is returned when Run is called twice.
var ErrRunnerStarted = errors.Newf("simulation runner already started").
	Component("simulator").
	Category(errors.CategoryState).
	Build()

// FrameObserver is told about every published snapshot and how long the
// frame took. LineMetrics satisfies it.
type FrameObserver interface {
	ObserveSnapshot(*line.Snapshot)
	ObserveTick(seconds float64)
}

type command struct {
	fn   func(*line.Engine) error
	done chan error
}

// Runner owns one engine.
type Runner struct {
	id       string
	engine   *line.Engine
	tickRate int
	maxStep  float64
	frames   FrameObserver
	log      logger.Logger

	mu       sync.Mutex // held while the engine is being mutated
	commands chan command
	snapshot atomic.Pointer[line.Snapshot]
	started  atomic.Bool
	done     chan struct{}
}

// Option configures a Runner.
type Option func(*Runner)

// WithTickRate sets the number of frames per second in Run.
func WithTickRate(hz int) Option {
	return func(r *Runner) {
		if hz > 0 {
			r.tickRate = hz
		}
	}
}

// WithMaxStep caps the dt of a single engine tick.
func WithMaxStep(seconds float64) Option {
	return func(r *Runner) {
		if seconds > 0 {
			r.maxStep = seconds
		}
	}
}

// WithFrameObserver reports each frame to o.
func WithFrameObserver(o FrameObserver) Option {
	return func(r *Runner) { r.frames = o }
}

// WithID sets the run id instead of generating one.
func WithID(id string) Option {
	return func(r *Runner) {
		if id != "" {
			r.id = id
		}
	}
}

// New wraps engine and publishes an initial snapshot.
func New(engine *line.Engine, opts ...Option) *Runner {
	r := &Runner{
		id:       uuid.NewString(),
		engine:   engine,
		tickRate: DefaultTickRate,
		maxStep:  DefaultMaxStep,
		commands: make(chan command),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logger.Global().Module("simulator").With(logger.String("run_id", r.id))
	r.snapshot.Store(engine.Snapshot())
	return r
}

// ID identifies this simulation run.
func (r *Runner) ID() string { return r.id }

// Snapshot returns the most recently published snapshot. It must be
// treated as read-only.
func (r *Runner) Snapshot() *line.Snapshot {
	return r.snapshot.Load()
}

// Run advances the engine on a ticker until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.started.Swap(true) {
		return ErrRunnerStarted
	}
	defer close(r.done)

	interval := time.Second / time.Duration(r.tickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info("simulation started",
		logger.Int("tick_rate", r.tickRate),
		logger.Float64("max_step", r.maxStep))

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("simulation stopped", logger.Float64("clock", r.Snapshot().Clock))
			return nil
		case cmd := <-r.commands:
			cmd.done <- r.apply(cmd.fn)
		case now := <-ticker.C:
			dt := min(now.Sub(last).Seconds(), maxFrame)
			last = now
			r.Step(dt)
		}
	}
}

// Do runs fn against the engine between frames and returns its error. When
// the loop is not running fn is applied directly.
func (r *Runner) Do(ctx context.Context, fn func(*line.Engine) error) error {
	if !r.started.Load() {
		return r.apply(fn)
	}

	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case r.commands <- cmd:
	case <-r.done:
		return r.apply(fn)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) apply(fn func(*line.Engine) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := fn(r.engine)
	r.publish()
	return err
}

// Step advances the engine by dt seconds, split into ticks no larger than
// the safe step, spawning after every tick.
func (r *Runner) Step(dt float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	for remaining := dt; remaining > 0; {
		step := min(remaining, r.engine.SafeStep(r.maxStep))
		r.engine.Tick(step)
		if _, err := r.engine.TrySpawnAll(r.engine.Clock()); err != nil {
			r.log.Warn("spawn failed", logger.Error(err))
		}
		remaining -= step
	}

	if r.frames != nil {
		r.frames.ObserveTick(time.Since(start).Seconds())
	}
	r.publish()
}

// publish stores a fresh snapshot; callers hold r.mu
func (r *Runner) publish() {
	snap := r.engine.Snapshot()
	r.snapshot.Store(snap)
	if r.frames != nil {
		r.frames.ObserveSnapshot(snap)
	}
}
