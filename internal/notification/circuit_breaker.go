package notification

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/logger"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// StateClosed means requests are flowing normally.
	StateClosed CircuitState = iota
	// StateHalfOpen means one trial request is allowed through.
	StateHalfOpen
	// StateOpen means requests are rejected until the timeout elapses.
	StateOpen
)

// String returns the string representation of CircuitState.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitBreakerOpen is returned while the circuit is open.
var ErrCircuitBreakerOpen = errors.Newf("circuit breaker is open").
	Component("notification").
	Category(errors.CategoryLimit).
	Build()

// CircuitBreakerConfig holds configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	MaxFailures int           // consecutive failures before opening
	Timeout     time.Duration // open duration before a trial request
}

// DefaultCircuitBreakerConfig returns default circuit breaker configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
	}
}

// CircuitBreaker stops calling a failing notification service for a while
// after repeated failures.
type CircuitBreaker struct {
	config          CircuitBreakerConfig
	now             func() time.Time
	onChange        func(CircuitState)
	mu              sync.Mutex
	state           CircuitState
	failures        int
	lastStateChange time.Time
	trialInFlight   bool
}

// NewCircuitBreaker creates a closed circuit breaker. onChange may be nil.
func NewCircuitBreaker(config CircuitBreakerConfig, onChange func(CircuitState)) *CircuitBreaker {
	if config.MaxFailures < 1 {
		config.MaxFailures = DefaultCircuitBreakerConfig().MaxFailures
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultCircuitBreakerConfig().Timeout
	}
	return &CircuitBreaker{
		config:          config,
		now:             time.Now,
		onChange:        onChange,
		lastStateChange: time.Now(),
	}
}

// Call executes fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) >= cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.trialInFlight = true
			return nil
		}
		return ErrCircuitBreakerOpen
	default:
		if cb.trialInFlight {
			return ErrCircuitBreakerOpen
		}
		cb.trialInFlight = true
		return nil
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trialInFlight = false
	if err == nil {
		cb.failures = 0
		cb.setState(StateClosed)
		return
	}
	// Cancellation is not the service's fault
	if errors.Is(err, context.Canceled) {
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.config.MaxFailures {
		cb.setState(StateOpen)
	}
}

// setState transitions the breaker; callers hold cb.mu
func (cb *CircuitBreaker) setState(s CircuitState) {
	if cb.state == s {
		return
	}
	old := cb.state
	cb.state = s
	cb.lastStateChange = cb.now()

	log.Info("circuit breaker state transition",
		logger.String("old_state", old.String()),
		logger.String("new_state", s.String()),
		logger.Int("consecutive_failures", cb.failures))

	if cb.onChange != nil {
		cb.onChange(s)
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
