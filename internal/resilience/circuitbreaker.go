// Package resilience provides circuit breaker and engine failover
// primitives for the outbound AI and recognition calls.
//
// The central type is [CircuitBreaker], a three-state breaker
// (closed → open → half-open) protecting callers from hammering a backend
// that keeps failing. [FallbackGroup] composes multiple instances of any
// backend type with per-entry breakers so an unhealthy primary is bypassed
// in favour of the next entry in order.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker
// is open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards all calls.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen allows a limited number of probe calls; enough
	// successes close the breaker, any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [CircuitBreaker].
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// MaxFailures is the consecutive failure count that opens the
	// breaker. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 20s.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget in the half-open state. Default: 2.
	HalfOpenMax int
}

// CircuitBreaker implements the three-state breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int
	probeFails  int
}

// NewCircuitBreaker creates a breaker; zero config fields get defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 20 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 2
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
	}
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.settle(err)
	return err
}

// ExecuteIgnoring is like Execute, except errors matching ignore are
// passed through without counting as breaker failures. A recognition miss
// is the expected case here: the engine is healthy, the audio was just
// unintelligible.
func (cb *CircuitBreaker) ExecuteIgnoring(fn func() error, ignore func(error) bool) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	if err != nil && ignore != nil && ignore(err) {
		cb.settle(nil)
		return err
	}
	cb.settle(err)
	return err
}

// admit decides whether a call may proceed, handling the open → half-open
// transition.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeFails = 0
		slog.Info("circuit breaker transitioning to half-open", "name", cb.name)
	case StateHalfOpen:
		if cb.probes >= cb.halfOpenMax {
			return ErrCircuitOpen
		}
	}
	if cb.state == StateHalfOpen {
		cb.probes++
	}
	return nil
}

// settle records a call outcome.
func (cb *CircuitBreaker) settle(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			if cb.probes-cb.probeFails >= cb.halfOpenMax {
				cb.state = StateClosed
				cb.failures = 0
				cb.probes = 0
				cb.probeFails = 0
				slog.Info("circuit breaker closed after successful probes", "name", cb.name)
			}
			return
		}
		cb.failures = 0
		return
	}

	cb.lastFailure = time.Now()
	if cb.state == StateHalfOpen {
		cb.probeFails++
		cb.state = StateOpen
		cb.failures = cb.maxFailures
		slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)
		return
	}
	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		slog.Warn("circuit breaker opened",
			"name", cb.name, "consecutive_failures", cb.failures)
	}
}

// State returns the breaker's current state. An open breaker whose reset
// timeout has elapsed reports half-open; the actual transition happens on
// the next Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to closed, clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeFails = 0
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
