package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/correx/correx/internal/observe"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or
// has an open circuit breaker.
var ErrAllFailed = errors.New("all backends failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// Breaker configures the per-entry circuit breaker.
	Breaker BreakerConfig

	// IsMiss, when non-nil, marks errors that mean "this backend is
	// healthy but produced nothing usable". A miss moves on to the next
	// entry without charging the breaker.
	IsMiss func(error) bool

	// Metrics receives per-backend error counts. Nil uses
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// fallbackEntry pairs a backend with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the
// same backend type, tried in registration order. It is safe for
// concurrent use once assembled; Add calls must happen before Execute.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.add(primaryName, primary)
	return fg
}

// AddFallback appends a backend tried after all earlier entries.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.add(name, fallback)
}

func (fg *FallbackGroup[T]) add(name string, value T) {
	cbCfg := fg.cfg.Breaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Names returns the entry names in order.
func (fg *FallbackGroup[T]) Names() []string {
	out := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		out[i] = e.name
	}
	return out
}

// ExecuteWithResult folds fn over the group's entries until one succeeds.
// Breaker-open entries are skipped; miss errors advance the fold without
// tripping the entry's breaker. Returns [ErrAllFailed] wrapping the last
// error when the whole chain fails.
//
// This is a package-level function because Go does not support
// method-level type parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.ExecuteIgnoring(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		}, fg.cfg.IsMiss)
		if err == nil {
			return result, nil
		}
		lastErr = err
		switch {
		case errors.Is(err, ErrCircuitOpen):
			fg.cfg.Metrics.RecordProviderError(context.Background(), entry.name, "circuit_open")
			slog.Debug("skipping backend (circuit open)", "backend", entry.name)
		case fg.cfg.IsMiss != nil && fg.cfg.IsMiss(err):
			slog.Debug("backend miss, trying next", "backend", entry.name)
		default:
			fg.cfg.Metrics.RecordProviderError(context.Background(), entry.name, "request")
			slog.Warn("backend failed, trying next",
				"backend", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
