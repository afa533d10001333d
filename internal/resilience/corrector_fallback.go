package resilience

import (
	"context"

	"github.com/correx/correx/pkg/provider/corrector"
)

// CorrectorFallback implements [corrector.Provider] with automatic
// failover across multiple correction backends, each behind its own
// circuit breaker. The candidate generator sees a single provider and
// stays unaware of the failover.
type CorrectorFallback struct {
	group *FallbackGroup[corrector.Provider]
}

var _ corrector.Provider = (*CorrectorFallback)(nil)

// NewCorrectorFallback creates a fallback with primary as the preferred
// backend.
func NewCorrectorFallback(primary corrector.Provider, primaryName string, cfg BreakerConfig) *CorrectorFallback {
	return &CorrectorFallback{
		group: NewFallbackGroup(primary, primaryName, FallbackConfig{Breaker: cfg}),
	}
}

// AddFallback registers an additional correction backend.
func (f *CorrectorFallback) AddFallback(name string, provider corrector.Provider) {
	f.group.AddFallback(name, provider)
}

// Correct implements corrector.Provider.
func (f *CorrectorFallback) Correct(ctx context.Context, req corrector.Request) (string, error) {
	return ExecuteWithResult(f.group, func(p corrector.Provider) (string, error) {
		return p.Correct(ctx, req)
	})
}
