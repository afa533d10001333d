package resilience

import (
	"context"
	"errors"

	"github.com/correx/correx/pkg/audio"
	"github.com/correx/correx/pkg/provider/speech"
)

// SpeechChain implements [speech.Engine] with automatic failover across an
// ordered engine chain (cloud engine first, offline engines after). Each
// engine has its own circuit breaker; a recognition miss advances the
// chain without charging the breaker, since an engine that heard nothing
// is not broken.
type SpeechChain struct {
	group *FallbackGroup[speech.Engine]
}

var _ speech.Engine = (*SpeechChain)(nil)

// NewSpeechChain creates a chain with primary as the preferred engine.
func NewSpeechChain(primary speech.Engine, cfg BreakerConfig) *SpeechChain {
	return &SpeechChain{
		group: NewFallbackGroup(primary, primary.Name(), FallbackConfig{
			Breaker: cfg,
			IsMiss: func(err error) bool {
				return errors.Is(err, speech.ErrNotRecognized)
			},
		}),
	}
}

// AddFallback registers an additional engine at the end of the chain.
func (c *SpeechChain) AddFallback(engine speech.Engine) {
	c.group.AddFallback(engine.Name(), engine)
}

// Name implements speech.Engine.
func (c *SpeechChain) Name() string { return "chain" }

// Recognize implements speech.Engine, folding the clip through the chain.
func (c *SpeechChain) Recognize(ctx context.Context, clip audio.Clip) (string, error) {
	return ExecuteWithResult(c.group, func(e speech.Engine) (string, error) {
		return e.Recognize(ctx, clip)
	})
}
