package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/correx/correx/pkg/provider/corrector"
	"github.com/correx/correx/pkg/provider/speech"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	corrector map[string]func(ProviderEntry) (corrector.Provider, error)
	speech    map[string]func(ProviderEntry) (speech.Engine, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		corrector: make(map[string]func(ProviderEntry) (corrector.Provider, error)),
		speech:    make(map[string]func(ProviderEntry) (speech.Engine, error)),
	}
}

// RegisterCorrector registers a correction provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterCorrector(name string, factory func(ProviderEntry) (corrector.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.corrector[name] = factory
}

// RegisterSpeech registers a speech engine factory under name.
func (r *Registry) RegisterSpeech(name string, factory func(ProviderEntry) (speech.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[name] = factory
}

// CreateCorrector instantiates a correction provider using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateCorrector(entry ProviderEntry) (corrector.Provider, error) {
	r.mu.RLock()
	factory, ok := r.corrector[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: corrector/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSpeech instantiates a speech engine using the factory registered
// under entry.Name.
func (r *Registry) CreateSpeech(entry ProviderEntry) (speech.Engine, error) {
	r.mu.RLock()
	factory, ok := r.speech[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: speech/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
