// Package mock provides a scriptable keystroke source for tests.
package mock

import (
	"context"
	"sync"

	"github.com/correx/correx/internal/input"
	"github.com/correx/correx/pkg/types"
)

// Source is a test double for [input.Source]. Tests push events with
// [Source.Emit]; the interceptor runs exactly as the platform hook would,
// and swallowed events are recorded in Swallowed.
type Source struct {
	mu          sync.Mutex
	events      chan types.KeyEvent
	interceptor input.Interceptor
	started     bool
	stopped     bool

	// Active is returned by ActiveWindow.
	Active types.WindowID
	// Dead lists windows WindowExists must deny.
	Dead map[types.WindowID]bool
	// Swallowed records events the interceptor chose to swallow.
	Swallowed []types.KeyEvent
}

func New() *Source {
	return &Source{
		events: make(chan types.KeyEvent, 64),
		Dead:   make(map[types.WindowID]bool),
	}
}

var _ input.Source = (*Source)(nil)

func (s *Source) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.events)
	}
	return nil
}

func (s *Source) Events() <-chan types.KeyEvent { return s.events }

func (s *Source) SetInterceptor(fn input.Interceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interceptor = fn
}

func (s *Source) ActiveWindow() types.WindowID { return s.Active }

func (s *Source) WindowExists(id types.WindowID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return id != 0 && !s.Dead[id]
}

// Emit runs the event through the interceptor and delivers it, mirroring
// the platform hook's behavior. It reports whether the event was
// swallowed.
func (s *Source) Emit(ev types.KeyEvent) bool {
	s.mu.Lock()
	fn := s.interceptor
	s.mu.Unlock()

	swallow := false
	if fn != nil {
		swallow = fn(ev)
	}
	if swallow {
		s.mu.Lock()
		s.Swallowed = append(s.Swallowed, ev)
		s.mu.Unlock()
	}
	s.events <- ev
	return swallow
}
