//go:build !windows

package input

import (
	"context"

	"github.com/correx/correx/pkg/types"
)

// stubSource stands in on platforms without a keystroke tap. Start fails
// with [ErrUnsupported]; the window probes degrade to "nothing focused".
type stubSource struct {
	events chan types.KeyEvent
}

func newPlatformSource(opts ...SourceOption) Source {
	cfg := defaultSourceConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &stubSource{events: make(chan types.KeyEvent, cfg.bufferSize)}
}

var _ Source = (*stubSource)(nil)

func (s *stubSource) Start(context.Context) error      { return ErrUnsupported }
func (s *stubSource) Stop() error                      { return nil }
func (s *stubSource) Events() <-chan types.KeyEvent    { return s.events }
func (s *stubSource) SetInterceptor(Interceptor)       {}
func (s *stubSource) ActiveWindow() types.WindowID     { return 0 }
func (s *stubSource) WindowExists(types.WindowID) bool { return false }
