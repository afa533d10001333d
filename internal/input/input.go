// Package input captures system-wide keystrokes and drives the focused
// application (clipboard, synthetic key chords, focused-control text).
//
// The capture side is a platform [Source] delivering [types.KeyEvent]s; the
// drive side is [Automation], which satisfies the replacement engine's
// automation contract. Only Windows has a real Source today; other
// platforms get [ErrUnsupported] stubs so the rest of the daemon still
// builds and tests everywhere.
package input

import (
	"context"
	"errors"

	"github.com/correx/correx/pkg/types"
)

// ErrUnsupported is returned by platform operations that have no
// implementation for the current OS.
var ErrUnsupported = errors.New("input: not supported on this platform")

// Interceptor inspects a key event before it reaches the focused
// application. Returning true swallows the event so the application never
// sees it; the event is still delivered on the Source's channel either way.
type Interceptor func(types.KeyEvent) bool

// Source is a system-wide keystroke tap.
//
// Start installs the tap and begins delivering events on Events. Events
// the Source itself injects (synthetic paste, select-all) are never
// reported back; only physical keystrokes appear on the channel.
type Source interface {
	Start(ctx context.Context) error
	Stop() error

	// Events delivers key presses and releases. The channel is closed
	// after Stop returns.
	Events() <-chan types.KeyEvent

	// SetInterceptor installs the swallow decision. A nil interceptor
	// passes everything through.
	SetInterceptor(fn Interceptor)

	// ActiveWindow identifies the currently focused top-level window,
	// or zero when none can be determined.
	ActiveWindow() types.WindowID

	// WindowExists reports whether the window is still alive.
	WindowExists(id types.WindowID) bool
}

// NewSource returns the keystroke tap for the current platform.
func NewSource(opts ...SourceOption) Source {
	return newPlatformSource(opts...)
}

// SourceOption configures a platform Source.
type SourceOption func(*sourceConfig)

type sourceConfig struct {
	bufferSize int
}

// WithEventBuffer sets the event channel capacity. Events are dropped,
// not blocked on, when the consumer falls behind. Default: 256.
func WithEventBuffer(n int) SourceOption {
	return func(c *sourceConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

func defaultSourceConfig() sourceConfig {
	return sourceConfig{bufferSize: 256}
}
