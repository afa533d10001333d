// Package keybuf maintains per-window keystroke buffers. Each tracked
// window owns a bounded ordered sequence of characters so a correction
// round can read back what the user recently typed into the focused
// surface.
//
// The buffer enforces both a per-window character cap and a cap on the
// number of concurrently tracked windows. Windows beyond the tracking cap
// are evicted least-recently-touched first; buffers whose window no longer
// exists are purged lazily at read time.
//
// Every operation fails silently on an invalid or closed window: this path
// runs on the input event dispatch goroutine and must never block or
// panic. All methods are safe for concurrent use.
package keybuf

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/correx/correx/internal/observe"
	"github.com/correx/correx/pkg/types"
)

// Default capacity limits.
const (
	DefaultMaxChars   = 5000
	DefaultMaxWindows = 10
)

// WindowProbe reports whether a window identifier still refers to a live
// window. The platform input source implements it; tests substitute fakes.
type WindowProbe interface {
	WindowExists(types.WindowID) bool
}

// WindowProbeFunc adapts a function to the [WindowProbe] interface.
type WindowProbeFunc func(types.WindowID) bool

// WindowExists calls f.
func (f WindowProbeFunc) WindowExists(id types.WindowID) bool { return f(id) }

type windowBuffer struct {
	runes   []rune
	touched time.Time
}

// Buffer tracks keystrokes per window with LRU eviction.
type Buffer struct {
	mu         sync.Mutex
	windows    map[types.WindowID]*windowBuffer
	maxChars   int
	maxWindows int
	probe      WindowProbe
	log        *slog.Logger
	metrics    *observe.Metrics
}

// Option configures a [Buffer].
type Option func(*Buffer)

// WithMaxChars overrides the per-window character cap.
func WithMaxChars(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.maxChars = n
		}
	}
}

// WithMaxWindows overrides the tracked-window cap.
func WithMaxWindows(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.maxWindows = n
		}
	}
}

// WithLogger sets the logger used for eviction debug output.
func WithLogger(l *slog.Logger) Option {
	return func(b *Buffer) {
		if l != nil {
			b.log = l
		}
	}
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Buffer) {
		if m != nil {
			b.metrics = m
		}
	}
}

// New creates a Buffer. probe revalidates window identifiers at read time;
// a nil probe treats every non-zero identifier as live.
func New(probe WindowProbe, opts ...Option) *Buffer {
	b := &Buffer{
		windows:    make(map[types.WindowID]*windowBuffer),
		maxChars:   DefaultMaxChars,
		maxWindows: DefaultMaxWindows,
		probe:      probe,
		log:        slog.Default(),
		metrics:    observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RecordRune appends one character to the buffer for id, creating the
// buffer if absent and evicting the least-recently-touched window when the
// tracking cap is exceeded. No-op for the zero window.
func (b *Buffer) RecordRune(id types.WindowID, r rune) {
	if id == 0 || r == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	wb := b.touch(id)
	wb.runes = append(wb.runes, r)
	// Trim lazily with slack so the append path stays O(1) amortized.
	if len(wb.runes) >= 2*b.maxChars {
		wb.runes = append(wb.runes[:0:0], wb.runes[len(wb.runes)-b.maxChars:]...)
	}
}

// RecordBackspace removes the last character of the buffer for id. No-op
// when the buffer is empty or untracked.
func (b *Buffer) RecordBackspace(id types.WindowID) {
	if id == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	wb, ok := b.windows[id]
	if !ok {
		return
	}
	wb.touched = time.Now()
	if len(wb.runes) > 0 {
		wb.runes = wb.runes[:len(wb.runes)-1]
	}
}

// Text returns up to the last maxChars characters recorded for id, capped
// by the buffer's own limit. It returns "" when no buffer exists or the
// window no longer exists; a stale buffer for a destroyed window is purged
// here.
func (b *Buffer) Text(id types.WindowID, maxChars int) string {
	if id == 0 {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	wb, ok := b.windows[id]
	if !ok {
		return ""
	}
	if !b.alive(id) {
		delete(b.windows, id)
		b.metrics.TrackedWindows.Add(context.Background(), -1)
		b.log.Debug("purged buffer for dead window", "window", id)
		return ""
	}
	wb.touched = time.Now()

	runes := wb.runes
	if n := len(runes) - b.maxChars; n > 0 {
		runes = runes[n:]
	}
	if maxChars > 0 && len(runes) > maxChars {
		runes = runes[len(runes)-maxChars:]
	}
	return string(runes)
}

// SetText replaces the buffer contents for id wholesale, truncated to the
// cap. Used by the orchestrators to write back accepted text.
func (b *Buffer) SetText(id types.WindowID, text string) {
	if id == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	wb := b.touch(id)
	runes := []rune(text)
	if len(runes) > b.maxChars {
		runes = runes[len(runes)-b.maxChars:]
	}
	wb.runes = append(wb.runes[:0:0], runes...)
}

// Append adds text to the end of the buffer for id, truncated to the cap.
// Used when dictation injects recognized text at the cursor.
func (b *Buffer) Append(id types.WindowID, text string) {
	if id == 0 || text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	wb := b.touch(id)
	wb.runes = append(wb.runes, []rune(text)...)
	if len(wb.runes) >= 2*b.maxChars {
		wb.runes = append(wb.runes[:0:0], wb.runes[len(wb.runes)-b.maxChars:]...)
	}
}

// Clear empties the buffer for id without removing the tracking entry.
func (b *Buffer) Clear(id types.WindowID) {
	if id == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if wb, ok := b.windows[id]; ok {
		wb.runes = wb.runes[:0]
		wb.touched = time.Now()
	}
}

// Tracked returns the number of currently tracked windows. Intended for
// testing and diagnostics.
func (b *Buffer) Tracked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.windows)
}

// touch returns the buffer for id, creating it and evicting the LRU window
// if needed. Must be called with b.mu held.
func (b *Buffer) touch(id types.WindowID) *windowBuffer {
	wb, ok := b.windows[id]
	if !ok {
		if len(b.windows) >= b.maxWindows {
			b.evictOldest()
		}
		wb = &windowBuffer{runes: make([]rune, 0, 128)}
		b.windows[id] = wb
		b.metrics.TrackedWindows.Add(context.Background(), 1)
	}
	wb.touched = time.Now()
	return wb
}

// evictOldest removes the least-recently-touched window. Must be called
// with b.mu held.
func (b *Buffer) evictOldest() {
	var (
		oldest   types.WindowID
		oldestAt time.Time
		found    bool
	)
	for id, wb := range b.windows {
		if !found || wb.touched.Before(oldestAt) {
			oldest, oldestAt, found = id, wb.touched, true
		}
	}
	if found {
		delete(b.windows, oldest)
		b.metrics.TrackedWindows.Add(context.Background(), -1)
		b.log.Debug("evicted least-recently-used window buffer", "window", oldest)
	}
}

func (b *Buffer) alive(id types.WindowID) bool {
	if b.probe == nil {
		return true
	}
	return b.probe.WindowExists(id)
}
