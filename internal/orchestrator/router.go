package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/correx/correx/internal/input"
	"github.com/correx/correx/internal/keybuf"
	"github.com/correx/correx/internal/trigger"
	"github.com/correx/correx/pkg/types"
)

// Triggers holds the chords the router reacts to.
type Triggers struct {
	// Correct starts a correction round.
	Correct trigger.Trigger
	// Dictate toggles the dictation loop.
	Dictate trigger.Trigger
	// Clear empties the focused window's buffer. Zero disables it.
	Clear trigger.Trigger
}

// Router consumes the keystroke stream, normalizes each press into a
// chord, and dispatches to the correction and dictation machines. Blocking
// work (generation, replacement, recognition) always runs on background
// goroutines; the event loop itself only normalizes and records.
type Router struct {
	source    input.Source
	corrector *Corrector
	dictation *Dictation
	buf       *keybuf.Buffer
	triggers  atomic.Pointer[Triggers] // swapped atomically, read on the hook thread
	log       *slog.Logger
}

// RouterOption configures a [Router].
type RouterOption func(*Router)

// WithRouterLogger sets the logger. Defaults to [slog.Default].
func WithRouterLogger(log *slog.Logger) RouterOption {
	return func(r *Router) { r.log = log }
}

// NewRouter wires the keystroke source to the two machines.
func NewRouter(source input.Source, corrector *Corrector, dictation *Dictation, buf *keybuf.Buffer, triggers Triggers, opts ...RouterOption) *Router {
	r := &Router{
		source:    source,
		corrector: corrector,
		dictation: dictation,
		buf:       buf,
		log:       slog.Default().With("component", "router"),
	}
	r.triggers.Store(&triggers)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetTriggers swaps the trigger chords. Safe to call while the router is
// running; the hook thread picks up the new set on its next event.
func (r *Router) SetTriggers(triggers Triggers) {
	r.triggers.Store(&triggers)
	r.log.Info("trigger chords updated",
		"correct", triggers.Correct.String(),
		"dictate", triggers.Dictate.String(),
		"clear", triggers.Clear.String())
}

// Run installs the swallow decision, starts the keystroke tap, and pumps
// events until ctx is canceled or the source closes. A tap that cannot be
// installed is fatal and returned to the caller.
func (r *Router) Run(ctx context.Context) error {
	r.source.SetInterceptor(r.intercept)
	if err := r.source.Start(ctx); err != nil {
		return fmt.Errorf("orchestrator: start keystroke source: %w", err)
	}
	defer func() {
		if err := r.source.Stop(); err != nil {
			r.log.Warn("keystroke source stop failed", "error", err)
		}
		r.corrector.Stop()
		r.dictation.Stop()
	}()

	triggers := r.triggers.Load()
	r.log.Info("event router running",
		"correct", triggers.Correct.String(),
		"dictate", triggers.Dictate.String(),
		"clear", triggers.Clear.String())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-r.source.Events():
			if !ok {
				return nil
			}
			r.dispatch(ctx, ev)
		}
	}
}

// intercept decides on the hook thread whether the focused application
// should see the event. Trigger chords and, while navigating, the cycle
// keys are swallowed; everything else passes through.
func (r *Router) intercept(ev types.KeyEvent) bool {
	if !ev.Pressed {
		return false
	}
	t := trigger.Normalize(trigger.RawModifiers(ev.Modifiers), ev.Key)
	if t.Zero() {
		return false
	}
	triggers := r.triggers.Load()
	if t == triggers.Correct || t == triggers.Dictate {
		return true
	}
	if !triggers.Clear.Zero() && t == triggers.Clear {
		return true
	}
	if r.corrector.Navigating() && isNavigationKey(t) {
		return true
	}
	return false
}

func (r *Router) dispatch(ctx context.Context, ev types.KeyEvent) {
	if !ev.Pressed {
		return
	}

	t := trigger.Normalize(trigger.RawModifiers(ev.Modifiers), ev.Key)
	triggers := r.triggers.Load()
	switch {
	case !t.Zero() && t == triggers.Correct:
		go r.corrector.Trigger(ctx)
	case !t.Zero() && t == triggers.Dictate:
		go r.dictation.Toggle(ctx)
	case !t.Zero() && !triggers.Clear.Zero() && t == triggers.Clear:
		r.buf.Clear(r.source.ActiveWindow())
	case r.corrector.Navigating() && isNavigationKey(t):
		go r.corrector.Navigate(ctx, navigationDelta(t))
	default:
		r.corrector.HandleKey(ev)
	}
}

// isNavigationKey reports whether the bare chord cycles candidates.
func isNavigationKey(t trigger.Trigger) bool {
	if t.Ctrl || t.Shift || t.Alt {
		return false
	}
	return t.Key == "left" || t.Key == "right" || t.Key == "up" || t.Key == "down"
}

func navigationDelta(t trigger.Trigger) int {
	if t.Key == "left" || t.Key == "up" {
		return -1
	}
	return 1
}
