package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/correx/correx/internal/candidate"
	"github.com/correx/correx/internal/history"
	"github.com/correx/correx/internal/keybuf"
	"github.com/correx/correx/internal/observe"
	"github.com/correx/correx/internal/replacer"
	"github.com/correx/correx/pkg/types"
)

// minCorrectionLength is the shortest buffered text worth a round.
const minCorrectionLength = 2

// WindowLocator identifies and validates focused windows. Satisfied by the
// platform input source.
type WindowLocator interface {
	ActiveWindow() types.WindowID
	WindowExists(id types.WindowID) bool
}

// candidateSet is one resolved generation round. Only ever touched while
// holding the corrector's lock.
type candidateSet struct {
	source string
	window types.WindowID
	items  []string
	index  int
}

// Corrector runs the correction state machine: a trigger captures the
// focused window's buffered text, fans it out to the candidate generator,
// replaces the on-screen text with the first candidate, and lets the user
// cycle through the rest until any other keystroke ends the round.
type Corrector struct {
	mu *sync.Mutex // shared with the dictation machine

	buf      *keybuf.Buffer
	gen      *candidate.Generator
	eng      *replacer.Engine
	windows  WindowLocator
	notices  chan<- types.Notice
	log      *slog.Logger
	settings []candidate.Setting
	hist     history.Store // optional, nil disables recording
	metrics  *observe.Metrics

	state      State
	stateVal   atomic.Int32 // lock-free mirror of state for the hook thread
	correcting bool         // set for the whole round, cleared in a deferred block
	set        *candidateSet
}

// CorrectorOption configures a [Corrector].
type CorrectorOption func(*Corrector)

// WithCorrectorLogger sets the logger. Defaults to [slog.Default].
func WithCorrectorLogger(log *slog.Logger) CorrectorOption {
	return func(c *Corrector) { c.log = log }
}

// WithSettings replaces the per-candidate tone and temperature list.
// Defaults to [candidate.DefaultSettings].
func WithSettings(settings []candidate.Setting) CorrectorOption {
	return func(c *Corrector) { c.settings = candidate.NormalizeSettings(settings) }
}

// WithHistory records accepted candidates to the given store when a round
// ends. Recording is best effort and never blocks the round.
func WithHistory(store history.Store) CorrectorOption {
	return func(c *Corrector) { c.hist = store }
}

// WithCorrectorMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithCorrectorMetrics(m *observe.Metrics) CorrectorOption {
	return func(c *Corrector) {
		if m != nil {
			c.metrics = m
		}
	}
}

// NewCorrector assembles the correction machine. The mutex is shared with
// the dictation machine so their replacement paths never interleave.
func NewCorrector(mu *sync.Mutex, buf *keybuf.Buffer, gen *candidate.Generator, eng *replacer.Engine, windows WindowLocator, notices chan<- types.Notice, opts ...CorrectorOption) *Corrector {
	c := &Corrector{
		mu:       mu,
		buf:      buf,
		gen:      gen,
		eng:      eng,
		windows:  windows,
		notices:  notices,
		log:      slog.Default().With("component", "corrector"),
		settings: candidate.DefaultSettings(),
		metrics:  observe.DefaultMetrics(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSettings swaps the per-candidate tone and temperature list. A round
// already in flight keeps the settings it started with.
func (c *Corrector) SetSettings(settings []candidate.Setting) {
	normalized := candidate.NormalizeSettings(settings)
	c.mu.Lock()
	c.settings = normalized
	c.mu.Unlock()
	c.log.Info("candidate settings updated", "slots", len(normalized))
}

// State returns the current machine state.
func (c *Corrector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Navigating reports whether a candidate set is live. It reads an atomic
// mirror of the state so the hook thread's swallow decision never waits
// on the shared lock.
func (c *Corrector) Navigating() bool {
	return State(c.stateVal.Load()) == StateNavigating
}

func (c *Corrector) setStateLocked(s State) {
	c.state = s
	c.stateVal.Store(int32(s))
}

// correctingLocked reports whether a round is in flight. Caller holds the
// lock; used by the dictation machine for its start guard.
func (c *Corrector) correctingLocked() bool { return c.correcting }

// Trigger runs one correction round. It is safe to call from any
// goroutine; a trigger arriving while a round is in flight is ignored,
// not queued.
//
// The generation round runs without the lock so keystrokes keep flowing
// into other windows' buffers; the replacement and buffer write-back
// reacquire it.
func (c *Corrector) Trigger(ctx context.Context) {
	c.mu.Lock()
	if c.correcting {
		c.log.Debug("correction trigger ignored, round in flight")
		c.mu.Unlock()
		return
	}

	window := c.windows.ActiveWindow()
	source := c.buf.Text(window, 0)
	if utf8.RuneCountInString(source) < minCorrectionLength {
		c.log.Debug("buffer too short for correction", "window", window, "len", len(source))
		c.clearLocked()
		c.mu.Unlock()
		return
	}

	c.correcting = true
	c.setStateLocked(StateCorrecting)
	c.set = nil
	settings := c.settings
	c.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "correction.round")
	defer span.End()
	start := time.Now()

	// The flag must come off no matter how the round ends, or future
	// triggers would be ignored forever.
	defer func() {
		c.mu.Lock()
		c.correcting = false
		if c.state == StateCorrecting {
			c.setStateLocked(StateIdle)
		}
		c.mu.Unlock()
		notify(c.notices, types.Notice{Kind: types.NoticeBusyEnd})
	}()

	notify(c.notices, types.Notice{Kind: types.NoticeBusyStart, Text: source})
	c.log.Info("correction round started",
		"window", window, "chars", len(source), "trace_id", observe.CorrelationID(ctx))

	items := c.gen.Generate(ctx, source, settings)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.set = &candidateSet{source: source, window: window, items: items}
	c.setStateLocked(StateNavigating)

	if err := c.eng.Replace(ctx, source, items[0]); err != nil {
		// Stay in Navigating so the user can retry by cycling.
		c.log.Warn("replacement failed", "error", err)
		notify(c.notices, types.Notice{Kind: types.NoticeReplaceFailed, Err: err})
		c.metrics.RecordRound(ctx, time.Since(start).Seconds(), "replace_failed")
	} else {
		c.buf.SetText(window, items[0])
		c.metrics.RecordRound(ctx, time.Since(start).Seconds(), "ok")
	}
	notify(c.notices, types.Notice{
		Kind:  types.NoticeCandidate,
		Text:  items[0],
		Index: 0,
		Total: len(items),
	})
}

// Navigate cycles the live candidate set by delta, wrapping at both ends.
// Outside of Navigating it is a no-op.
func (c *Corrector) Navigate(ctx context.Context, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateNavigating || c.set == nil || len(c.set.items) == 0 {
		return
	}

	n := len(c.set.items)
	old := c.set.items[c.set.index]
	c.set.index = ((c.set.index+delta)%n + n) % n
	next := c.set.items[c.set.index]

	if old != next {
		if err := c.eng.Replace(ctx, old, next); err != nil {
			c.log.Warn("navigation replacement failed", "error", err)
			notify(c.notices, types.Notice{Kind: types.NoticeReplaceFailed, Err: err})
		} else {
			c.buf.SetText(c.set.window, next)
		}
	}
	notify(c.notices, types.Notice{
		Kind:  types.NoticeCandidate,
		Text:  next,
		Index: c.set.index,
		Total: n,
	})
}

// HandleKey records an ordinary key press into the window's buffer. If a
// candidate set is live, any such key ends the round first; the keystroke
// itself still lands in the buffer.
func (c *Corrector) HandleKey(ev types.KeyEvent) {
	// Bare modifier presses carry no key and no rune; they neither end a
	// round nor touch the buffer.
	if !ev.Pressed || (ev.Key == "" && ev.Rune == 0) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateNavigating {
		c.clearLocked()
	}
	switch {
	case ev.Key == "backspace":
		c.buf.RecordBackspace(ev.Window)
	case ev.Rune != 0:
		c.buf.RecordRune(ev.Window, ev.Rune)
	}
}

// Selected returns the live candidate set's current item, if any.
func (c *Corrector) Selected() (text string, index, total int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set == nil || len(c.set.items) == 0 {
		return "", 0, 0, false
	}
	return c.set.items[c.set.index], c.set.index, len(c.set.items), true
}

// Stop forces the machine back to Idle and discards any candidate set.
func (c *Corrector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Corrector) clearLocked() {
	if set := c.set; set != nil && c.hist != nil && len(set.items) > 0 {
		if chosen := set.items[set.index]; chosen != set.source {
			c.recordAccepted(set, chosen)
		}
	}
	c.set = nil
	if c.state != StateCorrecting {
		c.setStateLocked(StateIdle)
	}
}

// recordAccepted writes the round's final candidate to the history store
// off the lock. The tone mapping is best effort; deduplication can shift
// candidate indexes away from their settings slot.
func (c *Corrector) recordAccepted(set *candidateSet, chosen string) {
	entry := history.Entry{
		Kind:    history.KindCorrection,
		Source:  set.source,
		Result:  chosen,
		Version: set.index,
		Total:   len(set.items),
	}
	if set.index < len(c.settings) {
		entry.Tone = string(c.settings[set.index].Tone)
	}
	go func() {
		if err := c.hist.Record(context.Background(), entry); err != nil {
			c.log.Warn("history record failed", "error", err)
		}
	}()
}
