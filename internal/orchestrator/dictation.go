package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/correx/correx/internal/history"
	"github.com/correx/correx/internal/keybuf"
	"github.com/correx/correx/internal/observe"
	"github.com/correx/correx/internal/replacer"
	"github.com/correx/correx/internal/vocab"
	"github.com/correx/correx/pkg/audio"
	"github.com/correx/correx/pkg/provider/speech"
	"github.com/correx/correx/pkg/types"
)

const (
	defaultMaxUtterance = 15 * time.Second
	defaultCalibration  = 1 * time.Second
	defaultStopJoinWait = 5 * time.Second
)

// Dictation runs the listen loop: a trigger toggles it on, each captured
// utterance goes through the recognition chain, and recognized text is
// inserted at the cursor and appended to the focused window's buffer so a
// later correction round can pick it up.
type Dictation struct {
	mu *sync.Mutex // shared with the correction machine

	corrector *Corrector
	capture   audio.Capture
	chain     speech.Engine
	words     *vocab.Matcher
	eng       *replacer.Engine
	buf       *keybuf.Buffer
	windows   WindowLocator
	notices   chan<- types.Notice
	log       *slog.Logger
	hist      history.Store // optional, nil disables recording
	metrics   *observe.Metrics

	maxUtterance time.Duration
	calibration  time.Duration
	joinWait     time.Duration
	denoise      bool

	state  DictationState
	cancel context.CancelFunc
	done   chan struct{}
}

// DictationOption configures a [Dictation].
type DictationOption func(*Dictation)

// WithDictationLogger sets the logger. Defaults to [slog.Default].
func WithDictationLogger(log *slog.Logger) DictationOption {
	return func(d *Dictation) { d.log = log }
}

// WithMaxUtterance bounds a single utterance capture. Default 15s.
func WithMaxUtterance(limit time.Duration) DictationOption {
	return func(d *Dictation) {
		if limit > 0 {
			d.maxUtterance = limit
		}
	}
}

// WithVocabulary installs a vocabulary matcher applied to every
// recognized utterance.
func WithVocabulary(m *vocab.Matcher) DictationOption {
	return func(d *Dictation) { d.words = m }
}

// WithDenoise toggles noise gating of captured audio before recognition.
func WithDenoise(enabled bool) DictationOption {
	return func(d *Dictation) { d.denoise = enabled }
}

// WithDictationHistory records injected utterances to the given store.
// Recording is best effort and never blocks the loop.
func WithDictationHistory(store history.Store) DictationOption {
	return func(d *Dictation) { d.hist = store }
}

// WithDictationMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithDictationMetrics(m *observe.Metrics) DictationOption {
	return func(d *Dictation) {
		if m != nil {
			d.metrics = m
		}
	}
}

// NewDictation assembles the dictation machine around the shared lock.
func NewDictation(mu *sync.Mutex, corrector *Corrector, capture audio.Capture, chain speech.Engine, eng *replacer.Engine, buf *keybuf.Buffer, windows WindowLocator, notices chan<- types.Notice, opts ...DictationOption) *Dictation {
	d := &Dictation{
		mu:           mu,
		corrector:    corrector,
		capture:      capture,
		chain:        chain,
		eng:          eng,
		buf:          buf,
		windows:      windows,
		notices:      notices,
		log:          slog.Default().With("component", "dictation"),
		metrics:      observe.DefaultMetrics(),
		maxUtterance: defaultMaxUtterance,
		calibration:  defaultCalibration,
		joinWait:     defaultStopJoinWait,
		state:        DictationIdle,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current machine state.
func (d *Dictation) State() DictationState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Toggle starts the listen loop, or stops it when already listening.
// Starting is refused while a correction round is in flight; the two
// machines share the replacement path.
func (d *Dictation) Toggle(ctx context.Context) {
	d.mu.Lock()

	if d.state == DictationListening {
		cancel, done := d.cancel, d.done
		d.state = DictationIdle
		d.cancel, d.done = nil, nil
		d.mu.Unlock()

		cancel()
		select {
		case <-done:
		case <-time.After(d.joinWait):
			d.log.Warn("listen loop did not stop in time", "wait", d.joinWait)
		}
		notify(d.notices, types.Notice{Kind: types.NoticeListeningEnd})
		return
	}

	if d.capture == nil || d.chain == nil {
		d.log.Warn("dictation trigger refused, no speech engine configured")
		d.mu.Unlock()
		return
	}

	if d.corrector != nil && d.corrector.correctingLocked() {
		d.log.Debug("dictation refused, correction round in flight")
		d.mu.Unlock()
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.state = DictationListening
	d.cancel, d.done = cancel, done
	d.mu.Unlock()

	notify(d.notices, types.Notice{Kind: types.NoticeListeningStart})
	go d.listen(loopCtx, done)
}

// listen is the dedicated capture loop. A full-chain recognition miss
// discards the utterance and keeps listening; only loop cancellation or a
// dead capture device ends it.
func (d *Dictation) listen(ctx context.Context, done chan struct{}) {
	defer close(done)

	d.metrics.ActiveDictation.Add(ctx, 1)
	defer d.metrics.ActiveDictation.Add(context.WithoutCancel(ctx), -1)

	var noiseFloor float64
	if threshold, err := d.capture.Calibrate(ctx, d.calibration); err != nil {
		d.log.Warn("ambient calibration failed", "error", err)
	} else {
		noiseFloor = threshold
		d.log.Info("dictation listening", "noise_floor", noiseFloor)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		// Snapshot the reloadable knobs so a concurrent Reconfigure
		// applies cleanly on the next utterance.
		d.mu.Lock()
		maxUtterance, denoise, words := d.maxUtterance, d.denoise, d.words
		d.mu.Unlock()

		clip, err := d.capture.Listen(ctx, maxUtterance)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, audio.ErrCaptureClosed):
			return
		case errors.Is(err, audio.ErrNoSpeech):
			continue
		case err != nil:
			d.log.Warn("utterance capture failed", "error", err)
			continue
		}

		if denoise {
			clip = audio.Denoise(clip, noiseFloor)
		}

		recognizeStart := time.Now()
		text, err := d.chain.Recognize(ctx, clip)
		elapsed := time.Since(recognizeStart).Seconds()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.metrics.RecordUtterance(ctx, elapsed, d.chain.Name(), "miss")
			d.log.Debug("utterance not recognized", "error", err)
			continue
		}
		d.metrics.RecordUtterance(ctx, elapsed, d.chain.Name(), "ok")
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if words != nil {
			text = words.Apply(text)
		}

		d.inject(ctx, text)
	}
}

// inject pastes text at the cursor and appends it to the focused window's
// buffer so it remains eligible for a correction trigger. Runs under the
// shared lock; injected keystrokes are invisible to the keystroke tap, so
// the buffer sees the text exactly once.
func (d *Dictation) inject(ctx context.Context, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.eng.Insert(ctx, text+" "); err != nil {
		d.log.Warn("dictation insert failed", "error", err)
		notify(d.notices, types.Notice{Kind: types.NoticeReplaceFailed, Err: err})
		return
	}
	window := d.windows.ActiveWindow()
	d.buf.Append(window, text+" ")
	d.log.Debug("dictated text injected", "window", window, "chars", len(text))

	if d.hist != nil {
		go func() {
			entry := history.Entry{Kind: history.KindDictation, Result: text}
			if err := d.hist.Record(context.Background(), entry); err != nil {
				d.log.Warn("history record failed", "error", err)
			}
		}()
	}
}

// Reconfigure swaps the utterance limit, noise gate, and vocabulary
// matcher. A running loop applies the new values from its next utterance.
func (d *Dictation) Reconfigure(maxUtterance time.Duration, denoise bool, words *vocab.Matcher) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if maxUtterance > 0 {
		d.maxUtterance = maxUtterance
	}
	d.denoise = denoise
	d.words = words
}

// Stop forces the machine to Idle, stopping any running loop.
func (d *Dictation) Stop() {
	d.mu.Lock()
	if d.state != DictationListening {
		d.mu.Unlock()
		return
	}
	cancel, done := d.cancel, d.done
	d.state = DictationIdle
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(d.joinWait):
		d.log.Warn("listen loop did not stop in time", "wait", d.joinWait)
	}
	notify(d.notices, types.Notice{Kind: types.NoticeListeningEnd})
}
