// Package replacer swaps the text of the focused control for a correction
// candidate without permanently disturbing the user's clipboard.
//
// The primary method drives the platform clipboard: capture, select-all,
// copy, verify, paste, restore. Verification checks that the copied
// selection contains the text the orchestrator expects to replace, which
// guards against writing into the wrong window after a focus change. The
// restore step runs even when a later step fails, so the clipboard
// observed after any call equals its value before the call. When the
// initial capture itself fails there is nothing trustworthy to write
// back, and the restore is skipped rather than wiping the clipboard.
//
// When the primary method keeps failing, the engine falls back to setting
// the focused control's text through accessibility introspection.
package replacer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/correx/correx/internal/observe"
)

// Sentinel errors returned by the engine.
var (
	// ErrVerifyMismatch means the copied selection did not contain the
	// expected text; the focused control is probably not the one the
	// correction was generated for.
	ErrVerifyMismatch = errors.New("replacer: copied text does not contain expected text")

	// ErrAllMethodsFailed means both the clipboard protocol and the
	// accessibility fallback failed.
	ErrAllMethodsFailed = errors.New("replacer: all replacement methods failed")
)

// Automation is the platform surface the engine drives. Implementations
// live in the input layer; tests substitute fakes.
type Automation interface {
	// Clipboard returns the current clipboard text.
	Clipboard() (string, error)
	// SetClipboard replaces the clipboard text.
	SetClipboard(text string) error
	// SelectAll sends the platform select-all chord to the focused control.
	SelectAll() error
	// Copy sends the platform copy chord.
	Copy() error
	// Paste sends the platform paste chord.
	Paste() error
	// FocusedText reads the focused control's text through the
	// accessibility tree.
	FocusedText() (string, error)
	// SetFocusedText writes the focused control's text through the
	// accessibility tree.
	SetFocusedText(text string) error
}

// Defaults for timing and retry behavior.
const (
	DefaultSettleDelay = 100 * time.Millisecond
	DefaultRetries     = 3
	DefaultBackoffBase = 200 * time.Millisecond
)

// Engine performs text replacement through an [Automation] surface.
type Engine struct {
	auto    Automation
	settle  time.Duration
	retries int
	backoff time.Duration
	log     *slog.Logger
	metrics *observe.Metrics
}

// Option configures an [Engine].
type Option func(*Engine)

// WithSettleDelay overrides the pause after each clipboard mutation.
// Clipboard propagation is asynchronous on every desktop platform.
func WithSettleDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.settle = d
		}
	}
}

// WithRetries sets the number of primary-method attempts before the
// accessibility fallback.
func WithRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.retries = n
		}
	}
}

// WithBackoffBase sets the base delay between primary-method attempts; the
// delay grows linearly with the attempt number.
func WithBackoffBase(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.backoff = d
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// New creates an Engine over the given automation surface.
func New(auto Automation, opts ...Option) *Engine {
	e := &Engine{
		auto:    auto,
		settle:  DefaultSettleDelay,
		retries: DefaultRetries,
		backoff: DefaultBackoffBase,
		log:     slog.Default(),
		metrics: observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Replace swaps expectedOld for newText in the focused control. The
// primary clipboard method is attempted up to the configured retry count
// with increasing backoff; the accessibility fallback runs only after the
// primary method is exhausted.
func (e *Engine) Replace(ctx context.Context, expectedOld, newText string) error {
	var lastErr error
	for attempt := 0; attempt < e.retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(attempt)*e.backoff); err != nil {
				return err
			}
		}
		start := time.Now()
		lastErr = e.replaceViaClipboard(ctx, expectedOld, newText)
		if lastErr == nil {
			e.metrics.RecordReplacement(ctx, time.Since(start).Seconds(), "clipboard", "ok")
			return nil
		}
		e.metrics.RecordReplacement(ctx, time.Since(start).Seconds(), "clipboard", "failed")
		e.log.Warn("clipboard replacement attempt failed",
			"attempt", attempt+1, "error", lastErr)
	}

	start := time.Now()
	if err := e.replaceViaAccessibility(expectedOld, newText); err != nil {
		e.metrics.RecordReplacement(ctx, time.Since(start).Seconds(), "accessibility", "failed")
		e.log.Error("accessibility fallback failed", "error", err)
		return fmt.Errorf("%w: %w", ErrAllMethodsFailed, lastErr)
	}
	e.metrics.RecordReplacement(ctx, time.Since(start).Seconds(), "accessibility", "ok")
	e.log.Info("replaced text via accessibility fallback")
	return nil
}

// Insert pastes text at the cursor without selecting existing content.
// Used by dictation. The clipboard restore guarantee is the same as for
// Replace.
func (e *Engine) Insert(ctx context.Context, text string) (err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "failed"
		}
		e.metrics.RecordReplacement(ctx, time.Since(start).Seconds(), "insert", status)
	}()

	// A failed capture means there is nothing trustworthy to restore;
	// writing back "" would wipe whatever the user had on the clipboard.
	if saved, err := e.auto.Clipboard(); err == nil {
		defer e.restore(saved)
	} else {
		e.log.Warn("clipboard capture failed, skipping restore", "error", err)
	}

	if err := e.auto.SetClipboard(text); err != nil {
		return fmt.Errorf("replacer: set clipboard: %w", err)
	}
	if err := sleepCtx(ctx, e.settle); err != nil {
		return err
	}
	if err := e.auto.Paste(); err != nil {
		return fmt.Errorf("replacer: paste: %w", err)
	}
	return sleepCtx(ctx, e.settle)
}

// replaceViaClipboard runs one pass of the primary protocol. The saved
// clipboard is restored on every exit path where the capture succeeded.
func (e *Engine) replaceViaClipboard(ctx context.Context, expectedOld, newText string) error {
	if saved, err := e.auto.Clipboard(); err == nil {
		defer e.restore(saved)
	} else {
		e.log.Warn("clipboard capture failed, skipping restore", "error", err)
	}

	if err := e.auto.SelectAll(); err != nil {
		return fmt.Errorf("replacer: select all: %w", err)
	}
	if err := sleepCtx(ctx, e.settle); err != nil {
		return err
	}
	if err := e.auto.Copy(); err != nil {
		return fmt.Errorf("replacer: copy: %w", err)
	}
	if err := sleepCtx(ctx, e.settle); err != nil {
		return err
	}

	copied, err := e.auto.Clipboard()
	if err != nil {
		return fmt.Errorf("replacer: read copied selection: %w", err)
	}
	if !strings.Contains(copied, expectedOld) {
		return ErrVerifyMismatch
	}

	if err := e.auto.SetClipboard(newText); err != nil {
		return fmt.Errorf("replacer: set clipboard: %w", err)
	}
	if err := sleepCtx(ctx, e.settle); err != nil {
		return err
	}
	if err := e.auto.Paste(); err != nil {
		return fmt.Errorf("replacer: paste: %w", err)
	}
	return sleepCtx(ctx, e.settle)
}

// replaceViaAccessibility sets the focused control's text directly,
// substituting expectedOld with newText in the retrieved content.
func (e *Engine) replaceViaAccessibility(expectedOld, newText string) error {
	current, err := e.auto.FocusedText()
	if err != nil {
		return fmt.Errorf("replacer: read focused text: %w", err)
	}
	if !strings.Contains(current, expectedOld) {
		return ErrVerifyMismatch
	}
	replaced := strings.Replace(current, expectedOld, newText, 1)
	if err := e.auto.SetFocusedText(replaced); err != nil {
		return fmt.Errorf("replacer: set focused text: %w", err)
	}
	return nil
}

func (e *Engine) restore(saved string) {
	if err := e.auto.SetClipboard(saved); err != nil {
		e.log.Error("failed to restore clipboard", "error", err)
	}
}

// sleepCtx pauses for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
