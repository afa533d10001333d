// Package app wires all correx subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run pumps the keystroke event loop, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSource, WithAutomation, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/correx/correx/internal/candidate"
	"github.com/correx/correx/internal/config"
	"github.com/correx/correx/internal/health"
	"github.com/correx/correx/internal/history"
	"github.com/correx/correx/internal/input"
	"github.com/correx/correx/internal/keybuf"
	"github.com/correx/correx/internal/observe"
	"github.com/correx/correx/internal/orchestrator"
	"github.com/correx/correx/internal/replacer"
	"github.com/correx/correx/internal/trigger"
	"github.com/correx/correx/internal/vocab"
	"github.com/correx/correx/pkg/audio"
	"github.com/correx/correx/pkg/provider/corrector"
	"github.com/correx/correx/pkg/provider/speech"
	"github.com/correx/correx/pkg/types"
)

// Providers holds one interface value per provider slot. Nil means the
// slot is not configured. Populated by main.go via the config registry.
type Providers struct {
	// Corrector generates correction candidates. Nil falls back to an echo
	// provider so a trigger round resolves to the untouched source text.
	Corrector corrector.Provider

	// Speech is the recognition chain for dictation. Nil disables the
	// dictation trigger.
	Speech speech.Engine

	// Capture is the microphone backend for dictation. Nil disables the
	// dictation trigger.
	Capture audio.Capture
}

// App owns all subsystem lifetimes and orchestrates the correx daemon.
type App struct {
	cfg       *config.Config
	providers *Providers

	// mu serializes the two machines' replacement paths.
	mu sync.Mutex

	source    input.Source
	auto      replacer.Automation
	buf       *keybuf.Buffer
	gen       *candidate.Generator
	eng       *replacer.Engine
	corrector *orchestrator.Corrector
	dictation *orchestrator.Dictation
	router    *orchestrator.Router
	hist      history.Store
	notices   chan types.Notice
	onNotice  func(types.Notice)
	diag      *http.Server
	level     *slog.LevelVar

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects a keystroke source instead of the platform tap.
func WithSource(s input.Source) Option {
	return func(a *App) { a.source = s }
}

// WithAutomation injects a focused-application driver instead of the
// platform automation.
func WithAutomation(auto replacer.Automation) Option {
	return func(a *App) { a.auto = auto }
}

// WithHistoryStore injects a history store instead of creating one from
// config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.hist = s }
}

// WithLogLevelVar hands the App the daemon's dynamic log level so config
// reloads can adjust it.
func WithLogLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithNoticeConsumer installs a presentation callback for state-change
// notices, replacing the default logging consumer. The callback runs on
// the notice drain goroutine and must not block.
func WithNoticeConsumer(fn func(types.Notice)) Option {
	return func(a *App) { a.onNotice = fn }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers
// struct comes from main.go (populated via the config registry). Use
// Option functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: keystroke tap, focused
// application automation, history store, candidate generator, and the two
// state machines behind the event router.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		notices:   make(chan types.Notice, 64),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Keystroke tap + automation ────────────────────────────────────
	if err := a.initInput(); err != nil {
		return nil, fmt.Errorf("app: init input: %w", err)
	}

	// ── 2. Per-window keystroke buffer ───────────────────────────────────
	a.buf = keybuf.New(a.source)

	// ── 3. History store + retention pruner ──────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 4. Machines + router ─────────────────────────────────────────────
	if err := a.initMachines(); err != nil {
		return nil, fmt.Errorf("app: init machines: %w", err)
	}

	// ── 5. Diagnostics endpoint ──────────────────────────────────────────
	a.initDiagnostics()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initInput sets up the platform keystroke tap and automation, unless test
// doubles were injected.
func (a *App) initInput() error {
	if a.source == nil {
		a.source = input.NewSource()
	}
	if a.auto == nil {
		auto, err := input.NewSystemAutomation()
		if err != nil {
			return fmt.Errorf("create system automation: %w", err)
		}
		a.auto = auto
	}
	return nil
}

// initHistory sets up the correction history store and starts the
// retention pruner. A configured DSN selects PostgreSQL; otherwise history
// lives in a bounded in-memory store.
func (a *App) initHistory(ctx context.Context) error {
	if a.hist == nil {
		if dsn := a.cfg.History.PostgresDSN; dsn != "" {
			store, err := history.Connect(ctx, dsn)
			if err != nil {
				return err
			}
			a.hist = store
			slog.Info("history store connected", "backend", "postgres")
		} else {
			capacity := a.cfg.History.Capacity
			if capacity <= 0 {
				capacity = history.DefaultMemoryCapacity
			}
			a.hist = history.NewMemoryStore(capacity)
			slog.Info("history store created", "backend", "memory", "capacity", capacity)
		}
	}

	pruneCtx, cancel := context.WithCancel(context.Background())
	go history.RunPruner(pruneCtx, a.hist,
		a.cfg.History.GetPruneInterval(), a.cfg.History.GetRetention(),
		func(err error) { slog.Warn("history prune failed", "err", err) })

	// Stop the pruner before the store closes underneath it.
	a.closers = append(a.closers, func() error {
		cancel()
		return nil
	})
	a.closers = append(a.closers, a.hist.Close)
	return nil
}

// initMachines builds the candidate generator, replacement engine, the two
// state machines, and the event router.
func (a *App) initMachines() error {
	provider := a.providers.Corrector
	if provider == nil {
		slog.Warn("no correction provider configured, rounds will echo the source text")
		provider = echoProvider{}
	}

	a.gen = candidate.New(provider,
		candidate.WithWorkers(a.cfg.Corrector.Workers),
		candidate.WithRoundTimeout(a.cfg.Corrector.GetRoundTimeout()),
	)
	a.eng = replacer.New(a.auto)

	a.corrector = orchestrator.NewCorrector(&a.mu, a.buf, a.gen, a.eng, a.source, a.notices,
		orchestrator.WithSettings(candidateSettings(a.cfg.Corrector.Candidates)),
		orchestrator.WithHistory(a.hist),
	)

	dictOpts := []orchestrator.DictationOption{
		orchestrator.WithMaxUtterance(a.cfg.Dictation.GetMaxUtterance()),
		orchestrator.WithDenoise(a.cfg.Dictation.Denoise),
		orchestrator.WithDictationHistory(a.hist),
	}
	if len(a.cfg.Dictation.Vocabulary) > 0 {
		dictOpts = append(dictOpts, orchestrator.WithVocabulary(vocab.New(a.cfg.Dictation.Vocabulary)))
	}
	a.dictation = orchestrator.NewDictation(&a.mu, a.corrector,
		a.providers.Capture, a.providers.Speech, a.eng, a.buf, a.source, a.notices,
		dictOpts...)

	triggers, err := parseTriggers(a.cfg.Triggers)
	if err != nil {
		return err
	}
	a.router = orchestrator.NewRouter(a.source, a.corrector, a.dictation, a.buf, triggers)
	return nil
}

// initDiagnostics builds the metrics and health HTTP server when an
// address is configured.
func (a *App) initDiagnostics() {
	addr := a.cfg.Service.DiagnosticsAddr
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(
		health.Checker{Name: "history", Check: func(ctx context.Context) error {
			_, err := a.hist.Recent(ctx, 1)
			return err
		}},
	).Register(mux)

	a.diag = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.diag.Shutdown(ctx)
	})
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the diagnostics endpoint and the keystroke event loop, and
// blocks until ctx is cancelled or the tap fails. When ctx is done, Run
// returns context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	if a.diag != nil {
		go func() {
			slog.Info("diagnostics endpoint listening", "addr", a.diag.Addr)
			if err := a.diag.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("diagnostics endpoint failed", "err", err)
			}
		}()
	}

	go a.drainNotices(ctx)

	return a.router.Run(ctx)
}

// drainNotices consumes state-change notices so the channel never backs
// up. Notices go to the configured consumer, or to the log when no UI is
// attached.
func (a *App) drainNotices(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-a.notices:
			if a.onNotice != nil {
				a.onNotice(n)
				continue
			}
			switch n.Kind {
			case types.NoticeReplaceFailed:
				slog.Warn("replacement failed", "err", n.Err)
			case types.NoticeCandidate:
				slog.Debug("candidate displayed", "index", n.Index+1, "total", n.Total)
			default:
				slog.Debug("state change", "kind", n.Kind)
			}
		}
	}
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyConfig applies a reloaded configuration to the running daemon.
// Trigger chords, candidate settings, the dictation vocabulary and knobs,
// and the log level take effect immediately; anything else logs a restart
// warning. Intended as the change callback of a [config.Watcher].
func (a *App) ApplyConfig(oldCfg, newCfg *config.Config) {
	d := config.Diff(oldCfg, newCfg)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.TriggersChanged {
		triggers, err := parseTriggers(newCfg.Triggers)
		if err != nil {
			slog.Warn("reloaded triggers rejected", "err", err)
		} else {
			a.router.SetTriggers(triggers)
		}
	}
	if d.CandidatesChanged {
		a.corrector.SetSettings(candidateSettings(newCfg.Corrector.Candidates))
	}
	if d.VocabularyChanged || d.DictationChanged {
		var words *vocab.Matcher
		if len(newCfg.Dictation.Vocabulary) > 0 {
			words = vocab.New(newCfg.Dictation.Vocabulary)
		}
		a.dictation.Reconfigure(newCfg.Dictation.GetMaxUtterance(), newCfg.Dictation.Denoise, words)
		slog.Info("dictation settings updated")
	}
	if d.RestartNeeded {
		slog.Warn("config change requires a restart to take effect")
	}

	a.cfg = newCfg
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers
// are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// The machines first, so no replacement is mid-flight while the
		// stores close.
		a.dictation.Stop()
		a.corrector.Stop()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// echoProvider satisfies the generator when no backend is configured;
// every round resolves to the untouched source text.
type echoProvider struct{}

func (echoProvider) Correct(_ context.Context, req corrector.Request) (string, error) {
	return req.Text, nil
}

// parseTriggers converts the configured chord strings into router
// triggers. A clear chord of "off" leaves the slot zero, disabling it.
func parseTriggers(tc config.TriggersConfig) (orchestrator.Triggers, error) {
	var t orchestrator.Triggers
	var err error

	if t.Correct, err = trigger.Parse(tc.Correct); err != nil {
		return t, fmt.Errorf("parse correct trigger: %w", err)
	}
	if t.Dictate, err = trigger.Parse(tc.Dictate); err != nil {
		return t, fmt.Errorf("parse dictate trigger: %w", err)
	}
	if !tc.ClearDisabled() {
		if t.Clear, err = trigger.Parse(tc.Clear); err != nil {
			return t, fmt.Errorf("parse clear trigger: %w", err)
		}
	}
	return t, nil
}

// candidateSettings converts config candidate slots to generator settings.
// Unknown tones and out-of-range temperatures are repaired downstream by
// the generator's normalization.
func candidateSettings(in []config.CandidateConfig) []candidate.Setting {
	out := make([]candidate.Setting, 0, len(in))
	for _, c := range in {
		out = append(out, candidate.Setting{
			Temperature: c.Temperature,
			Tone:        corrector.Tone(strings.ToLower(strings.TrimSpace(c.Tone))),
		})
	}
	return out
}

// slogLevel maps a config log level onto slog's scale.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
