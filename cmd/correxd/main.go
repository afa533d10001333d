// Command correxd is the correx keyboard correction and dictation daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/correx/correx/internal/app"
	"github.com/correx/correx/internal/config"
	"github.com/correx/correx/internal/observe"
	"github.com/correx/correx/internal/resilience"
	"github.com/correx/correx/pkg/audio"
	"github.com/correx/correx/pkg/provider/corrector"
	"github.com/correx/correx/pkg/provider/corrector/anyllm"
	"github.com/correx/correx/pkg/provider/corrector/openai"
	"github.com/correx/correx/pkg/provider/speech"
	"github.com/correx/correx/pkg/provider/speech/deepgram"
	"github.com/correx/correx/pkg/provider/speech/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "correxd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "correxd: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := &slog.LevelVar{}
	slog.SetDefault(newLogger(cfg.Service.LogLevel, level))

	slog.Info("correxd starting",
		"config", *configPath,
		"log_level", cfg.Service.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "correxd",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if providers.Capture != nil {
		defer func() {
			if err := providers.Capture.Close(); err != nil {
				slog.Warn("audio capture close error", "err", err)
			}
		}()
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogLevelVar(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config watcher unavailable, edits require a restart", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("daemon ready — press the correction chord to start, Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with correx. Used for startup logging.
var builtinProviders = map[string][]string{
	"corrector": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"speech":    {"deepgram", "whisper-server", "whisper-native"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Correctors ────────────────────────────────────────────────────────────
	// openai goes through the dedicated client so per-request timeouts and
	// base URL overrides work against any OpenAI-compatible endpoint.
	reg.RegisterCorrector("openai", func(entry config.ProviderEntry) (corrector.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp and llamafile all
	// share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterCorrector(providerName, func(entry config.ProviderEntry) (corrector.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterCorrector("ollama", func(entry config.ProviderEntry) (corrector.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Speech engines ────────────────────────────────────────────────────────

	reg.RegisterSpeech("deepgram", func(entry config.ProviderEntry) (speech.Engine, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSpeech("whisper-server", func(entry config.ProviderEntry) (speech.Engine, error) {
		var opts []whisper.ServerOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithServerLanguage(lang))
		}
		return whisper.NewServer(entry.BaseURL, opts...)
	})

	reg.RegisterSpeech("whisper-native", func(entry config.ProviderEntry) (speech.Engine, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// The primary corrector is wrapped in a circuit-breaking fallback group when
// fallbacks are configured; multiple speech engines become a recognition chain.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Corrector.Provider.Name; name != "" {
		p, err := reg.CreateCorrector(cfg.Corrector.Provider)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "corrector", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create corrector provider %q: %w", name, err)
		} else {
			ps.Corrector = p
			slog.Info("provider created", "kind", "corrector", "name", name)
		}

		if ps.Corrector != nil && len(cfg.Corrector.Fallbacks) > 0 {
			group := resilience.NewCorrectorFallback(ps.Corrector, name, resilience.BreakerConfig{Name: name})
			for _, entry := range cfg.Corrector.Fallbacks {
				fp, err := reg.CreateCorrector(entry)
				if errors.Is(err, config.ErrProviderNotRegistered) {
					slog.Debug("provider not yet implemented — skipping", "kind", "corrector", "name", entry.Name)
					continue
				}
				if err != nil {
					return nil, fmt.Errorf("create fallback corrector %q: %w", entry.Name, err)
				}
				group.AddFallback(entry.Name, fp)
				slog.Info("fallback provider created", "kind", "corrector", "name", entry.Name)
			}
			ps.Corrector = group
		}
	}

	var engines []speech.Engine
	for _, entry := range cfg.Speech.Engines {
		e, err := reg.CreateSpeech(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "speech", "name", entry.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create speech engine %q: %w", entry.Name, err)
		}
		engines = append(engines, e)
		slog.Info("provider created", "kind", "speech", "name", entry.Name)
	}

	switch len(engines) {
	case 0:
	case 1:
		ps.Speech = engines[0]
	default:
		chain := resilience.NewSpeechChain(engines[0], resilience.BreakerConfig{Name: engines[0].Name()})
		for _, e := range engines[1:] {
			chain.AddFallback(e)
		}
		ps.Speech = chain
	}

	// Dictation needs a microphone; a missing capture backend downgrades to
	// correction-only rather than failing startup.
	if ps.Speech != nil {
		var opts []audio.FFmpegOption
		if cfg.Dictation.Device != "" {
			opts = append(opts, audio.WithDevice(cfg.Dictation.Device))
		}
		capture, err := audio.NewFFmpegCapture(opts...)
		if err != nil {
			slog.Warn("audio capture unavailable, dictation disabled", "err", err)
		} else {
			ps.Capture = capture
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         correx — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Corrector", cfg.Corrector.Provider.Name, cfg.Corrector.Provider.Model)
	fmt.Printf("║  Fallbacks       : %-19d ║\n", len(cfg.Corrector.Fallbacks))
	if len(cfg.Speech.Engines) > 0 {
		printProvider("Speech", cfg.Speech.Engines[0].Name, cfg.Speech.Engines[0].Model)
	} else {
		printProvider("Speech", "", "")
	}
	printRow("Correct chord", cfg.Triggers.Correct)
	printRow("Dictate chord", cfg.Triggers.Dictate)
	printRow("Clear chord", cfg.Triggers.Clear)
	if cfg.History.PostgresDSN != "" {
		printRow("History", "postgres")
	} else {
		printRow("History", "memory")
	}
	if cfg.Service.DiagnosticsAddr != "" {
		printRow("Diagnostics", cfg.Service.DiagnosticsAddr)
	} else {
		printRow("Diagnostics", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the daemon logger around a dynamic level so config
// reloads can adjust verbosity without rebuilding the handler.
func newLogger(level config.LogLevel, lv *slog.LevelVar) *slog.Logger {
	switch level {
	case config.LogDebug:
		lv.Set(slog.LevelDebug)
	case config.LogWarn:
		lv.Set(slog.LevelWarn)
	case config.LogError:
		lv.Set(slog.LevelError)
	default:
		lv.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
