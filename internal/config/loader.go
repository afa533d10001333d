package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/correx/correx/internal/trigger"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"corrector": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"speech":    {"deepgram", "whisper-server", "whisper-native"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in the default trigger chords.
func applyDefaults(cfg *Config) {
	if cfg.Triggers.Correct == "" {
		cfg.Triggers.Correct = DefaultCorrectChord
	}
	if cfg.Triggers.Dictate == "" {
		cfg.Triggers.Dictate = DefaultDictateChord
	}
	if cfg.Triggers.Clear == "" {
		cfg.Triggers.Clear = DefaultClearChord
	}
}

// ClearDisabled reports whether the clear-buffer trigger is switched off.
func (t TriggersConfig) ClearDisabled() bool {
	return strings.EqualFold(t.Clear, "off")
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Service
	if cfg.Service.LogLevel != "" && !cfg.Service.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("service.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Service.LogLevel))
	}

	// Triggers must parse and be mutually distinct.
	parsed := make(map[string]string, 3)
	checkChord := func(field, chord string) {
		if field == "triggers.clear" && strings.EqualFold(chord, "off") {
			return
		}
		t, err := trigger.Parse(chord)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		if prev, ok := parsed[t.String()]; ok {
			errs = append(errs, fmt.Errorf("%s %q collides with %s", field, chord, prev))
			return
		}
		parsed[t.String()] = field
	}
	checkChord("triggers.correct", cfg.Triggers.Correct)
	checkChord("triggers.dictate", cfg.Triggers.Dictate)
	checkChord("triggers.clear", cfg.Triggers.Clear)

	// Provider name validation — warn for unknown provider names.
	validateProviderName("corrector", cfg.Corrector.Provider.Name)
	for _, fb := range cfg.Corrector.Fallbacks {
		validateProviderName("corrector", fb.Name)
	}
	for _, eng := range cfg.Speech.Engines {
		validateProviderName("speech", eng.Name)
	}

	// Corrector
	if cfg.Corrector.Provider.Name == "" {
		slog.Warn("corrector.provider is not configured; correction rounds will echo the source text")
	}
	if w := cfg.Corrector.Workers; w != 0 && (w < 3 || w > 5) {
		errs = append(errs, fmt.Errorf("corrector.workers %d is out of range [3, 5]", w))
	}
	checkDuration := func(field, raw string) {
		if raw == "" {
			return
		}
		if d, err := time.ParseDuration(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", field))
		}
	}
	checkDuration("corrector.round_timeout", cfg.Corrector.RoundTimeout)
	for i, c := range cfg.Corrector.Candidates {
		if c.Temperature <= 0 || c.Temperature > 1 {
			errs = append(errs, fmt.Errorf("corrector.candidates[%d].temperature %.2f is out of range (0, 1]", i, c.Temperature))
		}
	}

	// Speech
	engineNamesSeen := make(map[string]int, len(cfg.Speech.Engines))
	for i, eng := range cfg.Speech.Engines {
		if eng.Name == "" {
			errs = append(errs, fmt.Errorf("speech.engines[%d].name is required", i))
			continue
		}
		if prev, ok := engineNamesSeen[eng.Name]; ok {
			errs = append(errs, fmt.Errorf("speech.engines[%d].name %q is a duplicate of speech.engines[%d]", i, eng.Name, prev))
		}
		engineNamesSeen[eng.Name] = i
	}
	if len(cfg.Speech.Engines) == 0 {
		slog.Warn("speech.engines is empty; the dictation trigger will be refused")
	}

	// Dictation
	checkDuration("dictation.max_utterance", cfg.Dictation.MaxUtterance)

	// History
	if cfg.History.Capacity < 0 {
		errs = append(errs, fmt.Errorf("history.capacity must not be negative"))
	}
	checkDuration("history.retention", cfg.History.Retention)
	checkDuration("history.prune_interval", cfg.History.PruneInterval)

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
