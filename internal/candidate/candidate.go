// Package candidate turns one piece of source text into an ordered list of
// correction candidates by fanning requests out to an AI correction
// provider.
//
// The generator never fails: a request that errors or outruns the round
// deadline contributes the untouched source text for its slot, so the
// orchestrator always receives at least one usable candidate.
package candidate

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/correx/correx/internal/observe"
	"github.com/correx/correx/pkg/provider/corrector"
)

// Capacity and timing limits.
const (
	// MaxCandidates caps the number of candidate settings per round.
	MaxCandidates = 5

	// DefaultWorkers is the default worker pool size. The pool bounds
	// concurrent outbound calls independently of the setting count.
	DefaultWorkers = 4

	minWorkers = 3
	maxWorkers = 5

	// DefaultRoundTimeout is the whole-round deadline. Requests still
	// outstanding when it expires are treated as failed.
	DefaultRoundTimeout = 30 * time.Second
)

// Setting pairs a sampling temperature with a tone for one candidate slot.
type Setting struct {
	Temperature float64        `yaml:"temperature"`
	Tone        corrector.Tone `yaml:"tone"`
}

// DefaultSettings returns the standard five-slot candidate table.
func DefaultSettings() []Setting {
	return []Setting{
		{Temperature: 0.30, Tone: corrector.ToneOriginal},
		{Temperature: 0.55, Tone: corrector.ToneProfessional},
		{Temperature: 0.60, Tone: corrector.ToneFormal},
		{Temperature: 0.65, Tone: corrector.ToneInformal},
		{Temperature: 0.70, Tone: corrector.ToneDetailed},
	}
}

// NormalizeSettings sanitizes a configured settings list: it caps the list
// at MaxCandidates, substitutes the positional default for temperatures
// outside (0, 1] and for entries with an unknown tone. An empty input
// yields DefaultSettings.
func NormalizeSettings(in []Setting) []Setting {
	defaults := DefaultSettings()
	if len(in) == 0 {
		return defaults
	}
	if len(in) > MaxCandidates {
		in = in[:MaxCandidates]
	}

	out := make([]Setting, 0, len(in))
	for i, s := range in {
		fallback := defaults[min(i, len(defaults)-1)]
		if s.Temperature <= 0 || s.Temperature > 1 {
			s.Temperature = fallback.Temperature
		}
		if _, ok := corrector.Presets[s.Tone]; !ok {
			s.Tone = fallback.Tone
		}
		out = append(out, s)
	}
	return out
}

// Generator produces candidate lists through a bounded worker pool.
type Generator struct {
	provider corrector.Provider
	workers  int
	timeout  time.Duration
	log      *slog.Logger
	metrics  *observe.Metrics
}

// Option configures a [Generator].
type Option func(*Generator)

// WithWorkers sets the pool size, clamped to the allowed range.
func WithWorkers(n int) Option {
	return func(g *Generator) {
		if n < minWorkers {
			n = minWorkers
		}
		if n > maxWorkers {
			n = maxWorkers
		}
		g.workers = n
	}
}

// WithRoundTimeout overrides the whole-round deadline.
func WithRoundTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets the logger for per-request failure output.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) {
		if m != nil {
			g.metrics = m
		}
	}
}

// New creates a Generator backed by provider.
func New(provider corrector.Provider, opts ...Option) *Generator {
	g := &Generator{
		provider: provider,
		workers:  DefaultWorkers,
		timeout:  DefaultRoundTimeout,
		log:      slog.Default(),
		metrics:  observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate runs one round: one request per setting through the worker
// pool, reassembled in submission order so candidate indices map onto the
// requested tone list. Failed or timed-out slots carry source unchanged.
// The result is deduplicated by exact string equality preserving first
// occurrence; it is never empty.
func (g *Generator) Generate(ctx context.Context, source string, settings []Setting) []string {
	settings = NormalizeSettings(settings)

	roundCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	results := make([]string, len(settings))
	grp, grpCtx := errgroup.WithContext(roundCtx)
	grp.SetLimit(g.workers)

	for i, s := range settings {
		grp.Go(func() error {
			start := time.Now()
			out, err := g.provider.Correct(grpCtx, corrector.Request{
				Text:        source,
				Tone:        s.Tone,
				Temperature: s.Temperature,
				Variant:     i,
			})
			elapsed := time.Since(start).Seconds()
			if err != nil || out == "" {
				g.metrics.CandidateDuration.Record(grpCtx, elapsed)
				g.metrics.Candidates.Add(grpCtx, 1, candidateAttrs(s.Tone, "substituted"))
				if err != nil {
					g.log.Warn("candidate request failed, keeping source text",
						"slot", i, "tone", s.Tone, "error", err)
				}
				results[i] = source
				return nil
			}
			g.metrics.CandidateDuration.Record(grpCtx, elapsed)
			g.metrics.Candidates.Add(grpCtx, 1, candidateAttrs(s.Tone, "ok"))
			results[i] = out
			return nil
		})
	}
	// Workers never return errors; failures degrade to substitution.
	_ = grp.Wait()

	return dedupe(results, source)
}

// candidateAttrs builds the per-candidate metric attribute set.
func candidateAttrs(tone corrector.Tone, status string) metric.MeasurementOption {
	return metric.WithAttributes(
		observe.Attr("tone", string(tone)),
		observe.Attr("status", status),
	)
}

// dedupe removes exact duplicates preserving first occurrence and
// guarantees a non-empty result.
func dedupe(candidates []string, source string) []string {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	if len(out) == 0 {
		return []string{source}
	}
	return out
}
