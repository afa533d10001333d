// Package corrector defines the Provider interface for AI text correction
// backends.
//
// A corrector provider wraps a remote or local model API and exposes one
// operation: given a piece of user-typed text, a tone and a sampling
// temperature, return the corrected or rewritten text as plain prose with
// no formatting markup.
//
// Implementors must be safe for concurrent use: the candidate generator
// issues several requests against one provider in parallel.
package corrector

import (
	"context"
	"fmt"
)

// Tone selects the rewriting style of a correction.
type Tone string

// The supported tones. ToneOriginal repairs mistakes without rewording;
// the others rewrite the passage in a target register.
const (
	ToneOriginal     Tone = "original"
	ToneProfessional Tone = "professional"
	ToneFormal       Tone = "formal"
	ToneInformal     Tone = "informal"
	ToneDetailed     Tone = "detailed"
	ToneCreative     Tone = "creative"
)

// Preset describes one tone's prompting behavior.
type Preset struct {
	// Label is the human-readable name shown in configuration UIs.
	Label string

	// Description summarizes the tone for configuration UIs.
	Description string

	// Rewrite is false when the tone only repairs mistakes and must not
	// introduce new wording.
	Rewrite bool

	// Instruction is the primary prompt directive for this tone.
	Instruction string

	// VariationHint nudges later variants of the same tone apart from
	// earlier ones within a round.
	VariationHint string

	// FirstHint is the extra directive used for the first variant of a
	// rewriting tone; empty for non-rewriting tones.
	FirstHint string
}

// Presets maps each supported tone to its prompting behavior.
var Presets = map[Tone]Preset{
	ToneOriginal: {
		Label:         "Original (Minimal change)",
		Description:   "Fix grammar, spelling, and punctuation without changing the author's voice.",
		Rewrite:       false,
		Instruction:   "Fix ONLY grammar, spelling, and punctuation errors. Do not introduce new wording. Preserve the writer's tone exactly.",
		VariationHint: "Keep the user's phrasing intact and only repair mistakes.",
	},
	ToneProfessional: {
		Label:         "Professional",
		Description:   "Confident, concise tone appropriate for workplace communication.",
		Rewrite:       true,
		Instruction:   "Rewrite the passage so it sounds professional, confident, and precise while preserving its meaning.",
		VariationHint: "Keep it polished and direct while ensuring it feels distinct from other variants.",
		FirstHint:     "Focus on clarity and impact suitable for executives or clients.",
	},
	ToneFormal: {
		Label:         "Formal",
		Description:   "Polished tone suitable for reports, policies, or academic writing.",
		Rewrite:       true,
		Instruction:   "Rewrite with a formal, polished tone that favors precise, structured sentences.",
		VariationHint: "Maintain courtesy and structure appropriate for official documents.",
		FirstHint:     "Avoid contractions and keep the language refined.",
	},
	ToneInformal: {
		Label:         "Informal",
		Description:   "Relaxed, conversational voice ideal for casual updates.",
		Rewrite:       true,
		Instruction:   "Rewrite in an informal, conversational tone that feels natural and approachable.",
		VariationHint: "Keep it easy-going and friendly while staying true to the facts.",
		FirstHint:     "Use simple phrasing and contractions where natural.",
	},
	ToneDetailed: {
		Label:         "Detailed",
		Description:   "Enhance clarity with moderate elaboration and proper formatting.",
		Rewrite:       true,
		Instruction:   "Refine and enhance the content with moderate elaboration. Add relevant context and clarifications where needed to improve understanding. Use bullet points or structured formatting only when it genuinely improves clarity. Keep the output well-organized and moderately detailed, enough to be clear and informative, but not overly verbose or redundant.",
		VariationHint: "Strike a balance between clarity and conciseness while adding helpful structure.",
		FirstHint:     "Enhance the content with just enough detail and formatting to improve readability.",
	},
	ToneCreative: {
		Label:         "Creative",
		Description:   "Expressive tone with vibrant wording and varied rhythm.",
		Rewrite:       true,
		Instruction:   "Rewrite with vivid, creative language while respecting the original meaning and details.",
		VariationHint: "Experiment with expressive phrasing and rhythm to keep it fresh.",
		FirstHint:     "Introduce interesting cadence or imagery while staying clear.",
	},
}

// ParseTone validates a tone name from configuration.
func ParseTone(s string) (Tone, error) {
	t := Tone(s)
	if _, ok := Presets[t]; !ok {
		return "", fmt.Errorf("corrector: unknown tone %q", s)
	}
	return t, nil
}

// Request carries one correction call's inputs.
type Request struct {
	// Text is the user-typed source text.
	Text string

	// Tone selects the rewriting style. Unknown tones degrade to
	// ToneOriginal at prompt-build time.
	Tone Tone

	// Temperature controls sampling randomness in [0.0, 2.0].
	Temperature float64

	// Variant is the zero-based index of this request within its round,
	// used to differentiate prompts for repeated tones.
	Variant int
}

// Provider is the abstraction over any correction backend.
//
// Correct sends the request to the model and returns the corrected text
// already stripped of quotes, preambles and markdown fences. It must
// propagate context cancellation promptly; the candidate generator imposes
// a whole-round deadline through ctx.
type Provider interface {
	Correct(ctx context.Context, req Request) (string, error)
}
