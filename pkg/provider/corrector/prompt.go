package corrector

import "strings"

// BuildPrompt creates the tone-conditioned prompt for a request. Tones that
// do not rewrite get a strict repair-only framing; rewriting tones get the
// tone instruction plus a variant-dependent hint so parallel requests for
// the same tone diverge.
func BuildPrompt(req Request) string {
	preset, ok := Presets[req.Tone]
	if !ok {
		preset = Presets[ToneOriginal]
	}

	if !preset.Rewrite {
		return strings.Join([]string{
			"You are a text autocorrect engine.",
			preset.Instruction,
			preset.VariationHint,
			"Return ONLY the corrected text, no explanations or quotes.",
		}, "\n") + "\n\nInput: " + req.Text + "\n\nCorrected:"
	}

	extra := preset.FirstHint
	if req.Variant > 0 {
		extra = preset.VariationHint
	}

	lines := []string{
		"You are a text rewriting engine.",
		preset.Instruction,
	}
	if extra != "" {
		lines = append(lines, extra)
	}
	lines = append(lines,
		"Preserve the original meaning, factual details, and intent.",
		"Return ONLY the rewritten text, no explanations or quotes.",
	)
	return strings.Join(lines, "\n") + "\n\nInput: " + req.Text + "\n\nRewritten:"
}

// answerPrefixes are preambles models prepend despite being told not to.
var answerPrefixes = []string{
	"here is the corrected text:",
	"here's the corrected text:",
	"corrected text:",
	"corrected version:",
	"corrected:",
	"output:",
	"result:",
	"fixed:",
	"here is:",
	"here's:",
}

// Clean strips the decoration a model may wrap around its answer: a fully
// quoted response, a "Here is the corrected text:" style preamble, and
// markdown code fences.
func Clean(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if len(text) >= 2 {
		if (text[0] == '"' && text[len(text)-1] == '"') ||
			(text[0] == '\'' && text[len(text)-1] == '\'') {
			text = text[1 : len(text)-1]
		}
	}

	lower := strings.ToLower(text)
	for _, prefix := range answerPrefixes {
		if strings.HasPrefix(lower, prefix) {
			text = strings.TrimSpace(text[len(prefix):])
			break
		}
	}

	if strings.HasPrefix(text, "```") && strings.HasSuffix(text, "```") && len(text) >= 6 {
		text = strings.TrimSpace(text[3 : len(text)-3])
		// Drop a leading language identifier line.
		if first, rest, ok := strings.Cut(text, "\n"); ok && isWord(strings.TrimSpace(first)) {
			text = strings.TrimSpace(rest)
		}
	}

	return strings.TrimSpace(text)
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
