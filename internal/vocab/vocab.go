// Package vocab corrects dictated text against a user-supplied vocabulary.
//
// Recognition engines routinely butcher uncommon proper nouns and project
// jargon ("open telemetry" for "OpenTelemetry", "corrects" for "correx").
// The matcher repairs them in two stages:
//
//  1. Phonetic filtering: Double Metaphone codes are computed for the
//     dictated token(s) and for each vocabulary entry; entries sharing at
//     least one code become candidates.
//
//  2. Jaro-Winkler ranking: among candidates, the entry with the highest
//     Jaro-Winkler similarity wins, provided it clears the phonetic
//     threshold. When no phonetic candidate exists, a stricter pure
//     similarity threshold applies instead.
//
// Multi-word vocabulary entries are handled by scanning bigrams of the
// dictated text before single tokens.
package vocab

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.88
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically-matched entry to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// candidate exists. Default: 0.88.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

type entry struct {
	word   string
	lower  string
	tokens []string
	codes  map[string]struct{}
}

// Matcher rewrites dictated text using a fixed vocabulary. It is read-only
// after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	entries           []entry
}

// New builds a Matcher over the given vocabulary words. Blank entries are
// dropped.
func New(words []string, opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		lower := strings.ToLower(w)
		tokens := strings.Fields(lower)
		m.entries = append(m.entries, entry{
			word:   w,
			lower:  lower,
			tokens: tokens,
			codes:  codesFor(tokens),
		})
	}
	return m
}

// Empty reports whether the matcher has no vocabulary.
func (m *Matcher) Empty() bool { return len(m.entries) == 0 }

// Apply rewrites text, replacing tokens (and adjacent token pairs) that
// phonetically match a vocabulary entry. Tokens that match an entry
// exactly, ignoring case, are replaced with the entry's canonical spelling
// too, so "openai" becomes "OpenAI".
func (m *Matcher) Apply(text string) string {
	if m.Empty() || strings.TrimSpace(text) == "" {
		return text
	}

	tokens := strings.Fields(text)
	out := make([]string, 0, len(tokens))

	for i := 0; i < len(tokens); i++ {
		// Bigram first so multi-word entries win over their halves.
		if i+1 < len(tokens) {
			pair := tokens[i] + " " + tokens[i+1]
			if repl, _, ok := m.match(pair); ok && strings.Contains(repl, " ") {
				out = append(out, carryPunct(pair, repl))
				i++
				continue
			}
		}
		if repl, _, ok := m.match(tokens[i]); ok {
			out = append(out, carryPunct(tokens[i], repl))
			continue
		}
		out = append(out, tokens[i])
	}
	return strings.Join(out, " ")
}

// match finds the best vocabulary entry for the given token or phrase.
// When matched is false, corrected equals the input unchanged.
func (m *Matcher) match(word string) (corrected string, confidence float64, matched bool) {
	lower := strings.ToLower(strings.Trim(word, ".,!?;:\"'"))
	if lower == "" {
		return word, 0, false
	}
	tokens := strings.Fields(lower)
	inputCodes := codesFor(tokens)

	type candidate struct {
		entry    *entry
		score    float64
		phonetic bool
	}
	var best candidate

	for i := range m.entries {
		e := &m.entries[i]
		if lower == e.lower {
			return e.word, 1, true
		}

		score := bestSimilarity(tokens, e.tokens, lower, e.lower)
		if overlap(inputCodes, e.codes) {
			if score >= m.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = candidate{entry: e, score: score, phonetic: true}
			}
		} else if !best.phonetic && score >= m.fuzzyThreshold && score > best.score {
			best = candidate{entry: e, score: score}
		}
	}

	if best.entry != nil {
		return best.entry.word, best.score, true
	}
	return word, 0, false
}

// carryPunct re-attaches trailing punctuation from the original token to
// the replacement.
func carryPunct(orig, repl string) string {
	trimmed := strings.TrimRight(orig, ".,!?;:\"'")
	return repl + orig[len(trimmed):]
}

// codesFor returns the union of Double Metaphone codes for the tokens.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity takes the highest Jaro-Winkler score across full-string,
// space-stripped, and pairwise token comparisons.
func bestSimilarity(inTokens, entryTokens []string, inFull, entryFull string) float64 {
	score := matchr.JaroWinkler(inFull, entryFull, false)

	if len(inTokens) > 1 || len(entryTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inTokens, ""), strings.Join(entryTokens, ""), false); s > score {
			score = s
		}
	}
	for _, it := range inTokens {
		for _, et := range entryTokens {
			if s := matchr.JaroWinkler(it, et, false); s > score {
				score = s
			}
		}
	}
	return score
}
