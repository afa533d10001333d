package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// sets RestartNeeded.
type ConfigDiff struct {
	TriggersChanged   bool
	CandidatesChanged bool
	VocabularyChanged bool
	DictationChanged  bool // max_utterance or denoise
	LogLevelChanged   bool
	NewLogLevel       LogLevel

	// RestartNeeded is set when providers, speech engines, history, or the
	// diagnostics endpoint changed; those are wired at startup.
	RestartNeeded bool
}

// Changed reports whether the diff carries any hot-reloadable change.
func (d ConfigDiff) Changed() bool {
	return d.TriggersChanged || d.CandidatesChanged || d.VocabularyChanged ||
		d.DictationChanged || d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Service.LogLevel != new.Service.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Service.LogLevel
	}

	if old.Triggers != new.Triggers {
		d.TriggersChanged = true
	}

	if !slices.Equal(old.Corrector.Candidates, new.Corrector.Candidates) {
		d.CandidatesChanged = true
	}

	if !slices.Equal(old.Dictation.Vocabulary, new.Dictation.Vocabulary) {
		d.VocabularyChanged = true
	}

	if old.Dictation.MaxUtterance != new.Dictation.MaxUtterance ||
		old.Dictation.Denoise != new.Dictation.Denoise {
		d.DictationChanged = true
	}

	if providersChanged(old, new) {
		d.RestartNeeded = true
	}

	return d
}

// providersChanged reports whether anything outside the hot-reloadable
// surface differs.
func providersChanged(old, new *Config) bool {
	if !old.Corrector.Provider.equal(new.Corrector.Provider) {
		return true
	}
	if len(old.Corrector.Fallbacks) != len(new.Corrector.Fallbacks) {
		return true
	}
	for i := range old.Corrector.Fallbacks {
		if !old.Corrector.Fallbacks[i].equal(new.Corrector.Fallbacks[i]) {
			return true
		}
	}
	if len(old.Speech.Engines) != len(new.Speech.Engines) {
		return true
	}
	for i := range old.Speech.Engines {
		if !old.Speech.Engines[i].equal(new.Speech.Engines[i]) {
			return true
		}
	}
	if old.History != new.History {
		return true
	}
	if old.Service.DiagnosticsAddr != new.Service.DiagnosticsAddr {
		return true
	}
	if old.Dictation.Device != new.Dictation.Device {
		return true
	}
	if old.Corrector.Workers != new.Corrector.Workers ||
		old.Corrector.RoundTimeout != new.Corrector.RoundTimeout {
		return true
	}
	return false
}

func (p ProviderEntry) equal(q ProviderEntry) bool {
	if p.Name != q.Name || p.APIKey != q.APIKey || p.BaseURL != q.BaseURL || p.Model != q.Model {
		return false
	}
	return reflect.DeepEqual(p.Options, q.Options)
}
