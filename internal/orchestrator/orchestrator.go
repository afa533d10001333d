// Package orchestrator coordinates keystroke triggers, candidate
// generation, text replacement, and dictation into the two state machines
// that drive the daemon.
//
// Correction and dictation are independent machines sharing one mutex.
// The lock serializes every mutation of orchestrator state, the keystroke
// buffer writes performed on their behalf, and the clipboard critical
// section inside a replacement attempt, so no two replacements can
// interleave clipboard use.
package orchestrator

import (
	"github.com/correx/correx/pkg/types"
)

// State enumerates the correction machine's phases.
type State int

const (
	// StateIdle means no correction round is active.
	StateIdle State = iota
	// StateCorrecting means a generation round is in flight. Further
	// correction triggers are ignored until it resolves.
	StateCorrecting
	// StateNavigating means a candidate set is live and navigation keys
	// cycle through it.
	StateNavigating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCorrecting:
		return "correcting"
	case StateNavigating:
		return "navigating"
	default:
		return "unknown"
	}
}

// DictationState enumerates the dictation machine's phases.
type DictationState int

const (
	// DictationIdle means the listen loop is not running.
	DictationIdle DictationState = iota
	// DictationListening means the listen loop is capturing utterances.
	DictationListening
)

func (s DictationState) String() string {
	switch s {
	case DictationIdle:
		return "idle"
	case DictationListening:
		return "listening"
	default:
		return "unknown"
	}
}

// notify delivers a notice without ever blocking the caller. Presentation
// consumers that fall behind lose notices rather than stalling the
// orchestrators.
func notify(ch chan<- types.Notice, n types.Notice) {
	if ch == nil {
		return
	}
	select {
	case ch <- n:
	default:
	}
}
