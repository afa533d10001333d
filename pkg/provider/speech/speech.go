// Package speech defines the Engine interface for speech recognition
// backends used by dictation.
//
// Unlike a streaming transcription pipeline, dictation works one utterance
// at a time: the capture layer hands an Engine a finished audio clip and
// expects either the recognized text or ErrNotRecognized. Engines are
// arranged in an ordered chain by the resilience layer; a miss from one
// engine sends the clip to the next.
//
// Implementations must be safe for concurrent use.
package speech

import (
	"context"
	"errors"

	"github.com/correx/correx/pkg/audio"
)

// ErrNotRecognized is returned when the engine processed the audio but
// found no intelligible speech. It marks an ordinary miss, not an engine
// failure: the fallback chain treats it differently from transport or auth
// errors when deciding whether to trip a circuit breaker.
var ErrNotRecognized = errors.New("speech: not recognized")

// Engine is the abstraction over any speech recognition backend.
type Engine interface {
	// Name identifies the engine in logs and metrics.
	Name() string

	// Recognize transcribes one utterance. It returns ErrNotRecognized
	// when the audio contains no intelligible speech, and other errors for
	// transport, auth, or decoding failures.
	Recognize(ctx context.Context, clip audio.Clip) (string, error)
}
