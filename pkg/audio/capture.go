package audio

import (
	"context"
	"errors"
	"time"
)

// Capture errors.
var (
	// ErrNoSpeech means no utterance started within the listen window.
	ErrNoSpeech = errors.New("audio: no speech detected")

	// ErrCaptureClosed means the capture device has been closed.
	ErrCaptureClosed = errors.New("audio: capture closed")
)

// Capture is a microphone source the dictation loop listens through.
//
// Implementations must be safe for use from a single dedicated goroutine;
// the dictation orchestrator never calls Listen concurrently with itself.
type Capture interface {
	// Calibrate samples ambient noise for d and returns the measured RMS
	// level. The orchestrator calls it once per listening session and
	// derives the speech threshold from the result.
	Calibrate(ctx context.Context, d time.Duration) (float64, error)

	// Listen blocks until one utterance has been captured: audio above the
	// speech threshold followed by a trailing silence, bounded by
	// maxUtterance. It returns ErrNoSpeech when nothing above the
	// threshold arrives before ctx is done.
	Listen(ctx context.Context, maxUtterance time.Duration) (Clip, error)

	// Close releases the underlying device. Listen calls after Close
	// return ErrCaptureClosed.
	Close() error
}
