// Package mock provides a scripted test double for the audio.Capture
// interface.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/correx/correx/pkg/audio"
)

// ListenResult is one scripted outcome for a Listen call.
type ListenResult struct {
	Clip audio.Clip
	Err  error
}

// Capture is a mock implementation of audio.Capture. Listen consumes
// Results in order; once exhausted it blocks until ctx is done and returns
// audio.ErrNoSpeech, which mimics a quiet microphone.
type Capture struct {
	mu sync.Mutex

	// Results is the scripted sequence of Listen outcomes.
	Results []ListenResult

	// CalibrateErr, if non-nil, is returned by Calibrate.
	CalibrateErr error

	// Ambient is the level Calibrate reports.
	Ambient float64

	// CalibrateCalls counts Calibrate invocations.
	CalibrateCalls int

	// ListenCalls counts Listen invocations.
	ListenCalls int

	// Closed reports whether Close was called.
	Closed bool
}

var _ audio.Capture = (*Capture)(nil)

// Calibrate implements audio.Capture.
func (c *Capture) Calibrate(_ context.Context, _ time.Duration) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CalibrateCalls++
	if c.CalibrateErr != nil {
		return 0, c.CalibrateErr
	}
	return c.Ambient, nil
}

// Listen implements audio.Capture.
func (c *Capture) Listen(ctx context.Context, _ time.Duration) (audio.Clip, error) {
	c.mu.Lock()
	c.ListenCalls++
	if c.Closed {
		c.mu.Unlock()
		return audio.Clip{}, audio.ErrCaptureClosed
	}
	if len(c.Results) > 0 {
		r := c.Results[0]
		c.Results = c.Results[1:]
		c.mu.Unlock()
		return r.Clip, r.Err
	}
	c.mu.Unlock()

	<-ctx.Done()
	return audio.Clip{}, audio.ErrNoSpeech
}

// Close implements audio.Capture.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}
