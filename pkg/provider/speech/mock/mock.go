// Package mock provides a test double for the speech.Engine interface.
//
// Example:
//
//	e := &mock.Engine{EngineName: "fake", Text: "hello world"}
//	text, err := e.Recognize(ctx, clip)
package mock

import (
	"context"
	"sync"

	"github.com/correx/correx/pkg/audio"
	"github.com/correx/correx/pkg/provider/speech"
)

// Call records a single invocation of Recognize.
type Call struct {
	// Ctx is the context passed to Recognize.
	Ctx context.Context
	// Clip is the audio passed to Recognize.
	Clip audio.Clip
}

// Result is one scripted outcome for a Recognize call.
type Result struct {
	Text string
	Err  error
}

// Engine is a mock implementation of speech.Engine. Results is consumed
// one entry per call; once exhausted, Text and Err apply to every call.
// A zero-value Engine returns speech.ErrNotRecognized.
type Engine struct {
	mu sync.Mutex

	// EngineName is returned by Name. Defaults to "mock".
	EngineName string

	// Results is the scripted sequence of outcomes.
	Results []Result

	// Text is the steady-state response once Results is exhausted.
	Text string

	// Err is the steady-state error once Results is exhausted.
	Err error

	// Calls records every invocation of Recognize in order.
	Calls []Call
}

var _ speech.Engine = (*Engine)(nil)

// Name implements speech.Engine.
func (e *Engine) Name() string {
	if e.EngineName == "" {
		return "mock"
	}
	return e.EngineName
}

// Recognize implements speech.Engine.
func (e *Engine) Recognize(ctx context.Context, clip audio.Clip) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, Call{Ctx: ctx, Clip: clip})

	if len(e.Results) > 0 {
		r := e.Results[0]
		e.Results = e.Results[1:]
		return r.Text, r.Err
	}
	if e.Err != nil {
		return "", e.Err
	}
	if e.Text != "" {
		return e.Text, nil
	}
	return "", speech.ErrNotRecognized
}

// CallCount returns the number of recorded Recognize invocations.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}
