// Package mock provides a test double for the corrector.Provider interface.
//
// Use Provider in unit tests to verify the requests the candidate
// generator sends and to feed controlled responses without a live backend.
// All configuration fields are safe to set before calling any method;
// mutating them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{Response: "Fixed."}
//	out, err := p.Correct(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/correx/correx/pkg/provider/corrector"
)

// Call records a single invocation of Correct.
type Call struct {
	// Ctx is the context passed to Correct.
	Ctx context.Context
	// Req is the request passed to Correct.
	Req corrector.Request
}

// Provider is a mock implementation of corrector.Provider.
// Zero values cause Correct to echo the request text with a nil error.
type Provider struct {
	mu sync.Mutex

	// Response, if non-empty, is returned by every Correct call.
	Response string

	// Responses, if non-empty, is consumed one entry per call (after it is
	// exhausted, Response or the echo fallback applies).
	Responses []string

	// Err, if non-nil, is returned by every Correct call.
	Err error

	// CorrectFunc, if non-nil, overrides all other configuration.
	CorrectFunc func(ctx context.Context, req corrector.Request) (string, error)

	// Delay, if non-zero, makes Correct block for the given duration or
	// until ctx is done, whichever comes first.
	Delay func() <-chan struct{}

	// Calls records every invocation of Correct in order.
	Calls []Call
}

var _ corrector.Provider = (*Provider)(nil)

// Correct implements corrector.Provider.
func (p *Provider) Correct(ctx context.Context, req corrector.Request) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})
	fn := p.CorrectFunc
	err := p.Err
	resp := p.Response
	if len(p.Responses) > 0 {
		resp = p.Responses[0]
		p.Responses = p.Responses[1:]
	}
	delay := p.Delay
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if delay != nil {
		select {
		case <-delay():
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if resp != "" {
		return resp, nil
	}
	return req.Text, nil
}

// CallCount returns the number of recorded Correct invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
