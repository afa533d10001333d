package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing() error  { return errBoom }
func succeeds() error { return nil }

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{Name: "t", MaxFailures: 3, ResetTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		if err := cb.Execute(failing); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State = %v, want open", got)
	}
	if err := cb.Execute(succeeds); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker should reject, got %v", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	_ = cb.Execute(failing)
	_ = cb.Execute(succeeds)
	_ = cb.Execute(failing)
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State = %v, want closed (failures interleaved with success)", got)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMax: 2})

	_ = cb.Execute(failing)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State = %v, want open", got)
	}

	time.Sleep(5 * time.Millisecond)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("State = %v, want half-open after reset timeout", got)
	}

	// Two successful probes close the breaker.
	if err := cb.Execute(succeeds); err != nil {
		t.Fatalf("probe 1: %v", err)
	}
	if err := cb.Execute(succeeds); err != nil {
		t.Fatalf("probe 2: %v", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State = %v, want closed", got)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Millisecond})

	_ = cb.Execute(failing)
	time.Sleep(5 * time.Millisecond)
	_ = cb.Execute(failing)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State = %v, want open after failed probe", got)
	}
}

func TestExecuteIgnoringDoesNotCharge(t *testing.T) {
	miss := errors.New("miss")
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	for i := 0; i < 10; i++ {
		err := cb.ExecuteIgnoring(func() error { return miss }, func(e error) bool { return errors.Is(e, miss) })
		if !errors.Is(err, miss) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State = %v, ignored errors must not trip the breaker", got)
	}
}

func TestBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(failing)
	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State = %v after Reset", got)
	}
}
