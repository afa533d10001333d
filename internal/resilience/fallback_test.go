package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/correx/correx/internal/observe"
)

func providerErrors(t *testing.T, reader *sdkmetric.ManualReader, provider, kind string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "correx.provider.errors" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("correx.provider.errors is %T, want Sum[int64]", m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				gotProvider, gotKind := "", ""
				for _, kv := range dp.Attributes.ToSlice() {
					switch string(kv.Key) {
					case "provider":
						gotProvider = kv.Value.AsString()
					case "kind":
						gotKind = kv.Value.AsString()
					}
				}
				if gotProvider == provider && gotKind == kind {
					total += dp.Value
				}
			}
			return total
		}
	}
	return 0
}

func newErrorMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

type namedBackend struct {
	fail bool
}

func TestFallbackCountsBackendFailures(t *testing.T) {
	m, reader := newErrorMetrics(t)

	fg := NewFallbackGroup(namedBackend{fail: true}, "openai", FallbackConfig{Metrics: m})
	fg.AddFallback("ollama", namedBackend{})

	result, err := ExecuteWithResult(fg, func(b namedBackend) (string, error) {
		if b.fail {
			return "", errors.New("rate limited")
		}
		return "corrected", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if result != "corrected" {
		t.Fatalf("result = %q, want %q", result, "corrected")
	}

	if got := providerErrors(t, reader, "openai", "request"); got != 1 {
		t.Errorf("openai request errors = %d, want 1", got)
	}
	if got := providerErrors(t, reader, "ollama", "request"); got != 0 {
		t.Errorf("ollama request errors = %d, want 0", got)
	}
}

func TestFallbackCountsOpenCircuits(t *testing.T) {
	m, reader := newErrorMetrics(t)

	fg := NewFallbackGroup(namedBackend{fail: true}, "openai", FallbackConfig{
		Breaker: BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
		Metrics: m,
	})
	fg.AddFallback("ollama", namedBackend{})

	call := func(b namedBackend) (string, error) {
		if b.fail {
			return "", errors.New("connection refused")
		}
		return "corrected", nil
	}

	// First pass trips the primary's breaker, second pass skips it.
	for range 2 {
		if _, err := ExecuteWithResult(fg, call); err != nil {
			t.Fatalf("ExecuteWithResult: %v", err)
		}
	}

	if got := providerErrors(t, reader, "openai", "request"); got != 1 {
		t.Errorf("openai request errors = %d, want 1", got)
	}
	if got := providerErrors(t, reader, "openai", "circuit_open"); got != 1 {
		t.Errorf("openai circuit_open errors = %d, want 1", got)
	}
}

func TestFallbackMissNotCounted(t *testing.T) {
	m, reader := newErrorMetrics(t)
	errMiss := errors.New("nothing recognized")

	fg := NewFallbackGroup(namedBackend{fail: true}, "deepgram", FallbackConfig{
		IsMiss:  func(err error) bool { return errors.Is(err, errMiss) },
		Metrics: m,
	})
	fg.AddFallback("whisper", namedBackend{})

	result, err := ExecuteWithResult(fg, func(b namedBackend) (string, error) {
		if b.fail {
			return "", errMiss
		}
		return "hello", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if result != "hello" {
		t.Fatalf("result = %q, want %q", result, "hello")
	}

	if got := providerErrors(t, reader, "deepgram", "request"); got != 0 {
		t.Errorf("deepgram request errors = %d, want 0", got)
	}
	if got := providerErrors(t, reader, "deepgram", "circuit_open"); got != 0 {
		t.Errorf("deepgram circuit_open errors = %d, want 0", got)
	}
}
