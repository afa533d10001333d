package candidate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/correx/correx/internal/observe"
	"github.com/correx/correx/pkg/provider/corrector"
	"github.com/correx/correx/pkg/provider/corrector/mock"
)

func TestGenerateEchoProviderDeduplicates(t *testing.T) {
	p := &mock.Provider{} // echoes its input
	g := New(p)

	got := g.Generate(context.Background(), "hello", DefaultSettings())
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("Generate = %v, want [hello]", got)
	}
	if p.CallCount() != len(DefaultSettings()) {
		t.Fatalf("CallCount = %d, want %d", p.CallCount(), len(DefaultSettings()))
	}
}

func TestGenerateAllFailuresSubstituteSource(t *testing.T) {
	p := &mock.Provider{Err: errors.New("provider down")}
	g := New(p)

	source := "this sentence have bad grammer"
	got := g.Generate(context.Background(), source, []Setting{
		{Temperature: 0.3, Tone: corrector.ToneOriginal},
		{Temperature: 0.6, Tone: corrector.ToneFormal},
	})
	if len(got) != 1 || got[0] != source {
		t.Fatalf("Generate = %v, want [%q]", got, source)
	}
}

func TestGeneratePreservesSubmissionOrder(t *testing.T) {
	p := &mock.Provider{
		CorrectFunc: func(_ context.Context, req corrector.Request) (string, error) {
			// Finish later slots faster to expose reordering bugs.
			time.Sleep(time.Duration(5-req.Variant) * 5 * time.Millisecond)
			return fmt.Sprintf("variant-%d", req.Variant), nil
		},
	}
	g := New(p)

	got := g.Generate(context.Background(), "src", DefaultSettings())
	want := []string{"variant-0", "variant-1", "variant-2", "variant-3", "variant-4"}
	if len(got) != len(want) {
		t.Fatalf("Generate returned %d candidates, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGeneratePartialFailure(t *testing.T) {
	p := &mock.Provider{
		CorrectFunc: func(_ context.Context, req corrector.Request) (string, error) {
			if req.Variant == 1 {
				return "", errors.New("boom")
			}
			return fmt.Sprintf("ok-%d", req.Variant), nil
		},
	}
	g := New(p)

	got := g.Generate(context.Background(), "src", []Setting{
		{Temperature: 0.3, Tone: corrector.ToneOriginal},
		{Temperature: 0.6, Tone: corrector.ToneFormal},
		{Temperature: 0.7, Tone: corrector.ToneDetailed},
	})
	want := []string{"ok-0", "src", "ok-2"}
	if len(got) != len(want) {
		t.Fatalf("Generate = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGenerateRoundDeadline(t *testing.T) {
	p := &mock.Provider{
		CorrectFunc: func(ctx context.Context, req corrector.Request) (string, error) {
			<-ctx.Done() // never completes on its own
			return "", ctx.Err()
		},
	}
	g := New(p, WithRoundTimeout(20*time.Millisecond))

	start := time.Now()
	got := g.Generate(context.Background(), "src", []Setting{
		{Temperature: 0.3, Tone: corrector.ToneOriginal},
	})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("round did not respect deadline, took %v", elapsed)
	}
	if len(got) != 1 || got[0] != "src" {
		t.Fatalf("Generate = %v, want [src]", got)
	}
}

func TestGenerateBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	p := &mock.Provider{
		CorrectFunc: func(_ context.Context, req corrector.Request) (string, error) {
			n := inFlight.Add(1)
			mu.Lock()
			if n > peak.Load() {
				peak.Store(n)
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			return fmt.Sprintf("v%d", req.Variant), nil
		},
	}
	g := New(p, WithWorkers(3))

	g.Generate(context.Background(), "src", DefaultSettings())
	if peak.Load() > 3 {
		t.Fatalf("peak concurrency %d exceeds pool size 3", peak.Load())
	}
}

func TestNormalizeSettings(t *testing.T) {
	if got := NormalizeSettings(nil); len(got) != len(DefaultSettings()) {
		t.Fatalf("empty input should yield defaults, got %v", got)
	}

	got := NormalizeSettings([]Setting{
		{Temperature: 9.9, Tone: corrector.ToneFormal},
		{Temperature: 0.5, Tone: corrector.Tone("bogus")},
	})
	if got[0].Temperature != DefaultSettings()[0].Temperature {
		t.Errorf("out-of-range temperature not replaced: %v", got[0])
	}
	if got[0].Tone != corrector.ToneFormal {
		t.Errorf("valid tone should be kept, got %v", got[0].Tone)
	}
	if got[1].Tone != DefaultSettings()[1].Tone {
		t.Errorf("unknown tone not replaced: %v", got[1])
	}

	long := make([]Setting, MaxCandidates+3)
	for i := range long {
		long[i] = Setting{Temperature: 0.5, Tone: corrector.ToneOriginal}
	}
	if got := NormalizeSettings(long); len(got) != MaxCandidates {
		t.Fatalf("settings not capped, len = %d", len(got))
	}
}

func TestNormalizeSettings_TemperatureRange(t *testing.T) {
	// Valid sampling temperatures live in (0, 1]; anything outside is
	// replaced with the slot's positional default.
	cases := []struct {
		temp float64
		keep bool
	}{
		{0.01, true},
		{1.0, true},
		{1.5, false},
		{0, false},
		{-0.3, false},
	}
	for _, tc := range cases {
		got := NormalizeSettings([]Setting{{Temperature: tc.temp, Tone: corrector.ToneOriginal}})
		if tc.keep && got[0].Temperature != tc.temp {
			t.Errorf("temperature %v should be kept, got %v", tc.temp, got[0].Temperature)
		}
		if !tc.keep && got[0].Temperature != DefaultSettings()[0].Temperature {
			t.Errorf("temperature %v should be replaced with the default, got %v", tc.temp, got[0].Temperature)
		}
	}
}

func candidateCount(t *testing.T, reader *sdkmetric.ManualReader, status string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "correx.candidates" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("correx.candidates is %T, want Sum[int64]", m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				for _, kv := range dp.Attributes.ToSlice() {
					if string(kv.Key) == "status" && kv.Value.AsString() == status {
						total += dp.Value
					}
				}
			}
			return total
		}
	}
	return 0
}

func TestGenerateCountsCandidates(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	var calls atomic.Int64
	p := &mock.Provider{
		CorrectFunc: func(_ context.Context, req corrector.Request) (string, error) {
			if calls.Add(1) == 1 {
				return "", errors.New("provider down")
			}
			return fmt.Sprintf("fixed %v", req.Temperature), nil
		},
	}
	g := New(p, WithMetrics(m))

	settings := []Setting{{Temperature: 0.3}, {Temperature: 0.5}, {Temperature: 0.7}}
	g.Generate(context.Background(), "broken text", settings)

	if got := candidateCount(t, reader, "ok"); got != 2 {
		t.Errorf("ok candidates = %d, want 2", got)
	}
	if got := candidateCount(t, reader, "substituted"); got != 1 {
		t.Errorf("substituted candidates = %d, want 1", got)
	}
}
