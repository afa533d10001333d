package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/correx/correx/internal/candidate"
	"github.com/correx/correx/internal/history"
	"github.com/correx/correx/internal/keybuf"
	"github.com/correx/correx/internal/observe"
	"github.com/correx/correx/internal/replacer"
	rmock "github.com/correx/correx/internal/replacer/mock"
	"github.com/correx/correx/pkg/provider/corrector"
	cmock "github.com/correx/correx/pkg/provider/corrector/mock"
	"github.com/correx/correx/pkg/types"
)

type fakeWindows struct{ active types.WindowID }

func (f fakeWindows) ActiveWindow() types.WindowID     { return f.active }
func (f fakeWindows) WindowExists(types.WindowID) bool { return true }

type harness struct {
	corrector *Corrector
	auto      *rmock.Automation
	buf       *keybuf.Buffer
	provider  *cmock.Provider
	window    types.WindowID
	mu        *sync.Mutex
}

func newHarness(t *testing.T, provider *cmock.Provider, settings []candidate.Setting, opts ...CorrectorOption) *harness {
	t.Helper()
	mu := &sync.Mutex{}
	buf := keybuf.New(keybuf.WindowProbeFunc(func(types.WindowID) bool { return true }))
	auto := &rmock.Automation{}
	eng := replacer.New(auto,
		replacer.WithSettleDelay(time.Millisecond),
		replacer.WithBackoffBase(time.Millisecond))
	gen := candidate.New(provider, candidate.WithRoundTimeout(2*time.Second))

	window := types.WindowID(42)
	c := NewCorrector(mu, buf, gen, eng, fakeWindows{active: window}, nil,
		append([]CorrectorOption{WithSettings(settings)}, opts...)...)
	return &harness{corrector: c, auto: auto, buf: buf, provider: provider, window: window, mu: mu}
}

func typeText(h *harness, text string) {
	for _, r := range text {
		h.buf.RecordRune(h.window, r)
	}
	h.auto.ControlText = h.buf.Text(h.window, 0)
}

func TestTriggerReplacesWithFirstCandidate(t *testing.T) {
	provider := &cmock.Provider{Response: "This sentence has bad grammar."}
	h := newHarness(t, provider, []candidate.Setting{{Temperature: 0.3}})
	typeText(h, "this sentence have bad grammer")

	h.corrector.Trigger(context.Background())

	if got := h.corrector.State(); got != StateNavigating {
		t.Fatalf("state = %v, want %v", got, StateNavigating)
	}
	if got := h.auto.ControlText; got != "This sentence has bad grammar." {
		t.Fatalf("control text = %q", got)
	}
	if got := h.buf.Text(h.window, 0); got != "This sentence has bad grammar." {
		t.Fatalf("buffer write-back = %q", got)
	}
}

func TestTriggerShortTextShortCircuits(t *testing.T) {
	provider := &cmock.Provider{}
	h := newHarness(t, provider, nil)
	typeText(h, "a")

	h.corrector.Trigger(context.Background())

	if got := h.corrector.State(); got != StateIdle {
		t.Fatalf("state = %v, want %v", got, StateIdle)
	}
	if provider.CallCount() != 0 {
		t.Fatalf("provider called %d times for short text", provider.CallCount())
	}
}

func TestTriggerWhileCorrectingIgnored(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 8)
	provider := &cmock.Provider{
		CorrectFunc: func(ctx context.Context, req corrector.Request) (string, error) {
			started <- struct{}{}
			select {
			case <-release:
			case <-ctx.Done():
			}
			return "fixed text", nil
		},
	}
	h := newHarness(t, provider, []candidate.Setting{{Temperature: 0.3}})
	typeText(h, "some broken text")

	done := make(chan struct{})
	go func() {
		h.corrector.Trigger(context.Background())
		close(done)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first round never reached the provider")
	}

	// Second trigger while the first round is in flight must be dropped.
	h.corrector.Trigger(context.Background())
	if provider.CallCount() != 1 {
		t.Fatalf("provider called %d times, re-entrant trigger not ignored", provider.CallCount())
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("first round never resolved")
	}
	if got := h.corrector.State(); got != StateNavigating {
		t.Fatalf("state after round = %v, want %v", got, StateNavigating)
	}
}

func TestNavigateWraps(t *testing.T) {
	// Key responses off the temperature so candidate order is the
	// submission order, not the workers' completion order.
	byTemp := map[float64]string{0.3: "one", 0.5: "two", 0.7: "three"}
	provider := &cmock.Provider{
		CorrectFunc: func(_ context.Context, req corrector.Request) (string, error) {
			return byTemp[req.Temperature], nil
		},
	}
	h := newHarness(t, provider, []candidate.Setting{
		{Temperature: 0.3}, {Temperature: 0.5}, {Temperature: 0.7},
	})
	typeText(h, "source text here")

	h.corrector.Trigger(context.Background())

	ctx := context.Background()
	h.corrector.Navigate(ctx, 1)
	h.corrector.Navigate(ctx, 1)
	if _, idx, total, _ := h.corrector.Selected(); idx != 2 || total != 3 {
		t.Fatalf("selected index = %d/%d, want 2/3", idx, total)
	}

	h.corrector.Navigate(ctx, 1)
	if text, idx, _, _ := h.corrector.Selected(); idx != 0 || text != "one" {
		t.Fatalf("after wrap: index %d text %q, want 0 %q", idx, text, "one")
	}

	h.corrector.Navigate(ctx, -1)
	if _, idx, _, _ := h.corrector.Selected(); idx != 2 {
		t.Fatalf("backward wrap: index %d, want 2", idx)
	}
}

func TestAnyOtherKeyEndsNavigation(t *testing.T) {
	provider := &cmock.Provider{Response: "corrected words"}
	h := newHarness(t, provider, []candidate.Setting{{Temperature: 0.3}})
	typeText(h, "original words")

	h.corrector.Trigger(context.Background())
	if got := h.corrector.State(); got != StateNavigating {
		t.Fatalf("state = %v, want %v", got, StateNavigating)
	}

	h.corrector.HandleKey(types.KeyEvent{Key: "x", Rune: 'x', Pressed: true, Window: h.window})

	if got := h.corrector.State(); got != StateIdle {
		t.Fatalf("state after keystroke = %v, want %v", got, StateIdle)
	}
	// The ending keystroke still lands in the buffer.
	if got := h.buf.Text(h.window, 0); got != "corrected wordsx" {
		t.Fatalf("buffer = %q", got)
	}
	if _, _, _, ok := h.corrector.Selected(); ok {
		t.Fatal("candidate set must be cleared")
	}
}

func TestModifierPressKeepsNavigation(t *testing.T) {
	provider := &cmock.Provider{Response: "corrected words"}
	h := newHarness(t, provider, []candidate.Setting{{Temperature: 0.3}})
	typeText(h, "original words")

	h.corrector.Trigger(context.Background())
	h.corrector.HandleKey(types.KeyEvent{Pressed: true, Window: h.window}) // bare shift

	if got := h.corrector.State(); got != StateNavigating {
		t.Fatalf("state = %v, want %v", got, StateNavigating)
	}
}

func TestReplacementFailureStillNavigates(t *testing.T) {
	provider := &cmock.Provider{Response: "corrected words"}
	h := newHarness(t, provider, []candidate.Setting{{Temperature: 0.3}})
	typeText(h, "original words")
	h.auto.ControlText = "entirely different window content"

	notices := make(chan types.Notice, 8)
	h.corrector.notices = notices

	h.corrector.Trigger(context.Background())

	if got := h.corrector.State(); got != StateNavigating {
		t.Fatalf("state = %v, want %v", got, StateNavigating)
	}
	// Buffer must keep the original text when nothing was replaced.
	if got := h.buf.Text(h.window, 0); got != "original words" {
		t.Fatalf("buffer = %q, want original", got)
	}

	var sawFailure bool
	for len(notices) > 0 {
		if n := <-notices; n.Kind == types.NoticeReplaceFailed {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Fatal("expected a replacement-failure notice")
	}
}

func TestStopClearsRound(t *testing.T) {
	provider := &cmock.Provider{Response: "corrected words"}
	h := newHarness(t, provider, []candidate.Setting{{Temperature: 0.3}})
	typeText(h, "original words")

	h.corrector.Trigger(context.Background())
	h.corrector.Stop()

	if got := h.corrector.State(); got != StateIdle {
		t.Fatalf("state = %v, want %v", got, StateIdle)
	}
	if _, _, _, ok := h.corrector.Selected(); ok {
		t.Fatal("candidate set must be cleared on stop")
	}
}

func TestAcceptedCandidateRecorded(t *testing.T) {
	provider := &cmock.Provider{Response: "Recorded result."}
	store := history.NewMemoryStore(10)
	h := newHarness(t, provider, []candidate.Setting{{Tone: "formal", Temperature: 0.3}},
		WithHistory(store))
	typeText(h, "recorded sorce")

	h.corrector.Trigger(context.Background())
	h.corrector.Stop()

	waitFor(t, func() bool {
		entries, _ := store.Recent(context.Background(), 1)
		return len(entries) == 1
	})
	entries, _ := store.Recent(context.Background(), 1)
	e := entries[0]
	if e.Kind != history.KindCorrection || e.Source != "recorded sorce" || e.Result != "Recorded result." {
		t.Fatalf("entry = %+v", e)
	}
	if e.Tone != "formal" || e.Version != 0 || e.Total != 1 {
		t.Fatalf("entry metadata = %+v", e)
	}
}

func TestUnchangedCandidateNotRecorded(t *testing.T) {
	// All provider slots fail, so the round falls back to the source text.
	provider := &cmock.Provider{Err: context.DeadlineExceeded}
	store := history.NewMemoryStore(10)
	h := newHarness(t, provider, []candidate.Setting{{Temperature: 0.3}},
		WithHistory(store))
	typeText(h, "unchanged words")

	h.corrector.Trigger(context.Background())
	h.corrector.Stop()

	time.Sleep(50 * time.Millisecond)
	if entries, _ := store.Recent(context.Background(), 0); len(entries) != 0 {
		t.Fatalf("fallback round must not be recorded, got %+v", entries)
	}
}

func roundCount(t *testing.T, reader *sdkmetric.ManualReader, status string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "correx.correction.rounds" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("correx.correction.rounds is %T, want Sum[int64]", m.Data)
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

func TestTriggerCountsRounds(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	provider := &cmock.Provider{Response: "This sentence has bad grammar."}
	h := newHarness(t, provider, []candidate.Setting{{Temperature: 0.3}},
		WithCorrectorMetrics(m))
	typeText(h, "this sentence have bad grammer")

	h.corrector.Trigger(context.Background())

	if got := roundCount(t, reader, "ok"); got != 1 {
		t.Fatalf("rounds with status ok = %d, want 1", got)
	}
	if got := roundCount(t, reader, "replace_failed"); got != 0 {
		t.Fatalf("rounds with status replace_failed = %d, want 0", got)
	}
}

func TestFailedReplacementCountedAsSuch(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	provider := &cmock.Provider{Response: "Fixed text."}
	h := newHarness(t, provider, []candidate.Setting{{Temperature: 0.3}},
		WithCorrectorMetrics(m))
	typeText(h, "some broken text")
	h.auto.ControlText = "entirely different window content"

	h.corrector.Trigger(context.Background())

	if got := roundCount(t, reader, "replace_failed"); got != 1 {
		t.Fatalf("rounds with status replace_failed = %d, want 1", got)
	}
}
