package replacer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/correx/correx/internal/observe"
	"github.com/correx/correx/internal/replacer"
	"github.com/correx/correx/internal/replacer/mock"
)

func fastEngine(a *mock.Automation) *replacer.Engine {
	return replacer.New(a,
		replacer.WithSettleDelay(0),
		replacer.WithBackoffBase(time.Millisecond))
}

func TestReplacePrimaryPath(t *testing.T) {
	a := &mock.Automation{
		ClipboardText: "user clipboard",
		ControlText:   "this sentence have bad grammer",
	}
	e := fastEngine(a)

	err := e.Replace(context.Background(), "this sentence have bad grammer", "this sentence has bad grammar")
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}

	clip, control := a.Snapshot()
	if control != "this sentence has bad grammar" {
		t.Errorf("control text = %q", control)
	}
	if clip != "user clipboard" {
		t.Errorf("clipboard not restored, got %q", clip)
	}
}

func TestReplaceClipboardRestoredOnFailure(t *testing.T) {
	a := &mock.Automation{
		ClipboardText: "precious",
		ControlText:   "some text",
		PasteErr:      errors.New("paste blew up"),
	}
	a.FocusedTextErr = errors.New("no accessibility")
	e := fastEngine(a)

	if err := e.Replace(context.Background(), "some text", "other"); err == nil {
		t.Fatal("Replace should fail when paste and fallback fail")
	}
	clip, _ := a.Snapshot()
	if clip != "precious" {
		t.Errorf("clipboard not restored after failure, got %q", clip)
	}
}

func TestReplaceVerifyMismatchAborts(t *testing.T) {
	a := &mock.Automation{
		ClipboardText: "keep me",
		ControlText:   "completely different window content",
	}
	a.FocusedTextErr = errors.New("unavailable")
	e := fastEngine(a)

	err := e.Replace(context.Background(), "expected text", "replacement")
	if err == nil {
		t.Fatal("Replace should fail on verification mismatch")
	}
	if !errors.Is(err, replacer.ErrAllMethodsFailed) {
		t.Errorf("err = %v, want ErrAllMethodsFailed wrap", err)
	}

	clip, control := a.Snapshot()
	if control != "completely different window content" {
		t.Errorf("mismatched control was modified: %q", control)
	}
	if clip != "keep me" {
		t.Errorf("clipboard not restored, got %q", clip)
	}
}

func TestReplaceAccessibilityFallback(t *testing.T) {
	a := &mock.Automation{
		ClipboardText: "clip",
		ControlText:   "fix teh word here",
		CopyErr:       errors.New("copy unsupported"),
	}
	e := fastEngine(a)

	if err := e.Replace(context.Background(), "teh", "the"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	_, control := a.Snapshot()
	if control != "fix the word here" {
		t.Errorf("fallback result = %q", control)
	}
}

func TestReplaceRetriesPrimaryBeforeFallback(t *testing.T) {
	a := &mock.Automation{
		ControlText:  "abc",
		SelectAllErr: errors.New("nope"),
	}
	e := fastEngine(a)

	_ = e.Replace(context.Background(), "abc", "xyz")

	selectAlls := 0
	for _, op := range a.Ops {
		if op == "selectAll" {
			selectAlls++
		}
	}
	if selectAlls != replacer.DefaultRetries {
		t.Fatalf("selectAll attempted %d times, want %d", selectAlls, replacer.DefaultRetries)
	}
}

func TestInsertAppendsAndRestores(t *testing.T) {
	a := &mock.Automation{
		ClipboardText: "old clip",
		ControlText:   "hello ",
	}
	e := fastEngine(a)

	if err := e.Insert(context.Background(), "world"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	clip, control := a.Snapshot()
	if control != "hello world" {
		t.Errorf("control = %q, want %q", control, "hello world")
	}
	if clip != "old clip" {
		t.Errorf("clipboard not restored, got %q", clip)
	}
}

func TestFailedCaptureSkipsRestore(t *testing.T) {
	// When the initial clipboard read fails there is nothing trustworthy
	// to restore; the engine must not overwrite the clipboard with "".
	a := &mock.Automation{
		ClipboardText: "precious",
		ControlText:   "fix teh word",
		ClipboardErr:  errors.New("clipboard unavailable"),
		SelectAllErr:  errors.New("select-all rejected"),
	}
	e := fastEngine(a)

	// Every primary attempt dies before touching the clipboard, so the
	// round lands on the fallback with the clipboard untouched.
	if err := e.Replace(context.Background(), "teh", "the"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	clip, control := a.Snapshot()
	if control != "fix the word" {
		t.Errorf("fallback result = %q", control)
	}
	if clip != "precious" {
		t.Errorf("clipboard was overwritten without a capture, got %q", clip)
	}
}

func TestInsertFailedCaptureSkipsRestore(t *testing.T) {
	a := &mock.Automation{
		ClipboardText: "precious",
		ControlText:   "note: ",
		ClipboardErr:  errors.New("clipboard unavailable"),
	}
	e := fastEngine(a)

	if err := e.Insert(context.Background(), "dictated"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	_, control := a.Snapshot()
	if control != "note: dictated" {
		t.Errorf("control = %q", control)
	}
	// No restore ran, so the pasted text is still on the clipboard
	// instead of an empty string.
	if clip, _ := a.Snapshot(); clip == "" {
		t.Error("clipboard was wiped by a restore without a capture")
	}
}

func TestReplaceHonorsContext(t *testing.T) {
	a := &mock.Automation{ControlText: "abc"}
	e := replacer.New(a, replacer.WithSettleDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Replace(ctx, "abc", "xyz"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// countAttempts sums correx.replacement.attempts data points matching the
// given method and status attributes.
func countAttempts(t *testing.T, reader *sdkmetric.ManualReader, method, status string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "correx.replacement.attempts" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("correx.replacement.attempts is %T, want Sum[int64]", m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				gotMethod, gotStatus := "", ""
				for _, kv := range dp.Attributes.ToSlice() {
					switch string(kv.Key) {
					case "method":
						gotMethod = kv.Value.AsString()
					case "status":
						gotStatus = kv.Value.AsString()
					}
				}
				if gotMethod == method && gotStatus == status {
					total += dp.Value
				}
			}
			return total
		}
	}
	return 0
}

func TestReplaceRecordsAttempts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	a := &mock.Automation{
		ClipboardText: "user clipboard",
		ControlText:   "teh quick fox",
	}
	e := replacer.New(a,
		replacer.WithSettleDelay(0),
		replacer.WithBackoffBase(time.Millisecond),
		replacer.WithMetrics(m))

	if err := e.Replace(context.Background(), "teh quick fox", "the quick fox"); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got := countAttempts(t, reader, "clipboard", "ok"); got != 1 {
		t.Errorf("clipboard ok attempts = %d, want 1", got)
	}

	// A dead clipboard forces the accessibility fallback; both the failed
	// primary attempts and the fallback land in the counter.
	a2 := &mock.Automation{
		ControlText:  "teh slow fox",
		ClipboardErr: errors.New("clipboard gone"),
		SelectAllErr: errors.New("no selection"),
	}
	e2 := replacer.New(a2,
		replacer.WithSettleDelay(0),
		replacer.WithBackoffBase(time.Millisecond),
		replacer.WithRetries(2),
		replacer.WithMetrics(m))

	if err := e2.Replace(context.Background(), "teh slow fox", "the slow fox"); err != nil {
		t.Fatalf("Replace via fallback: %v", err)
	}
	if got := countAttempts(t, reader, "clipboard", "failed"); got != 2 {
		t.Errorf("clipboard failed attempts = %d, want 2", got)
	}
	if got := countAttempts(t, reader, "accessibility", "ok"); got != 1 {
		t.Errorf("accessibility ok attempts = %d, want 1", got)
	}
}

func TestInsertRecordsAttempt(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	a := &mock.Automation{ControlText: "note: "}
	e := replacer.New(a,
		replacer.WithSettleDelay(0),
		replacer.WithMetrics(m))

	if err := e.Insert(context.Background(), "dictated"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got := countAttempts(t, reader, "insert", "ok"); got != 1 {
		t.Errorf("insert ok attempts = %d, want 1", got)
	}
}
