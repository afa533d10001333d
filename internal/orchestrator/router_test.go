package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/correx/correx/internal/candidate"
	imock "github.com/correx/correx/internal/input/mock"
	"github.com/correx/correx/internal/keybuf"
	"github.com/correx/correx/internal/replacer"
	rmock "github.com/correx/correx/internal/replacer/mock"
	"github.com/correx/correx/internal/trigger"
	amock "github.com/correx/correx/pkg/audio/mock"
	cmock "github.com/correx/correx/pkg/provider/corrector/mock"
	smock "github.com/correx/correx/pkg/provider/speech/mock"
	"github.com/correx/correx/pkg/types"
)

func mustParse(t *testing.T, chord string) trigger.Trigger {
	t.Helper()
	tr, err := trigger.Parse(chord)
	if err != nil {
		t.Fatalf("Parse(%q): %v", chord, err)
	}
	return tr
}

func newRouterHarness(t *testing.T, provider *cmock.Provider) (*Router, *imock.Source, *keybuf.Buffer, *rmock.Automation) {
	t.Helper()
	source := imock.New()
	source.Active = 9

	mu := &sync.Mutex{}
	buf := keybuf.New(keybuf.WindowProbeFunc(func(types.WindowID) bool { return true }))
	auto := &rmock.Automation{}
	eng := replacer.New(auto,
		replacer.WithSettleDelay(time.Millisecond),
		replacer.WithBackoffBase(time.Millisecond))
	cor := NewCorrector(mu, buf, candidate.New(provider), eng, source, nil,
		WithSettings([]candidate.Setting{{Temperature: 0.3}}))
	dict := NewDictation(mu, cor, &amock.Capture{}, &smock.Engine{}, eng, buf, source, nil)

	r := NewRouter(source, cor, dict, buf, Triggers{
		Correct: mustParse(t, "ctrl+alt+c"),
		Dictate: mustParse(t, "ctrl+alt+d"),
		Clear:   mustParse(t, "ctrl+alt+x"),
	})
	return r, source, buf, auto
}

func press(key string, r rune, mods uint32, window types.WindowID) types.KeyEvent {
	return types.KeyEvent{
		Modifiers: mods,
		Key:       key,
		Rune:      r,
		Pressed:   true,
		Window:    window,
		Timestamp: time.Now(),
	}
}

func TestRouterRecordsPlainKeys(t *testing.T) {
	r, source, buf, _ := newRouterHarness(t, &cmock.Provider{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	for _, ch := range "hi there" {
		key := string(ch)
		if ch == ' ' {
			key = "space"
		}
		if source.Emit(press(key, ch, 0, 9)) {
			t.Fatalf("plain key %q must not be swallowed", key)
		}
	}

	waitFor(t, func() bool { return buf.Text(9, 0) == "hi there" })
}

func TestRouterSwallowsTriggerChords(t *testing.T) {
	r, source, _, _ := newRouterHarness(t, &cmock.Provider{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	ctrlAlt := uint32(trigger.ModCtrl | trigger.ModAlt)
	if !source.Emit(press("c", 0, ctrlAlt, 9)) {
		t.Fatal("correction chord must be swallowed")
	}
	if !source.Emit(press("d", 0, ctrlAlt, 9)) {
		t.Fatal("dictation chord must be swallowed")
	}
	if source.Emit(press("c", 'c', 0, 9)) {
		t.Fatal("bare letter must pass through")
	}
}

func TestRouterNumLockDoesNotFakeAlt(t *testing.T) {
	r, source, buf, _ := newRouterHarness(t, &cmock.Provider{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	// NumLock's toggle bit must not satisfy a chord that wants alt.
	mods := uint32(trigger.ModCtrl | trigger.ModNumLock)
	if source.Emit(press("c", 0, mods, 9)) {
		t.Fatal("ctrl+numlock+c must not match ctrl+alt+c")
	}
	waitFor(t, func() bool { return buf.Text(9, 0) == "" })
}

func TestRouterClearTriggerEmptiesBuffer(t *testing.T) {
	r, source, buf, _ := newRouterHarness(t, &cmock.Provider{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	source.Emit(press("a", 'a', 0, 9))
	source.Emit(press("b", 'b', 0, 9))
	waitFor(t, func() bool { return buf.Text(9, 0) == "ab" })

	ctrlAlt := uint32(trigger.ModCtrl | trigger.ModAlt)
	source.Emit(press("x", 0, ctrlAlt, 9))
	waitFor(t, func() bool { return buf.Text(9, 0) == "" })
}

func TestRouterCorrectionRoundEndToEnd(t *testing.T) {
	provider := &cmock.Provider{Response: "Hello there."}
	r, source, buf, auto := newRouterHarness(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	for _, ch := range "helo ther" {
		key := string(ch)
		if ch == ' ' {
			key = "space"
		}
		source.Emit(press(key, ch, 0, 9))
	}
	waitFor(t, func() bool { return buf.Text(9, 0) == "helo ther" })
	auto.ControlText = "helo ther"

	ctrlAlt := uint32(trigger.ModCtrl | trigger.ModAlt)
	source.Emit(press("c", 0, ctrlAlt, 9))

	waitFor(t, func() bool {
		_, control := auto.Snapshot()
		return control == "Hello there."
	})
	waitFor(t, func() bool { return r.corrector.Navigating() })

	// While navigating, arrow keys are swallowed and cycle candidates.
	if !source.Emit(press("right", 0, 0, 9)) {
		t.Fatal("arrow key must be swallowed while navigating")
	}

	// Any ordinary keystroke ends the round and passes through.
	if source.Emit(press("z", 'z', 0, 9)) {
		t.Fatal("ordinary key must pass through")
	}
	waitFor(t, func() bool { return !r.corrector.Navigating() })
}
