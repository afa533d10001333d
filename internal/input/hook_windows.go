//go:build windows

package input

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/correx/correx/internal/trigger"
	"github.com/correx/correx/pkg/types"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetAsyncKeyState    = user32.NewProc("GetAsyncKeyState")
	procGetKeyState         = user32.NewProc("GetKeyState")
	procGetForegroundWindow = user32.NewProc("GetForegroundWindow")
	procIsWindow            = user32.NewProc("IsWindow")
)

const (
	whKeyboardLL  = 13
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmQuit        = 0x0012
	llkhfInjected = 0x10
)

type kbdllHookStruct struct {
	VKCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DWExtraInfo uintptr
}

type msgStruct struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	PtX     int32
	PtY     int32
}

// hookSource taps the keyboard through a WH_KEYBOARD_LL hook. The hook
// runs on a dedicated locked OS thread pumping a message loop; events are
// handed off to the channel without blocking the hook callback.
type hookSource struct {
	cfg sourceConfig
	log *slog.Logger

	events      chan types.KeyEvent
	interceptor atomic.Value // Interceptor

	mu       sync.Mutex
	running  bool
	threadID atomic.Uint32
	done     chan struct{}
}

func newPlatformSource(opts ...SourceOption) Source {
	cfg := defaultSourceConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &hookSource{
		cfg:    cfg,
		log:    slog.Default().With("component", "input"),
		events: make(chan types.KeyEvent, cfg.bufferSize),
	}
}

var _ Source = (*hookSource)(nil)

func (h *hookSource) Events() <-chan types.KeyEvent { return h.events }

func (h *hookSource) SetInterceptor(fn Interceptor) {
	h.interceptor.Store(fn)
}

func (h *hookSource) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return fmt.Errorf("input: hook already started")
	}

	errCh := make(chan error, 1)
	h.done = make(chan struct{})

	go func() {
		defer close(h.done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		h.threadID.Store(windows.GetCurrentThreadId())

		callback := windows.NewCallback(h.hookProc)
		hook, _, err := procSetWindowsHookExW.Call(uintptr(whKeyboardLL), callback, 0, 0)
		if hook == 0 {
			errCh <- fmt.Errorf("input: SetWindowsHookExW: %w", err)
			return
		}
		errCh <- nil

		var msg msgStruct
		for {
			ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			if int32(ret) <= 0 {
				break
			}
		}
		procUnhookWindowsHookEx.Call(hook)
		close(h.events)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-time.After(2 * time.Second):
		return fmt.Errorf("input: timeout installing keyboard hook")
	case <-ctx.Done():
		return ctx.Err()
	}

	h.running = true
	h.log.Info("keyboard hook installed")
	return nil
}

func (h *hookSource) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	done := h.done
	h.mu.Unlock()

	procPostThreadMessageW.Call(uintptr(h.threadID.Load()), uintptr(wmQuit), 0, 0)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("input: timeout stopping keyboard hook")
	}
	h.log.Info("keyboard hook removed")
	return nil
}

// hookProc is the WH_KEYBOARD_LL callback. It must return quickly; slow
// hooks get forcibly removed by the system.
func (h *hookSource) hookProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) < 0 {
		ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
		return ret
	}

	k := (*kbdllHookStruct)(unsafe.Pointer(lParam))

	// Keystrokes this process injects (paste, select-all) must not loop
	// back into the buffer.
	if k.Flags&llkhfInjected != 0 {
		ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
		return ret
	}

	msg := uint32(wParam)
	pressed := msg == wmKeyDown || msg == wmSysKeyDown
	released := msg == wmKeyUp || msg == wmSysKeyUp
	if !pressed && !released {
		ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
		return ret
	}

	mods := currentModifiers()
	shift := mods&uint32(trigger.ModShift) != 0
	ev := types.KeyEvent{
		Modifiers: mods,
		Key:       keyForVK(k.VKCode),
		Rune:      runeForVK(k.VKCode, shift),
		Pressed:   pressed,
		Window:    h.ActiveWindow(),
		Timestamp: time.Now(),
	}

	swallow := false
	if fn, _ := h.interceptor.Load().(Interceptor); fn != nil {
		swallow = fn(ev)
	}

	select {
	case h.events <- ev:
	default:
		// Consumer stalled; dropping beats freezing the input pipeline.
	}

	if swallow {
		return 1
	}
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return ret
}

// currentModifiers samples modifier and toggle state into the raw mask
// consumed by [trigger.Normalize].
func currentModifiers() uint32 {
	var mods uint32
	if keyHeld(vkShift) {
		mods |= uint32(trigger.ModShift)
	}
	if keyHeld(vkControl) {
		mods |= uint32(trigger.ModCtrl)
	}
	if keyHeld(vkMenu) {
		mods |= uint32(trigger.ModAlt)
	}
	if keyToggled(vkCapital) {
		mods |= uint32(trigger.ModLock)
	}
	if keyToggled(vkNumLock) {
		mods |= uint32(trigger.ModNumLock)
	}
	return mods
}

func keyHeld(vk uint32) bool {
	st, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
	return uint16(st)&0x8000 != 0
}

func keyToggled(vk uint32) bool {
	st, _, _ := procGetKeyState.Call(uintptr(vk))
	return st&0x1 != 0
}

func (h *hookSource) ActiveWindow() types.WindowID {
	hwnd, _, _ := procGetForegroundWindow.Call()
	return types.WindowID(hwnd)
}

func (h *hookSource) WindowExists(id types.WindowID) bool {
	if id == 0 {
		return false
	}
	ret, _, _ := procIsWindow.Call(uintptr(id))
	return ret != 0
}
