//go:build windows

package input

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	procGetGUIThreadInfo         = user32.NewProc("GetGUIThreadInfo")
	procSendMessageW             = user32.NewProc("SendMessageW")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
)

const (
	wmGetText       = 0x000D
	wmGetTextLength = 0x000E
	wmSetText       = 0x000C
)

type guiThreadInfo struct {
	Size        uint32
	Flags       uint32
	HwndActive  uintptr
	HwndFocus   uintptr
	HwndCapture uintptr
	HwndMenu    uintptr
	HwndMove    uintptr
	HwndCaret   uintptr
	RcCaret     [4]int32
}

// focusedControl resolves the window handle of the control that owns
// keyboard focus in the foreground window's thread.
func focusedControl() (uintptr, error) {
	fg, _, _ := procGetForegroundWindow.Call()
	if fg == 0 {
		return 0, fmt.Errorf("input: no foreground window")
	}
	tid, _, _ := procGetWindowThreadProcessId.Call(fg, 0)

	var gti guiThreadInfo
	gti.Size = uint32(unsafe.Sizeof(gti))
	ret, _, err := procGetGUIThreadInfo.Call(tid, uintptr(unsafe.Pointer(&gti)))
	if ret == 0 {
		return 0, fmt.Errorf("input: GetGUIThreadInfo: %w", err)
	}
	if gti.HwndFocus == 0 {
		return 0, fmt.Errorf("input: no focused control")
	}
	return gti.HwndFocus, nil
}

func focusedText() (string, error) {
	hwnd, err := focusedControl()
	if err != nil {
		return "", err
	}
	n, _, _ := procSendMessageW.Call(hwnd, uintptr(wmGetTextLength), 0, 0)
	if n == 0 {
		return "", nil
	}
	buf := make([]uint16, n+1)
	copied, _, _ := procSendMessageW.Call(hwnd, uintptr(wmGetText),
		uintptr(len(buf)), uintptr(unsafe.Pointer(&buf[0])))
	return windows.UTF16ToString(buf[:copied]), nil
}

func setFocusedText(text string) error {
	hwnd, err := focusedControl()
	if err != nil {
		return err
	}
	buf, err := windows.UTF16PtrFromString(text)
	if err != nil {
		return fmt.Errorf("input: encode text: %w", err)
	}
	ret, _, callErr := procSendMessageW.Call(hwnd, uintptr(wmSetText), 0,
		uintptr(unsafe.Pointer(buf)))
	if ret == 0 {
		return fmt.Errorf("input: WM_SETTEXT rejected: %w", callErr)
	}
	return nil
}
