// Package mock provides a scriptable test double for the
// replacer.Automation interface.
//
// Automation models a tiny focused control plus a clipboard: SelectAll
// marks the control's content selected, Copy places it on the clipboard,
// Paste overwrites the selection (or appends at the cursor when nothing is
// selected). Error fields inject failures per operation, and Ops records
// the call sequence for assertions.
package mock

import "sync"

// Automation is a mock implementation of replacer.Automation.
type Automation struct {
	mu sync.Mutex

	// ClipboardText is the simulated clipboard content.
	ClipboardText string

	// ControlText is the simulated focused control content.
	ControlText string

	// Error injection per operation; nil means success.
	ClipboardErr      error
	SetClipboardErr   error
	SelectAllErr      error
	CopyErr           error
	PasteErr          error
	FocusedTextErr    error
	SetFocusedTextErr error

	// Ops records the names of all operations in call order.
	Ops []string

	selected bool
}

func (a *Automation) record(op string) {
	a.Ops = append(a.Ops, op)
}

// Clipboard implements replacer.Automation.
func (a *Automation) Clipboard() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("clipboard")
	if a.ClipboardErr != nil {
		return "", a.ClipboardErr
	}
	return a.ClipboardText, nil
}

// SetClipboard implements replacer.Automation.
func (a *Automation) SetClipboard(text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("setClipboard")
	if a.SetClipboardErr != nil {
		return a.SetClipboardErr
	}
	a.ClipboardText = text
	return nil
}

// SelectAll implements replacer.Automation.
func (a *Automation) SelectAll() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("selectAll")
	if a.SelectAllErr != nil {
		return a.SelectAllErr
	}
	a.selected = true
	return nil
}

// Copy implements replacer.Automation.
func (a *Automation) Copy() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("copy")
	if a.CopyErr != nil {
		return a.CopyErr
	}
	if a.selected {
		a.ClipboardText = a.ControlText
	}
	return nil
}

// Paste implements replacer.Automation.
func (a *Automation) Paste() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("paste")
	if a.PasteErr != nil {
		return a.PasteErr
	}
	if a.selected {
		a.ControlText = a.ClipboardText
		a.selected = false
	} else {
		a.ControlText += a.ClipboardText
	}
	return nil
}

// FocusedText implements replacer.Automation.
func (a *Automation) FocusedText() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("focusedText")
	if a.FocusedTextErr != nil {
		return "", a.FocusedTextErr
	}
	return a.ControlText, nil
}

// SetFocusedText implements replacer.Automation.
func (a *Automation) SetFocusedText(text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("setFocusedText")
	if a.SetFocusedTextErr != nil {
		return a.SetFocusedTextErr
	}
	a.ControlText = text
	return nil
}

// Snapshot returns the clipboard and control text under lock.
func (a *Automation) Snapshot() (clipboard, control string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ClipboardText, a.ControlText
}
