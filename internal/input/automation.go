package input

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// SystemAutomation drives the focused application through the system
// clipboard and synthetic key chords. It satisfies the replacement
// engine's automation contract.
//
// Clipboard access goes through atotto/clipboard; key chords are injected
// with keybd_event, whose events carry the injected flag and are therefore
// invisible to the keystroke tap.
type SystemAutomation struct {
	kb keybd_event.KeyBonding
}

// NewSystemAutomation prepares the key injector.
func NewSystemAutomation() (*SystemAutomation, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("input: key injector: %w", err)
	}
	return &SystemAutomation{kb: kb}, nil
}

func (a *SystemAutomation) Clipboard() (string, error) {
	return clipboard.ReadAll()
}

func (a *SystemAutomation) SetClipboard(text string) error {
	return clipboard.WriteAll(text)
}

func (a *SystemAutomation) SelectAll() error { return a.ctrlChord(keybd_event.VK_A) }
func (a *SystemAutomation) Copy() error      { return a.ctrlChord(keybd_event.VK_C) }
func (a *SystemAutomation) Paste() error     { return a.ctrlChord(keybd_event.VK_V) }

func (a *SystemAutomation) ctrlChord(vk int) error {
	kb := a.kb
	kb.HasCTRL(true)
	kb.SetKeys(vk)
	if err := kb.Launching(); err != nil {
		return fmt.Errorf("input: key chord: %w", err)
	}
	return nil
}

// FocusedText reads the focused control's text directly, bypassing the
// clipboard. Only available where the platform exposes focused-control
// messaging.
func (a *SystemAutomation) FocusedText() (string, error) {
	return focusedText()
}

// SetFocusedText overwrites the focused control's text directly.
func (a *SystemAutomation) SetFocusedText(text string) error {
	return setFocusedText(text)
}
