// Package types defines the shared types used across all correx packages.
//
// These types form the lingua franca between the input layer, the keystroke
// buffer, the orchestrators, and the presentation boundary. They are
// intentionally minimal: each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// WindowID identifies a focused application surface. It is an opaque
// platform handle (an HWND on Windows); the zero value means "no window".
type WindowID uintptr

// KeyEvent is one raw keyboard event as delivered by the platform input
// source. Modifiers carries the raw platform bitmask; decoding it into a
// canonical trigger is the normalizer's job, not the input layer's.
type KeyEvent struct {
	// Modifiers is the raw platform modifier bitmask at event time.
	Modifiers uint32

	// Key is the platform key name, e.g. "d", "space", "backspace".
	// Empty for events that carry no printable or named key.
	Key string

	// Rune is the printable character produced by the event, or zero when
	// the event does not produce one (modifiers, function keys).
	Rune rune

	// Pressed is true for key-down, false for key-up.
	Pressed bool

	// Window is the focused window at event time.
	Window WindowID

	// Timestamp records when the event was observed.
	Timestamp time.Time
}

// NoticeKind labels a state-change notification sent to the presentation
// collaborator.
type NoticeKind int

const (
	// NoticeBusyStart signals that a correction round has begun.
	NoticeBusyStart NoticeKind = iota
	// NoticeBusyEnd signals that a correction round has resolved.
	NoticeBusyEnd
	// NoticeListeningStart signals that dictation capture has begun.
	NoticeListeningStart
	// NoticeListeningEnd signals that dictation capture has stopped.
	NoticeListeningEnd
	// NoticeReplaceFailed reports a non-fatal text replacement failure.
	NoticeReplaceFailed
	// NoticeCandidate reports the currently displayed candidate during
	// navigation, carrying Index and Total.
	NoticeCandidate
)

// Notice is one state-change notification for the presentation layer. The
// core publishes these on a channel and assumes nothing about how or on
// which goroutine the presentation layer consumes them.
type Notice struct {
	Kind  NoticeKind
	Text  string
	Index int
	Total int
	Err   error
}
