// Package trigger converts raw keyboard events into canonical trigger
// identifiers. A trigger is an immutable modifier+key combination such as
// "ctrl+shift+d"; two triggers are equal iff their canonical string forms
// match.
package trigger

import (
	"fmt"
	"strconv"
	"strings"
)

// RawModifiers is the platform modifier bitmask as delivered by the input
// source. The layout follows the X11 state-field convention, which is also
// what the Windows hook layer synthesizes.
type RawModifiers uint32

// Modifier bit assignments. Only Ctrl, Shift and Alt are real trigger
// modifiers; the lock bits share the same bit region and must never leak
// into a trigger. NumLock in particular occupies Mod2, adjacent to Alt's
// Mod1, and naive "any bit in the modifier region" decoding misreads a
// toggled NumLock as a held Alt.
const (
	ModShift   RawModifiers = 1 << 0
	ModLock    RawModifiers = 1 << 1 // caps lock toggle, not a modifier
	ModCtrl    RawModifiers = 1 << 2
	ModAlt     RawModifiers = 1 << 3 // Mod1
	ModNumLock RawModifiers = 1 << 4 // Mod2, toggle state only
)

// Trigger is a canonical modifier+key combination.
type Trigger struct {
	Ctrl  bool
	Shift bool
	Alt   bool

	// Key is the lower-cased base key name, e.g. "d" or "f9".
	Key string
}

// Zero reports whether t carries no key at all. A zero trigger never
// matches anything.
func (t Trigger) Zero() bool {
	return t.Key == "" && !t.Ctrl && !t.Shift && !t.Alt
}

// String returns the canonical form: modifiers in the fixed order ctrl,
// shift, alt, then the base key, joined with "+".
func (t Trigger) String() string {
	parts := make([]string, 0, 4)
	if t.Ctrl {
		parts = append(parts, "ctrl")
	}
	if t.Shift {
		parts = append(parts, "shift")
	}
	if t.Alt {
		parts = append(parts, "alt")
	}
	if t.Key != "" {
		parts = append(parts, t.Key)
	}
	return strings.Join(parts, "+")
}

// Normalize builds a Trigger from a raw modifier bitmask and a base key
// name. It is deterministic and total: an empty key name yields the zero
// Trigger regardless of modifier state, and any non-empty key name yields a
// trigger even if the key is not one this program recognizes.
//
// Only the explicit Ctrl, Shift and Alt bits are consulted. Lock-state bits
// (caps lock, num lock) are masked out so that toggled locks cannot alias a
// held modifier.
func Normalize(raw RawModifiers, key string) Trigger {
	if key == "" {
		return Trigger{}
	}
	return Trigger{
		Ctrl:  raw&ModCtrl != 0,
		Shift: raw&ModShift != 0,
		Alt:   raw&ModAlt != 0,
		Key:   strings.ToLower(strings.TrimSpace(key)),
	}
}

// keyAliases maps user-facing spellings accepted in config files to
// canonical key names.
var keyAliases = map[string]string{
	"control":  "ctrl",
	"option":   "alt",
	"return":   "enter",
	"escape":   "esc",
	"spacebar": "space",
}

// Parse converts a user-facing chord string such as "ctrl+shift+d" or
// "Control+Option+Return" into a Trigger. Modifier order in the input is
// irrelevant; the result is canonical. Exactly one non-modifier base key is
// required.
func Parse(chord string) (Trigger, error) {
	var t Trigger
	chord = strings.TrimSpace(chord)
	if chord == "" {
		return t, fmt.Errorf("trigger: empty chord")
	}
	for _, part := range strings.Split(chord, "+") {
		name := strings.ToLower(strings.TrimSpace(part))
		if alias, ok := keyAliases[name]; ok {
			name = alias
		}
		switch name {
		case "":
			return Trigger{}, fmt.Errorf("trigger: malformed chord %q", chord)
		case "ctrl":
			t.Ctrl = true
		case "shift":
			t.Shift = true
		case "alt":
			t.Alt = true
		default:
			if t.Key != "" {
				return Trigger{}, fmt.Errorf("trigger: chord %q has more than one base key", chord)
			}
			if !validBaseKey(name) {
				return Trigger{}, fmt.Errorf("trigger: chord %q has unknown base key %q", chord, name)
			}
			t.Key = name
		}
	}
	if t.Key == "" {
		return Trigger{}, fmt.Errorf("trigger: chord %q has no base key", chord)
	}
	return t, nil
}

// namedKeys lists the multi-character base keys the input layer delivers.
var namedKeys = map[string]bool{
	"backspace": true,
	"tab":       true,
	"enter":     true,
	"esc":       true,
	"space":     true,
	"pageup":    true,
	"pagedown":  true,
	"end":       true,
	"home":      true,
	"left":      true,
	"up":        true,
	"right":     true,
	"down":      true,
	"insert":    true,
	"delete":    true,
	"capslock":  true,
	"numlock":   true,
}

// validBaseKey reports whether name is a key the keyboard tap can deliver:
// a letter, a digit, f1 through f24, or one of the named keys.
func validBaseKey(name string) bool {
	if len(name) == 1 {
		c := name[0]
		return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
	}
	if namedKeys[name] {
		return true
	}
	if name[0] == 'f' {
		if n, err := strconv.Atoi(name[1:]); err == nil {
			return n >= 1 && n <= 24
		}
	}
	return false
}
