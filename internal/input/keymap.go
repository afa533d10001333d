package input

// Virtual-key translation shared by the Windows hook and its tests. The
// table is plain data, so it stays portable even though the codes are
// Windows virtual-key values.

const (
	vkBack     = 0x08
	vkTab      = 0x09
	vkReturn   = 0x0D
	vkShift    = 0x10
	vkControl  = 0x11
	vkMenu     = 0x12
	vkCapital  = 0x14
	vkEscape   = 0x1B
	vkSpace    = 0x20
	vkPrior    = 0x21
	vkNext     = 0x22
	vkEnd      = 0x23
	vkHome     = 0x24
	vkLeft     = 0x25
	vkUp       = 0x26
	vkRight    = 0x27
	vkDown     = 0x28
	vkInsert   = 0x2D
	vkDelete   = 0x2E
	vkLWin     = 0x5B
	vkRWin     = 0x5C
	vkNumLock  = 0x90
	vkF1       = 0x70
	vkF24      = 0x87
	vkLShift   = 0xA0
	vkRShift   = 0xA1
	vkLControl = 0xA2
	vkRControl = 0xA3
	vkLMenu    = 0xA4
	vkRMenu    = 0xA5
)

var vkNames = map[uint32]string{
	vkBack:    "backspace",
	vkTab:     "tab",
	vkReturn:  "enter",
	vkEscape:  "esc",
	vkSpace:   "space",
	vkPrior:   "pageup",
	vkNext:    "pagedown",
	vkEnd:     "end",
	vkHome:    "home",
	vkLeft:    "left",
	vkUp:      "up",
	vkRight:   "right",
	vkDown:    "down",
	vkInsert:  "insert",
	vkDelete:  "delete",
	vkCapital: "capslock",
	vkNumLock: "numlock",
}

// shiftedDigits maps '0'..'9' to their US-layout shifted symbols.
var shiftedDigits = map[byte]rune{
	'1': '!', '2': '@', '3': '#', '4': '$', '5': '%',
	'6': '^', '7': '&', '8': '*', '9': '(', '0': ')',
}

// oemRunes maps US-layout OEM virtual keys to (unshifted, shifted) runes.
var oemRunes = map[uint32][2]rune{
	0xBA: {';', ':'},
	0xBB: {'=', '+'},
	0xBC: {',', '<'},
	0xBD: {'-', '_'},
	0xBE: {'.', '>'},
	0xBF: {'/', '?'},
	0xC0: {'`', '~'},
	0xDB: {'[', '{'},
	0xDC: {'\\', '|'},
	0xDD: {']', '}'},
	0xDE: {'\'', '"'},
}

// isModifierVK reports whether the virtual key is itself a modifier.
// Modifier keydowns never form a chord on their own.
func isModifierVK(vk uint32) bool {
	switch vk {
	case vkShift, vkControl, vkMenu, vkLWin, vkRWin,
		vkLShift, vkRShift, vkLControl, vkRControl, vkLMenu, vkRMenu:
		return true
	}
	return false
}

// keyForVK returns the canonical key name for a virtual key, or "" when
// the key carries no chord meaning (modifiers, unknown codes).
func keyForVK(vk uint32) string {
	if isModifierVK(vk) {
		return ""
	}
	if name, ok := vkNames[vk]; ok {
		return name
	}
	if vk >= 'A' && vk <= 'Z' {
		return string(rune(vk - 'A' + 'a'))
	}
	if vk >= '0' && vk <= '9' {
		return string(rune(vk))
	}
	if vk >= vkF1 && vk <= vkF24 {
		n := int(vk-vkF1) + 1
		return "f" + itoa(n)
	}
	if vk >= 0x60 && vk <= 0x69 { // numpad digits
		return string(rune('0' + vk - 0x60))
	}
	if r, ok := oemRunes[vk]; ok {
		return string(r[0])
	}
	return ""
}

// runeForVK returns the printable rune the key would type, or zero for
// non-printing keys. Only the US layout is modeled; the buffer tolerates
// layout drift because corrections operate on whole buffered text.
func runeForVK(vk uint32, shift bool) rune {
	switch {
	case vk == vkSpace:
		return ' '
	case vk == vkTab:
		return '\t'
	case vk >= 'A' && vk <= 'Z':
		if shift {
			return rune(vk)
		}
		return rune(vk - 'A' + 'a')
	case vk >= '0' && vk <= '9':
		if shift {
			return shiftedDigits[byte(vk)]
		}
		return rune(vk)
	case vk >= 0x60 && vk <= 0x69:
		return rune('0' + vk - 0x60)
	}
	if r, ok := oemRunes[vk]; ok {
		if shift {
			return r[1]
		}
		return r[0]
	}
	return 0
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}
