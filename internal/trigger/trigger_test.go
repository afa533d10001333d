package trigger

import "testing"

func TestNormalizeCanonicalOrder(t *testing.T) {
	got := Normalize(ModAlt|ModShift|ModCtrl, "D")
	if got.String() != "ctrl+shift+alt+d" {
		t.Fatalf("String() = %q, want %q", got.String(), "ctrl+shift+alt+d")
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	a := Normalize(ModCtrl|ModShift, "x")
	b := Normalize(ModCtrl|ModShift, "X")
	if a != b {
		t.Fatalf("same canonical input produced %v and %v", a, b)
	}
}

func TestNormalizeIgnoresLockBits(t *testing.T) {
	got := Normalize(ModNumLock, "d")
	if got.Alt {
		t.Fatal("num lock bit decoded as alt")
	}
	if got.String() != "d" {
		t.Fatalf("String() = %q, want %q", got.String(), "d")
	}

	got = Normalize(ModNumLock|ModLock|ModCtrl, "d")
	if got.String() != "ctrl+d" {
		t.Fatalf("String() = %q, want %q", got.String(), "ctrl+d")
	}
}

func TestNormalizeEmptyKey(t *testing.T) {
	got := Normalize(ModCtrl|ModShift|ModAlt, "")
	if !got.Zero() {
		t.Fatalf("empty key should yield zero trigger, got %v", got)
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		chord string
		want  string
	}{
		{"ctrl+shift+d", "ctrl+shift+d"},
		{"shift+ctrl+d", "ctrl+shift+d"},
		{"Control+Option+Return", "ctrl+alt+enter"},
		{" alt + space ", "alt+space"},
		{"f9", "f9"},
	}
	for _, c := range cases {
		got, err := Parse(c.chord)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.chord, err)
		}
		if got.String() != c.want {
			t.Errorf("Parse(%q) = %q, want %q", c.chord, got.String(), c.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, chord := range []string{"", "ctrl+shift", "ctrl++d", "ctrl+a+b", "ctrl+mystery", "f25"} {
		if _, err := Parse(chord); err == nil {
			t.Errorf("Parse(%q) should fail", chord)
		}
	}
}
