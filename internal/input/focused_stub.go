//go:build !windows

package input

func focusedText() (string, error)     { return "", ErrUnsupported }
func setFocusedText(text string) error { return ErrUnsupported }
