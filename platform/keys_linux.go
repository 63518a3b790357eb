//go:build linux

package platform

import (
	"fmt"
	"os/exec"
	"strings"
)

// XdotoolKeySender posts key events through xdotool (X11 and XWayland)
type XdotoolKeySender struct{}

// NewKeySender creates a new key sender for Linux
func NewKeySender() KeySender {
	return &XdotoolKeySender{}
}

// KeyDown presses the chord
func (s *XdotoolKeySender) KeyDown(c Chord) error {
	return s.run("keydown", c)
}

// KeyUp releases the chord
func (s *XdotoolKeySender) KeyUp(c Chord) error {
	return s.run("keyup", c)
}

func (s *XdotoolKeySender) run(action string, c Chord) error {
	path, err := exec.LookPath("xdotool")
	if err != nil {
		return fmt.Errorf("%w: xdotool is not installed", ErrInjectionDenied)
	}

	out, err := exec.Command(path, action, "--clearmodifiers", xdotoolChord(c)).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if strings.Contains(msg, "Can't open display") {
			return fmt.Errorf("%w: %s", ErrInjectionDenied, msg)
		}
		return fmt.Errorf("xdotool %s failed: %v: %s", action, err, msg)
	}
	return nil
}

func xdotoolChord(c Chord) string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "ctrl")
	}
	if c.Shift {
		parts = append(parts, "shift")
	}
	if c.Alt {
		parts = append(parts, "alt")
	}
	if c.Meta {
		parts = append(parts, "super")
	}
	return strings.Join(append(parts, strings.ToLower(c.Key)), "+")
}
