//go:build darwin

package platform

import (
	"fmt"
	"os/exec"
	"strings"
)

// AppleScriptKeySender posts keystrokes through System Events. A keystroke is
// atomic there, so the whole chord is sent on KeyDown and KeyUp is a no-op.
type AppleScriptKeySender struct{}

// NewKeySender creates a new key sender for macOS
func NewKeySender() KeySender {
	return &AppleScriptKeySender{}
}

// KeyDown sends the chord as one keystroke
func (s *AppleScriptKeySender) KeyDown(c Chord) error {
	out, err := exec.Command("osascript", "-e", keystrokeScript(c)).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		// -1002 / 1743: not allowed to send keystrokes / assistive access
		if strings.Contains(msg, "not allowed") || strings.Contains(msg, "1002") || strings.Contains(msg, "1743") {
			return fmt.Errorf("%w: %s", ErrInjectionDenied, msg)
		}
		return fmt.Errorf("osascript failed: %v: %s", err, msg)
	}
	return nil
}

// KeyUp does nothing; see AppleScriptKeySender
func (s *AppleScriptKeySender) KeyUp(c Chord) error {
	return nil
}

func keystrokeScript(c Chord) string {
	var mods []string
	if c.Meta {
		mods = append(mods, "command down")
	}
	if c.Ctrl {
		mods = append(mods, "control down")
	}
	if c.Shift {
		mods = append(mods, "shift down")
	}
	if c.Alt {
		mods = append(mods, "option down")
	}

	script := fmt.Sprintf(`tell application "System Events" to keystroke %q`, strings.ToLower(c.Key))
	if len(mods) > 0 {
		script += " using {" + strings.Join(mods, ", ") + "}"
	}
	return script
}
