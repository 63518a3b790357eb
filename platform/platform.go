package platform

import (
	"context"
	"errors"
	"runtime"
)

// ErrInjectionDenied is returned when the OS refuses synthetic keyboard input
var ErrInjectionDenied = errors.New("synthetic input not permitted")

// KeyCombo represents a keyboard key combination
type KeyCombo struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Win   bool
	Key   int // Virtual key code
}

// Binding ties a hotkey combination to the tag reported when it fires
type Binding struct {
	Combo KeyCombo
	Tag   string
}

// Event represents a hotkey trigger
type Event struct {
	Tag string
}

// Hotkey provides global hotkey detection
type Hotkey interface {
	Listen(ctx context.Context, bindings []Binding) (<-chan Event, error)
}

// Clipboard provides clipboard access
type Clipboard interface {
	Get() (string, error)
	Set(text string) error
	Clear() error
}

// Chord is a key plus the modifiers held while it is pressed.
// Meta is the Windows key on Windows and Command on macOS.
type Chord struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Meta  bool
	Key   string
}

func (c Chord) String() string {
	s := ""
	if c.Ctrl {
		s += "ctrl+"
	}
	if c.Shift {
		s += "shift+"
	}
	if c.Alt {
		s += "alt+"
	}
	if c.Meta {
		s += "meta+"
	}
	return s + c.Key
}

// KeySender posts raw key events to the focused application
type KeySender interface {
	KeyDown(c Chord) error
	KeyUp(c Chord) error
}

// CopyChord returns the platform's default copy shortcut
func CopyChord() Chord {
	if runtime.GOOS == "darwin" {
		return Chord{Meta: true, Key: "c"}
	}
	return Chord{Ctrl: true, Key: "c"}
}

// PasteChord returns the platform's default paste shortcut
func PasteChord() Chord {
	if runtime.GOOS == "darwin" {
		return Chord{Meta: true, Key: "v"}
	}
	return Chord{Ctrl: true, Key: "v"}
}
