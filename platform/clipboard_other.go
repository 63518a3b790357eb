//go:build !windows

package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/atotto/clipboard"
)

var errNoClipboardUtility = errors.New("no clipboard utility found (install xclip, xsel or wl-clipboard)")

// SystemClipboard implements the Clipboard interface on top of pbcopy/pbpaste,
// xclip, xsel or wl-clipboard, whichever the host provides
type SystemClipboard struct {
	read func() (string, error)
}

// NewClipboard creates a new clipboard instance
func NewClipboard() Clipboard {
	return &SystemClipboard{read: readSystem}
}

func readSystem() (string, error) {
	if clipboard.Unsupported {
		return "", errNoClipboardUtility
	}
	return clipboard.ReadAll()
}

// Get retrieves text from the clipboard, "" when it holds no text.
// xclip and wl-paste exit non-zero on an empty clipboard or one without a
// text target, so a failed paste command reads as absent.
func (c *SystemClipboard) Get() (string, error) {
	text, err := c.read()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		slog.Debug("Clipboard holds no text", "exit", exitErr.ExitCode())
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read clipboard: %w", err)
	}
	return text, nil
}

// Set sets text to the clipboard
func (c *SystemClipboard) Set(text string) error {
	if clipboard.Unsupported {
		return errNoClipboardUtility
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

// Clear empties the clipboard
func (c *SystemClipboard) Clear() error {
	return c.Set("")
}
