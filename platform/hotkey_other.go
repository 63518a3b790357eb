//go:build !windows

package platform

import (
	"context"
	"log/slog"
)

// ManualHotkey is used where no global keyboard hook is available. It never
// fires; triggers come from the tray menu, the dashboard or `tokenspark invoke`
// bound to a shortcut in the desktop environment.
type ManualHotkey struct{}

// NewHotkey creates a hotkey listener for this platform
func NewHotkey() Hotkey {
	return &ManualHotkey{}
}

// Listen returns a channel that is closed when ctx is done
func (h *ManualHotkey) Listen(ctx context.Context, bindings []Binding) (<-chan Event, error) {
	slog.Warn("Global hotkeys are not supported on this platform; bind `tokenspark invoke --mode <mode>` in your desktop environment",
		"bindings", len(bindings))

	events := make(chan Event)
	go func() {
		<-ctx.Done()
		close(events)
	}()
	return events, nil
}
