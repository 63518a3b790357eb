// Package clipboard borrows the shared OS clipboard for the length of one
// capture or apply operation and puts the user's content back afterwards.
//
// The clipboard is shared with every other process and has no lock, so a
// Manager must only be driven by one operation at a time.
package clipboard

import (
	"fmt"

	"markestedt/tokenspark/platform"
)

// Snapshot is the clipboard's text content at the start of a transaction
type Snapshot struct {
	Text    string
	Present bool
}

// Manager performs the save/clear/write/restore steps of a transaction
type Manager struct {
	port platform.Clipboard
}

// NewManager creates a manager over the given clipboard port
func NewManager(port platform.Clipboard) *Manager {
	return &Manager{port: port}
}

// Snapshot reads the current clipboard text. An empty clipboard is absent.
func (m *Manager) Snapshot() (Snapshot, error) {
	text, err := m.port.Get()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to snapshot clipboard: %w", err)
	}
	return Snapshot{Text: text, Present: text != ""}, nil
}

// Read returns the current clipboard text
func (m *Manager) Read() (string, error) {
	text, err := m.port.Get()
	if err != nil {
		return "", fmt.Errorf("failed to read clipboard: %w", err)
	}
	return text, nil
}

// Clear empties the clipboard
func (m *Manager) Clear() error {
	if err := m.port.Clear(); err != nil {
		return fmt.Errorf("failed to clear clipboard: %w", err)
	}
	return nil
}

// Write replaces the clipboard content with text
func (m *Manager) Write(text string) error {
	if err := m.port.Set(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

// Restore puts a snapshot back; an absent snapshot clears the clipboard
func (m *Manager) Restore(s Snapshot) error {
	if !s.Present {
		return m.Clear()
	}
	if err := m.port.Set(s.Text); err != nil {
		return fmt.Errorf("failed to restore clipboard: %w", err)
	}
	return nil
}
