// Package platformtest provides in-memory OS ports for tests.
package platformtest

import (
	"sync"

	"markestedt/tokenspark/platform"
)

// Clipboard is an in-memory clipboard that records every write
type Clipboard struct {
	mu     sync.Mutex
	text   string
	writes []string
	GetErr error
	SetErr error
}

// NewClipboard creates a clipboard holding text
func NewClipboard(text string) *Clipboard {
	return &Clipboard{text: text}
}

func (c *Clipboard) Get() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return "", c.GetErr
	}
	return c.text, nil
}

func (c *Clipboard) Set(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SetErr != nil {
		return c.SetErr
	}
	c.text = text
	c.writes = append(c.writes, text)
	return nil
}

func (c *Clipboard) Clear() error {
	return c.Set("")
}

// Text returns the current content without going through error injection
func (c *Clipboard) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Put replaces the content as another application would, without recording it
func (c *Clipboard) Put(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
}

// Writes returns every value written through Set or Clear
func (c *Clipboard) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

// KeyEvent is one recorded key transition
type KeyEvent struct {
	Down  bool
	Chord platform.Chord
}

// Keys is a KeySender that records events. OnPress runs after every key-down
// and stands in for the focused application's shortcut handler.
type Keys struct {
	mu      sync.Mutex
	events  []KeyEvent
	DownErr error
	UpErr   error
	OnPress func(c platform.Chord)
}

func (k *Keys) KeyDown(c platform.Chord) error {
	k.mu.Lock()
	if k.DownErr != nil {
		err := k.DownErr
		k.mu.Unlock()
		return err
	}
	k.events = append(k.events, KeyEvent{Down: true, Chord: c})
	hook := k.OnPress
	k.mu.Unlock()

	if hook != nil {
		hook(c)
	}
	return nil
}

func (k *Keys) KeyUp(c platform.Chord) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.UpErr != nil {
		return k.UpErr
	}
	k.events = append(k.events, KeyEvent{Down: false, Chord: c})
	return nil
}

// Events returns the recorded key transitions
func (k *Keys) Events() []KeyEvent {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]KeyEvent(nil), k.events...)
}

// Application simulates a focused text field reacting to copy and paste
// chords through a shared clipboard
type Application struct {
	mu        sync.Mutex
	Selection string
	Pasted    []string
	clipboard *Clipboard
}

// NewApplication wires an application to the clipboard and key sender
func NewApplication(selection string, cb *Clipboard, keys *Keys) *Application {
	app := &Application{Selection: selection, clipboard: cb}
	keys.OnPress = app.handle
	return app
}

func (a *Application) handle(c platform.Chord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch c.Key {
	case "c":
		if a.Selection != "" {
			a.clipboard.Put(a.Selection)
		}
	case "v":
		text := a.clipboard.Text()
		a.Pasted = append(a.Pasted, text)
		a.Selection = text
	}
}

// PastedTexts returns everything pasted so far
func (a *Application) PastedTexts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.Pasted...)
}
