//go:build windows

package platform

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                     = windows.NewLazySystemDLL("user32.dll")
	kernel32                   = windows.NewLazySystemDLL("kernel32.dll")
	openClipboard              = user32.NewProc("OpenClipboard")
	closeClipboard             = user32.NewProc("CloseClipboard")
	emptyClipboard             = user32.NewProc("EmptyClipboard")
	getClipboardData           = user32.NewProc("GetClipboardData")
	setClipboardData           = user32.NewProc("SetClipboardData")
	isClipboardFormatAvailable = user32.NewProc("IsClipboardFormatAvailable")
	globalAlloc                = kernel32.NewProc("GlobalAlloc")
	globalLock                 = kernel32.NewProc("GlobalLock")
	globalUnlock               = kernel32.NewProc("GlobalUnlock")
	globalFree                 = kernel32.NewProc("GlobalFree")
)

const (
	cfUnicodeText = 13
	gmemMoveable  = 0x0002

	// Another process may hold the clipboard briefly, typically a
	// clipboard manager reacting to our own write
	openAttempts = 10
	openBackoff  = 10 * time.Millisecond
)

// errClipboardBusy is returned when the clipboard stays locked by another process
var errClipboardBusy = errors.New("clipboard is locked by another application")

// WindowsClipboard implements Clipboard with the Win32 clipboard API.
// Only CF_UNICODETEXT is read or written.
type WindowsClipboard struct{}

// NewClipboard creates a new Windows clipboard instance
func NewClipboard() Clipboard {
	return &WindowsClipboard{}
}

// withClipboard runs fn while this process owns the clipboard
func withClipboard(fn func() error) error {
	opened := false
	for i := 0; i < openAttempts; i++ {
		if r, _, _ := openClipboard.Call(0); r != 0 {
			opened = true
			break
		}
		time.Sleep(openBackoff)
	}
	if !opened {
		return errClipboardBusy
	}
	defer closeClipboard.Call()
	return fn()
}

// Get returns the clipboard text, "" when it holds no text
func (c *WindowsClipboard) Get() (string, error) {
	var text string
	err := withClipboard(func() error {
		if r, _, _ := isClipboardFormatAvailable.Call(cfUnicodeText); r == 0 {
			return nil
		}

		h, _, callErr := getClipboardData.Call(cfUnicodeText)
		if h == 0 {
			return fmt.Errorf("GetClipboardData: %w", callErr)
		}
		p, _, callErr := globalLock.Call(h)
		if p == 0 {
			return fmt.Errorf("GlobalLock: %w", callErr)
		}
		defer globalUnlock.Call(h)

		text = windows.UTF16PtrToString((*uint16)(unsafe.Pointer(p)))
		return nil
	})
	return text, err
}

// Clear empties the clipboard
func (c *WindowsClipboard) Clear() error {
	return withClipboard(emptyLocked)
}

// Set replaces the clipboard contents with text
func (c *WindowsClipboard) Set(text string) error {
	buf, err := windows.UTF16FromString(text)
	if err != nil {
		return fmt.Errorf("clipboard text: %w", err)
	}

	return withClipboard(func() error {
		if err := emptyLocked(); err != nil {
			return err
		}

		h, err := globalText(buf)
		if err != nil {
			return err
		}
		if r, _, callErr := setClipboardData.Call(cfUnicodeText, h); r == 0 {
			// The system takes ownership of h only on success
			globalFree.Call(h)
			return fmt.Errorf("SetClipboardData: %w", callErr)
		}
		return nil
	})
}

func emptyLocked() error {
	if r, _, err := emptyClipboard.Call(); r == 0 {
		return fmt.Errorf("EmptyClipboard: %w", err)
	}
	return nil
}

// globalText copies a NUL-terminated UTF-16 buffer into movable global memory
func globalText(buf []uint16) (uintptr, error) {
	size := uintptr(len(buf)) * unsafe.Sizeof(buf[0])
	h, _, err := globalAlloc.Call(gmemMoveable, size)
	if h == 0 {
		return 0, fmt.Errorf("GlobalAlloc: %w", err)
	}

	p, _, err := globalLock.Call(h)
	if p == 0 {
		globalFree.Call(h)
		return 0, fmt.Errorf("GlobalLock: %w", err)
	}
	copy(unsafe.Slice((*uint16)(unsafe.Pointer(p)), len(buf)), buf)
	globalUnlock.Call(h)

	return h, nil
}
