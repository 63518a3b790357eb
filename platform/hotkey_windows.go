//go:build windows

package platform

import (
	"context"
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	setWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	callNextHookEx      = user32.NewProc("CallNextHookEx")
	unhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	getMessage          = user32.NewProc("GetMessageW")
	postThreadMessage   = user32.NewProc("PostThreadMessageW")
	getAsyncKeyState    = user32.NewProc("GetAsyncKeyState")
	getCurrentThreadID  = kernel32.NewProc("GetCurrentThreadId")
)

const (
	whKeyboardLL = 13
	wmKeydown    = 0x0100
	wmSyskeydown = 0x0104
	wmQuit       = 0x0012

	llkhfInjected = 0x10
)

const (
	vkShift = 0x10
	vkCtrl  = 0x11
	vkAlt   = 0x12
	vkLwin  = 0x5B
	vkRwin  = 0x5C
)

type kbdllhookstruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

type winMsg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

// WindowsHotkey implements Hotkey with a low-level keyboard hook
type WindowsHotkey struct{}

// NewHotkey creates a new Windows hotkey listener
func NewHotkey() Hotkey {
	return &WindowsHotkey{}
}

type hookStarted struct {
	threadID uintptr
	err      error
}

// Listen installs the hook. The returned channel is closed once ctx is done
// and the hook has been removed.
func (h *WindowsHotkey) Listen(ctx context.Context, bindings []Binding) (<-chan Event, error) {
	matcher, err := newComboMatcher(bindings, modifierState)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 10)
	started := make(chan hookStarted, 1)
	go runHook(matcher, events, started)

	s := <-started
	if s.err != nil {
		return nil, s.err
	}

	go func() {
		<-ctx.Done()
		postThreadMessage.Call(s.threadID, wmQuit, 0, 0)
	}()

	return events, nil
}

// runHook owns the hook thread: the hook procedure is only called from this
// thread's message loop, so the matcher needs no locking
func runHook(matcher *comboMatcher, events chan<- Event, started chan<- hookStarted) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(events)

	proc := windows.NewCallback(func(nCode int32, wParam uintptr, lParam uintptr) uintptr {
		if nCode >= 0 {
			kb := (*kbdllhookstruct)(unsafe.Pointer(lParam))
			// Injected events are our own copy/paste chords
			if kb.flags&llkhfInjected == 0 {
				down := wParam == wmKeydown || wParam == wmSyskeydown
				for _, tag := range matcher.key(int(kb.vkCode), down) {
					select {
					case events <- Event{Tag: tag}:
					default:
					}
				}
			}
		}
		r, _, _ := callNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
		return r
	})

	hook, _, err := setWindowsHookEx.Call(whKeyboardLL, proc, 0, 0)
	if hook == 0 {
		started <- hookStarted{err: fmt.Errorf("SetWindowsHookEx failed: %w", err)}
		return
	}
	defer unhookWindowsHookEx.Call(hook)

	tid, _, _ := getCurrentThreadID.Call()
	started <- hookStarted{threadID: tid}

	// GetMessage returns 0 on WM_QUIT and -1 on error
	var m winMsg
	for {
		r, _, _ := getMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) <= 0 {
			return
		}
	}
}

func modifierState() KeyCombo {
	return KeyCombo{
		Ctrl:  keyDown(vkCtrl),
		Shift: keyDown(vkShift),
		Alt:   keyDown(vkAlt),
		Win:   keyDown(vkLwin) || keyDown(vkRwin),
	}
}

func keyDown(vk int) bool {
	r, _, _ := getAsyncKeyState.Call(uintptr(vk))
	return r&0x8000 != 0
}
