//go:build windows

package platform

import (
	"fmt"
	"unsafe"
)

var (
	sendInput      = user32.NewProc("SendInput")
	mapVirtualKeyW = user32.NewProc("MapVirtualKeyW")
)

const (
	inputKeyboard  = 1
	keyeventfKeyup = 0x0002
	mapvkVkToVsc   = 0
)

type keyboardInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type input struct {
	inputType uint32
	ki        keyboardInput
	padding   [8]byte // Padding to match C struct size
}

// WindowsKeySender implements the KeySender interface with SendInput
type WindowsKeySender struct{}

// NewKeySender creates a new Windows key sender
func NewKeySender() KeySender {
	return &WindowsKeySender{}
}

// KeyDown presses the chord's modifiers, then its key
func (s *WindowsKeySender) KeyDown(c Chord) error {
	vks, err := chordVKs(c)
	if err != nil {
		return err
	}
	inputs := make([]input, 0, len(vks))
	for _, vk := range vks {
		inputs = append(inputs, keyInput(vk, 0))
	}
	return send(inputs)
}

// KeyUp releases the chord's key, then its modifiers in reverse order
func (s *WindowsKeySender) KeyUp(c Chord) error {
	vks, err := chordVKs(c)
	if err != nil {
		return err
	}
	inputs := make([]input, 0, len(vks))
	for i := len(vks) - 1; i >= 0; i-- {
		inputs = append(inputs, keyInput(vks[i], keyeventfKeyup))
	}
	return send(inputs)
}

// chordVKs returns modifier codes followed by the key code
func chordVKs(c Chord) ([]int, error) {
	key, err := VKCode(c.Key)
	if err != nil {
		return nil, err
	}
	if key == 0 {
		return nil, fmt.Errorf("chord %s has no key", c)
	}

	var vks []int
	if c.Ctrl {
		vks = append(vks, vkCtrl)
	}
	if c.Shift {
		vks = append(vks, vkShift)
	}
	if c.Alt {
		vks = append(vks, vkAlt)
	}
	if c.Meta {
		vks = append(vks, vkLwin)
	}
	return append(vks, key), nil
}

// keyInput uses scan codes for better compatibility with elevated applications
func keyInput(vk int, flags uint32) input {
	scan, _, _ := mapVirtualKeyW.Call(uintptr(vk), mapvkVkToVsc)
	return input{
		inputType: inputKeyboard,
		ki: keyboardInput{
			wVk:     uint16(vk),
			wScan:   uint16(scan),
			dwFlags: flags,
		},
	}
}

func send(inputs []input) error {
	// Send all inputs at once for better atomicity
	ret, _, err := sendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)

	// SendInput reports UIPI blocking only through a short count
	if int(ret) != len(inputs) {
		return fmt.Errorf("%w: SendInput inserted %d of %d events: %v", ErrInjectionDenied, ret, len(inputs), err)
	}
	return nil
}
