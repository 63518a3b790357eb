//go:build !windows && !linux && !darwin

package platform

import "fmt"

type unsupportedKeySender struct{}

// NewKeySender returns a sender that always refuses
func NewKeySender() KeySender {
	return unsupportedKeySender{}
}

func (unsupportedKeySender) KeyDown(c Chord) error {
	return fmt.Errorf("%w: no synthetic input backend for this platform", ErrInjectionDenied)
}

func (unsupportedKeySender) KeyUp(c Chord) error {
	return nil
}
