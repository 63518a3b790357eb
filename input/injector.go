package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"markestedt/tokenspark/clock"
	"markestedt/tokenspark/failure"
	"markestedt/tokenspark/platform"
)

// DefaultKeySettle is the pause between key-down and key-up
const DefaultKeySettle = 10 * time.Millisecond

// Injector presses key chords in the focused application
type Injector struct {
	keys   platform.KeySender
	clock  clock.Clock
	settle time.Duration
}

// NewInjector creates an injector. A zero settle uses DefaultKeySettle.
func NewInjector(keys platform.KeySender, clk clock.Clock, settle time.Duration) *Injector {
	if settle <= 0 {
		settle = DefaultKeySettle
	}
	return &Injector{keys: keys, clock: clk, settle: settle}
}

// PressChord posts key-down, waits the settle delay, then posts key-up.
// A refused injection fails with failure.InjectionDenied and is not retried.
func (i *Injector) PressChord(ctx context.Context, c platform.Chord) error {
	if err := i.keys.KeyDown(c); err != nil {
		return classify(c, "key-down", err)
	}

	// Key-up is sent even if the wait is cut short so no modifier stays held
	waitErr := i.clock.Sleep(ctx, i.settle)

	if err := i.keys.KeyUp(c); err != nil {
		return classify(c, "key-up", err)
	}
	if waitErr != nil {
		return waitErr
	}

	slog.Debug("Chord injected", "chord", c.String())
	return nil
}

func classify(c platform.Chord, phase string, err error) error {
	if errors.Is(err, platform.ErrInjectionDenied) {
		return failure.Wrap(failure.InjectionDenied, err)
	}
	return fmt.Errorf("failed to inject %s %s: %w", c, phase, err)
}
