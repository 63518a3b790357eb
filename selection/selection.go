// Package selection reads and replaces the focused application's selection
// by driving its copy and paste shortcuts through a borrowed clipboard.
//
// The target application's handlers give no completion signal, so every step
// that depends on them waits a fixed settle delay. Those delays are tolerances,
// not synchronisation; they are kept short and tunable.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"markestedt/tokenspark/clipboard"
	"markestedt/tokenspark/clock"
	"markestedt/tokenspark/failure"
	"markestedt/tokenspark/input"
	"markestedt/tokenspark/platform"
)

// Timing holds the settle delays of the protocol
type Timing struct {
	// CopySettle is how long the copy handler gets to fill the clipboard
	CopySettle time.Duration
	// WriteSettle separates our clipboard write from the paste chord
	WriteSettle time.Duration
	// PasteSettle is how long the paste handler gets to read the clipboard
	PasteSettle time.Duration
}

// DefaultTiming returns the delays that work for common desktop applications
func DefaultTiming() Timing {
	return Timing{
		CopySettle:  100 * time.Millisecond,
		WriteSettle: 50 * time.Millisecond,
		PasteSettle: 100 * time.Millisecond,
	}
}

// Options configures a Protocol
type Options struct {
	Timing     Timing
	CopyChord  platform.Chord
	PasteChord platform.Chord
}

// Protocol captures and replaces selections
type Protocol struct {
	clip   *clipboard.Manager
	inj    *input.Injector
	clock  clock.Clock
	timing Timing
	copy   platform.Chord
	paste  platform.Chord
}

// New creates a protocol. Zero chords fall back to the platform defaults.
func New(clip *clipboard.Manager, inj *input.Injector, clk clock.Clock, opts Options) *Protocol {
	if opts.CopyChord.Key == "" {
		opts.CopyChord = platform.CopyChord()
	}
	if opts.PasteChord.Key == "" {
		opts.PasteChord = platform.PasteChord()
	}
	return &Protocol{
		clip:   clip,
		inj:    inj,
		clock:  clk,
		timing: opts.Timing,
		copy:   opts.CopyChord,
		paste:  opts.PasteChord,
	}
}

// Capture copies the current selection and returns it. The user's clipboard
// is restored before Capture returns, whether or not a selection was found.
func (p *Protocol) Capture(ctx context.Context) (text string, err error) {
	snap, err := p.clip.Snapshot()
	if err != nil {
		return "", err
	}
	defer func() {
		err = p.restore(snap, err)
	}()

	// Clearing first makes an unchanged clipboard mean "nothing was copied"
	if err := p.clip.Clear(); err != nil {
		return "", err
	}

	if err := p.inj.PressChord(ctx, p.copy); err != nil {
		return "", err
	}

	if err := p.clock.Sleep(ctx, p.timing.CopySettle); err != nil {
		return "", err
	}

	captured, err := p.clip.Read()
	if err != nil {
		return "", err
	}
	if captured == "" {
		return "", failure.New(failure.NoSelection, "")
	}

	slog.Debug("Selection captured", "chars", len([]rune(captured)))
	return captured, nil
}

// Apply pastes text over the current selection. The clipboard content from
// before the call is restored on every path, including failed injections.
func (p *Protocol) Apply(ctx context.Context, text string) (err error) {
	snap, err := p.clip.Snapshot()
	if err != nil {
		return failure.Wrap(failure.ApplyFailed, err)
	}
	defer func() {
		err = p.restore(snap, err)
		if err != nil {
			err = failure.From(err, failure.ApplyFailed)
		}
	}()

	if err := p.clip.Write(text); err != nil {
		return err
	}

	if err := p.clock.Sleep(ctx, p.timing.WriteSettle); err != nil {
		return err
	}

	if err := p.inj.PressChord(ctx, p.paste); err != nil {
		return err
	}

	if err := p.clock.Sleep(ctx, p.timing.PasteSettle); err != nil {
		return err
	}

	slog.Debug("Selection replaced", "chars", len([]rune(text)))
	return nil
}

// restore puts the snapshot back and merges a restore failure into err
func (p *Protocol) restore(snap clipboard.Snapshot, err error) error {
	rerr := p.clip.Restore(snap)
	if rerr == nil {
		return err
	}
	slog.Error("Failed to restore clipboard", "error", rerr)
	if err == nil {
		return fmt.Errorf("selection succeeded but clipboard was not restored: %w", rerr)
	}
	return errors.Join(err, rerr)
}
