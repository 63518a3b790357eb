package pipeline

import (
	"fmt"
	"strings"
)

// Mode selects what happens to the transformed text
type Mode int

const (
	// Replace pastes the result over the selection
	Replace Mode = iota
	// Display hands the result to the presenter and leaves the selection alone
	Display
)

func (m Mode) String() string {
	switch m {
	case Replace:
		return "replace"
	case Display:
		return "display"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "replace" or "display"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "replace", "":
		return Replace, nil
	case "display", "show":
		return Display, nil
	default:
		return 0, fmt.Errorf("unknown mode: %q", s)
	}
}

// Stage is a state of the invocation state machine
type Stage int32

const (
	Idle Stage = iota
	Preparing
	Validating
	Capturing
	Transforming
	Applying
	Presenting
	Done
	Failed
)

var stageNames = [...]string{
	Idle:         "idle",
	Preparing:    "preparing",
	Validating:   "validating",
	Capturing:    "capturing",
	Transforming: "transforming",
	Applying:     "applying",
	Presenting:   "presenting",
	Done:         "done",
	Failed:       "failed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Stages lists every stage in pipeline order
func Stages() []Stage {
	return []Stage{Idle, Preparing, Validating, Capturing, Transforming, Applying, Presenting, Done, Failed}
}

// Terminal reports whether the stage ends an invocation
func (s Stage) Terminal() bool {
	return s == Done || s == Failed
}

// Label is the progress text shown while in the stage
func (s Stage) Label() string {
	switch s {
	case Preparing:
		return "Preparing..."
	case Validating:
		return "Validating configuration..."
	case Capturing:
		return "Capturing text..."
	case Transforming:
		return "Transforming..."
	case Applying:
		return "Replacing..."
	case Presenting:
		return "Showing result..."
	case Done:
		return "Done!"
	default:
		return ""
	}
}

var transitions = map[Stage][]Stage{
	Idle:         {Preparing},
	Preparing:    {Validating},
	Validating:   {Capturing},
	Capturing:    {Transforming},
	Transforming: {Applying, Presenting},
	Applying:     {Done},
	Presenting:   {Done},
	Done:         {Idle},
	Failed:       {Idle},
}

// CanTransition reports whether the state machine allows from → to.
// Every non-terminal stage other than Idle may also fail.
func CanTransition(from, to Stage) bool {
	if to == Failed {
		return from != Idle && !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
