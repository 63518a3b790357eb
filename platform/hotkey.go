package platform

import "fmt"

// comboMatcher turns raw key events into binding tags. A binding fires once
// per press; holding the combination does not repeat it.
type comboMatcher struct {
	bindings []Binding
	held     []bool
	// modifiers reports the modifier keys currently down, Key is unused
	modifiers func() KeyCombo
}

func newComboMatcher(bindings []Binding, modifiers func() KeyCombo) (*comboMatcher, error) {
	for _, b := range bindings {
		if b.Combo.Key == 0 {
			return nil, fmt.Errorf("hotkey %q needs a non-modifier key", b.Tag)
		}
	}
	return &comboMatcher{
		bindings:  bindings,
		held:      make([]bool, len(bindings)),
		modifiers: modifiers,
	}, nil
}

// key handles one key transition and returns the tags of the bindings it fires
func (m *comboMatcher) key(vk int, down bool) []string {
	var fired []string
	for i, b := range m.bindings {
		if b.Combo.Key != vk {
			continue
		}
		if !down {
			m.held[i] = false
			continue
		}
		if m.held[i] {
			continue
		}
		mods := m.modifiers()
		if mods.Ctrl != b.Combo.Ctrl || mods.Shift != b.Combo.Shift || mods.Alt != b.Combo.Alt || mods.Win != b.Combo.Win {
			continue
		}
		m.held[i] = true
		fired = append(fired, b.Tag)
	}
	return fired
}
