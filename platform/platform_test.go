package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVKCode(t *testing.T) {
	tests := []struct {
		key     string
		want    int
		wantErr bool
	}{
		{key: "", want: 0},
		{key: "c", want: 0x43},
		{key: "V", want: 0x56},
		{key: "f12", want: 0x7B},
		{key: "space", want: 0x20},
		{key: "hyper", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := VKCode(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChordString(t *testing.T) {
	assert.Equal(t, "ctrl+shift+p", Chord{Ctrl: true, Shift: true, Key: "p"}.String())
	assert.Equal(t, "meta+c", Chord{Meta: true, Key: "c"}.String())
}

func TestDefaultChordsShareModifiers(t *testing.T) {
	copyChord, pasteChord := CopyChord(), PasteChord()
	assert.Equal(t, "c", copyChord.Key)
	assert.Equal(t, "v", pasteChord.Key)
	assert.Equal(t, copyChord.Meta, pasteChord.Meta)
	assert.Equal(t, copyChord.Ctrl, pasteChord.Ctrl)
}

func TestComboMatcherFiresOncePerPress(t *testing.T) {
	var mods KeyCombo
	replace := Binding{Combo: KeyCombo{Ctrl: true, Shift: true, Key: 0x50}, Tag: "replace"}
	display := Binding{Combo: KeyCombo{Ctrl: true, Shift: true, Key: 0x4F}, Tag: "display"}
	m, err := newComboMatcher([]Binding{replace, display}, func() KeyCombo { return mods })
	require.NoError(t, err)

	// Key without the modifiers does nothing
	assert.Empty(t, m.key(0x50, true))
	assert.Empty(t, m.key(0x50, false))

	mods = KeyCombo{Ctrl: true, Shift: true}
	assert.Equal(t, []string{"replace"}, m.key(0x50, true))
	// Auto-repeat while held
	assert.Empty(t, m.key(0x50, true))
	assert.Empty(t, m.key(0x50, true))
	assert.Empty(t, m.key(0x50, false))
	assert.Equal(t, []string{"replace"}, m.key(0x50, true))

	assert.Equal(t, []string{"display"}, m.key(0x4F, true))

	// Extra modifiers do not match
	mods.Alt = true
	m.key(0x4F, false)
	assert.Empty(t, m.key(0x4F, true))
}

func TestComboMatcherRequiresKey(t *testing.T) {
	_, err := newComboMatcher([]Binding{{Combo: KeyCombo{Ctrl: true}, Tag: "replace"}}, nil)
	assert.Error(t, err)
}
