package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markestedt/tokenspark/platform"
)

func TestLoadCreatesDefaults(t *testing.T) {
	t.Setenv(ConfigDirEnv, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	path, err := ConfigPath()
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, path, cfg.Path())

	assert.Equal(t, "https://api.openai.com/v1", cfg.API.BaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.API.Model)
	assert.Equal(t, 500, cfg.API.MaxTokens)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout())

	active, ok := cfg.Active()
	require.True(t, ok)
	assert.Equal(t, "Prompt optimizer", active.Name)
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
active_profile = "Tone"

[api]
model = "gpt-4o"

[[profiles]]
name = "Tone"
system_prompt = "Make it friendlier."
`), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.API.Model)
	assert.Equal(t, "https://api.openai.com/v1", cfg.API.BaseURL, "unset keys keep defaults")

	require.Len(t, cfg.Profiles, 1, "profiles replace the defaults")
	assert.NotEmpty(t, cfg.Profiles[0].ID)

	active, ok := cfg.Active()
	require.True(t, ok)
	assert.Equal(t, "Make it friendlier.", active.SystemPrompt)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.NoError(t, cfg.SetActive("summarize"))
	cfg.API.Temperature = 0.2
	require.NoError(t, cfg.Save())

	reloaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "summarize", reloaded.ActiveProfile)
	assert.Equal(t, 0.2, reloaded.API.Temperature)
}

func TestSetActiveUnknown(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.SetActive("nope"))
	assert.Equal(t, "prompt-optimizer", cfg.ActiveProfile)
}

func TestAPIConfigValidate(t *testing.T) {
	valid := Default().API
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(a *APIConfig)
	}{
		{"empty endpoint", func(a *APIConfig) { a.BaseURL = " " }},
		{"empty model", func(a *APIConfig) { a.Model = "" }},
		{"zero tokens", func(a *APIConfig) { a.MaxTokens = 0 }},
		{"negative tokens", func(a *APIConfig) { a.MaxTokens = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			assert.Error(t, a.Validate())
		})
	}
}

func TestParseHotkey(t *testing.T) {
	tests := []struct {
		combo   string
		want    KeyCombo
		wantErr bool
	}{
		{combo: "ctrl+shift+p", want: KeyCombo{Ctrl: true, Shift: true, Key: "p"}},
		{combo: "Cmd+Shift+P", want: KeyCombo{Win: true, Shift: true, Key: "p"}},
		{combo: "ctrl+win", want: KeyCombo{Ctrl: true, Win: true}},
		{combo: "p", wantErr: true},
		{combo: "hyper+p", wantErr: true},
		{combo: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.combo, func(t *testing.T) {
			got, err := ParseHotkey(tt.combo)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseChord(t *testing.T) {
	c, err := ParseChord("cmd+c")
	require.NoError(t, err)
	assert.Equal(t, platform.Chord{Meta: true, Key: "c"}, c)

	_, err = ParseChord("ctrl+shift")
	assert.Error(t, err)
}

func TestKeyComboPlatform(t *testing.T) {
	kc, err := ParseHotkey("ctrl+shift+p")
	require.NoError(t, err)
	pk, err := kc.Platform()
	require.NoError(t, err)
	assert.Equal(t, platform.KeyCombo{Ctrl: true, Shift: true, Key: 0x50}, pk)
}

func TestSecretStore(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	store := NewSecretStore(t.TempDir())

	_, ok, err := store.LoadSecret()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveSecret("  sk-test  "))
	v, ok, err := store.LoadSecret()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-test", v)

	t.Setenv(APIKeyEnv, "sk-env")
	v, _, err = store.LoadSecret()
	require.NoError(t, err)
	assert.Equal(t, "sk-env", v)

	t.Setenv(APIKeyEnv, "")
	require.NoError(t, store.DeleteSecret())
	_, ok, err = store.LoadSecret()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecretStoreUnavailable(t *testing.T) {
	t.Setenv(APIKeyEnv, "")
	dir := t.TempDir()
	// A directory where the key file should be cannot be read as a file
	require.NoError(t, os.Mkdir(filepath.Join(dir, "api_key"), 0700))

	_, _, err := NewSecretStore(dir).LoadSecret()
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestStoreUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	store := NewStore(cfg)

	snapshot := store.Current()
	require.NoError(t, store.Update(func(c *Config) error { return c.SetActive("Summarize") }))

	assert.Equal(t, "prompt-optimizer", snapshot.ActiveProfile, "earlier copies are not mutated")
	assert.Equal(t, "summarize", store.Current().ActiveProfile)

	assert.Error(t, store.Update(func(c *Config) error { return c.SetActive("missing") }))
	assert.Equal(t, "summarize", store.Current().ActiveProfile)

	reloaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "summarize", reloaded.ActiveProfile)
}
