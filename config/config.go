package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"markestedt/tokenspark/platform"
)

// ConfigDirEnv overrides the configuration directory
const ConfigDirEnv = "TOKENSPARK_CONFIG_DIR"

type Config struct {
	ActiveProfile string             `toml:"active_profile"`
	Hotkeys       HotkeyConfig       `toml:"hotkeys"`
	API           APIConfig          `toml:"api"`
	Timing        TimingConfig       `toml:"timing"`
	Chords        ChordConfig        `toml:"chords"`
	Output        OutputConfig       `toml:"output"`
	Notifications NotificationConfig `toml:"notifications"`
	Web           WebConfig          `toml:"web"`
	History       HistoryConfig      `toml:"history"`
	Profiles      []Profile          `toml:"profiles"`

	path string
}

type HotkeyConfig struct {
	Replace string `toml:"replace"`
	Display string `toml:"display"`
}

// APIConfig describes the transformation service
type APIConfig struct {
	Provider       string  `toml:"provider"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	MaxTokens      int     `toml:"max_tokens"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds float64 `toml:"timeout_seconds"`
}

// TimingConfig holds settle and pacing delays in milliseconds
type TimingConfig struct {
	KeySettleMs      int `toml:"key_settle_ms"`
	CopySettleMs     int `toml:"copy_settle_ms"`
	WriteSettleMs    int `toml:"write_settle_ms"`
	PasteSettleMs    int `toml:"paste_settle_ms"`
	PreApplyMs       int `toml:"pre_apply_ms"`
	SuccessDisplayMs int `toml:"success_display_ms"`
}

// ChordConfig overrides the copy and paste shortcuts, empty means platform default
type ChordConfig struct {
	Copy  string `toml:"copy"`
	Paste string `toml:"paste"`
}

type OutputConfig struct {
	StripFences  bool   `toml:"strip_fences"`
	GlossaryPath string `toml:"glossary_path"`
}

type NotificationConfig struct {
	Enabled bool `toml:"enabled"`
}

type WebConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

type HistoryConfig struct {
	Enabled   bool `toml:"enabled"`
	StoreText bool `toml:"store_text"`
}

// Profile is a named system prompt
type Profile struct {
	ID           string `toml:"id"`
	Name         string `toml:"name"`
	SystemPrompt string `toml:"system_prompt"`
}

const defaultOptimizerPrompt = `You are an expert prompt engineer. Your task is to transform the user's casual, vague input into a well-structured, detailed prompt that will produce high-quality AI responses.

Analyze the user's intent and:
1. Identify the core task or question
2. Add necessary context and constraints
3. Specify the desired output format
4. Include relevant technical requirements
5. Add placeholders for missing information using [brackets]

Keep the tone professional but natural. Preserve the user's original goal while enhancing clarity and completeness.

User's original input:`

const defaultSummaryPrompt = `You are an expert content analyzer and summarizer. Your task is to read the provided content and create a clear, concise, and easy-to-understand summary.

Provide a well-structured summary that:
- Captures the main ideas and key points
- Uses simple, clear language
- Maintains the original meaning
- Highlights important facts or conclusions

Your summary MUST be in the same language as the input content.

Content to summarize:`

func defaultProfiles() []Profile {
	return []Profile{
		{ID: "prompt-optimizer", Name: "Prompt optimizer", SystemPrompt: defaultOptimizerPrompt},
		{ID: "summarize", Name: "Summarize", SystemPrompt: defaultSummaryPrompt},
	}
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ActiveProfile: "prompt-optimizer",
		Hotkeys: HotkeyConfig{
			Replace: "ctrl+shift+p",
			Display: "ctrl+shift+o",
		},
		API: APIConfig{
			Provider:       "openai",
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			MaxTokens:      500,
			Temperature:    0.7,
			TimeoutSeconds: 10,
		},
		Timing: TimingConfig{
			KeySettleMs:      10,
			CopySettleMs:     100,
			WriteSettleMs:    50,
			PasteSettleMs:    100,
			PreApplyMs:       200,
			SuccessDisplayMs: 800,
		},
		Output: OutputConfig{
			StripFences: true,
		},
		Notifications: NotificationConfig{
			Enabled: true,
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8766,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Profiles: defaultProfiles(),
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return defaultConfig()
}

// Dir returns the configuration directory, creating it if needed
func Dir() (string, error) {
	dir := os.Getenv(ConfigDirEnv)
	if dir == "" {
		base, err := baseDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(base, "tokenspark")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

func baseDir() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		return appData, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return dir, nil
}

// ConfigPath returns the path to the configuration file
func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load loads the configuration from the TOML file
// If the file doesn't exist, it creates it with default values
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

// LoadFile loads the configuration at path, creating it with defaults if missing
func LoadFile(configPath string) (*Config, error) {
	// If config doesn't exist, create it with defaults
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		cfg := defaultConfig()
		cfg.path = configPath
		if err := save(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	// Load existing config over the defaults. Profiles are replaced, not merged.
	cfg := defaultConfig()
	cfg.Profiles = nil
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.path = configPath

	if len(cfg.Profiles) == 0 {
		cfg.Profiles = defaultProfiles()
	}
	for i := range cfg.Profiles {
		if cfg.Profiles[i].ID == "" {
			cfg.Profiles[i].ID = uuid.NewString()
		}
	}

	return cfg, nil
}

// Save writes the configuration back to the file it was loaded from
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("config has no file path")
	}
	return save(c.path, c)
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	return c.path
}

// save writes the configuration to the TOML file
func save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	cp := *c
	cp.Profiles = append([]Profile(nil), c.Profiles...)
	return &cp
}

// Profile looks a profile up by ID or, failing that, by case-insensitive name
func (c *Config) Profile(ref string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.ID == ref {
			return p, true
		}
	}
	for _, p := range c.Profiles {
		if strings.EqualFold(p.Name, ref) {
			return p, true
		}
	}
	return Profile{}, false
}

// Active returns the active profile
func (c *Config) Active() (Profile, bool) {
	if c.ActiveProfile == "" {
		return Profile{}, false
	}
	return c.Profile(c.ActiveProfile)
}

// SetActive makes the referenced profile active
func (c *Config) SetActive(ref string) error {
	p, ok := c.Profile(ref)
	if !ok {
		return fmt.Errorf("unknown profile: %s", ref)
	}
	c.ActiveProfile = p.ID
	return nil
}

// Validate checks the API configuration is usable: an endpoint, a model and
// a positive token budget
func (a APIConfig) Validate() error {
	switch {
	case strings.TrimSpace(a.BaseURL) == "":
		return fmt.Errorf("API endpoint is empty")
	case strings.TrimSpace(a.Model) == "":
		return fmt.Errorf("model is empty")
	case a.MaxTokens <= 0:
		return fmt.Errorf("max tokens must be positive")
	}
	return nil
}

// Timeout returns the request timeout
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds * float64(time.Second))
}

// Ms converts a millisecond setting to a duration
func Ms(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// KeyCombo represents a parsed keyboard combination
type KeyCombo struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Win   bool
	Key   string
}

// ParseHotkey parses a hotkey combo string like "ctrl+shift+v" or "ctrl+win"
func ParseHotkey(combo string) (KeyCombo, error) {
	var kc KeyCombo
	if strings.TrimSpace(combo) == "" {
		return kc, fmt.Errorf("empty hotkey combo")
	}
	parts := strings.Split(strings.ToLower(combo), "+")

	for i, part := range parts {
		part = strings.TrimSpace(part)

		// Check if this part is a modifier
		isModifier := false
		switch part {
		case "ctrl", "control":
			kc.Ctrl = true
			isModifier = true
		case "shift":
			kc.Shift = true
			isModifier = true
		case "alt", "option":
			kc.Alt = true
			isModifier = true
		case "win", "windows", "cmd", "command", "super", "meta":
			kc.Win = true
			isModifier = true
		}

		// If it's not a modifier and it's the last part, it's the key
		if !isModifier {
			if i == len(parts)-1 {
				kc.Key = part
			} else {
				return kc, fmt.Errorf("unknown modifier: %s", part)
			}
		}
	}

	// Key is optional - if empty, it's a modifier-only combo
	// But we need at least one modifier
	if !kc.Ctrl && !kc.Shift && !kc.Alt && !kc.Win {
		return kc, fmt.Errorf("no modifiers or key specified in combo")
	}

	return kc, nil
}

// Chord converts the combo to an injectable chord
func (kc KeyCombo) Chord() platform.Chord {
	return platform.Chord{Ctrl: kc.Ctrl, Shift: kc.Shift, Alt: kc.Alt, Meta: kc.Win, Key: kc.Key}
}

// Platform converts the combo to a platform hotkey combination
func (kc KeyCombo) Platform() (platform.KeyCombo, error) {
	vk, err := platform.VKCode(kc.Key)
	if err != nil {
		return platform.KeyCombo{}, err
	}
	return platform.KeyCombo{Ctrl: kc.Ctrl, Shift: kc.Shift, Alt: kc.Alt, Win: kc.Win, Key: vk}, nil
}

// ParseChord parses a shortcut that must include a key, like "ctrl+c"
func ParseChord(s string) (platform.Chord, error) {
	kc, err := ParseHotkey(s)
	if err != nil {
		return platform.Chord{}, err
	}
	if kc.Key == "" {
		return platform.Chord{}, fmt.Errorf("shortcut %q has no key", s)
	}
	return kc.Chord(), nil
}
