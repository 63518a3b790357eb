package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// APIKeyEnv takes precedence over the stored key
const APIKeyEnv = "TOKENSPARK_API_KEY"

// ErrStoreUnavailable means the stored key exists but could not be read
var ErrStoreUnavailable = errors.New("credential store unavailable")

// SecretStore keeps the API key in a user-only file next to the config
type SecretStore struct {
	path string
}

// NewSecretStore creates a store in dir
func NewSecretStore(dir string) *SecretStore {
	return &SecretStore{path: filepath.Join(dir, "api_key")}
}

// LoadSecret returns the API key, ok is false when none is configured
func (s *SecretStore) LoadSecret() (string, bool, error) {
	if v := strings.TrimSpace(os.Getenv(APIKeyEnv)); v != "" {
		return v, true, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	v := strings.TrimSpace(string(data))
	return v, v != "", nil
}

// SaveSecret stores the API key
func (s *SecretStore) SaveSecret(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("API key is empty")
	}
	if err := os.WriteFile(s.path, []byte(value+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to save API key: %w", err)
	}
	return nil
}

// DeleteSecret removes the stored API key
func (s *SecretStore) DeleteSecret() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	return nil
}
