package config

import (
	"sync"
)

// Store shares one configuration between the pipeline, the tray and the
// dashboard
type Store struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewStore wraps a loaded configuration
func NewStore(cfg *Config) *Store {
	return &Store{cfg: cfg}
}

// Current returns a copy of the configuration (thread-safe)
func (s *Store) Current() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update applies fn to a copy and, if it succeeds, saves and publishes it
func (s *Store) Update(fn func(c *Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if next.path != "" {
		if err := next.Save(); err != nil {
			return err
		}
	}
	s.cfg = next
	return nil
}
