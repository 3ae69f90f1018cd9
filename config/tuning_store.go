package config

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// TuningStore hands out the current Tuning snapshot. Reload swaps the pointer,
// so readers holding an older snapshot keep a consistent view.
type TuningStore struct {
	path    string
	current atomic.Pointer[Tuning]
}

// NewTuningStore seeds a store with an already loaded tuning
func NewTuningStore(path string, initial *Tuning) *TuningStore {
	if initial == nil {
		initial = DefaultTuning()
	}
	s := &TuningStore{path: path}
	s.current.Store(initial)
	return s
}

// Load returns the current snapshot
func (s *TuningStore) Load() *Tuning {
	return s.current.Load()
}

// Swap installs t as the current snapshot after validating it
func (s *TuningStore) Swap(t *Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.current.Store(t)
	return nil
}

// Reload re-reads the tuning file and env overrides. The current snapshot is
// kept when either fails. It reports whether the threshold set version changed; accounts are
// replaced either way.
func (s *TuningStore) Reload() (bool, error) {
	t, err := LoadTuning(s.path)
	if err != nil {
		return false, err
	}
	t, err = ApplyEnvOverrides(t)
	if err != nil {
		return false, err
	}
	prev := s.current.Swap(t)
	if prev != nil && prev.Version() == t.Version() {
		return false, nil
	}
	zap.S().Infow("tuning reloaded",
		"path", s.path,
		"version", t.Version())
	return true, nil
}
