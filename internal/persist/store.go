package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"payment-console/internal/domain"
)

// Version of the blob layout written by this package.
const Version = 1

// Sealer encrypts blobs at rest. *security.SnapshotCipher satisfies it.
type Sealer interface {
	Seal(plain string) (string, error)
	Open(value string) (string, error)
}

// blob is the namespaced wrapper stored under each key.
type blob struct {
	State   json.RawMessage `json:"state"`
	Version int             `json:"version"`
}

// Store reads and writes the auth-storage and theme-storage blobs. Each is
// independently reloadable; a nil Sealer stores plain JSON.
type Store struct {
	kv     domain.KVStore
	sealer Sealer
}

func New(kv domain.KVStore, sealer Sealer) *Store {
	return &Store{kv: kv, sealer: sealer}
}

// LoadSnapshot returns the persisted session subset. found is false when
// nothing has been persisted yet.
func (s *Store) LoadSnapshot(ctx context.Context) (snap domain.Snapshot, found bool, err error) {
	found, err = s.load(ctx, domain.KeyAuthStorage, &snap)
	return snap, found, err
}

// SaveSnapshot replaces the persisted session subset.
func (s *Store) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	return s.save(ctx, domain.KeyAuthStorage, snap)
}

// LoadTheme returns the persisted theme, or the default theme when none is stored.
func (s *Store) LoadTheme(ctx context.Context) (domain.ThemeConfig, error) {
	theme := domain.DefaultTheme()
	if _, err := s.load(ctx, domain.KeyThemeStorage, &theme); err != nil {
		return domain.DefaultTheme(), err
	}
	return theme, nil
}

// SaveTheme validates and persists theme.
func (s *Store) SaveTheme(ctx context.Context, theme domain.ThemeConfig) error {
	if err := theme.Validate(); err != nil {
		return err
	}
	return s.save(ctx, domain.KeyThemeStorage, theme)
}

// ResetTheme removes the persisted theme and returns the default.
func (s *Store) ResetTheme(ctx context.Context) (domain.ThemeConfig, error) {
	if err := s.kv.Delete(ctx, domain.KeyThemeStorage); err != nil {
		return domain.DefaultTheme(), fmt.Errorf("failed to reset theme: %w", err)
	}
	return domain.DefaultTheme(), nil
}

func (s *Store) load(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	if s.sealer != nil {
		if raw, err = s.sealer.Open(raw); err != nil {
			return false, fmt.Errorf("failed to open %s: %w", key, err)
		}
	}

	var b blob
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	if len(b.State) == 0 || string(b.State) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(b.State, v); err != nil {
		return false, fmt.Errorf("failed to decode %s state: %w", key, err)
	}
	return true, nil
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	state, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	raw, err := json.Marshal(blob{State: state, Version: Version})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	value := string(raw)
	if s.sealer != nil {
		if value, err = s.sealer.Seal(value); err != nil {
			return fmt.Errorf("failed to seal %s: %w", key, err)
		}
	}

	if err := s.kv.Set(ctx, key, value); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
