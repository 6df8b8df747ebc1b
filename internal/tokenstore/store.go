package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"payment-console/internal/domain"
)

// Store keeps the access/refresh pair under the accessToken and refreshToken
// keys of a KVStore. Missing keys read as empty strings.
type Store struct {
	kv domain.KVStore
}

func New(kv domain.KVStore) *Store {
	return &Store{kv: kv}
}

// Tokens reads both durable tokens.
func (s *Store) Tokens(ctx context.Context) (domain.TokenPair, error) {
	access, err := s.AccessToken(ctx)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.RefreshToken(ctx)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Store) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, domain.KeyAccessToken)
}

func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, domain.KeyRefreshToken)
}

// Save writes both tokens together. An empty token removes its key so the
// store never holds a stale half of an old pair.
func (s *Store) Save(ctx context.Context, pair domain.TokenPair) error {
	values := make(map[string]string, 2)
	var remove []string

	if pair.AccessToken != "" {
		values[domain.KeyAccessToken] = pair.AccessToken
	} else {
		remove = append(remove, domain.KeyAccessToken)
	}
	if pair.RefreshToken != "" {
		values[domain.KeyRefreshToken] = pair.RefreshToken
	} else {
		remove = append(remove, domain.KeyRefreshToken)
	}

	if err := s.kv.SetMany(ctx, values); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	if err := s.kv.Delete(ctx, remove...); err != nil {
		return fmt.Errorf("failed to remove stale token: %w", err)
	}
	return nil
}

// Clear removes both durable tokens.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, domain.KeyAccessToken, domain.KeyRefreshToken); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

// Ping reports whether the backing store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, err := s.kv.Get(ctx, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, nil
}
