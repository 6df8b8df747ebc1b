package domain

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

// Persisted key names. Token keys hold raw strings; the storage keys hold
// namespaced JSON blobs.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyAuthStorage  = "auth-storage"
	KeyThemeStorage = "theme-storage"
)

// KVStore is a durable string key-value store.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// SetMany writes all values atomically where the backend allows it.
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// TokenStore holds the durable access/refresh token pair.
type TokenStore interface {
	Tokens(ctx context.Context) (TokenPair, error)
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	Save(ctx context.Context, pair TokenPair) error
	Clear(ctx context.Context) error
}
