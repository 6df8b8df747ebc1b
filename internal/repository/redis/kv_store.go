package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"payment-console/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "payment-console:"

// KVStore keeps the agent's durable keys as plain Redis strings under a prefix.
type KVStore struct {
	client *goredis.Client
	prefix string
}

// NewKVStore wraps client. An empty prefix selects "payment-console:".
func NewKVStore(client *goredis.Client, prefix string) *KVStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultPrefix
	}
	return &KVStore{client: client, prefix: prefix}
}

func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}

	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", domain.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetMany writes all values in one MULTI/EXEC block.
func (s *KVStore) SetMany(ctx context.Context, values map[string]string) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if len(values) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for key, value := range values {
		pipe.Set(ctx, s.key(key), value, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set many: %w", err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, keys ...string) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	return s.client.Ping(ctx).Err()
}

func (s *KVStore) key(k string) string {
	return s.prefix + k
}
