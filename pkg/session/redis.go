package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage persists state blobs in Redis, for headless agents that
// share one session across processes or hosts. Keys are namespaced and
// expire after TTL (zero means no expiry).
type RedisStorage struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisStorage wraps an existing client. An empty namespace defaults to
// "tablero".
func NewRedisStorage(client *redis.Client, namespace string, ttl time.Duration) *RedisStorage {
	if namespace == "" {
		namespace = "tablero"
	}
	return &RedisStorage{client: client, namespace: namespace, ttl: ttl}
}

func (s *RedisStorage) key(key string) string {
	return s.namespace + ":" + key
}

// Save implements Storage.
func (s *RedisStorage) Save(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis save %s: %w", key, err)
	}
	return nil
}

// Load implements Storage.
func (s *RedisStorage) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load %s: %w", key, err)
	}
	return data, nil
}

// Delete implements Storage.
func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}
