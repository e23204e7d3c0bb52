package sequence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisNamespace = "shopping:sequence"

type incrementer interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// RedisStore keeps one INCR counter per year. Values past MaxPerYear are still
// consumed in Redis; the generator refuses to format them.
type RedisStore struct {
	client    incrementer
	namespace string
}

// NewRedisStore wraps a go-redis client. An empty namespace uses the default.
func NewRedisStore(client incrementer, namespace string) *RedisStore {
	if namespace == "" {
		namespace = defaultRedisNamespace
	}
	return &RedisStore{client: client, namespace: namespace}
}

// Key returns the counter key for a year.
func (s *RedisStore) Key(year int) string {
	return fmt.Sprintf("%s:%d", s.namespace, year)
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, year int) (int64, error) {
	n, err := s.client.Incr(ctx, s.Key(year)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", s.Key(year), err)
	}
	return n, nil
}
