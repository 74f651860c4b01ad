package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

type RedisKV struct {
	client *redis.Client
	prefix string
}

func NewRedisKV(client *redis.Client, prefix string) *RedisKV {
	return &RedisKV{client: client, prefix: prefix}
}

func (s *RedisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, prefixed(s.prefix, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return v, nil
}

// Put stores the value without a TTL; staleness is decided by the record's
// own timestamp, not by the medium.
func (s *RedisKV) Put(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, prefixed(s.prefix, key), value, 0).Err()
}
