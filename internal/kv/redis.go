package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis"
)

func secondsToDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

// RedisStore implements Store over github.com/go-redis/redis, grounded on
// original_source/src/storage/redis.rs's ConnectionPool/Redis wrapper: one
// shared client, SET/SETEX/GET/DEL/KEYS commands, errors bubbled up rather
// than swallowed.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials host:port with the given password (empty for none).
func NewRedisStore(host string, port int, password string) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       0,
	})
	return &RedisStore{client: client}
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.WithContext(ctx).Set(key, value, 0).Err()
}

func (s *RedisStore) SetEx(ctx context.Context, key, value string, ttlSeconds int) error {
	return s.client.WithContext(ctx).Set(key, value, secondsToDuration(ttlSeconds)).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.WithContext(ctx).Get(key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.client.WithContext(ctx).Del(key).Err()
}

func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.client.WithContext(ctx).Keys(pattern).Result()
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
