package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mixpanel:distinct_id:"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// DialRedis parses redisURL and pings the server before returning.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

func (s *RedisStore) Get(ctx context.Context, namespace string) (string, error) {
	id, err := s.client.Get(ctx, redisKeyPrefix+namespace).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get distinct id: %w", err)
	}
	return id, nil
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, namespace string, id string) (string, error) {
	ok, err := s.client.SetNX(ctx, redisKeyPrefix+namespace, id, 0).Result()
	if err != nil {
		return "", fmt.Errorf("redis setnx distinct id: %w", err)
	}
	if ok {
		return id, nil
	}
	return s.Get(ctx, namespace)
}
