package identity

import (
	"context"
	"fmt"
	"strings"
)

type StoreConfig struct {
	Kind        string // "memory", "file", "redis", "postgres", "s3"
	Dir         string
	RedisURL    string
	DatabaseURL string
	S3          S3Config
}

type CloseFunc func() error

// OpenStore builds the configured backend. The returned CloseFunc releases
// any connection the store holds and is never nil.
func OpenStore(ctx context.Context, cfg StoreConfig) (Store, CloseFunc, error) {
	noClose := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "memory":
		return NewMemoryStore(), noClose, nil
	case "file":
		store, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, noClose, nil
	case "redis":
		client, err := DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisStore(client), client.Close, nil
	case "postgres":
		pool, err := ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, func() error { pool.Close(); return nil }, nil
	case "s3":
		store, err := NewS3StoreFromConfig(ctx, cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		return store, noClose, nil
	default:
		return nil, nil, fmt.Errorf("unknown IDENTITY_STORE %q (expected memory|file|redis|postgres|s3)", cfg.Kind)
	}
}
