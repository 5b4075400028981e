package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the part of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func ConnectPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}

	// Identifier lookups are rare and cached by the resolver.
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 0

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS distinct_identifiers (
		  namespace TEXT PRIMARY KEY,
		  distinct_id TEXT NOT NULL,
		  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create distinct_identifiers: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, namespace string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		SELECT distinct_id FROM distinct_identifiers WHERE namespace = $1
	`, namespace).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query distinct id: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) PutIfAbsent(ctx context.Context, namespace string, id string) (string, error) {
	if _, err := s.db.Exec(ctx, `
		INSERT INTO distinct_identifiers (namespace, distinct_id)
		VALUES ($1, $2)
		ON CONFLICT (namespace) DO NOTHING
	`, namespace, id); err != nil {
		return "", fmt.Errorf("insert distinct id: %w", err)
	}
	return s.Get(ctx, namespace)
}
