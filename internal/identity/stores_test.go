package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	client, err := DialRedis(ctx, "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	store := NewRedisStore(client)

	if _, err := store.Get(ctx, "group"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := store.PutIfAbsent(ctx, "group", "first")
	if err != nil || got != "first" {
		t.Fatalf("expected first, got %q (%v)", got, err)
	}
	if stored, _ := mr.Get(redisKeyPrefix + "group"); stored != "first" {
		t.Fatalf("expected key under prefix, got %q", stored)
	}

	t.Run("existing id wins", func(t *testing.T) {
		other := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		got, err := other.PutIfAbsent(ctx, "group", "second")
		if err != nil || got != "first" {
			t.Fatalf("expected first, got %q (%v)", got, err)
		}
	})

	t.Run("server errors surface", func(t *testing.T) {
		mr.SetError("LOADING")
		defer mr.SetError("")
		if _, err := store.Get(ctx, "group"); err == nil || errors.Is(err, ErrNotFound) {
			t.Fatalf("expected server error, got %v", err)
		}
	})

	t.Run("bad url is rejected", func(t *testing.T) {
		if _, err := DialRedis(ctx, "not a url"); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	t.Run("existing id wins", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		if err != nil {
			t.Fatalf("mock: %v", err)
		}
		defer mock.Close()

		mock.ExpectExec("INSERT INTO distinct_identifiers").
			WithArgs("group", "second").
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectQuery("SELECT distinct_id FROM distinct_identifiers").
			WithArgs("group").
			WillReturnRows(pgxmock.NewRows([]string{"distinct_id"}).AddRow("first"))

		got, err := NewPostgresStore(mock).PutIfAbsent(ctx, "group", "second")
		if err != nil || got != "first" {
			t.Fatalf("expected first, got %q (%v)", got, err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("expectations: %v", err)
		}
	})

	t.Run("missing row is ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		if err != nil {
			t.Fatalf("mock: %v", err)
		}
		defer mock.Close()

		mock.ExpectQuery("SELECT distinct_id FROM distinct_identifiers").
			WithArgs("group").
			WillReturnRows(pgxmock.NewRows([]string{"distinct_id"}))

		if _, err := NewPostgresStore(mock).Get(ctx, "group"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("insert failure surfaces", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		if err != nil {
			t.Fatalf("mock: %v", err)
		}
		defer mock.Close()

		mock.ExpectExec("INSERT INTO distinct_identifiers").
			WithArgs("group", "id").
			WillReturnError(errors.New("connection reset"))

		if _, err := NewPostgresStore(mock).PutIfAbsent(ctx, "group", "id"); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("schema", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		if err != nil {
			t.Fatalf("mock: %v", err)
		}
		defer mock.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS distinct_identifiers").
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

		if err := NewPostgresStore(mock).EnsureSchema(ctx); err != nil {
			t.Fatalf("ensure schema: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("expectations: %v", err)
		}
	})
}
