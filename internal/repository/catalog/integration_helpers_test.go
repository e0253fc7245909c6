//go:build integration

package catalog

import (
	"context"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func writeRedisMarker(ctx context.Context, rawURL string) error {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(opt)
	defer rdb.Close()

	return NewRedisCatalog(rdb, slog.New(slog.NewTextHandler(io.Discard, nil))).Init(ctx)
}

func createPostgresTable(ctx context.Context, rawURL string) error {
	pool, err := pgxpool.New(ctx, rawURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	return NewPostgresCatalog(pool, slog.New(slog.NewTextHandler(io.Discard, nil))).Init(ctx)
}
