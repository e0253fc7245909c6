// Package catalog persists dataset records and their synchronization flags.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"runtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jgivc/datasync/internal/common"
	"github.com/jgivc/datasync/internal/entity"
	"github.com/redis/go-redis/v9"
)

// Predicate selects dataset records.
type Predicate int

const (
	// SelectPending matches records that need a download: (new OR modified) AND NOT error.
	SelectPending Predicate = iota
	// SelectErrored matches records whose last download failed.
	SelectErrored
	// SelectStale matches records scheduled for deletion.
	SelectStale
)

func (p Predicate) String() string {
	return [...]string{"pending", "errored", "stale"}[p]
}

func (p Predicate) Match(d *entity.Dataset) bool {
	switch p {
	case SelectPending:
		return (d.New || d.Modified) && !d.Error
	case SelectErrored:
		return d.Error
	case SelectStale:
		return d.Stale
	}

	return false
}

// Session is a dedicated catalog handle owned by a single worker.
type Session interface {
	UpdateStatus(ctx context.Context, id string, u entity.StatusUpdate) error
	Close() error
}

type Catalog interface {
	// Check returns common.ErrCatalogNotInitialized when the storage was never populated.
	Check(ctx context.Context) error
	Select(ctx context.Context, p Predicate) ([]*entity.Dataset, error)
	Session(ctx context.Context) (Session, error)
	Save(ctx context.Context, datasets []*entity.Dataset) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Open connects to the catalog addressed by rawURL and verifies it is initialized.
// Supported schemes: redis, rediss, postgres, postgresql. The connection pool
// holds at least one session per worker plus one for the run itself.
func Open(ctx context.Context, rawURL string, workers int, log *slog.Logger) (Catalog, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse catalog url: %w", err)
	}

	var cat Catalog

	switch u.Scheme {
	case "redis", "rediss":
		opt, err := redisOptions(rawURL, workers)
		if err != nil {
			return nil, err
		}

		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()

			return nil, fmt.Errorf("cannot connect to redis: %w", err)
		}

		cat = NewRedisCatalog(rdb, log)
	case "postgres", "postgresql":
		cfg, err := postgresConfig(rawURL, workers)
		if err != nil {
			return nil, err
		}

		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("cannot create postgres pool: %w", err)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()

			return nil, fmt.Errorf("cannot connect to postgres: %w", err)
		}

		cat = NewPostgresCatalog(pool, log)
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedCatalog, u.Scheme)
	}

	if err := cat.Check(ctx); err != nil {
		cat.Close()

		return nil, err
	}

	return cat, nil
}

func poolSize(workers int) int {
	return max(workers, 1) + 1
}

func redisOptions(rawURL string, workers int) (*redis.Options, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse redis url: %w", err)
	}

	// Zero means the go-redis default, 10 per GOMAXPROCS.
	if opt.PoolSize == 0 {
		opt.PoolSize = 10 * runtime.GOMAXPROCS(0)
	}
	opt.PoolSize = max(opt.PoolSize, poolSize(workers))

	return opt, nil
}

func postgresConfig(rawURL string, workers int) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(rawURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse postgres url: %w", err)
	}

	if size := int32(poolSize(workers)); cfg.MaxConns < size {
		cfg.MaxConns = size
	}

	return cfg, nil
}
