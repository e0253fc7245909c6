package catalog

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jgivc/datasync/internal/common"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	ctx := context.Background()

	t.Run("unsupported scheme", func(t *testing.T) {
		_, err := Open(ctx, "sqlite:///iati.db", 1, log)
		require.ErrorIs(t, err, common.ErrUnsupportedCatalog)
	})

	t.Run("uninitialized redis", func(t *testing.T) {
		mr := miniredis.RunT(t)

		_, err := Open(ctx, "redis://"+mr.Addr()+"/0", 1, log)
		require.ErrorIs(t, err, common.ErrCatalogNotInitialized)
	})

	t.Run("initialized redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		require.NoError(t, mr.Set(KeyCatalogVersion, CatalogVersion))

		cat, err := Open(ctx, "redis://"+mr.Addr()+"/0", 1, log)
		require.NoError(t, err)
		require.NoError(t, cat.Close())
	})

	t.Run("unreachable redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := Open(ctx, "redis://"+addr+"/0", 1, log)
		require.Error(t, err)
		require.NotErrorIs(t, err, common.ErrCatalogNotInitialized)
	})
}

func TestOpenHoldsSessionPerWorker(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set(KeyCatalogVersion, CatalogVersion))

	const workers = 8

	cat, err := Open(ctx, "redis://"+mr.Addr()+"/0?pool_size=2&pool_timeout=500ms", workers, log)
	require.NoError(t, err)
	defer cat.Close()

	sessions := make([]Session, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := range workers {
		go func() {
			defer wg.Done()
			sessions[i], errs[i] = cat.Session(ctx)
		}()
	}
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		require.NoError(t, sessions[i].Close())
	}
}

func TestRedisOptionsPoolSize(t *testing.T) {
	testCases := []struct {
		name    string
		url     string
		workers int
		want    int
	}{
		{name: "default pool fits workers", url: "redis://localhost:6379/0", workers: 2, want: max(10*runtime.GOMAXPROCS(0), 3)},
		{name: "grown past default", url: "redis://localhost:6379/0", workers: 10*runtime.GOMAXPROCS(0) + 5, want: 10*runtime.GOMAXPROCS(0) + 6},
		{name: "explicit small pool grown", url: "redis://localhost:6379/0?pool_size=2", workers: 8, want: 9},
		{name: "explicit large pool kept", url: "redis://localhost:6379/0?pool_size=50", workers: 8, want: 50},
		{name: "no workers", url: "redis://localhost:6379/0?pool_size=1", workers: 0, want: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opt, err := redisOptions(tc.url, tc.workers)
			require.NoError(t, err)
			require.Equal(t, tc.want, opt.PoolSize)
		})
	}
}

func TestPostgresConfigMaxConns(t *testing.T) {
	testCases := []struct {
		name    string
		url     string
		workers int
		want    int32
	}{
		{name: "grown for default workers", url: "postgres://datasync@localhost/iati?pool_max_conns=4", workers: 10, want: 11},
		{name: "large pool kept", url: "postgres://datasync@localhost/iati?pool_max_conns=40", workers: 10, want: 40},
		{name: "default pool", url: "postgres://datasync@localhost/iati", workers: 1024, want: 1025},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := postgresConfig(tc.url, tc.workers)
			require.NoError(t, err)
			require.Equal(t, tc.want, cfg.MaxConns)
		})
	}
}
