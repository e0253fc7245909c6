// Package syncer downloads outstanding datasets in parallel, records the outcome
// of every download in the catalog and removes stale datasets.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jgivc/datasync/internal/common"
	"github.com/jgivc/datasync/internal/entity"
	"github.com/jgivc/datasync/internal/partition"
	"github.com/jgivc/datasync/internal/repository/catalog"
	"github.com/jgivc/datasync/internal/storage/datadir"
	"github.com/jgivc/datasync/internal/util"
)

const (
	DefaultWorkers = 10
)

type Mode int

const (
	// ModeNormal downloads new and modified records that are not errored.
	ModeNormal Mode = iota
	// ModeRetryErrors downloads only records whose last attempt failed.
	ModeRetryErrors
)

func (m Mode) String() string {
	return [...]string{"normal", "retry-errors"}[m]
}

func (m Mode) Predicate() catalog.Predicate {
	if m == ModeRetryErrors {
		return catalog.SelectErrored
	}

	return catalog.SelectPending
}

type Catalog interface {
	Select(ctx context.Context, p catalog.Predicate) ([]*entity.Dataset, error)
	Session(ctx context.Context) (catalog.Session, error)
	Delete(ctx context.Context, id string) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) (string, error)
}

// Observer receives per record outcomes, e.g. for metrics.
type Observer interface {
	ObserveDownload(err error, elapsed time.Duration)
	ObserveStale(err error)
}

type nopObserver struct{}

func (nopObserver) ObserveDownload(error, time.Duration) {}
func (nopObserver) ObserveStale(error)                   {}

type SyncService struct {
	running atomic.Bool
	catalog Catalog
	fetcher Fetcher
	dir     *datadir.DataDir
	obs     Observer
	workers int
	log     *slog.Logger
}

func NewSyncService(cat Catalog, fetcher Fetcher, dir *datadir.DataDir, workers int, obs Observer, log *slog.Logger) *SyncService {
	if workers < 1 {
		workers = DefaultWorkers
	}

	if obs == nil {
		obs = nopObserver{}
	}

	return &SyncService{
		catalog: cat,
		fetcher: fetcher,
		dir:     dir,
		obs:     obs,
		workers: workers,
		log:     log.With(slog.String("item", "SyncService")),
	}
}

// Run performs one sync: select work, download in parallel, wait for every
// worker, then delete stale datasets. Download failures are recorded in the
// catalog and counted; only catalog or data dir failures are returned as errors.
func (s *SyncService) Run(ctx context.Context, mode Mode) (*entity.SyncSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, common.ErrSyncAlreadyRunning
	}
	defer s.running.Store(false)

	summary := &entity.SyncSummary{
		RunID:     util.NewRunID(),
		Mode:      mode.String(),
		StartedAt: time.Now(),
	}
	log := s.log.With(slog.String("run_id", summary.RunID), slog.String("mode", summary.Mode))

	if err := s.dir.Ensure(); err != nil {
		return nil, err
	}

	datasets, err := s.catalog.Select(ctx, mode.Predicate())
	if err != nil {
		log.Error("Cannot select datasets", slog.Any("error", err))

		return nil, fmt.Errorf("cannot select datasets: %w", err)
	}

	summary.Selected = len(datasets)
	log.Info("Downloading datasets", slog.Int("count", len(datasets)), slog.Int("workers", s.workers))

	if err := s.download(ctx, log, datasets, summary); err != nil {
		return nil, err
	}

	log.Info("Downloading workers all finished", slog.Int("attempted", summary.Attempted), slog.Int("failed", summary.Failed))

	if err := ctx.Err(); err != nil {
		summary.Duration = time.Since(summary.StartedAt)

		return summary, fmt.Errorf("sync interrupted: %w", err)
	}

	err = s.reconcile(ctx, log, summary)
	summary.Duration = time.Since(summary.StartedAt)

	log.Info("Done",
		slog.Int("stale_found", summary.StaleFound),
		slog.Int("stale_deleted", summary.StaleDeleted),
		slog.Duration("duration", summary.Duration),
	)

	return summary, err
}

func (s *SyncService) download(ctx context.Context, log *slog.Logger, datasets []*entity.Dataset, summary *entity.SyncSummary) error {
	groups := partition.NonEmpty(partition.Split(datasets, s.workers))
	if len(groups) == 0 {
		return nil
	}

	sessions := make([]catalog.Session, 0, len(groups))
	for range groups {
		sess, err := s.catalog.Session(ctx)
		if err != nil {
			for _, opened := range sessions {
				opened.Close()
			}

			log.Error("Cannot open catalog session", slog.Any("error", err))

			return fmt.Errorf("cannot open catalog session: %w", err)
		}

		sessions = append(sessions, sess)
	}

	results := make([]WorkerResult, len(groups))

	var wg sync.WaitGroup
	wg.Add(len(groups))
	for n, group := range groups {
		w := newWorker(n, sessions[n], s.fetcher, s.dir, s.obs, log)

		go func() {
			defer wg.Done()
			defer func() {
				if err := sessions[n].Close(); err != nil {
					w.log.Warn("Cannot close catalog session", slog.Any("error", err))
				}
			}()

			results[n] = w.Run(ctx, group)
		}()
	}
	wg.Wait()

	for _, res := range results {
		summary.Attempted += res.Attempted
		summary.Failed += res.Failed
	}

	return nil
}
