package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jgivc/datasync/internal/common"
	"github.com/jgivc/datasync/internal/entity"
	"github.com/jgivc/datasync/internal/repository/catalog"
	"github.com/jgivc/datasync/internal/storage/datadir"
)

// reconcile removes the local file and the catalog record of every stale
// dataset. It must only run after all download workers have finished.
// A record whose file could not be removed is kept so the next run retries it.
func (s *SyncService) reconcile(ctx context.Context, log *slog.Logger, summary *entity.SyncSummary) error {
	stale, err := s.catalog.Select(ctx, catalog.SelectStale)
	if err != nil {
		log.Error("Cannot select stale datasets", slog.Any("error", err))

		return fmt.Errorf("cannot select stale datasets: %w", err)
	}

	summary.StaleFound = len(stale)
	log.Info("Deleting stale datasets", slog.Int("count", len(stale)))

	for _, d := range stale {
		if ctx.Err() != nil {
			log.Info("Interrupted")

			return fmt.Errorf("reconcile interrupted: %w", ctx.Err())
		}

		err := s.removeStale(ctx, d)
		s.obs.ObserveStale(err)

		if err != nil {
			summary.StaleFailed++
			log.Error("Cannot delete stale dataset", slog.String("id", d.ID), slog.Any("error", err))

			continue
		}

		summary.StaleDeleted++
	}

	return nil
}

func (s *SyncService) removeStale(ctx context.Context, d *entity.Dataset) error {
	if err := s.dir.Remove(d.ID); err != nil && !errors.Is(err, datadir.ErrInvalidID) {
		return err
	}

	if err := s.catalog.Delete(ctx, d.ID); err != nil && !errors.Is(err, common.ErrDatasetNotFound) {
		return err
	}

	return nil
}
