package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jgivc/datasync/internal/entity"
	"github.com/jgivc/datasync/internal/repository/catalog"
	"github.com/jgivc/datasync/internal/storage/datadir"
)

// WorkerResult counts the outcome of one partition.
type WorkerResult struct {
	Attempted int
	Failed    int
}

type worker struct {
	sess    catalog.Session
	fetcher Fetcher
	dir     *datadir.DataDir
	obs     Observer
	log     *slog.Logger
}

func newWorker(n int, sess catalog.Session, fetcher Fetcher, dir *datadir.DataDir, obs Observer, log *slog.Logger) *worker {
	return &worker{
		sess:    sess,
		fetcher: fetcher,
		dir:     dir,
		obs:     obs,
		log:     log.With(slog.Int("worker_id", n)),
	}
}

// Run processes datasets in order. A failing record never stops the others;
// a cancelled context does.
func (w *worker) Run(ctx context.Context, datasets []*entity.Dataset) WorkerResult {
	var res WorkerResult

	w.log.Info("Started", slog.Int("count", len(datasets)))

	for _, d := range datasets {
		if ctx.Err() != nil {
			w.log.Info("Interrupted", slog.Int("remaining", len(datasets)-res.Attempted))

			break
		}

		res.Attempted++
		if err := w.sync(ctx, d); err != nil {
			res.Failed++
		}
	}

	w.log.Info("Done", slog.Int("attempted", res.Attempted), slog.Int("failed", res.Failed))

	return res
}

func (w *worker) sync(ctx context.Context, d *entity.Dataset) error {
	log := w.log.With(slog.String("id", d.ID))

	dest, err := w.dir.Path(d.ID)
	if err == nil {
		start := time.Now()
		_, err = w.fetcher.Fetch(ctx, d.URL, dest)
		w.obs.ObserveDownload(err, time.Since(start))
	}

	if err != nil {
		if ctx.Err() != nil {
			// Leave the record as it was so the next run picks it up again.
			log.Warn("Download interrupted", slog.Any("error", err))

			return err
		}

		log.Warn("Cannot download dataset", slog.String("url", d.URL), slog.Any("error", err))

		if uerr := w.sess.UpdateStatus(ctx, d.ID, entity.Fail()); uerr != nil {
			log.Error("Cannot mark dataset as errored", slog.Any("error", uerr))
		}

		return err
	}

	if err := w.sess.UpdateStatus(ctx, d.ID, entity.Settle()); err != nil {
		log.Error("Cannot mark dataset as settled", slog.Any("error", err))

		return fmt.Errorf("cannot settle dataset %s: %w", d.ID, err)
	}

	log.Debug("Dataset downloaded", slog.String("path", dest))

	return nil
}
