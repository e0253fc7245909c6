package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jgivc/datasync/internal/config"
	"github.com/jgivc/datasync/internal/downloader"
	"github.com/jgivc/datasync/internal/entity"
	"github.com/jgivc/datasync/internal/metrics"
	"github.com/jgivc/datasync/internal/report"
	"github.com/jgivc/datasync/internal/repository/catalog"
	"github.com/jgivc/datasync/internal/service/syncer"
	"github.com/jgivc/datasync/internal/storage/datadir"
	"github.com/spf13/afero"
)

const (
	openTimeout = 10 * time.Second
)

// Overrides are command line values that take precedence over the config.
type Overrides struct {
	CatalogURL string
	DataDir    string
	Workers    int
}

func (o Overrides) apply(cfg *config.Config) {
	if o.CatalogURL != "" {
		cfg.CatalogURL = o.CatalogURL
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if o.Workers > 0 {
		cfg.Workers = o.Workers
	}
}

type App struct {
	cfgPath   string
	overrides Overrides
	cfg       *config.Config
	fs        afero.Fs
	out       io.Writer
	logOut    io.Writer
	log       *slog.Logger
}

func New(cfgPath string, overrides Overrides) *App {
	return &App{
		cfgPath:   cfgPath,
		overrides: overrides,
		fs:        afero.NewOsFs(),
		out:       os.Stdout,
		logOut:    os.Stderr,
	}
}

func (a *App) init() error {
	cfg, err := config.Read(a.cfgPath)
	if err != nil {
		return err
	}

	a.overrides.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	lo := &slog.HandlerOptions{}
	switch cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	a.log = slog.New(slog.NewTextHandler(a.logOut, lo))

	return nil
}

// Run performs one sync run. Per record failures are recorded in the catalog
// and reported, only fatal errors are returned.
func (a *App) Run(ctx context.Context, mode syncer.Mode) (*entity.SyncSummary, error) {
	if err := a.init(); err != nil {
		return nil, err
	}

	openCtx, cancel := context.WithTimeout(ctx, openTimeout)
	cat, err := catalog.Open(openCtx, a.cfg.CatalogURL, a.cfg.Workers, a.log)
	cancel()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cat.Close(); err != nil {
			a.log.Error("Cannot close catalog", slog.Any("error", err))
		}
	}()

	dl := downloader.New(a.fs, downloader.Options{
		Timeout:            a.cfg.Downloader.Timeout,
		RetryAttempts:      a.cfg.Downloader.RetryAttempts,
		RetryBackoff:       a.cfg.Downloader.RetryBackoff,
		RetryMaxBackoff:    a.cfg.Downloader.RetryMaxBackoff,
		BufferSize:         a.cfg.Downloader.BufferSize,
		InsecureSkipVerify: a.cfg.Downloader.InsecureSkipVerify,
	}, a.log)

	rec := metrics.NewRecorder()
	dir := datadir.New(a.fs, a.cfg.DataDir)
	svc := syncer.NewSyncService(cat, dl, dir, a.cfg.Workers, rec, a.log)

	summary, runErr := svc.Run(ctx, mode)
	if summary == nil {
		return nil, runErr
	}

	rec.ObserveRun(summary)
	a.publish(summary, rec)

	return summary, runErr
}

func (a *App) publish(summary *entity.SyncSummary, rec *metrics.Recorder) {
	if err := report.Print(a.out, summary); err != nil {
		a.log.Error("Cannot print summary", slog.Any("error", err))
	}

	if a.cfg.ReportFile != "" {
		if err := report.Write(a.fs, a.cfg.ReportFile, summary); err != nil {
			a.log.Error("Cannot write report", slog.String("path", a.cfg.ReportFile), slog.Any("error", err))
		}
	}

	if a.cfg.MetricsFile != "" {
		if err := rec.WriteFile(a.cfg.MetricsFile); err != nil {
			a.log.Error("Cannot write metrics", slog.String("path", a.cfg.MetricsFile), slog.Any("error", err))
		}
	}
}
