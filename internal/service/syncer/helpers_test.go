package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jgivc/datasync/internal/common"
	"github.com/jgivc/datasync/internal/entity"
	"github.com/jgivc/datasync/internal/repository/catalog"
	"github.com/spf13/afero"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

// memCatalog keeps records in memory and counts the calls the service makes.
type memCatalog struct {
	mu         sync.Mutex
	records    map[string]*entity.Dataset
	selects    []catalog.Predicate
	sessions   int
	closed     int
	selectErr  error
	sessionErr error
	deleteErr  error
}

func newMemCatalog(datasets ...*entity.Dataset) *memCatalog {
	c := &memCatalog{records: make(map[string]*entity.Dataset)}
	for _, d := range datasets {
		cp := *d
		c.records[d.ID] = &cp
	}

	return c
}

func (c *memCatalog) Select(_ context.Context, p catalog.Predicate) ([]*entity.Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selects = append(c.selects, p)
	if c.selectErr != nil {
		return nil, c.selectErr
	}

	ids := make([]string, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []*entity.Dataset
	for _, id := range ids {
		if p.Match(c.records[id]) {
			cp := *c.records[id]
			out = append(out, &cp)
		}
	}

	return out, nil
}

func (c *memCatalog) Session(context.Context) (catalog.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionErr != nil {
		return nil, c.sessionErr
	}

	c.sessions++

	return &memSession{c: c}, nil
}

func (c *memCatalog) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deleteErr != nil {
		return c.deleteErr
	}

	if _, ok := c.records[id]; !ok {
		return common.ErrDatasetNotFound
	}
	delete(c.records, id)

	return nil
}

func (c *memCatalog) get(id string) (entity.Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.records[id]
	if !ok {
		return entity.Status{}, false
	}

	return d.Status, true
}

type memSession struct {
	c *memCatalog
}

func (s *memSession) UpdateStatus(_ context.Context, id string, u entity.StatusUpdate) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	d, ok := s.c.records[id]
	if !ok {
		return common.ErrDatasetNotFound
	}
	d.Status = d.Status.Apply(u)

	return nil
}

func (s *memSession) Close() error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	s.c.closed++

	return nil
}

// fakeFetcher writes the url into dest unless an error is configured for it.
type fakeFetcher struct {
	mu     sync.Mutex
	fs     afero.Fs
	errs   map[string]error
	calls  []string
	before func(url string)
}

func newFakeFetcher(fs afero.Fs) *fakeFetcher {
	return &fakeFetcher{fs: fs, errs: make(map[string]error)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dest string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	before := f.before
	err := f.errs[url]
	f.mu.Unlock()

	if before != nil {
		before(url)
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	if err != nil {
		return "", err
	}

	if err := afero.WriteFile(f.fs, dest, []byte(url), 0o644); err != nil {
		return "", err
	}

	return dest, nil
}

func (f *fakeFetcher) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := append([]string(nil), f.calls...)
	sort.Strings(out)

	return out
}

type countingObserver struct {
	mu         sync.Mutex
	downloads  int
	failures   int
	stale      int
	staleFails int
}

func (o *countingObserver) ObserveDownload(err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.downloads++
	if err != nil {
		o.failures++
	}
}

func (o *countingObserver) ObserveStale(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stale++
	if err != nil {
		o.staleFails++
	}
}

// noRemoveFs refuses to delete files.
type noRemoveFs struct {
	afero.Fs
}

func (noRemoveFs) Remove(name string) error {
	return &os.PathError{Op: "remove", Path: name, Err: os.ErrPermission}
}

var errUnreachable = errors.New("dial tcp: connection refused")
