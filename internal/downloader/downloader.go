// Package downloader streams remote datasets to the local data directory.
package downloader

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

var (
	ErrHTTPStatus = errors.New("downloader: unexpected http status")
	ErrStalled    = errors.New("downloader: response body stalled")
)

// StatusError is returned for any non-2xx response. It is never retried.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrHTTPStatus, e.URL, e.Status)
}

func (e *StatusError) Unwrap() error {
	return ErrHTTPStatus
}

// Options configures the downloader.
type Options struct {
	// Timeout bounds dialing, the TLS handshake, waiting for response headers
	// and the gap between two body reads.
	// Default: 5s
	Timeout time.Duration

	// RetryAttempts is the number of retries after the first attempt for
	// connection level failures.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 300ms
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 5s
	RetryMaxBackoff time.Duration

	// BufferSize is the size of the chunks read from the response body.
	// Default: 8KiB
	BufferSize int

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:         5 * time.Second,
		RetryAttempts:   3,
		RetryBackoff:    300 * time.Millisecond,
		RetryMaxBackoff: 5 * time.Second,
		BufferSize:      8 * 1024,
	}
}

type Downloader struct {
	fs     afero.Fs
	client *http.Client
	opts   Options
	log    *slog.Logger
}

func New(fs afero.Fs, opts Options, log *slog.Logger) *Downloader {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.RetryMaxBackoff <= 0 {
		opts.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   opts.Timeout,
		ResponseHeaderTimeout: opts.Timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   4,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec
		},
	}

	return &Downloader{
		fs:     fs,
		client: &http.Client{Transport: transport},
		opts:   opts,
		log:    log.With(slog.String("item", "Downloader")),
	}
}

// Fetch downloads url into dest and returns dest. The destination is only
// complete when Fetch returns a nil error; an aborted transfer may leave a
// truncated file that the next successful fetch overwrites.
func (d *Downloader) Fetch(ctx context.Context, url, dest string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= d.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			d.log.Warn("Retry download", slog.String("url", url), slog.Int("attempt", attempt), slog.Any("error", lastErr))

			if err := d.backoff(ctx, attempt); err != nil {
				return "", err
			}
		}

		retry, err := d.fetchOnce(ctx, url, dest)
		if err == nil {
			return dest, nil
		}

		if !retry || ctx.Err() != nil {
			return "", err
		}

		lastErr = err
	}

	return "", fmt.Errorf("download failed after %d attempts: %w", d.opts.RetryAttempts+1, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, url, dest string) (bool, error) {
	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("cannot create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return isTransient(err), fmt.Errorf("cannot get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	f, err := d.fs.Create(dest)
	if err != nil {
		return false, fmt.Errorf("cannot create %s: %w", dest, err)
	}

	watchdog := time.AfterFunc(d.opts.Timeout, func() { cancel(ErrStalled) })
	defer watchdog.Stop()

	if retry, err := d.copy(f, resp.Body, watchdog); err != nil {
		f.Close()

		if errors.Is(context.Cause(reqCtx), ErrStalled) && ctx.Err() == nil {
			return true, fmt.Errorf("cannot read %s: %w", url, ErrStalled)
		}

		return retry, fmt.Errorf("cannot download %s: %w", url, err)
	}

	if err := f.Close(); err != nil {
		return false, fmt.Errorf("cannot close %s: %w", dest, err)
	}

	return false, nil
}

// copy streams body to w in BufferSize chunks, pushing the stall watchdog
// forward after every chunk read.
func (d *Downloader) copy(w io.Writer, body io.Reader, watchdog *time.Timer) (bool, error) {
	buf := make([]byte, d.opts.BufferSize)

	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			watchdog.Reset(d.opts.Timeout)

			if _, err := w.Write(buf[:n]); err != nil {
				return false, fmt.Errorf("cannot write: %w", err)
			}
		}

		if rerr == io.EOF {
			return false, nil
		}

		if rerr != nil {
			return isTransient(rerr), rerr
		}
	}
}

// backoff waits for an exponentially increasing duration with jitter.
func (d *Downloader) backoff(ctx context.Context, attempt int) error {
	backoff := d.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > d.opts.RetryMaxBackoff {
		backoff = d.opts.RetryMaxBackoff
	}

	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	t := time.NewTimer(jitter)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isTransient reports whether err is a connection level failure worth retrying.
// Dial and header timeouts match context.DeadlineExceeded too, so the caller's
// own deadline is left to Fetch, which checks ctx.Err().
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
