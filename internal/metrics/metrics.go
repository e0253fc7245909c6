// Package metrics exposes sync run counters in the Prometheus text format.
package metrics

import (
	"fmt"
	"time"

	"github.com/jgivc/datasync/internal/entity"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "datasync"

const (
	resultOK    = "ok"
	resultError = "error"
)

// Recorder collects per record outcomes of a run. It is safe for concurrent use.
type Recorder struct {
	registry *prometheus.Registry

	downloadsTotal   *prometheus.CounterVec
	downloadDuration prometheus.Histogram
	staleTotal       *prometheus.CounterVec
	lastRun          *prometheus.GaugeVec
	lastRunDuration  prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		downloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Dataset downloads by result",
			},
			[]string{"result"},
		),
		downloadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "download_duration_seconds",
				Help:      "Time spent downloading one dataset",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
		),
		staleTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_deletions_total",
				Help:      "Stale dataset deletions by result",
			},
			[]string{"result"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Start time of the last sync run",
			},
			[]string{"mode"},
		),
		lastRunDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_duration_seconds",
				Help:      "Duration of the last sync run",
			},
		),
	}

	r.registry.MustRegister(r.downloadsTotal, r.downloadDuration, r.staleTotal, r.lastRun, r.lastRunDuration)

	return r
}

func (r *Recorder) ObserveDownload(err error, elapsed time.Duration) {
	r.downloadsTotal.WithLabelValues(result(err)).Inc()
	r.downloadDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveStale(err error) {
	r.staleTotal.WithLabelValues(result(err)).Inc()
}

func (r *Recorder) ObserveRun(s *entity.SyncSummary) {
	r.lastRun.WithLabelValues(s.Mode).Set(float64(s.StartedAt.Unix()))
	r.lastRunDuration.Set(s.Duration.Seconds())
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteFile writes the metrics for the node exporter textfile collector.
// The file is replaced atomically.
func (r *Recorder) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("cannot write metrics file %s: %w", path, err)
	}

	return nil
}

func result(err error) string {
	if err != nil {
		return resultError
	}

	return resultOK
}
