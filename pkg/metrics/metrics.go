// Package metrics exports Prometheus metrics for savekeeper.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "savekeeper"

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry()
	}
	return defaultRegistry
}

// Registry holds all savekeeper metrics on its own Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	BackupsTotal     *prometheus.CounterVec
	BackupDuration   *prometheus.HistogramVec
	BackupsSkipped   prometheus.Counter
	RestoresTotal    *prometheus.CounterVec
	RestoreDuration  prometheus.Histogram
	RetentionDeleted *prometheus.CounterVec
	RetentionRenamed prometheus.Counter
	ScreenshotsTotal *prometheus.CounterVec
	WatchEventsTotal *prometheus.CounterVec
	HashDuration     prometheus.Histogram
}

// NewRegistry creates a registry with every metric registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		BackupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "created_total",
			Help:      "Backups written, by kind and outcome",
		}, []string{"kind", "status"}),
		BackupDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "duration_seconds",
			Help:      "Time to copy and hash one backup",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		BackupsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "skipped_total",
			Help:      "Changes that matched the latest backup and produced no new one",
		}),
		RestoresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "restore",
			Name:      "total",
			Help:      "Restores by outcome (restored, unchanged, error)",
		}, []string{"status"}),
		RestoreDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "restore",
			Name:      "duration_seconds",
			Help:      "Time to restore one backup",
			Buckets:   prometheus.DefBuckets,
		}),
		RetentionDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "deleted_total",
			Help:      "Backups removed by the retention policy, by kind",
		}, []string{"kind"}),
		RetentionRenamed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "exit_renamed_total",
			Help:      "Temporary backups promoted to exit backups",
		}),
		ScreenshotsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screenshot",
			Name:      "total",
			Help:      "Screenshot captures by outcome",
		}, []string{"status"}),
		WatchEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "events_total",
			Help:      "File system events seen by the watcher",
		}, []string{"result"}),
		HashDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checksum",
			Name:      "directory_duration_seconds",
			Help:      "Time to hash a directory",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// RecordBackup records a backup attempt.
func (r *Registry) RecordBackup(kind string, success bool, duration time.Duration) {
	r.BackupsTotal.WithLabelValues(kind, status(success)).Inc()
	if success {
		r.BackupDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// RecordSkip records a change that did not need a backup.
func (r *Registry) RecordSkip() {
	r.BackupsSkipped.Inc()
}

// RecordRestore records a restore; changed is false when the folder already matched.
func (r *Registry) RecordRestore(success, changed bool, duration time.Duration) {
	switch {
	case !success:
		r.RestoresTotal.WithLabelValues("error").Inc()
	case !changed:
		r.RestoresTotal.WithLabelValues("unchanged").Inc()
	default:
		r.RestoresTotal.WithLabelValues("restored").Inc()
	}
	r.RestoreDuration.Observe(duration.Seconds())
}

// RecordRetention records backups removed or promoted by the retention policy.
func (r *Registry) RecordRetention(deletedByKind map[string]int, renamed int) {
	for kind, n := range deletedByKind {
		r.RetentionDeleted.WithLabelValues(kind).Add(float64(n))
	}
	r.RetentionRenamed.Add(float64(renamed))
}

// RecordScreenshot records a capture attempt.
func (r *Registry) RecordScreenshot(success bool) {
	r.ScreenshotsTotal.WithLabelValues(status(success)).Inc()
}

// RecordWatchEvent records a watcher event as "change" or "ignored".
func (r *Registry) RecordWatchEvent(result string) {
	r.WatchEventsTotal.WithLabelValues(result).Inc()
}

// RecordHash records a directory hash duration.
func (r *Registry) RecordHash(duration time.Duration) {
	r.HashDuration.Observe(duration.Seconds())
}

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
