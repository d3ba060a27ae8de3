// Package metrics registers the Prometheus instruments for cloudspool.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilesEnqueued counts jobs accepted into the upload queue, per source.
	FilesEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudspool_files_enqueued_total",
		Help: "Upload jobs enqueued, by source",
	}, []string{"source"})

	// Uploads counts finished upload attempts by result
	// (succeeded, retried, failed, exhausted).
	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudspool_uploads_total",
		Help: "Upload attempts, by result",
	}, []string{"result"})

	// UploadBytes counts bytes successfully uploaded.
	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudspool_upload_bytes_total",
		Help: "Bytes successfully uploaded",
	})

	// JobsReclaimed counts stale in-flight rows reset to pending.
	JobsReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudspool_jobs_reclaimed_total",
		Help: "Stale in-flight jobs reclaimed to pending",
	})

	// WatcherErrors counts errors surfaced by folder watchers.
	WatcherErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudspool_watcher_errors_total",
		Help: "Watcher errors, by source",
	}, []string{"source"})

	// QueueDepth tracks the number of rows per job state as of the last
	// processor pass.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cloudspool_queue_depth",
		Help: "Upload queue rows, by state",
	}, []string{"state"})

	// TickDuration observes how long one supervisor pass takes.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cloudspool_tick_duration_seconds",
		Help:    "Duration of one supervisor pass",
		Buckets: prometheus.DefBuckets,
	})
)
