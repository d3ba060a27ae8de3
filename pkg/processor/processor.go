// Package processor drains the upload queue. Each run claims a batch of
// eligible jobs, uploads them with bounded concurrency, and settles every
// claimed row before returning: succeeded, requeued with backoff, or failed.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/cloudspool/cloudspool/internal/logger"
	"github.com/cloudspool/cloudspool/pkg/blob"
	"github.com/cloudspool/cloudspool/pkg/metrics"
	"github.com/cloudspool/cloudspool/pkg/settings"
	"github.com/cloudspool/cloudspool/pkg/store"
	"github.com/cloudspool/cloudspool/pkg/store/models"
)

// staleMultiplier scales the tick into the reclaim cutoff: an in-flight row
// untouched for this many ticks is assumed orphaned by a crashed run.
const staleMultiplier = 10

// uploadFloorRate is the assumed worst-case throughput used to derive the
// per-upload deadline from the file size.
const uploadFloorRate = 1 << 20 // bytes per second

// Processor runs the claim-upload-settle cycle against one store and one
// blob backend.
type Processor struct {
	store    *store.Store
	settings *settings.Service
	uploader blob.Uploader
	clock    clock.Clock
}

// New creates a processor. A nil clk means the wall clock.
func New(st *store.Store, settingsSvc *settings.Service, uploader blob.Uploader, clk clock.Clock) *Processor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Processor{
		store:    st,
		settings: settingsSvc,
		uploader: uploader,
		clock:    clk,
	}
}

// pass is the settings snapshot one run operates under. Values are read once
// at the start of the run so a live settings change cannot split a batch.
type pass struct {
	tick             time.Duration
	maxConcurrent    int
	maxRetries       int
	retryDelay       time.Duration
	maxRetryDelay    time.Duration
	deleteOnSuccess  bool
	archiveOnSuccess bool
}

func (p *Processor) snapshot(ctx context.Context) pass {
	return pass{
		tick:             time.Duration(p.settings.IntOr(ctx, settings.KeyProcessingInterval, settings.DefaultProcessingIntervalSeconds)) * time.Second,
		maxConcurrent:    p.settings.IntOr(ctx, settings.KeyMaxConcurrentUploads, settings.DefaultMaxConcurrentUploads),
		maxRetries:       p.settings.IntOr(ctx, settings.KeyMaxRetries, settings.DefaultMaxRetries),
		retryDelay:       time.Duration(p.settings.IntOr(ctx, settings.KeyRetryDelaySeconds, settings.DefaultRetryDelaySeconds)) * time.Second,
		maxRetryDelay:    time.Duration(p.settings.IntOr(ctx, settings.KeyMaxRetryDelayMinutes, settings.DefaultMaxRetryDelayMinutes)) * time.Minute,
		deleteOnSuccess:  p.settings.BoolOr(ctx, settings.KeyDeleteOnSuccess, false),
		archiveOnSuccess: p.settings.BoolOr(ctx, settings.KeyArchiveOnSuccess, false),
	}
}

// RunOnce performs a single queue pass: reclaim stale in-flight rows, claim
// up to MaxConcurrentUploads eligible jobs, upload them in parallel, settle
// each one. Returns the number of jobs claimed.
func (p *Processor) RunOnce(ctx context.Context) (int, error) {
	start := p.clock.Now()
	defer func() {
		metrics.TickDuration.Observe(p.clock.Since(start).Seconds())
	}()

	cfg := p.snapshot(ctx)
	now := p.clock.Now()

	cutoff := now.Add(-staleMultiplier * cfg.tick)
	reclaimed, err := p.store.ReclaimStaleJobs(ctx, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	if reclaimed > 0 {
		metrics.JobsReclaimed.Add(float64(reclaimed))
		logger.Warn("Reclaimed stale in-flight jobs", "count", reclaimed)
	}

	jobs, err := p.store.ClaimJobs(ctx, now, cfg.maxConcurrent)
	if err != nil {
		return 0, fmt.Errorf("claim jobs: %w", err)
	}
	if len(jobs) > 0 {
		logger.Debug("Claimed jobs", "count", len(jobs))
	}

	var g errgroup.Group
	g.SetLimit(cfg.maxConcurrent)
	for _, job := range jobs {
		g.Go(func() error {
			p.processJob(ctx, job, cfg)
			return nil
		})
	}
	_ = g.Wait()

	p.publishQueueDepth(ctx)
	return len(jobs), nil
}

// processJob uploads one claimed job and settles its row. All outcomes are
// absorbed here; a job never leaves this function still in-flight unless the
// store itself is down.
func (p *Processor) processJob(ctx context.Context, job *models.Job, cfg pass) {
	err := p.upload(ctx, job)
	now := p.clock.Now()

	if err == nil {
		if serr := p.store.MarkJobSucceeded(ctx, job.ID, now); serr != nil {
			logger.Error("Failed to record upload success", "jobID", job.ID, "error", serr)
			return
		}
		metrics.Uploads.WithLabelValues("succeeded").Inc()
		metrics.UploadBytes.Add(float64(job.SizeBytes))
		logger.Info("Upload succeeded",
			"jobID", job.ID,
			"source", job.SourceName,
			"path", job.LocalPath,
			"container", job.TargetContainer,
			"object", job.TargetObject,
			"attempts", job.Attempts)
		p.disposeFile(ctx, job, cfg)
		return
	}

	if blob.IsPermanent(err) {
		if serr := p.store.MarkJobFailed(ctx, job.ID, err.Error(), now); serr != nil {
			logger.Error("Failed to record permanent failure", "jobID", job.ID, "error", serr)
			return
		}
		metrics.Uploads.WithLabelValues("failed").Inc()
		logger.Error("Upload failed permanently",
			"jobID", job.ID, "path", job.LocalPath, "attempts", job.Attempts, "error", err)
		return
	}

	// Transient failure. The attempt counter was bumped at claim time, so it
	// already includes this try.
	if job.Attempts >= cfg.maxRetries {
		msg := fmt.Sprintf("retries exhausted after %d attempts: %v", job.Attempts, err)
		if serr := p.store.MarkJobFailed(ctx, job.ID, msg, now); serr != nil {
			logger.Error("Failed to record retry exhaustion", "jobID", job.ID, "error", serr)
			return
		}
		metrics.Uploads.WithLabelValues("exhausted").Inc()
		logger.Error("Upload retries exhausted",
			"jobID", job.ID, "path", job.LocalPath, "attempts", job.Attempts, "error", err)
		return
	}

	next := now.Add(backoff(cfg.retryDelay, cfg.maxRetryDelay, job.Attempts))
	if serr := p.store.RequeueJob(ctx, job.ID, err.Error(), next, now); serr != nil {
		logger.Error("Failed to requeue job", "jobID", job.ID, "error", serr)
		return
	}
	metrics.Uploads.WithLabelValues("retried").Inc()
	logger.Warn("Upload failed, will retry",
		"jobID", job.ID,
		"path", job.LocalPath,
		"attempt", job.Attempts,
		"nextAttemptAt", next,
		"error", err)
}

// upload runs the blob transfer under a deadline sized to the file. The file
// is re-checked first so a path deleted between enqueue and claim fails
// permanently instead of burning retries.
func (p *Processor) upload(ctx context.Context, job *models.Job) error {
	info, err := os.Stat(job.LocalPath)
	if err != nil {
		return blob.Permanentf("source file unavailable: %v", err)
	}

	timeout := time.Minute + time.Duration(info.Size()/uploadFloorRate)*time.Second
	uctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = p.uploader.Upload(uctx, job.LocalPath, job.TargetContainer, job.TargetObject)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return blob.Transientf("upload deadline (%s) exceeded", timeout)
	}
	return err
}

// disposeFile applies the post-upload action. Disposition trouble is logged
// and never touches the job row: the blob is already delivered.
func (p *Processor) disposeFile(ctx context.Context, job *models.Job, cfg pass) {
	switch {
	case cfg.deleteOnSuccess && cfg.archiveOnSuccess:
		logger.Warn("Both DeleteOnSuccess and ArchiveOnSuccess are set, delete wins",
			"jobID", job.ID)
		fallthrough

	case cfg.deleteOnSuccess:
		if err := os.Remove(job.LocalPath); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to delete uploaded file",
				"jobID", job.ID, "path", job.LocalPath, "error", err)
		}

	case cfg.archiveOnSuccess:
		p.archiveFile(ctx, job)
	}
}

// archiveFile moves the uploaded file into the source archive folder,
// preserving the base name and overwriting any previous archive copy.
func (p *Processor) archiveFile(ctx context.Context, job *models.Job) {
	source, err := p.store.GetSource(ctx, job.SourceName)
	if err != nil {
		logger.Error("Cannot archive, source lookup failed",
			"jobID", job.ID, "source", job.SourceName, "error", err)
		return
	}
	if source.ArchiveFolderPath == "" {
		logger.Warn("ArchiveOnSuccess set but source has no archive folder",
			"jobID", job.ID, "source", job.SourceName)
		return
	}

	if err := os.MkdirAll(source.ArchiveFolderPath, 0o755); err != nil {
		logger.Error("Failed to create archive folder",
			"jobID", job.ID, "folder", source.ArchiveFolderPath, "error", err)
		return
	}

	dest := filepath.Join(source.ArchiveFolderPath, filepath.Base(job.LocalPath))
	if err := moveFile(job.LocalPath, dest); err != nil {
		logger.Error("Failed to archive uploaded file",
			"jobID", job.ID, "path", job.LocalPath, "dest", dest, "error", err)
		return
	}
	logger.Info("Archived uploaded file", "jobID", job.ID, "path", job.LocalPath, "dest", dest)
}

// moveFile renames src to dest, falling back to copy-and-remove when the
// archive folder lives on another filesystem.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	return copyAndRemove(src, dest)
}

// copyAndRemove copies src to dest preserving the file mode, then removes
// src. A failed copy leaves no partial destination behind.
func copyAndRemove(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return os.Remove(src)
}

// backoff returns the delay before the next try: retryDelay doubled per
// completed attempt, clamped at maxDelay.
func backoff(retryDelay, maxDelay time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := retryDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (p *Processor) publishQueueDepth(ctx context.Context) {
	counts, err := p.store.CountJobsByState(ctx)
	if err != nil {
		logger.Debug("Failed to count queue depth", "error", err)
		return
	}
	for _, state := range []models.JobState{models.JobPending, models.JobInFlight, models.JobSucceeded, models.JobFailed} {
		metrics.QueueDepth.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}
