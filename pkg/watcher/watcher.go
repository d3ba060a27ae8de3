// Package watcher observes one source folder and feeds the upload queue.
//
// Filesystem event semantics differ across platforms, so events are only a
// hint that a path deserves attention. The quiescence window is
// authoritative: a file is enqueued once its size has been stable for the
// configured window, whether it arrived via an event or the cold-start scan.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"k8s.io/utils/clock"

	"github.com/cloudspool/cloudspool/internal/logger"
	"github.com/cloudspool/cloudspool/pkg/metrics"
	"github.com/cloudspool/cloudspool/pkg/settings"
	"github.com/cloudspool/cloudspool/pkg/store"
	"github.com/cloudspool/cloudspool/pkg/store/models"
)

const (
	// DefaultQuiescence is how long a file's size must hold still before it
	// is considered complete.
	DefaultQuiescence = 1 * time.Second

	// DefaultPollInterval is how often candidates are re-checked for
	// stability.
	DefaultPollInterval = 500 * time.Millisecond
)

// ErrorFunc receives watcher errors: missing folders, oversized files,
// event-source failures.
type ErrorFunc func(err error)

// Config tunes the stability detection.
type Config struct {
	Quiescence   time.Duration
	PollInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Quiescence <= 0 {
		c.Quiescence = DefaultQuiescence
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// candidate is a file seen but not yet stable.
type candidate struct {
	size       int64
	lastChange time.Time
}

// Watcher observes one source folder. Instances are single-use: Start may
// be called once; after Stop the watcher is done for good.
type Watcher struct {
	source   models.Source
	store    *store.Store
	settings *settings.Service
	clock    clock.WithTicker
	cfg      Config
	onError  ErrorFunc

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	// Session state, owned by the run goroutine.
	fsw        *fsnotify.Watcher
	candidates map[string]*candidate
	handled    map[string]bool // paths enqueued (or rejected) this session
}

// New creates a watcher for the given source.
func New(source models.Source, st *store.Store, settingsSvc *settings.Service, clk clock.WithTicker, cfg Config) *Watcher {
	cfg.applyDefaults()
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Watcher{
		source:     source,
		store:      st,
		settings:   settingsSvc,
		clock:      clk,
		cfg:        cfg,
		candidates: make(map[string]*candidate),
		handled:    make(map[string]bool),
	}
}

// Source returns the source this watcher was built for.
func (w *Watcher) Source() models.Source {
	return w.source
}

// Start begins observation. Calling Start twice on the same instance is an
// error. On a nonexistent or unreadable folder the error callback fires and
// no observation happens.
func (w *Watcher) Start(ctx context.Context, onError ErrorFunc) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("watcher %s already started", w.source.Name)
	}
	w.started = true
	w.onError = onError
	w.mu.Unlock()

	if _, err := os.ReadDir(w.source.FolderPath); err != nil {
		werr := fmt.Errorf("source %s: folder %s not observable: %w", w.source.Name, w.source.FolderPath, err)
		w.reportError(werr)
		return werr
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		werr := fmt.Errorf("source %s: create fsnotify watcher: %w", w.source.Name, err)
		w.reportError(werr)
		return werr
	}
	if err := fsw.Add(w.source.FolderPath); err != nil {
		_ = fsw.Close()
		werr := fmt.Errorf("source %s: watch %s: %w", w.source.Name, w.source.FolderPath, err)
		w.reportError(werr)
		return werr
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.fsw = fsw
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	// Pre-existing files are picked up by the cold scan and then go through
	// the same stability pass as event-reported ones.
	w.coldScan(runCtx)

	go w.run(runCtx)

	logger.Info("Watcher started",
		"source", w.source.Name,
		"folder", w.source.FolderPath,
		"pattern", w.source.Pattern())
	return nil
}

// Stop ceases observation and releases the OS watch handle. Safe to call
// more than once and on a watcher that failed to start.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Info("Watcher stopped", "source", w.source.Name)
}

// run is the event loop. The fsnotify handle is released on every exit path.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer w.fsw.Close()

	ticker := w.clock.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Event-source failure: surface it and stop observing. The
			// source needs a refresh to restart.
			w.reportError(fmt.Errorf("source %s: event source failed: %w", w.source.Name, err))
			return

		case <-ticker.C():
			w.checkCandidates(ctx)
		}
	}
}

// handleEvent updates session state from one filesystem event.
func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	path := event.Name

	switch {
	case event.Has(fsnotify.Create):
		// Covers both fresh creates and renames into the folder.
		w.observe(path)

	case event.Has(fsnotify.Write):
		if c, ok := w.candidates[path]; ok {
			w.touch(path, c)
		} else {
			w.observe(path)
		}

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// The file left the folder. If it comes back it is new work.
		delete(w.candidates, path)
		delete(w.handled, path)
	}
}

// observe adds a matching regular file as a stability candidate.
func (w *Watcher) observe(path string) {
	if w.handled[path] {
		return
	}
	matched, err := filepath.Match(w.source.Pattern(), filepath.Base(path))
	if err != nil || !matched {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	w.candidates[path] = &candidate{size: info.Size(), lastChange: w.clock.Now()}
}

// touch refreshes a candidate after a write event.
func (w *Watcher) touch(path string, c *candidate) {
	info, err := os.Stat(path)
	if err != nil {
		delete(w.candidates, path)
		return
	}
	if info.Size() != c.size {
		c.size = info.Size()
		c.lastChange = w.clock.Now()
	}
}

// checkCandidates enqueues every candidate whose size has been stable for
// the quiescence window.
func (w *Watcher) checkCandidates(ctx context.Context) {
	now := w.clock.Now()
	for path, c := range w.candidates {
		info, err := os.Stat(path)
		if err != nil {
			delete(w.candidates, path)
			continue
		}
		if info.Size() != c.size {
			c.size = info.Size()
			c.lastChange = now
			continue
		}
		if now.Sub(c.lastChange) < w.cfg.Quiescence {
			continue
		}
		delete(w.candidates, path)
		w.enqueue(ctx, path, info.Size())
	}
}

// enqueue creates the pending job for a stable file. Oversized files are
// rejected with exactly one error event; either way the path counts as
// handled for this session.
func (w *Watcher) enqueue(ctx context.Context, path string, size int64) {
	if w.handled[path] {
		return
	}
	w.handled[path] = true

	maxMB := w.settings.IntOr(ctx, settings.KeyMaxFileSizeMB, settings.DefaultMaxFileSizeMB)
	if maxBytes := int64(maxMB) * 1024 * 1024; size > maxBytes {
		w.reportError(fmt.Errorf("source %s: file %s is %d bytes, over the %d MB limit",
			w.source.Name, path, size, maxMB))
		return
	}

	job := &models.Job{
		SourceName:      w.source.Name,
		LocalPath:       path,
		TargetContainer: w.settings.StringOr(ctx, settings.KeyAzureDefaultContainer, settings.DefaultContainer),
		TargetObject:    filepath.Base(path),
		SizeBytes:       size,
		NextAttemptAt:   w.clock.Now(),
	}

	if err := w.store.EnqueueJob(ctx, job); err != nil {
		if err == models.ErrDuplicateJob {
			logger.Debug("Job already queued for path", "source", w.source.Name, "path", path)
			return
		}
		// Store trouble is not this file's fault; let a later session retry.
		w.handled[path] = false
		w.reportError(fmt.Errorf("source %s: enqueue %s: %w", w.source.Name, path, err))
		return
	}

	metrics.FilesEnqueued.WithLabelValues(w.source.Name).Inc()
	logger.Info("File enqueued",
		"source", w.source.Name,
		"path", path,
		"size", size,
		"jobID", job.ID)
}

// coldScan picks up files that were already in the folder before this
// watcher session. Files with a succeeded or active row are skipped; the
// rest become candidates and go through the normal stability pass.
func (w *Watcher) coldScan(ctx context.Context) {
	entries, err := os.ReadDir(w.source.FolderPath)
	if err != nil {
		w.reportError(fmt.Errorf("source %s: cold scan %s: %w", w.source.Name, w.source.FolderPath, err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matched, merr := filepath.Match(w.source.Pattern(), entry.Name())
		if merr != nil || !matched {
			continue
		}
		path := filepath.Join(w.source.FolderPath, entry.Name())

		known, serr := w.store.HasUploadedOrActiveJob(ctx, path)
		if serr != nil {
			w.reportError(fmt.Errorf("source %s: cold scan lookup %s: %w", w.source.Name, path, serr))
			continue
		}
		if known {
			continue
		}
		w.observe(path)
	}
}

func (w *Watcher) reportError(err error) {
	metrics.WatcherErrors.WithLabelValues(w.source.Name).Inc()
	if w.onError != nil {
		w.onError(err)
	} else {
		logger.Error("Watcher error", "source", w.source.Name, "error", err)
	}
}
