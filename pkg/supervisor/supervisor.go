// Package supervisor is the service's main loop. Each tick it reconciles
// the running watchers against the source table, then runs one processor
// pass over the upload queue.
package supervisor

import (
	"context"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/cloudspool/cloudspool/internal/logger"
	"github.com/cloudspool/cloudspool/pkg/processor"
	"github.com/cloudspool/cloudspool/pkg/settings"
	"github.com/cloudspool/cloudspool/pkg/sources"
	"github.com/cloudspool/cloudspool/pkg/store/models"
	"github.com/cloudspool/cloudspool/pkg/watcher"
)

// SourceWatcher is the watcher surface the supervisor drives. Satisfied by
// *watcher.Watcher; tests substitute fakes.
type SourceWatcher interface {
	Start(ctx context.Context, onError watcher.ErrorFunc) error
	Stop()
	Source() models.Source
}

// WatcherFactory builds a fresh watcher instance for a source. A refresh
// always goes through the factory: watcher instances are single-use.
type WatcherFactory func(source models.Source) SourceWatcher

// runningWatcher tracks one registered watcher. A failed watcher keeps its
// slot so it is not restarted every tick; a refresh replaces it.
type runningWatcher struct {
	w      SourceWatcher
	failed atomic.Bool
}

// Supervisor owns the watcher set and the tick loop.
type Supervisor struct {
	sources    *sources.Service
	settings   *settings.Service
	processor  *processor.Processor
	clock      clock.Clock
	newWatcher WatcherFactory

	// watchers is only touched from the Run goroutine.
	watchers map[string]*runningWatcher
}

// New creates a supervisor. A nil clk means the wall clock.
func New(sourcesSvc *sources.Service, settingsSvc *settings.Service, proc *processor.Processor, clk clock.Clock, factory WatcherFactory) *Supervisor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Supervisor{
		sources:    sourcesSvc,
		settings:   settingsSvc,
		processor:  proc,
		clock:      clk,
		newWatcher: factory,
		watchers:   make(map[string]*runningWatcher),
	}
}

// Run drives the tick loop until ctx is canceled, then stops every watcher
// and returns. The interval setting is re-read each tick, so a live change
// takes effect on the next pass.
func (s *Supervisor) Run(ctx context.Context) error {
	logger.Info("Supervisor started")
	defer s.stopAll()

	for {
		s.reconcile(ctx)

		if _, err := s.processor.RunOnce(ctx); err != nil {
			logger.Error("Queue pass failed", "error", err)
		}

		interval := time.Duration(s.settings.IntOr(ctx, settings.KeyProcessingInterval, settings.DefaultProcessingIntervalSeconds)) * time.Second
		timer := s.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("Supervisor stopping")
			return nil
		case <-timer.C():
		}
	}
}

// Tick runs one reconcile-and-process pass outside the loop. Used by tests
// and the one-shot CLI path.
func (s *Supervisor) Tick(ctx context.Context) {
	s.reconcile(ctx)
	if _, err := s.processor.RunOnce(ctx); err != nil {
		logger.Error("Queue pass failed", "error", err)
	}
}

// reconcile aligns the running watcher set with the source table: disabled
// and deleted rows stop, new enabled rows start, rows flagged needsRefresh
// get a fresh watcher instance and the flag cleared.
func (s *Supervisor) reconcile(ctx context.Context) {
	list, err := s.sources.ListAll(ctx)
	if err != nil {
		logger.Error("Failed to list sources", "error", err)
		return
	}

	seen := make(map[string]bool, len(list))
	for _, source := range list {
		seen[source.Name] = true

		if !source.Enabled {
			if rw, ok := s.watchers[source.Name]; ok {
				rw.w.Stop()
				delete(s.watchers, source.Name)
				logger.Info("Watcher stopped, source disabled", "source", source.Name)
			}
			if source.NeedsRefresh {
				if err := s.sources.ClearNeedsRefresh(ctx, source.Name); err != nil {
					logger.Error("Failed to clear refresh flag", "source", source.Name, "error", err)
				}
			}
			continue
		}

		if source.NeedsRefresh {
			if rw, ok := s.watchers[source.Name]; ok {
				rw.w.Stop()
				delete(s.watchers, source.Name)
			}
			s.startWatcher(ctx, *source)
			if err := s.sources.ClearNeedsRefresh(ctx, source.Name); err != nil {
				logger.Error("Failed to clear refresh flag", "source", source.Name, "error", err)
			}
			continue
		}

		if _, ok := s.watchers[source.Name]; !ok {
			s.startWatcher(ctx, *source)
		}
	}

	for name, rw := range s.watchers {
		if !seen[name] {
			rw.w.Stop()
			delete(s.watchers, name)
			logger.Info("Watcher stopped, source removed", "source", name)
		}
	}
}

// startWatcher registers a new watcher instance for the source. The entry is
// kept even when Start fails so the source is not hammered every tick; a
// refresh replaces it.
func (s *Supervisor) startWatcher(ctx context.Context, source models.Source) {
	rw := &runningWatcher{w: s.newWatcher(source)}
	s.watchers[source.Name] = rw

	onError := func(err error) {
		rw.failed.Store(true)
		logger.Error("Watcher error", "source", source.Name, "error", err)
	}

	if err := rw.w.Start(ctx, onError); err != nil {
		rw.failed.Store(true)
		logger.Error("Failed to start watcher, source needs a refresh to retry",
			"source", source.Name, "error", err)
	}
}

// WatchedSources returns the names of currently registered sources.
func (s *Supervisor) WatchedSources() []string {
	names := make([]string, 0, len(s.watchers))
	for name := range s.watchers {
		names = append(names, name)
	}
	return names
}

func (s *Supervisor) stopAll() {
	for name, rw := range s.watchers {
		rw.w.Stop()
		delete(s.watchers, name)
	}
	logger.Info("All watchers stopped")
}
