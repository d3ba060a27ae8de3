package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"k8s.io/utils/clock"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/cloudspool/cloudspool/pkg/settings"
	"github.com/cloudspool/cloudspool/pkg/store"
	"github.com/cloudspool/cloudspool/pkg/store/models"
)

// The watcher's clock must accept both the wall clock and the testing fake.
var (
	_ clock.WithTicker = clock.RealClock{}
	_ clock.WithTicker = &testingclock.FakeClock{}
)

// Short windows keep the stability pass observable without slowing the
// suite down.
var testConfig = Config{
	Quiescence:   50 * time.Millisecond,
	PollInterval: 10 * time.Millisecond,
}

type testEnv struct {
	store    *store.Store
	settings *settings.Service

	mu     sync.Mutex
	errors []error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.New(&store.Config{
		Type: store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{
			Path: ":memory:",
		},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	settingsSvc := settings.New(st)
	t.Cleanup(settingsSvc.Close)
	if err := settingsSvc.Seed(context.Background(), settings.Defaults()); err != nil {
		t.Fatalf("failed to seed settings: %v", err)
	}

	return &testEnv{store: st, settings: settingsSvc}
}

func (e *testEnv) onError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, err)
}

func (e *testEnv) errorCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errors)
}

func (e *testEnv) startWatcher(t *testing.T, source models.Source) *Watcher {
	t.Helper()
	w := New(source, e.store, e.settings, nil, testConfig)
	if err := w.Start(context.Background(), e.onError); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func (e *testEnv) jobs(t *testing.T) []*models.Job {
	t.Helper()
	jobs, err := e.store.ListJobs(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	return jobs
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestStableFileEnqueuedOnce(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	env.startWatcher(t, models.Source{Name: "inbox", FolderPath: dir, Enabled: true})

	path := filepath.Join(dir, "report.csv")
	writeFile(t, path, "data")

	waitFor(t, "job enqueued", func() bool { return len(env.jobs(t)) == 1 })

	job := env.jobs(t)[0]
	if job.LocalPath != path {
		t.Errorf("LocalPath = %q, want %q", job.LocalPath, path)
	}
	if job.SourceName != "inbox" {
		t.Errorf("SourceName = %q", job.SourceName)
	}
	if job.TargetObject != "report.csv" {
		t.Errorf("TargetObject = %q", job.TargetObject)
	}
	if job.TargetContainer != settings.DefaultContainer {
		t.Errorf("TargetContainer = %q", job.TargetContainer)
	}
	if job.SizeBytes != 4 {
		t.Errorf("SizeBytes = %d, want 4", job.SizeBytes)
	}
	if job.State != models.JobPending {
		t.Errorf("State = %s, want pending", job.State)
	}

	// Give the poll loop several more cycles; the path is handled and must
	// not be enqueued again.
	time.Sleep(200 * time.Millisecond)
	if got := len(env.jobs(t)); got != 1 {
		t.Errorf("job count = %d after settling, want 1", got)
	}
}

func TestGrowingFileWaitsForStability(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	env.startWatcher(t, models.Source{Name: "inbox", FolderPath: dir, Enabled: true})

	path := filepath.Join(dir, "growing.bin")
	writeFile(t, path, "part")

	// Keep appending for a few quiescence windows.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.WriteString("-more"); err != nil {
			t.Fatalf("append failed: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	waitFor(t, "job enqueued", func() bool { return len(env.jobs(t)) == 1 })

	// The recorded size must be the final one: the file was only enqueued
	// after it stopped changing.
	want := int64(len("part") + 5*len("-more"))
	if got := env.jobs(t)[0].SizeBytes; got != want {
		t.Errorf("SizeBytes = %d, want %d", got, want)
	}
}

func TestZeroByteFileEnqueued(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	env.startWatcher(t, models.Source{Name: "inbox", FolderPath: dir, Enabled: true})

	path := filepath.Join(dir, "marker.done")
	writeFile(t, path, "")

	waitFor(t, "empty file enqueued", func() bool { return len(env.jobs(t)) == 1 })

	job := env.jobs(t)[0]
	if job.SizeBytes != 0 {
		t.Errorf("SizeBytes = %d, want 0", job.SizeBytes)
	}
	if job.State != models.JobPending {
		t.Errorf("State = %s, want pending", job.State)
	}
	if got := env.errorCount(); got != 0 {
		t.Errorf("error count = %d, empty file was rejected", got)
	}
}

func TestPatternFiltering(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	env.startWatcher(t, models.Source{
		Name:        "inbox",
		FolderPath:  dir,
		FilePattern: "*.csv",
		Enabled:     true,
	})

	writeFile(t, filepath.Join(dir, "skip.tmp"), "x")
	writeFile(t, filepath.Join(dir, "take.csv"), "x")

	waitFor(t, "matching file enqueued", func() bool { return len(env.jobs(t)) == 1 })

	if got := env.jobs(t)[0].TargetObject; got != "take.csv" {
		t.Errorf("enqueued %q, want take.csv", got)
	}

	time.Sleep(200 * time.Millisecond)
	if got := len(env.jobs(t)); got != 1 {
		t.Errorf("job count = %d, non-matching file was enqueued", got)
	}
}

func TestOversizedFileRejectedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// A zero limit makes any non-empty file oversized.
	if err := env.settings.Set(ctx, settings.KeyMaxFileSizeMB, "0", "", ""); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	dir := t.TempDir()
	env.startWatcher(t, models.Source{Name: "inbox", FolderPath: dir, Enabled: true})

	writeFile(t, filepath.Join(dir, "big.bin"), "too large")

	waitFor(t, "error reported", func() bool { return env.errorCount() == 1 })

	time.Sleep(200 * time.Millisecond)
	if got := env.errorCount(); got != 1 {
		t.Errorf("error count = %d, want exactly one rejection", got)
	}
	if got := len(env.jobs(t)); got != 0 {
		t.Errorf("job count = %d, oversized file was enqueued", got)
	}
}

func TestColdScan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dir := t.TempDir()

	uploaded := filepath.Join(dir, "uploaded.bin")
	fresh := filepath.Join(dir, "fresh.bin")
	writeFile(t, uploaded, "old")
	writeFile(t, fresh, "new")

	// The first file already has a succeeded row from an earlier session.
	job := &models.Job{SourceName: "inbox", LocalPath: uploaded, TargetObject: "uploaded.bin"}
	if err := env.store.EnqueueJob(ctx, job); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	if _, err := env.store.ClaimJobs(ctx, time.Now().Add(time.Second), 1); err != nil {
		t.Fatalf("ClaimJobs failed: %v", err)
	}
	if err := env.store.MarkJobSucceeded(ctx, job.ID, time.Now()); err != nil {
		t.Fatalf("MarkJobSucceeded failed: %v", err)
	}

	env.startWatcher(t, models.Source{Name: "inbox", FolderPath: dir, Enabled: true})

	waitFor(t, "fresh file enqueued", func() bool {
		for _, j := range env.jobs(t) {
			if j.LocalPath == fresh && j.State == models.JobPending {
				return true
			}
		}
		return false
	})

	time.Sleep(200 * time.Millisecond)
	for _, j := range env.jobs(t) {
		if j.LocalPath == uploaded && j.State == models.JobPending {
			t.Error("already-uploaded file was re-enqueued by the cold scan")
		}
	}
}

func TestRemovedFileReappearing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dir := t.TempDir()
	env.startWatcher(t, models.Source{Name: "inbox", FolderPath: dir, Enabled: true})

	path := filepath.Join(dir, "cycle.bin")
	writeFile(t, path, "v1")
	waitFor(t, "first enqueue", func() bool { return len(env.jobs(t)) == 1 })

	// Settle the first job so the path has no active row.
	first := env.jobs(t)[0]
	if _, err := env.store.ClaimJobs(ctx, time.Now().Add(time.Second), 1); err != nil {
		t.Fatalf("ClaimJobs failed: %v", err)
	}
	if err := env.store.MarkJobSucceeded(ctx, first.ID, time.Now()); err != nil {
		t.Fatalf("MarkJobSucceeded failed: %v", err)
	}

	// Remove and let the event clear the session marker.
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	// The same path coming back is new work.
	writeFile(t, path, "v2-longer")
	waitFor(t, "second enqueue", func() bool { return len(env.jobs(t)) == 2 })

	var second *models.Job
	for _, j := range env.jobs(t) {
		if j.State == models.JobPending {
			second = j
		}
	}
	if second == nil {
		t.Fatal("no pending job for the reappeared file")
	}
	if second.Generation != 2 {
		t.Errorf("Generation = %d, want 2", second.Generation)
	}
	if second.SizeBytes != int64(len("v2-longer")) {
		t.Errorf("SizeBytes = %d", second.SizeBytes)
	}
}

func TestStartErrors(t *testing.T) {
	t.Run("missing folder", func(t *testing.T) {
		env := newTestEnv(t)
		w := New(models.Source{Name: "ghost", FolderPath: "/no/such/folder"}, env.store, env.settings, nil, testConfig)

		if err := w.Start(context.Background(), env.onError); err == nil {
			t.Error("expected error for missing folder")
		}
		if env.errorCount() != 1 {
			t.Errorf("error count = %d, want 1", env.errorCount())
		}
		// Stop on a watcher that never ran must not hang.
		w.Stop()
	})

	t.Run("second start rejected", func(t *testing.T) {
		env := newTestEnv(t)
		dir := t.TempDir()
		w := env.startWatcher(t, models.Source{Name: "inbox", FolderPath: dir, Enabled: true})

		if err := w.Start(context.Background(), env.onError); err == nil {
			t.Error("expected error on second Start")
		}
	})
}

func TestStopIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	w := env.startWatcher(t, models.Source{Name: "inbox", FolderPath: dir, Enabled: true})

	w.Stop()
	w.Stop()
}
