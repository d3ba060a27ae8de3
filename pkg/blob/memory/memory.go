// Package memory provides an in-memory blob uploader for tests.
package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/cloudspool/cloudspool/pkg/blob"
)

// Uploader is an in-memory implementation of blob.Uploader. It records
// uploaded bytes keyed by container/object and can be scripted to fail.
type Uploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	calls   int
	script  []error
}

var _ blob.Uploader = (*Uploader)(nil)

// New creates an empty in-memory uploader.
func New() *Uploader {
	return &Uploader{objects: make(map[string][]byte)}
}

// Script queues per-call outcomes for subsequent Upload calls: each call
// pops one entry, nil meaning success. When the script is exhausted all
// calls succeed. Use blob.Transient/blob.Permanent wrapped errors to drive
// the retry paths.
func (u *Uploader) Script(outcomes ...error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.script = append(u.script, outcomes...)
}

// Upload reads the local file into the object map, honoring the script.
func (u *Uploader) Upload(ctx context.Context, localPath, container, objectName string) error {
	if err := ctx.Err(); err != nil {
		return blob.Transient(err)
	}

	u.mu.Lock()
	u.calls++
	var scripted error
	if len(u.script) > 0 {
		scripted = u.script[0]
		u.script = u.script[1:]
	}
	u.mu.Unlock()

	if scripted != nil {
		return scripted
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return blob.Permanent(fmt.Errorf("open %s: %w", localPath, err))
	}

	u.mu.Lock()
	u.objects[container+"/"+objectName] = data
	u.mu.Unlock()
	return nil
}

// ListContainers returns the distinct container names seen so far.
func (u *Uploader) ListContainers(ctx context.Context) ([]string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	seen := make(map[string]bool)
	for key := range u.objects {
		for i := 0; i < len(key); i++ {
			if key[i] == '/' {
				seen[key[:i]] = true
				break
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Probe always succeeds.
func (u *Uploader) Probe(ctx context.Context) error {
	return nil
}

// Object returns the stored bytes for container/objectName.
func (u *Uploader) Object(container, objectName string) ([]byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	data, ok := u.objects[container+"/"+objectName]
	return data, ok
}

// Calls returns the number of Upload invocations.
func (u *Uploader) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}
