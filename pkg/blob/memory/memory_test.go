package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudspool/cloudspool/pkg/blob"
)

func writeTestFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("stores bytes under container/object", func(t *testing.T) {
		u := New()
		path := writeTestFile(t, "a.bin", []byte("payload"))

		if err := u.Upload(ctx, path, "uploads", "a.bin"); err != nil {
			t.Fatalf("Upload failed: %v", err)
		}

		data, ok := u.Object("uploads", "a.bin")
		if !ok {
			t.Fatal("object not stored")
		}
		if string(data) != "payload" {
			t.Errorf("stored %q, want payload", data)
		}
		if u.Calls() != 1 {
			t.Errorf("Calls = %d, want 1", u.Calls())
		}
	})

	t.Run("missing local file is permanent", func(t *testing.T) {
		u := New()
		err := u.Upload(ctx, "/no/such/file", "uploads", "x")
		if err == nil {
			t.Fatal("expected error")
		}
		if !blob.IsPermanent(err) {
			t.Errorf("expected permanent error, got %v", err)
		}
	})

	t.Run("script drives outcomes in order", func(t *testing.T) {
		u := New()
		path := writeTestFile(t, "b.bin", []byte("b"))
		boom := blob.Transient(errors.New("boom"))
		u.Script(boom, nil)

		if err := u.Upload(ctx, path, "c", "b"); err != boom {
			t.Errorf("first call err = %v, want scripted", err)
		}
		if err := u.Upload(ctx, path, "c", "b"); err != nil {
			t.Errorf("second call err = %v, want nil", err)
		}
		// Exhausted scripts fall back to success.
		if err := u.Upload(ctx, path, "c", "b"); err != nil {
			t.Errorf("third call err = %v, want nil", err)
		}
		if u.Calls() != 3 {
			t.Errorf("Calls = %d, want 3", u.Calls())
		}
	})

	t.Run("cancelled context is transient", func(t *testing.T) {
		u := New()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := u.Upload(cctx, "/irrelevant", "c", "o")
		if !blob.IsTransient(err) {
			t.Errorf("expected transient error, got %v", err)
		}
	})
}

func TestListContainers(t *testing.T) {
	ctx := context.Background()
	u := New()
	path := writeTestFile(t, "f.bin", []byte("f"))

	for _, container := range []string{"zeta", "alpha", "alpha"} {
		if err := u.Upload(ctx, path, container, "f.bin"); err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
	}

	names, err := u.ListContainers(ctx)
	if err != nil {
		t.Fatalf("ListContainers failed: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("ListContainers = %v, want [alpha zeta]", names)
	}
}
