package sources

import (
	"context"
	"testing"

	"github.com/cloudspool/cloudspool/pkg/store"
	"github.com/cloudspool/cloudspool/pkg/store/models"
)

func createTestService(t *testing.T) *Service {
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
	return New(st)
}

func TestCreate(t *testing.T) {
	svc := createTestService(t)
	ctx := context.Background()

	t.Run("valid source", func(t *testing.T) {
		source := &models.Source{
			Name:       "inbox",
			FolderPath: "/var/spool/inbox",
			Enabled:    true,
		}
		if err := svc.Create(ctx, source); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if source.FilePattern != "*" {
			t.Errorf("FilePattern = %q, want defaulted *", source.FilePattern)
		}
	})

	t.Run("disabled source stays disabled", func(t *testing.T) {
		source := &models.Source{
			Name:       "paused",
			FolderPath: "/var/spool/paused",
			Enabled:    false,
		}
		if err := svc.Create(ctx, source); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		got, err := svc.Get(ctx, "paused")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Enabled {
			t.Error("Enabled = true after creating a disabled source")
		}
	})

	t.Run("missing name rejected", func(t *testing.T) {
		err := svc.Create(ctx, &models.Source{FolderPath: "/var/spool/x"})
		if err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("relative folder path rejected", func(t *testing.T) {
		err := svc.Create(ctx, &models.Source{Name: "rel", FolderPath: "spool/inbox"})
		if err == nil {
			t.Error("expected validation error for relative path")
		}
	})

	t.Run("relative archive path rejected", func(t *testing.T) {
		err := svc.Create(ctx, &models.Source{
			Name:              "arch",
			FolderPath:        "/var/spool/arch",
			ArchiveFolderPath: "done",
		})
		if err == nil {
			t.Error("expected validation error for relative archive path")
		}
	})

	t.Run("malformed pattern rejected", func(t *testing.T) {
		err := svc.Create(ctx, &models.Source{
			Name:        "badpat",
			FolderPath:  "/var/spool/badpat",
			FilePattern: "[",
		})
		if err == nil {
			t.Error("expected validation error for bad pattern")
		}
	})

	t.Run("duplicate name surfaces store error", func(t *testing.T) {
		err := svc.Create(ctx, &models.Source{Name: "inbox", FolderPath: "/elsewhere"})
		if err != models.ErrDuplicateSource {
			t.Errorf("expected ErrDuplicateSource, got %v", err)
		}
	})
}

func TestUpdate(t *testing.T) {
	svc := createTestService(t)
	ctx := context.Background()

	source := &models.Source{Name: "inbox", FolderPath: "/var/spool/inbox"}
	if err := svc.Create(ctx, source); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("valid update", func(t *testing.T) {
		source.FilePattern = "*.csv"
		if err := svc.Update(ctx, source); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		got, err := svc.Get(ctx, "inbox")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.FilePattern != "*.csv" {
			t.Errorf("FilePattern = %q, want *.csv", got.FilePattern)
		}
	})

	t.Run("update revalidates", func(t *testing.T) {
		bad := *source
		bad.FolderPath = "not/absolute"
		if err := svc.Update(ctx, &bad); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("unknown source", func(t *testing.T) {
		err := svc.Update(ctx, &models.Source{Name: "ghost", FolderPath: "/g"})
		if err != models.ErrSourceNotFound {
			t.Errorf("expected ErrSourceNotFound, got %v", err)
		}
	})
}

func TestRefreshHandshake(t *testing.T) {
	svc := createTestService(t)
	ctx := context.Background()

	if err := svc.Create(ctx, &models.Source{Name: "inbox", FolderPath: "/var/spool/inbox"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.RequestRefresh(ctx, "inbox"); err != nil {
		t.Fatalf("RequestRefresh failed: %v", err)
	}
	got, err := svc.Get(ctx, "inbox")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.NeedsRefresh {
		t.Error("NeedsRefresh not set")
	}

	if err := svc.ClearNeedsRefresh(ctx, "inbox"); err != nil {
		t.Fatalf("ClearNeedsRefresh failed: %v", err)
	}
	got, err = svc.Get(ctx, "inbox")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.NeedsRefresh {
		t.Error("NeedsRefresh not cleared")
	}

	if err := svc.RequestRefresh(ctx, "ghost"); err != models.ErrSourceNotFound {
		t.Errorf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestDeleteAndList(t *testing.T) {
	svc := createTestService(t)
	ctx := context.Background()

	for _, name := range []string{"bravo", "alpha"} {
		if err := svc.Create(ctx, &models.Source{Name: name, FolderPath: "/var/spool/" + name}); err != nil {
			t.Fatalf("Create(%s) failed: %v", name, err)
		}
	}

	list, err := svc.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "bravo" {
		t.Errorf("unexpected list: %v", list)
	}

	if err := svc.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := svc.Delete(ctx, "alpha"); err != models.ErrSourceNotFound {
		t.Errorf("expected ErrSourceNotFound, got %v", err)
	}
}
