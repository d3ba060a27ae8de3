// Package sources provides the data-source service: CRUD over watched-folder
// declarations plus the needs-refresh handshake the supervisor drives.
package sources

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/cloudspool/cloudspool/pkg/store"
	"github.com/cloudspool/cloudspool/pkg/store/models"
)

// Service wraps the store with input validation for source rows.
type Service struct {
	store    *store.Store
	validate *validator.Validate
}

// New creates a source service backed by the given store.
func New(st *store.Store) *Service {
	return &Service{
		store:    st,
		validate: validator.New(),
	}
}

// validateSource checks struct tags plus path invariants GORM tags cannot
// express.
func (s *Service) validateSource(source *models.Source) error {
	if err := s.validate.Struct(source); err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}
	if !filepath.IsAbs(source.FolderPath) {
		return fmt.Errorf("invalid source: folder path %q is not absolute", source.FolderPath)
	}
	if source.ArchiveFolderPath != "" && !filepath.IsAbs(source.ArchiveFolderPath) {
		return fmt.Errorf("invalid source: archive path %q is not absolute", source.ArchiveFolderPath)
	}
	if p := source.FilePattern; p != "" {
		if _, err := filepath.Match(p, "probe"); err != nil {
			return fmt.Errorf("invalid source: bad file pattern %q: %w", p, err)
		}
	}
	return nil
}

// Create validates and inserts a new source.
func (s *Service) Create(ctx context.Context, source *models.Source) error {
	if err := s.validateSource(source); err != nil {
		return err
	}
	if source.FilePattern == "" {
		source.FilePattern = "*"
	}
	return s.store.CreateSource(ctx, source)
}

// Update validates and persists changes to an existing source. Callers set
// NeedsRefresh themselves when the change should restart the watcher.
func (s *Service) Update(ctx context.Context, source *models.Source) error {
	if err := s.validateSource(source); err != nil {
		return err
	}
	return s.store.UpdateSource(ctx, source)
}

// Get returns one source by name.
func (s *Service) Get(ctx context.Context, name string) (*models.Source, error) {
	return s.store.GetSource(ctx, name)
}

// ListAll returns every source ordered by name ascending.
func (s *Service) ListAll(ctx context.Context) ([]*models.Source, error) {
	return s.store.ListSources(ctx)
}

// Delete removes a source by name.
func (s *Service) Delete(ctx context.Context, name string) error {
	return s.store.DeleteSource(ctx, name)
}

// RequestRefresh marks a source for watcher restart on the next tick.
func (s *Service) RequestRefresh(ctx context.Context, name string) error {
	return s.store.SetNeedsRefresh(ctx, name, true)
}

// ClearNeedsRefresh is called by the supervisor after acting on the flag.
func (s *Service) ClearNeedsRefresh(ctx context.Context, name string) error {
	return s.store.SetNeedsRefresh(ctx, name, false)
}
