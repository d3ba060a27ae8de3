package store

import (
	"context"
	"time"

	"github.com/cloudspool/cloudspool/pkg/store/models"
)

// ============================================
// SOURCE OPERATIONS
// ============================================

// GetSource returns the source row identified by name.
func (s *Store) GetSource(ctx context.Context, name string) (*models.Source, error) {
	return getByField[models.Source](s.db, ctx, "name", name, models.ErrSourceNotFound)
}

// ListSources returns all sources ordered by name ascending so that
// reconciliation diffs are stable.
func (s *Store) ListSources(ctx context.Context) ([]*models.Source, error) {
	var sources []*models.Source
	if err := s.db.WithContext(ctx).Order("name asc").Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

// CreateSource inserts a new source row.
func (s *Store) CreateSource(ctx context.Context, source *models.Source) error {
	now := time.Now()
	source.CreatedAt = now
	source.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(source).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrDuplicateSource
		}
		return err
	}
	return nil
}

// UpdateSource updates the mutable fields of a source row, matched by name.
func (s *Store) UpdateSource(ctx context.Context, source *models.Source) error {
	source.UpdatedAt = time.Now()

	result := s.db.WithContext(ctx).
		Model(&models.Source{}).
		Where("name = ?", source.Name).
		Updates(map[string]any{
			"folder_path":         source.FolderPath,
			"archive_folder_path": source.ArchiveFolderPath,
			"file_pattern":        source.FilePattern,
			"enabled":             source.Enabled,
			"needs_refresh":       source.NeedsRefresh,
			"updated_at":          source.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrSourceNotFound
	}
	return nil
}

// DeleteSource removes the source row identified by name.
func (s *Store) DeleteSource(ctx context.Context, name string) error {
	return deleteByField[models.Source](s.db, ctx, "name", name, models.ErrSourceNotFound)
}

// SetNeedsRefresh flips the needs_refresh flag for a source.
func (s *Store) SetNeedsRefresh(ctx context.Context, name string, value bool) error {
	result := s.db.WithContext(ctx).
		Model(&models.Source{}).
		Where("name = ?", name).
		Updates(map[string]any{
			"needs_refresh": value,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrSourceNotFound
	}
	return nil
}
