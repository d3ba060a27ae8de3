package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cloudspool/cloudspool/pkg/store/models"
)

// ============================================
// SETTINGS OPERATIONS
// ============================================

// GetSetting returns the raw value for key, or ErrSettingNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", models.ErrSettingNotFound
		}
		return "", err
	}
	return setting.Value, nil
}

// GetSettingRow returns the full row for key, or ErrSettingNotFound.
func (s *Store) GetSettingRow(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrSettingNotFound
		}
		return nil, err
	}
	return &setting, nil
}

// SetSetting upserts the full row on key. Category and description are
// overwritten only when non-empty so operator edits keep the seeded text.
func (s *Store) SetSetting(ctx context.Context, setting models.Setting) error {
	setting.UpdatedAt = time.Now()

	assigns := map[string]any{
		"value":      setting.Value,
		"updated_at": setting.UpdatedAt,
	}
	if setting.Category != "" {
		assigns["category"] = setting.Category
	}
	if setting.Description != "" {
		assigns["description"] = setting.Description
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(assigns),
	}).Create(&setting).Error
}

// SeedSetting inserts the row only if the key is absent. Existing values are
// never overwritten; this is the one-shot bootstrap contract.
func (s *Store) SeedSetting(ctx context.Context, setting models.Setting) error {
	setting.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&setting).Error
}

// SettingExists reports whether a row exists for key.
func (s *Store) SettingExists(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Setting{}).
		Where("key = ?", key).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListSettings returns all settings ordered by key.
func (s *Store) ListSettings(ctx context.Context) ([]*models.Setting, error) {
	var settings []*models.Setting
	if err := s.db.WithContext(ctx).Order("key asc").Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}
