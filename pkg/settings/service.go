// Package settings provides typed access to the live configuration table.
//
// Every component reads tunables through this service at request time, so an
// operator edit is visible by the next supervisor pass. Reads go to the
// database with a short TTL cache in front; the TTL is well under one tick.
package settings

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v2"

	"github.com/cloudspool/cloudspool/internal/logger"
	"github.com/cloudspool/cloudspool/pkg/store"
	"github.com/cloudspool/cloudspool/pkg/store/models"
)

// cacheTTL bounds how stale a read may be. Must stay below the smallest
// useful supervisor tick.
const cacheTTL = 5 * time.Second

// Service is the typed configuration service over the settings table.
type Service struct {
	store *store.Store
	cache *ttlcache.Cache
}

// New creates a settings service backed by the given store.
func New(st *store.Store) *Service {
	cache := ttlcache.NewCache()
	_ = cache.SetTTL(cacheTTL)
	cache.SkipTTLExtensionOnHit(true)

	return &Service{store: st, cache: cache}
}

// Close releases the cache's expiration goroutine.
func (s *Service) Close() {
	_ = s.cache.Close()
}

// Get returns the raw string value for key. The boolean is false when the
// key is absent.
func (s *Service) Get(ctx context.Context, key string) (string, bool, error) {
	if cached, err := s.cache.Get(key); err == nil {
		return cached.(string), true, nil
	}

	value, err := s.store.GetSetting(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrSettingNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	_ = s.cache.Set(key, value)
	return value, true, nil
}

// GetInt returns the value parsed as a base-10 integer. Absent keys and
// unparseable values both report absent; callers supply their own default.
func (s *Service) GetInt(ctx context.Context, key string) (int, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	n, perr := strconv.Atoi(strings.TrimSpace(raw))
	if perr != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// GetBool returns the value parsed as a case-insensitive true/false.
func (s *Service) GetBool(ctx context.Context, key string) (bool, bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, false, err
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true":
		return true, true, nil
	case "false":
		return false, true, nil
	default:
		return false, false, nil
	}
}

// GetSeconds returns the value parsed as an integer number of seconds.
func (s *Service) GetSeconds(ctx context.Context, key string) (time.Duration, bool, error) {
	n, ok, err := s.GetInt(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	return time.Duration(n) * time.Second, true, nil
}

// IntOr returns the parsed integer value or def when absent/unparseable.
func (s *Service) IntOr(ctx context.Context, key string, def int) int {
	n, ok, err := s.GetInt(ctx, key)
	if err != nil {
		logger.Warn("Setting read failed, using default", "key", key, "default", def, "error", err)
		return def
	}
	if !ok {
		return def
	}
	return n
}

// BoolOr returns the parsed boolean value or def when absent/unparseable.
func (s *Service) BoolOr(ctx context.Context, key string, def bool) bool {
	b, ok, err := s.GetBool(ctx, key)
	if err != nil {
		logger.Warn("Setting read failed, using default", "key", key, "default", def, "error", err)
		return def
	}
	if !ok {
		return def
	}
	return b
}

// StringOr returns the raw value or def when the key is absent or empty.
func (s *Service) StringOr(ctx context.Context, key, def string) string {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		logger.Warn("Setting read failed, using default", "key", key, "error", err)
		return def
	}
	if !ok || raw == "" {
		return def
	}
	return raw
}

// Set upserts the value for key and invalidates the cached entry.
func (s *Service) Set(ctx context.Context, key, value, category, description string) error {
	err := s.store.SetSetting(ctx, models.Setting{
		Key:         key,
		Value:       value,
		Category:    category,
		Description: description,
	})
	if err != nil {
		return err
	}
	_ = s.cache.Remove(key)
	return nil
}

// Exists reports whether a row exists for key.
func (s *Service) Exists(ctx context.Context, key string) (bool, error) {
	return s.store.SettingExists(ctx, key)
}

// Seed upserts-if-absent every row of the defaults table. It never
// overwrites an existing value.
func (s *Service) Seed(ctx context.Context, defaults []models.Setting) error {
	for _, d := range defaults {
		if err := s.store.SeedSetting(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
