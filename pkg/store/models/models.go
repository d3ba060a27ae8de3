// Package models defines the persistent entities of the cloudspool store.
package models

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&Setting{},
		&Source{},
		&Job{},
	}
}
