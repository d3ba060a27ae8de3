package models

import "time"

// Source declares one local folder watched for new files.
//
// Name identifies the running watcher. NeedsRefresh is the operator's signal
// to restart the watcher: the supervisor acts on it and clears it. While
// Enabled is false no watcher may run for the row.
type Source struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string    `gorm:"uniqueIndex;not null;size:255" json:"name" validate:"required,max=255"`
	FolderPath        string    `gorm:"not null;type:text" json:"folder_path" validate:"required"`
	ArchiveFolderPath string    `gorm:"type:text" json:"archive_folder_path,omitempty"`
	FilePattern       string    `gorm:"size:255;default:*" json:"file_pattern"`
	Enabled           bool      `json:"enabled"`
	NeedsRefresh      bool      `gorm:"default:false" json:"needs_refresh"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Source.
func (Source) TableName() string {
	return "sources"
}

// Pattern returns the file pattern, defaulting to match-all.
func (s *Source) Pattern() string {
	if s.FilePattern == "" {
		return "*"
	}
	return s.FilePattern
}
