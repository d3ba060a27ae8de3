package models

import "time"

// Setting stores one operator-tunable key/value pair.
//
// Keys use a dotted namespace (e.g. "Upload.MaxConcurrentUploads"). Values
// are stored as strings; typed interpretation happens in the settings
// service. Settings are seeded from built-in defaults when absent and are
// never deleted by the system itself.
type Setting struct {
	Key         string    `gorm:"primaryKey;size:255" json:"key"`
	Value       string    `gorm:"type:text" json:"value"`
	Category    string    `gorm:"size:100" json:"category"`
	Description string    `gorm:"type:text" json:"description"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}
