package models

import "errors"

// Common errors for store operations.
var (
	// Source errors
	ErrSourceNotFound  = errors.New("source not found")
	ErrDuplicateSource = errors.New("source already exists")

	// Job errors
	ErrJobNotFound  = errors.New("job not found")
	ErrDuplicateJob = errors.New("an active job already exists for this path")

	// Setting errors
	ErrSettingNotFound = errors.New("setting not found")
)
