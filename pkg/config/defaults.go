package config

import (
	"strings"
	"time"

	"github.com/cloudspool/cloudspool/pkg/store"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	cfg.Database.ApplyDefaults()
	cfg.API.ApplyDefaults()
	applyUploaderDefaults(&cfg.Uploader)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

// applyUploaderDefaults sets blob backend defaults.
func applyUploaderDefaults(cfg *UploaderConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "azure"
	}
	if cfg.Backend == "s3" && cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// Useful for generating sample configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: store.Config{
			Type: store.DatabaseTypeSQLite,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
