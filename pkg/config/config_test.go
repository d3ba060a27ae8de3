package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudspool/cloudspool/pkg/store"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Logging.Level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want text", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
	if cfg.Database.Type != store.DatabaseTypeSQLite {
		t.Errorf("Database.Type = %q, want sqlite", cfg.Database.Type)
	}
	if cfg.API.Port == 0 {
		t.Error("API.Port not defaulted")
	}
	if cfg.Uploader.Backend != "azure" {
		t.Errorf("Uploader.Backend = %q, want azure", cfg.Uploader.Backend)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Run("level is normalized", func(t *testing.T) {
		cfg := &Config{}
		cfg.Logging.Level = "debug"
		ApplyDefaults(cfg)
		if cfg.Logging.Level != "DEBUG" {
			t.Errorf("Level = %q, want DEBUG", cfg.Logging.Level)
		}
	})

	t.Run("set values survive", func(t *testing.T) {
		cfg := &Config{ShutdownTimeout: 5 * time.Second}
		cfg.API.Port = 9999
		ApplyDefaults(cfg)
		if cfg.ShutdownTimeout != 5*time.Second {
			t.Errorf("ShutdownTimeout = %v, want kept 5s", cfg.ShutdownTimeout)
		}
		if cfg.API.Port != 9999 {
			t.Errorf("API.Port = %d, want kept 9999", cfg.API.Port)
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("bad uploader backend", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Uploader.Backend = "ftp"
		if err := Validate(cfg); err == nil {
			t.Error("expected validation error for unknown backend")
		}
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = "LOUD"
		if err := Validate(cfg); err == nil {
			t.Error("expected validation error for unknown level")
		}
	})

	t.Run("postgres without host", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Database.Type = store.DatabaseTypePostgres
		if err := Validate(cfg); err == nil {
			t.Error("expected validation error for postgres without host")
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Logging.Level != "INFO" {
			t.Errorf("Level = %q, want INFO", cfg.Logging.Level)
		}
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
logging:
  level: DEBUG
  format: json
api:
  port: 9090
uploader:
  backend: s3
  s3:
    region: eu-west-1
shutdown_timeout: 45s
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Logging.Level != "DEBUG" {
			t.Errorf("Level = %q, want DEBUG", cfg.Logging.Level)
		}
		if cfg.Logging.Format != "json" {
			t.Errorf("Format = %q, want json", cfg.Logging.Format)
		}
		if cfg.API.Port != 9090 {
			t.Errorf("Port = %d, want 9090", cfg.API.Port)
		}
		if cfg.Uploader.Backend != "s3" {
			t.Errorf("Backend = %q, want s3", cfg.Uploader.Backend)
		}
		if cfg.Uploader.S3.Region != "eu-west-1" {
			t.Errorf("Region = %q, want eu-west-1", cfg.Uploader.S3.Region)
		}
		if cfg.ShutdownTimeout != 45*time.Second {
			t.Errorf("ShutdownTimeout = %v, want 45s", cfg.ShutdownTimeout)
		}
	})

	t.Run("invalid file value fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
logging:
  level: SHOUTING
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected error for invalid level")
		}
	})
}

func TestSaveAndRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")

	cfg := GetDefaultConfig()
	cfg.API.Port = 8181
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.API.Port != 8181 {
		t.Errorf("Port = %d after round trip, want 8181", got.API.Port)
	}
}

func TestInitConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "init.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	// Refuses to clobber without force.
	if err := InitConfigToPath(path, false); err == nil {
		t.Error("expected error on existing file without force")
	}
	if err := InitConfigToPath(path, true); err != nil {
		t.Errorf("InitConfigToPath with force failed: %v", err)
	}
}
