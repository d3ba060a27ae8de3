package commands

import (
	"fmt"

	"github.com/cloudspool/cloudspool/internal/logger"
	"github.com/cloudspool/cloudspool/pkg/config"
	"github.com/cloudspool/cloudspool/pkg/store"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// openStore loads the configuration and opens the database for management
// commands that run outside the service process.
func openStore() (*config.Config, *store.Store, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, nil, err
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return cfg, st, nil
}
