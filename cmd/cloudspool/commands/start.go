package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cloudspool/cloudspool/internal/logger"
	"github.com/cloudspool/cloudspool/internal/telemetry"
	"github.com/cloudspool/cloudspool/pkg/api"
	"github.com/cloudspool/cloudspool/pkg/blob"
	"github.com/cloudspool/cloudspool/pkg/blob/azure"
	"github.com/cloudspool/cloudspool/pkg/blob/s3"
	"github.com/cloudspool/cloudspool/pkg/config"
	"github.com/cloudspool/cloudspool/pkg/processor"
	"github.com/cloudspool/cloudspool/pkg/settings"
	"github.com/cloudspool/cloudspool/pkg/sources"
	"github.com/cloudspool/cloudspool/pkg/store"
	"github.com/cloudspool/cloudspool/pkg/store/models"
	"github.com/cloudspool/cloudspool/pkg/supervisor"
	"github.com/cloudspool/cloudspool/pkg/watcher"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the cloudspool service",
	Long: `Start the cloudspool service with the specified configuration.

The service watches all enabled source folders, uploads stable files to blob
storage, and serves the operations API. It runs in the foreground; use a
process supervisor for daemonization.

Examples:
  # Start with default config location
  cloudspool start

  # Start with custom config file
  cloudspool start --config /etc/cloudspool/config.yaml

  # Override config with environment variables
  CLOUDSPOOL_LOGGING_LEVEL=DEBUG cloudspool start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "cloudspool",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	logger.Info("Starting cloudspool", "version", Version)
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Database close error", "error", err)
		}
	}()
	logger.Info("Database ready", "type", cfg.Database.Type)

	settingsSvc := settings.New(st)
	defer settingsSvc.Close()
	if err := settingsSvc.Seed(ctx, settings.Defaults()); err != nil {
		return fmt.Errorf("failed to seed default settings: %w", err)
	}

	sourcesSvc := sources.New(st)

	uploader, err := buildUploader(ctx, cfg, settingsSvc)
	if err != nil {
		return err
	}
	if err := uploader.Probe(ctx); err != nil {
		// Not fatal: the backend may be temporarily down and uploads retry.
		logger.Warn("Blob storage probe failed", "backend", cfg.Uploader.Backend, "error", err)
	} else {
		logger.Info("Blob storage reachable", "backend", cfg.Uploader.Backend)
	}

	proc := processor.New(st, settingsSvc, uploader, nil)
	sup := supervisor.New(sourcesSvc, settingsSvc, proc, nil, func(source models.Source) supervisor.SourceWatcher {
		return watcher.New(source, st, settingsSvc, nil, watcher.Config{})
	})

	apiServer := api.NewServer(cfg.API, st, sourcesSvc, settingsSvc, uploader)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Run(gctx)
	})
	g.Go(func() error {
		return apiServer.Start(gctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("service failed: %w", err)
	}
	logger.Info("cloudspool stopped")
	return nil
}

// buildUploader constructs the configured blob backend. Azure credentials
// prefer the runtime settings table so they can be rotated without editing
// the config file.
func buildUploader(ctx context.Context, cfg *config.Config, settingsSvc *settings.Service) (blob.Uploader, error) {
	switch cfg.Uploader.Backend {
	case "azure":
		conn := settingsSvc.StringOr(ctx, settings.KeyAzureConnectionString, "")
		if conn == "" {
			conn = cfg.Uploader.Azure.ConnectionString
		}
		if conn == "" {
			return nil, fmt.Errorf("no Azure connection string configured; set the %s setting or uploader.azure.connection_string",
				settings.KeyAzureConnectionString)
		}
		return azure.New(azure.Config{ConnectionString: conn})

	case "s3":
		return s3.NewFromConfig(ctx, s3.Config{
			Region:          cfg.Uploader.S3.Region,
			Endpoint:        cfg.Uploader.S3.Endpoint,
			AccessKeyID:     cfg.Uploader.S3.AccessKeyID,
			SecretAccessKey: cfg.Uploader.S3.SecretAccessKey,
			ForcePathStyle:  cfg.Uploader.S3.ForcePathStyle,
		})

	default:
		return nil, fmt.Errorf("unsupported uploader backend: %s", cfg.Uploader.Backend)
	}
}
