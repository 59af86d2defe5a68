// Package providers contains dependency injection providers for the coversync server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/coversync/coversync-server/internal/config"
	"github.com/coversync/coversync-server/internal/logger"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	logCfg := logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	}
	if cfg.Logger.File != "" {
		logCfg.File = &logger.FileConfig{
			Path:       cfg.Logger.File,
			MaxSizeMB:  cfg.Logger.MaxSizeMB,
			MaxBackups: cfg.Logger.MaxBackups,
		}
	}
	log := logger.New(logCfg)

	log.Info("Starting coversync server",
		"version", Version,
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Data.BasePath,
		"cover_root", cfg.Dirs.Root,
		"jellyfin_url", cfg.Jellyfin.URL,
	)

	return log, nil
}
