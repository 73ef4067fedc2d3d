// Package bootstrap loads configuration, the logger and the database for the
// CLI commands.
package bootstrap

import (
	"fmt"
	"os"

	"github.com/storesync/storesync/internal/infrastructure/config"
	"github.com/storesync/storesync/internal/infrastructure/database"
	"github.com/storesync/storesync/internal/shared/logger"
)

// Init loads the configuration for env and initializes the process logger.
// The ENV environment variable overrides env.
func Init(env string) (*config.Config, logger.Interface, error) {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger, cfg.Server.Mode); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.NewLogger(), nil
}

// InitWithDatabase is Init followed by database.Init. Callers close the
// database with database.Close.
func InitWithDatabase(env string) (*config.Config, logger.Interface, error) {
	cfg, log, err := Init(env)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Init(&cfg.Database); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, log, nil
}
