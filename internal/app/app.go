// Package app defines the App struct that composes the program's main
// dependencies.
//
// It owns the lifecycle of:
//   - configuration
//   - logger + the log file it may write to
//   - the connection registry (engines, sessions, reflected mappings)
//
// Commands build one App, use it, and call Shutdown on the way out.
package app

import (
	"context"
	"fmt"

	"github.com/deppfellow/abaita/internal/config"
	"github.com/deppfellow/abaita/internal/database"
	"github.com/deppfellow/abaita/internal/registry"
	"github.com/rs/zerolog"

	loggerPkg "github.com/deppfellow/abaita/internal/logger"
)

// App is the application container that holds shared resources.
type App struct {
	// Config holds all environment/config values.
	Config *config.Config

	// Logger is the application's main structured logger.
	Logger *zerolog.Logger

	// LoggerService owns the log file, when logging to one.
	LoggerService *loggerPkg.LoggerService

	// Registry holds the database connections. The configured database is
	// registered under Config.Database.Name as the default connection.
	Registry *registry.Registry
}

// New constructs an App and registers the configured database.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService) (*App, error) {
	reg := registry.New(logger, database.OptionsFromConfig(cfg))

	if err := reg.Register(ctx, cfg.Database.Name, cfg.Database.Endpoint, true); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		LoggerService: loggerService,
		Registry:      reg,
	}, nil
}

// Shutdown releases every session, closes the connections and the log
// file.
func (a *App) Shutdown() error {
	if err := a.Registry.Close(); err != nil {
		return fmt.Errorf("failed to close database connections: %w", err)
	}
	if a.LoggerService != nil {
		if err := a.LoggerService.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
	}
	return nil
}
