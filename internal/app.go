// Package internal contains core application functionality
package internal

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/jobs"
)

// Application wraps cartridge.Application with folio-specific components.
// When the database cannot be opened the application still starts:
// DBManager and Jobs are nil and every handler sees a store that hands out
// no connection.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager // DB manager with migration methods
	Jobs      *jobs.Scheduler
	Logger    *slog.Logger
}

// StoreAvailable reports whether the database was opened.
func (a *Application) StoreAvailable() bool {
	return a != nil && a.DBManager != nil
}

// Store is the connection source handed to routes and services.
func (a *Application) Store() cartridge.DBManager {
	return a.Application.DBManager
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithRoutes(config.GetConfig(), MountAppRoutes)
}

// NewAppWithRoutes creates a new application with custom route mounting function
func NewAppWithRoutes(cfg *config.Config, routeMount func(*cartridge.Server)) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	var (
		dbManager *database.DBManager
		store     cartridge.DBManager = database.Unavailable{}
		scheduler *jobs.Scheduler
		workers   []cartridge.BackgroundWorker
	)

	candidate := database.NewDBManager(cfg, logger)
	if err := candidate.Init(); err != nil {
		logger.Warn("Database unavailable, serving defaults and skipping writes",
			slog.String("path", cfg.GetDatabasePath()),
			slog.Any("error", err),
		)
	} else {
		dbManager = candidate
		store = candidate

		scheduler, err = jobs.NewScheduler(dbManager, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize jobs: %w", err)
		}
		workers = append(workers, scheduler)
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:            cfg,
		Logger:            logger,
		DBManager:         store,
		RouteMountFunc:    routeMount,
		BackgroundWorkers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Jobs:        scheduler,
		Logger:      logger,
	}, nil
}
