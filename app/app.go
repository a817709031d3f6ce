// Package app exposes folio's application entry points to commands and
// embedding programs.
package app

import (
	"github.com/karloscodes/cartridge"

	"folio/internal"
	"folio/internal/analytics"
	"folio/internal/config"
	"folio/internal/database"
)

// Re-export core types
type (
	Application      = internal.Application
	Config           = config.Config
	DBManager        = database.DBManager
	Service          = analytics.Service
	RealTimeStats    = analytics.RealTimeStats
	HistoricalStats  = analytics.HistoricalStats
	AnalyticsOptions = analytics.Options
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	return config.GetConfig()
}

// NewApp creates a new application with default routes
func NewApp() (*Application, error) {
	return internal.NewApp()
}

// NewAppWithRoutes creates a new application with custom route mounting
func NewAppWithRoutes(cfg *Config, routeMount func(*cartridge.Server)) (*Application, error) {
	return internal.NewAppWithRoutes(cfg, routeMount)
}

// MountAppRoutes mounts folio's routes, for callers that add their own first.
func MountAppRoutes(srv *cartridge.Server) {
	internal.MountAppRoutes(srv)
}

// NewAnalyticsService builds a standalone aggregator over the application's
// database, e.g. for command-line reporting. Without a database it serves
// defaults like the HTTP API does.
func NewAnalyticsService(a *Application) *Service {
	return analytics.NewService(a.Store(), a.Logger, analytics.OptionsFromConfig(config.GetConfig()))
}
