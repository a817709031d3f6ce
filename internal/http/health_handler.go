package http

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
)

// BreakerReporter exposes the store circuit breaker state.
type BreakerReporter interface {
	BreakerState() string
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	DBStatus     string    `json:"db_status"`
	BreakerState string    `json:"breaker_state"`
}

// HealthIndexAction returns the health check handler. The endpoint always
// answers 200; a missing database or open breaker reports "degraded".
func HealthIndexAction(breaker BreakerReporter) func(ctx *cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		dbStatus := "ok"

		db := ctx.DBManager.GetConnection()
		if db == nil {
			dbStatus = "unavailable"
			ctx.Logger.Warn("Database connection unavailable")
		} else {
			sqlDB, err := db.DB()
			if err != nil {
				dbStatus = "error"
				ctx.Logger.Error("Database connection error", slog.Any("error", err))
			} else if err := sqlDB.PingContext(ctx.UserContext()); err != nil {
				dbStatus = "error"
				ctx.Logger.Error("Database ping failed", slog.Any("error", err))
			}
		}

		health := HealthStatus{
			Status:       "ok",
			Timestamp:    time.Now(),
			DBStatus:     dbStatus,
			BreakerState: breaker.BreakerState(),
		}

		if dbStatus != "ok" || health.BreakerState != "closed" {
			health.Status = "degraded"
		}

		return ctx.JSON(health)
	}
}
