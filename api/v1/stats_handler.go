package v1

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"folio/internal/timeframe"
	"folio/internal/visitors"
)

// RealTimeStatsHandler serves the live counters. It always answers 200.
func (a *API) RealTimeStatsHandler(ctx *cartridge.Context) error {
	stats := a.svc.RealTime(ctx.UserContext())
	if a.cfg.DisplayFloor {
		stats = stats.ForDisplay()
	}
	ctx.Set(fiber.HeaderCacheControl, "no-store")
	return ctx.JSON(stats)
}

// HistoryStatsHandler serves the trailing-days summary.
func (a *API) HistoryStatsHandler(ctx *cartridge.Context) error {
	days := a.days(ctx)
	return ctx.JSON(a.svc.Historical(ctx.UserContext(), days))
}

// PageStatsHandler serves the breakdown for ?page=, or the whole site.
func (a *API) PageStatsHandler(ctx *cartridge.Context) error {
	days := a.days(ctx)
	return ctx.JSON(a.svc.PageStats(ctx.UserContext(), ctx.Query("page"), days))
}

// NewSessionHandler issues a session id for clients that cannot mint one.
func (a *API) NewSessionHandler(ctx *cartridge.Context) error {
	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"sessionId": visitors.NewSessionID(),
	})
}

func (a *API) days(ctx *cartridge.Context) int {
	return timeframe.ParseDays(ctx.Query("days"), a.cfg.DefaultHistoryDays, a.cfg.MaxHistoryDays)
}
