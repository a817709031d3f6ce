package internal

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "folio/api/v1"
	"folio/internal/analytics"
	"folio/internal/config"
	"folio/internal/http"
	"folio/internal/metrics"
)

// publicCORSConfig is shared by every analytics endpoint; the beacon runs on
// the site's own pages and possibly on other origins.
func publicCORSConfig(cfg *config.Config) *cors.Config {
	origins := strings.TrimSpace(cfg.AllowedOrigins)
	if origins == "" {
		origins = "*"
	}
	return &cors.Config{
		AllowOrigins: origins,
		AllowMethods: "POST,GET,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Referrer, User-Agent, X-Forwarded-User-Agent",
	}
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()
	logger := srv.GetLogger()

	svc := analytics.NewService(srv.GetDBManager(), logger, analytics.OptionsFromConfig(cfg))
	api := v1.NewAPI(svc, cfg)

	// Rate limiting would interfere with development and tests
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() && c.Method() == fiber.MethodPost {
				return limiter(c)
			}
			return c.Next()
		}
	}

	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(cfg.RateLimitPerMinute),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Ingestion is posted by browsers on any page and by the Go beacon,
	// which sends no Sec-Fetch-Site header.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		EnableSecFetchSite: cartridge.Bool(false),
		CustomMiddleware:   []fiber.Handler{metrics.Middleware(), publicRateLimiter},
		CORSConfig:         publicCORSConfig(cfg),
	}

	readAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{metrics.Middleware()},
		CORSConfig:       publicCORSConfig(cfg),
	}

	noContent := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	srv.Get("/_health", http.HealthIndexAction(svc))
	srv.Head("/_health", http.HealthIndexAction(svc))

	metricsHandler := adaptor.HTTPHandler(metrics.Handler())
	srv.Get("/metrics", func(ctx *cartridge.Context) error {
		return metricsHandler(ctx.Ctx)
	})

	// === INGESTION ===
	srv.Post("/analytics", api.CreatePageViewHandler, publicAPIConfig)
	srv.Options("/analytics", noContent, publicAPIConfig)
	srv.Post("/analytics/events", api.CreateUserActionHandler, publicAPIConfig)
	srv.Options("/analytics/events", noContent, publicAPIConfig)
	srv.Post("/analytics/heartbeat", api.HeartbeatHandler, publicAPIConfig)
	srv.Options("/analytics/heartbeat", noContent, publicAPIConfig)

	// === READS ===
	srv.Get("/analytics", api.PageStatsHandler, readAPIConfig)
	srv.Get("/analytics/realtime", api.RealTimeStatsHandler, readAPIConfig)
	srv.Get("/analytics/history", api.HistoryStatsHandler, readAPIConfig)
	srv.Get("/analytics/session", api.NewSessionHandler, readAPIConfig)
}
