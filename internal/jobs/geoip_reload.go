package jobs

import (
	"log/slog"
	"os"
	"time"

	"folio/internal/pkg/geoip"
)

// GeoLite databases are published weekly; checking hourly picks up a
// replaced file without a restart.
const GeoReloadInterval = time.Hour

// GeoReloadJob reloads the GeoIP database when its file changes on disk.
type GeoReloadJob struct {
	path     string
	logger   *slog.Logger
	resolver func() *geoip.Resolver
	lastMod  time.Time
}

func NewGeoReloadJob(path string, logger *slog.Logger) *GeoReloadJob {
	j := &GeoReloadJob{
		path:   path,
		logger: logger,
		resolver: func() *geoip.Resolver {
			return geoip.Default(logger)
		},
	}
	if info, err := os.Stat(path); err == nil {
		j.lastMod = info.ModTime()
	}
	return j
}

func (j *GeoReloadJob) Name() string { return "geoip_reload" }

func (j *GeoReloadJob) Run() error {
	info, err := os.Stat(j.path)
	if err != nil {
		// No database configured; country resolution stays off.
		return nil
	}
	if !info.ModTime().After(j.lastMod) {
		return nil
	}

	j.logger.Info("GeoIP database changed, reloading", slog.String("path", j.path))
	j.resolver().Reload()
	j.lastMod = info.ModTime()
	return nil
}
