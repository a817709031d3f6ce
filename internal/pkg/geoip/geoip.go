package geoip

import (
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"folio/internal/config"
)

// Resolver maps client IPs to ISO country codes. A Resolver without a
// database is valid and resolves nothing, GeoIP is optional.
type Resolver struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
	path   string
	logger *slog.Logger
}

var (
	defaultResolver *Resolver
	once            sync.Once
)

// Open loads the GeoLite2 country database at path. Missing or unreadable
// files produce a disabled resolver rather than an error.
func Open(path string, logger *slog.Logger) *Resolver {
	r := &Resolver{path: path, logger: logger}
	r.reader = r.load()
	return r
}

// Default returns the process-wide resolver built from configuration.
func Default(logger *slog.Logger) *Resolver {
	once.Do(func() {
		defaultResolver = Open(config.GetConfig().GeoDBPath, logger)
	})
	return defaultResolver
}

func (r *Resolver) load() *geoip2.Reader {
	if r.path == "" {
		r.debug("GeoIP database path not configured - country resolution disabled")
		return nil
	}

	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		if r.logger != nil {
			r.logger.Info("GeoLite2 database not found - country resolution disabled",
				slog.String("path", r.path),
				slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		}
		return nil
	} else if err != nil {
		if r.logger != nil {
			r.logger.Warn("Error checking GeoLite2 database file",
				slog.String("path", r.path),
				slog.Any("error", err))
		}
		return nil
	}

	db, err := geoip2.Open(r.path)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("Failed to open GeoLite2 database",
				slog.String("path", r.path),
				slog.Any("error", err))
		}
		return nil
	}

	if r.logger != nil {
		r.logger.Info("GeoLite2 database initialized", slog.String("path", r.path))
	}
	return db
}

func (r *Resolver) debug(msg string) {
	if r.logger != nil {
		r.logger.Debug(msg)
	}
}

// Enabled reports whether a database is loaded.
func (r *Resolver) Enabled() bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reader != nil
}

// CountryCode returns the upper-case ISO 3166-1 alpha-2 code for ip, or ""
// when it cannot be resolved. Private and loopback addresses are never looked up.
func (r *Resolver) CountryCode(ip string) string {
	if r == nil {
		return ""
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return ""
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.reader == nil {
		return ""
	}

	record, err := r.reader.Country(parsed)
	if err != nil {
		if r.logger != nil {
			r.logger.Debug("GeoIP lookup failed", slog.Any("error", err))
		}
		return ""
	}
	return strings.ToUpper(record.Country.IsoCode)
}

// Reload reopens the database from disk, e.g. after downloading a new file.
func (r *Resolver) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reader != nil {
		r.reader.Close()
	}
	r.reader = r.load()
}

// Close releases the database.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reader == nil {
		return nil
	}
	err := r.reader.Close()
	r.reader = nil
	return err
}
