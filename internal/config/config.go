// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"folio/internal/timeframe"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

// Presence sources used to compute online users
const (
	PresenceFromSessions   = "sessions"
	PresenceFromHeartbeats = "heartbeats"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName        string   `mapstructure:"appname"`
	AppPort        string   `mapstructure:"appport"`
	Environment    string   `mapstructure:"environment"`
	LogLevel       LogLevel `mapstructure:"loglevel"`
	PrivateKey     string   `mapstructure:"privatekey"`
	AllowedOrigins string   `mapstructure:"allowedorigins"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"databasename"`
	GeoDBPath             string `mapstructure:"geodbpath"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Analytics settings
	Timezone            string `mapstructure:"timezone"`
	OnlineWindowSeconds int    `mapstructure:"onlinewindowseconds"`
	PresenceSource      string `mapstructure:"presencesource"`
	DisplayFloor        bool   `mapstructure:"displayfloor"`
	DefaultHistoryDays  int    `mapstructure:"defaulthistorydays"`
	MaxHistoryDays      int    `mapstructure:"maxhistorydays"`
	RateLimitPerMinute  int    `mapstructure:"ratelimitperminute"`

	// Store circuit breaker
	BreakerFailureThreshold int `mapstructure:"breakerfailurethreshold"`
	BreakerCooldownSeconds  int `mapstructure:"breakercooldownseconds"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`

	// Data retention settings
	EventsRetentionDays     int `mapstructure:"eventsretentiondays"`
	HeartbeatRetentionHours int `mapstructure:"heartbeatretentionhours"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "folio")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("allowedorigins", "*")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("databasename", "")
		v.SetDefault("geodbpath", "storage/GeoLite2-Country.mmdb")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("timezone", "")
		v.SetDefault("onlinewindowseconds", 300)
		v.SetDefault("presencesource", PresenceFromSessions)
		v.SetDefault("displayfloor", true)
		v.SetDefault("defaulthistorydays", 7)
		v.SetDefault("maxhistorydays", 365)
		v.SetDefault("ratelimitperminute", 120)
		v.SetDefault("breakerfailurethreshold", 5)
		v.SetDefault("breakercooldownseconds", 30)
		v.SetDefault("jobintervalseconds", 60)
		v.SetDefault("eventsretentiondays", 90)
		v.SetDefault("heartbeatretentionhours", 24)

		v.BindEnv("appname", "FOLIO_APP_NAME")
		v.BindEnv("appport", "FOLIO_APP_PORT")
		v.BindEnv("environment", "FOLIO_ENV")
		v.BindEnv("loglevel", "FOLIO_LOG_LEVEL")
		v.BindEnv("privatekey", "FOLIO_PRIVATE_KEY")
		v.BindEnv("allowedorigins", "FOLIO_ALLOWED_ORIGINS")
		v.BindEnv("storagepath", "FOLIO_STORAGE_PATH")
		v.BindEnv("databasename", "FOLIO_DATABASE_NAME")
		v.BindEnv("geodbpath", "FOLIO_GEO_DB_PATH")
		v.BindEnv("publicdir", "FOLIO_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "FOLIO_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "FOLIO_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "FOLIO_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "FOLIO_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "FOLIO_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "FOLIO_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "FOLIO_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "FOLIO_DB_MAX_IDLE_CONNS")
		v.BindEnv("timezone", "FOLIO_TIMEZONE")
		v.BindEnv("onlinewindowseconds", "FOLIO_ONLINE_WINDOW_SECONDS")
		v.BindEnv("presencesource", "FOLIO_PRESENCE_SOURCE")
		v.BindEnv("displayfloor", "FOLIO_DISPLAY_FLOOR")
		v.BindEnv("defaulthistorydays", "FOLIO_DEFAULT_HISTORY_DAYS")
		v.BindEnv("maxhistorydays", "FOLIO_MAX_HISTORY_DAYS")
		v.BindEnv("ratelimitperminute", "FOLIO_RATE_LIMIT_PER_MINUTE")
		v.BindEnv("breakerfailurethreshold", "FOLIO_BREAKER_FAILURE_THRESHOLD")
		v.BindEnv("breakercooldownseconds", "FOLIO_BREAKER_COOLDOWN_SECONDS")
		v.BindEnv("jobintervalseconds", "FOLIO_JOB_INTERVAL_SECONDS")
		v.BindEnv("eventsretentiondays", "FOLIO_EVENTS_RETENTION_DAYS")
		v.BindEnv("heartbeatretentionhours", "FOLIO_HEARTBEAT_RETENTION_HOURS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique FOLIO_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	c.PresenceSource = strings.ToLower(strings.TrimSpace(c.PresenceSource))
	if c.PresenceSource != PresenceFromSessions && c.PresenceSource != PresenceFromHeartbeats {
		return fmt.Errorf("invalid presence source: %s", c.PresenceSource)
	}

	if c.OnlineWindowSeconds <= 0 {
		return fmt.Errorf("online window must be positive, got %d", c.OnlineWindowSeconds)
	}
	if c.MaxHistoryDays <= 0 {
		return fmt.Errorf("max history days must be positive, got %d", c.MaxHistoryDays)
	}
	if c.DefaultHistoryDays <= 0 || c.MaxHistoryDays < c.DefaultHistoryDays {
		return fmt.Errorf("invalid history days: default=%d max=%d", c.DefaultHistoryDays, c.MaxHistoryDays)
	}

	return nil
}

// GetDatabasePath returns the database path. An explicit databasename wins,
// otherwise the file is derived from the storage path, app name and environment.
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// OnlineWindow is the trailing window in which a session counts as online.
func (c *Config) OnlineWindow() time.Duration {
	return time.Duration(c.OnlineWindowSeconds) * time.Second
}

// BreakerCooldown is how long the store breaker stays open before probing again.
func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSeconds) * time.Second
}

// HeartbeatRetention is how long heartbeat rows and idle sessions are kept.
func (c *Config) HeartbeatRetention() time.Duration {
	return time.Duration(c.HeartbeatRetentionHours) * time.Hour
}

// ClampHistoryDays bounds a requested history window to [1, MaxHistoryDays].
// Zero or negative values fall back to DefaultHistoryDays.
func (c *Config) ClampHistoryDays(days int) int {
	if days <= 0 {
		return c.DefaultHistoryDays
	}
	maxDays := c.MaxHistoryDays
	if maxDays <= 0 {
		maxDays = timeframe.DefaultMaxDays
	}
	return min(days, maxDays)
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (shared in-memory databases)
// - Development/Production: 10 (concurrent reads for the stats endpoints)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
