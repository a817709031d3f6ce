package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"folio/internal"
	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/events"
	"folio/internal/presence"
	"folio/internal/settings"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with folio's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// UnavailableDB stands in for a store that was never configured.
type UnavailableDB = database.Unavailable

// allModels returns all folio models for migration
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&events.PageView{},
		&events.UserAction{},
		&presence.Session{},
		&presence.Heartbeat{},
		&settings.Setting{},
	}
}

// SetupTestDB creates a test database with all folio models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// RunTests forces the test environment before any configuration is read and
// runs the package's tests. Call it from TestMain.
func RunTests(m *testing.M) {
	if os.Getenv("FOLIO_ENV") == "" {
		os.Setenv("FOLIO_ENV", config.Test)
	}
	config.Reset()
	os.Exit(m.Run())
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set FOLIO_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// SetupBrokenDBManager returns a manager whose connection has been closed,
// so every query fails the way a lost database would.
func SetupBrokenDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()

	dsn := fmt.Sprintf("file:broken_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	return NewTestDBManager(db), GetLogger()
}

// CleanTables clears the given tables
func CleanTables(db *gorm.DB, tables ...string) {
	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreatePageView inserts a page view row directly
func CreatePageView(t *testing.T, db *gorm.DB, sessionID, page string, timestamp time.Time) *events.PageView {
	t.Helper()
	pv := &events.PageView{
		Page:      page,
		URL:       "https://folio.dev" + page,
		UserAgent: "Mozilla/5.0 Test Browser",
		SessionID: sessionID,
		Timestamp: timestamp.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(pv).Error)
	return pv
}

// CreateUserPageView inserts a page view for a signed-in user
func CreateUserPageView(t *testing.T, db *gorm.DB, sessionID, userID, page string, timestamp time.Time) *events.PageView {
	t.Helper()
	pv := &events.PageView{
		Page:      page,
		SessionID: sessionID,
		UserID:    userID,
		UserAgent: "Mozilla/5.0 Test Browser",
		Timestamp: timestamp.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(pv).Error)
	return pv
}

// CreateSession inserts or refreshes a session with the given last activity
func CreateSession(t *testing.T, db *gorm.DB, sessionID string, lastActivity time.Time) {
	t.Helper()
	require.NoError(t, presence.TouchSession(db, GetLogger(), presence.SessionInput{
		SessionID: sessionID,
		UserAgent: "Mozilla/5.0 Test Browser",
		At:        lastActivity,
	}))
}

// CreateHeartbeat appends a heartbeat received at the given time
func CreateHeartbeat(t *testing.T, db *gorm.DB, sessionID string, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&presence.Heartbeat{
		SessionID:    sessionID,
		LastActivity: at.UTC(),
		Timestamp:    at.UTC(),
	}).Error)
}

// CreateMinimalTestApp creates a test Fiber app with all routes
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	// Ingestion comes from browsers on other origins and from server-side tools
	cfg.EnableSecFetchSite = false

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
