package seeder_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/analytics"
	"folio/internal/events"
	"folio/internal/presence"
	"folio/internal/seeder"
	"folio/internal/testsupport"
)

func TestMain(m *testing.M) {
	testsupport.RunTests(m)
}

func TestSeederRun(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanTables(db, "page_views", "user_actions", "user_sessions", "heartbeat_logs")

	res, err := seeder.NewSeeder(dbManager, logger, 12, 7, 42).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12, res.Sessions)
	assert.GreaterOrEqual(t, res.PageViews, 12)
	assert.Equal(t, 12, res.Heartbeats)

	var views int64
	require.NoError(t, db.Model(&events.PageView{}).Count(&views).Error)
	assert.Equal(t, int64(res.PageViews), views)

	var sessions int64
	require.NoError(t, db.Model(&presence.Session{}).Count(&sessions).Error)
	assert.Equal(t, int64(12), sessions)

	svc := analytics.NewService(dbManager, logger, analytics.Options{})
	assert.GreaterOrEqual(t, svc.RealTime(context.Background()).OnlineUsers, 3, "recent sessions are online")
	assert.Equal(t, 12, svc.Historical(context.Background(), 7).UniqueSessions)
}

func TestSeederWithoutDatabase(t *testing.T) {
	_, err := seeder.NewSeeder(testsupport.UnavailableDB{}, testsupport.GetLogger(), 1, 1, 1).Run(context.Background())
	assert.Error(t, err)
}
