package presence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/presence"
	"folio/internal/testsupport"
)

func TestTouchSession(t *testing.T) {
	t.Run("creates the session on first touch", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanTables(db, "user_sessions")
		at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

		err := presence.TouchSession(db, logger, presence.SessionInput{
			SessionID: "s1",
			UserAgent: "Mozilla/5.0",
			PageView:  true,
			At:        at,
		})
		require.NoError(t, err)

		session, err := presence.GetSession(db, "s1")
		require.NoError(t, err)
		assert.Equal(t, 1, session.PageViews)
		assert.True(t, session.StartedAt.Equal(at))
		assert.True(t, session.LastActivity.Equal(at))
	})

	t.Run("refreshes last activity and keeps one row per session", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanTables(db, "user_sessions")
		start := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

		for i := 0; i < 3; i++ {
			require.NoError(t, presence.TouchSession(db, logger, presence.SessionInput{
				SessionID: "s1",
				PageView:  i != 1,
				At:        start.Add(time.Duration(i) * time.Minute),
			}))
		}

		var count int64
		require.NoError(t, db.Model(&presence.Session{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)

		session, err := presence.GetSession(db, "s1")
		require.NoError(t, err)
		assert.Equal(t, 2, session.PageViews, "only page view touches increment the counter")
		assert.True(t, session.StartedAt.Equal(start), "start time is kept")
		assert.True(t, session.LastActivity.Equal(start.Add(2*time.Minute)))
	})

	t.Run("keeps a known user id when a later touch has none", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanTables(db, "user_sessions")

		require.NoError(t, presence.TouchSession(db, logger, presence.SessionInput{SessionID: "s1", UserID: "u1"}))
		require.NoError(t, presence.TouchSession(db, logger, presence.SessionInput{SessionID: "s1"}))

		session, err := presence.GetSession(db, "s1")
		require.NoError(t, err)
		assert.Equal(t, "u1", session.UserID)
	})

	t.Run("requires a session id", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		err := presence.TouchSession(dbManager.GetConnection(), logger, presence.SessionInput{})
		assert.Error(t, err)
	})

	t.Run("fails without a connection", func(t *testing.T) {
		err := presence.TouchSession(nil, testsupport.GetLogger(), presence.SessionInput{SessionID: "s1"})
		assert.Error(t, err)
	})
}

func TestRecordHeartbeat(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	reported := at.Add(-10 * time.Second)

	for i := 0; i < 2; i++ {
		require.NoError(t, presence.RecordHeartbeat(db, logger, presence.HeartbeatInput{
			SessionID:    "s1",
			UserAgent:    "Mozilla/5.0",
			LastActivity: reported,
			At:           at.Add(time.Duration(i) * 30 * time.Second),
		}))
	}

	var beats []presence.Heartbeat
	require.NoError(t, db.Order("timestamp").Find(&beats).Error)
	require.Len(t, beats, 2, "heartbeats are append-only")
	assert.True(t, beats[0].LastActivity.Equal(reported))

	session, err := presence.GetSession(db, "s1")
	require.NoError(t, err)
	assert.True(t, session.LastActivity.Equal(at.Add(30*time.Second)), "server time drives session activity")
	assert.Equal(t, 0, session.PageViews)
}

func TestActivitySince(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("sessions source", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanTables(db, "user_sessions")

		testsupport.CreateSession(t, db, "recent", now.Add(-time.Minute))
		testsupport.CreateSession(t, db, "stale", now.Add(-time.Hour))

		rows, err := presence.ActivitySince(db, presence.SourceSessions, now.Add(-5*time.Minute))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "recent", rows[0].SessionID)
		assert.True(t, rows[0].LastActivity.Equal(now.Add(-time.Minute)))
	})

	t.Run("heartbeats source", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanTables(db, "heartbeat_logs")

		testsupport.CreateHeartbeat(t, db, "a", now.Add(-4*time.Minute))
		testsupport.CreateHeartbeat(t, db, "a", now.Add(-time.Minute))
		testsupport.CreateHeartbeat(t, db, "b", now.Add(-20*time.Minute))

		rows, err := presence.ActivitySince(db, presence.SourceHeartbeats, now.Add(-5*time.Minute))
		require.NoError(t, err)
		assert.Len(t, rows, 2, "one row per heartbeat inside the window")
		for _, row := range rows {
			assert.Equal(t, "a", row.SessionID)
		}
	})
}

func TestPrune(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	now := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)

	testsupport.CreateSession(t, db, "old", now.Add(-48*time.Hour))
	testsupport.CreateSession(t, db, "new", now.Add(-time.Hour))
	testsupport.CreateHeartbeat(t, db, "old", now.Add(-48*time.Hour))
	testsupport.CreateHeartbeat(t, db, "new", now.Add(-time.Hour))

	cutoff := now.Add(-24 * time.Hour)

	deleted, err := presence.PruneHeartbeats(db, logger, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = presence.PruneSessions(db, logger, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = presence.GetSession(db, "old")
	assert.Error(t, err)
	_, err = presence.GetSession(db, "new")
	assert.NoError(t, err)
}

func TestParseSource(t *testing.T) {
	assert.Equal(t, presence.SourceHeartbeats, presence.ParseSource(" Heartbeats "))
	assert.Equal(t, presence.SourceSessions, presence.ParseSource("sessions"))
	assert.Equal(t, presence.SourceSessions, presence.ParseSource(""))
	assert.Equal(t, presence.SourceSessions, presence.ParseSource("bogus"))
}
