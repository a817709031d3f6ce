package events_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/events"
	"folio/internal/settings"
	"folio/internal/testsupport"
)

func TestRecordPageView(t *testing.T) {
	t.Run("stores a page view with normalized fields", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		testsupport.CleanTables(dbManager.GetConnection(), "page_views")

		pv, err := events.RecordPageView(dbManager, logger, &events.PageViewInput{
			URL:        "https://Folio.dev/blog/go-generics?ref=hn",
			Referrer:   "https://news.ycombinator.com/item?id=1",
			SessionID:  "k3j9x0a1",
			UserID:     " user-7 ",
			ScreenSize: "1920x1080",
			Language:   "en-US",
			Timezone:   "Europe/Madrid",
			IPAddress:  "203.0.113.9",
		})
		require.NoError(t, err)
		require.NotZero(t, pv.ID)

		assert.Equal(t, "/blog/go-generics", pv.Page, "page falls back to the URL path")
		assert.Equal(t, "folio.dev", pv.Hostname)
		assert.Equal(t, "news.ycombinator.com", pv.ReferrerHostname)
		assert.Equal(t, "user-7", pv.UserID)
		assert.Equal(t, events.DefaultUserAgent, pv.UserAgent)
		assert.Len(t, pv.VisitorSignature, 64)
		assert.NotContains(t, pv.VisitorSignature, "203.0.113.9")
		assert.False(t, pv.Timestamp.IsZero())

		var stored events.PageView
		require.NoError(t, dbManager.GetConnection().First(&stored, pv.ID).Error)
		assert.Equal(t, "1920x1080", stored.ScreenSize)
		assert.Equal(t, "Europe/Madrid", stored.Timezone)
	})

	t.Run("explicit page wins over the URL path", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)

		pv, err := events.RecordPageView(dbManager, logger, &events.PageViewInput{
			Page:      "/resume",
			URL:       "https://folio.dev/resume.html",
			SessionID: "s1",
		})
		require.NoError(t, err)
		assert.Equal(t, "/resume", pv.Page)
	})

	t.Run("rejects input without page or url", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)

		_, err := events.RecordPageView(dbManager, logger, &events.PageViewInput{SessionID: "s1"})
		assert.Error(t, err)
	})

	t.Run("rejects malformed session ids", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)

		_, err := events.RecordPageView(dbManager, logger, &events.PageViewInput{Page: "/", SessionID: "bad id"})
		assert.Error(t, err)
	})

	t.Run("skips excluded addresses", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanTables(db, "page_views")
		require.NoError(t, settings.SetupDefaultSettings(db))
		require.NoError(t, settings.UpdateExcludedIPs(db, []string{"198.51.100.1"}))
		t.Cleanup(func() { settings.UpdateExcludedIPs(db, nil) })

		_, err := events.RecordPageView(dbManager, logger, &events.PageViewInput{
			Page:      "/",
			SessionID: "owner",
			IPAddress: "198.51.100.1",
		})
		assert.True(t, errors.Is(err, events.ErrExcluded))

		var count int64
		require.NoError(t, db.Model(&events.PageView{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("fails without a connection", func(t *testing.T) {
		_, err := events.RecordPageView(testsupport.UnavailableDB{}, testsupport.GetLogger(), &events.PageViewInput{
			Page:      "/",
			SessionID: "s1",
		})
		assert.Error(t, err)
	})
}

func TestRecordUserAction(t *testing.T) {
	t.Run("stores the payload as JSON text", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)

		action, err := events.RecordUserAction(dbManager, logger, &events.UserActionInput{
			Action:    "scroll",
			Page:      "/blog",
			SessionID: "s1",
			Data:      json.RawMessage(`{"percent":50}`),
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"percent":50}`, action.Data)
	})

	t.Run("defaults a missing payload to an empty object", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)

		action, err := events.RecordUserAction(dbManager, logger, &events.UserActionInput{
			Action:    "click",
			SessionID: "s1",
		})
		require.NoError(t, err)
		assert.Equal(t, "{}", action.Data)
	})

	t.Run("rejects invalid payloads and empty actions", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)

		_, err := events.RecordUserAction(dbManager, logger, &events.UserActionInput{
			Action:    "click",
			SessionID: "s1",
			Data:      json.RawMessage(`{broken`),
		})
		assert.Error(t, err)

		_, err = events.RecordUserAction(dbManager, logger, &events.UserActionInput{
			Action:    "  ",
			SessionID: "s1",
		})
		assert.Error(t, err)
	})
}

func TestPageViewQueries(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	testsupport.CreatePageView(t, db, "s1", "/", now.Add(-48*time.Hour))
	testsupport.CreatePageView(t, db, "s1", "/blog", now.Add(-2*time.Hour))
	testsupport.CreatePageView(t, db, "s2", "/blog", now.Add(-time.Hour))
	testsupport.CreatePageView(t, db, "s2", "/", now.Add(-time.Minute))

	t.Run("since", func(t *testing.T) {
		rows, err := events.PageViewsSince(db, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("between is half open", func(t *testing.T) {
		rows, err := events.PageViewsBetween(db, now.Add(-2*time.Hour), now.Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "s1", rows[0].SessionID)
	})

	t.Run("for page", func(t *testing.T) {
		rows, err := events.PageViewsForPage(db, "/blog", now.Add(-72*time.Hour))
		require.NoError(t, err)
		assert.Len(t, rows, 2)

		all, err := events.PageViewsForPage(db, "", now.Add(-72*time.Hour))
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("distinct sessions", func(t *testing.T) {
		count, err := events.CountDistinctSessions(db)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("session ids keep duplicates", func(t *testing.T) {
		ids, err := events.SessionIDsSince(db, now.Add(-3*time.Hour))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"s1", "s2", "s2"}, ids)
	})
}

func TestDeleteOlderThan(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		testsupport.CreatePageView(t, db, "old", "/", now.AddDate(0, 0, -100).Add(time.Duration(i)*time.Minute))
	}
	testsupport.CreatePageView(t, db, "new", "/", now)
	_, err := events.RecordUserAction(dbManager, logger, &events.UserActionInput{
		Action:    "click",
		SessionID: "old",
		Timestamp: now.AddDate(0, 0, -100),
	})
	require.NoError(t, err)

	deleted, err := events.DeletePageViewsOlderThan(db, logger, now.AddDate(0, 0, -90), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted, "batches continue until the backlog is gone")

	deleted, err = events.DeleteUserActionsOlderThan(db, logger, now.AddDate(0, 0, -90), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, db.Model(&events.PageView{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}

func TestActionsSince(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	now := time.Now().UTC()

	for i, action := range []string{"click", "scroll_depth", "time_on_page"} {
		_, err := events.RecordUserAction(dbManager, logger, &events.UserActionInput{
			Action:    action,
			SessionID: "s1",
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	_, err := events.RecordUserAction(dbManager, logger, &events.UserActionInput{
		Action:    "stale",
		SessionID: "s1",
		Timestamp: now.AddDate(0, 0, -10),
	})
	require.NoError(t, err)

	rows, err := events.ActionsSince(db, now.AddDate(0, 0, -1), 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "click", rows[0].Action, "newest first")

	rows, err = events.ActionsSince(db, now.AddDate(0, 0, -1), 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
