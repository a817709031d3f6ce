package internal

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/config"
	"folio/internal/visitors"
)

func TestAppStartsWithoutDatabase(t *testing.T) {
	// A regular file where the database directory should be makes the open fail.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	cfg := *config.GetConfig()
	cfg.DatabaseName = filepath.Join(blocker, "folio.db")

	global := config.GetConfig()
	previous := global.DisplayFloor
	global.DisplayFloor = true
	t.Cleanup(func() { global.DisplayFloor = previous })

	app, err := NewAppWithRoutes(&cfg, MountAppRoutes)
	require.NoError(t, err)
	assert.False(t, app.StoreAvailable())
	assert.Nil(t, app.Jobs)
	assert.Nil(t, app.Store().GetConnection())

	send := func(method, path, body string) (int, map[string]any) {
		t.Helper()
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Sec-Fetch-Site", "same-origin")
		resp, err := app.Server.App().Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var decoded map[string]any
		if len(data) > 0 {
			require.NoError(t, json.Unmarshal(data, &decoded), string(data))
		}
		return resp.StatusCode, decoded
	}

	t.Run("reads serve defaults", func(t *testing.T) {
		status, body := send(http.MethodGet, "/analytics/realtime", "")
		require.Equal(t, http.StatusOK, status)
		assert.EqualValues(t, 1, body["onlineUsers"])
		assert.EqualValues(t, 1, body["totalViews"])
		assert.EqualValues(t, 1, body["todayViews"])
	})

	t.Run("writes are skipped", func(t *testing.T) {
		status, body := send(http.MethodPost, "/analytics", `{"page":"/","sessionId":"`+visitors.NewSessionID()+`"}`)
		require.Equal(t, http.StatusAccepted, status)
		assert.Equal(t, true, body["skipped"])
	})

	t.Run("health reports the missing store", func(t *testing.T) {
		status, body := send(http.MethodGet, "/_health", "")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "unavailable", body["db_status"])
	})
}

func TestAppWithDatabase(t *testing.T) {
	cfg := *config.GetConfig()
	cfg.DatabaseName = filepath.Join(t.TempDir(), "folio.db")

	app, err := NewAppWithRoutes(&cfg, MountAppRoutes)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.DBManager.Close() })

	assert.True(t, app.StoreAvailable())
	assert.NotNil(t, app.Jobs)
	require.NoError(t, app.DBManager.MigrateDatabase())
	assert.NotNil(t, app.Store().GetConnection())
}
