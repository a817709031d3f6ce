package beacon_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/beacon"
)

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store := beacon.NewFileStore(filepath.Join(t.TempDir(), "none", "beacon.yml"))

	state, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, state.SessionID)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "beacon.yml")
	store := beacon.NewFileStore(path)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(beacon.State{
		SessionID:    "session_1709294400000_abc123def",
		UserID:       "u1",
		LastActivity: at,
		Pending: []beacon.QueuedAction{
			{Action: "click", SessionID: "session_1709294400000_abc123def", Data: map[string]any{"target": "cv"}, Timestamp: at},
		},
	}))

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "session_1709294400000_abc123def", state.SessionID)
	assert.Equal(t, "u1", state.UserID)
	assert.True(t, at.Equal(state.LastActivity))
	require.Len(t, state.Pending, 1)
	assert.Equal(t, "cv", state.Pending[0].Data["target"])
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.yml")
	require.NoError(t, os.WriteFile(path, []byte("session_id: [unterminated"), 0o600))

	_, err := beacon.NewFileStore(path).Load()
	assert.Error(t, err)
}

func TestMemoryStoreCopiesPending(t *testing.T) {
	store := beacon.NewMemoryStore()
	pending := []beacon.QueuedAction{{Action: "click"}}
	require.NoError(t, store.Save(beacon.State{Pending: pending}))

	pending[0].Action = "mutated"
	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "click", state.Pending[0].Action)
}
