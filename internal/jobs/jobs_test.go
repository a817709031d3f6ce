package jobs_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/config"
	"folio/internal/events"
	"folio/internal/jobs"
	"folio/internal/presence"
	"folio/internal/testsupport"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	block chan struct{}
	fail  bool
	panic bool
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	if j.block != nil {
		<-j.block
	}
	if j.panic {
		panic("boom")
	}
	if j.fail {
		return errors.New("job failed")
	}
	return nil
}

func TestCleanupJob(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanTables(db, "page_views", "user_actions")

	now := time.Now()
	testsupport.CreatePageView(t, db, "old", "/", now.AddDate(0, 0, -200))
	testsupport.CreatePageView(t, db, "fresh", "/", now.Add(-time.Hour))
	require.NoError(t, db.Create(&events.UserAction{
		Action: "click", SessionID: "old", Data: "{}", Timestamp: now.AddDate(0, 0, -200).UTC(),
	}).Error)

	cfg := *config.GetConfig()
	cfg.EventsRetentionDays = 90

	require.NoError(t, jobs.NewCleanupJob(dbManager, logger, &cfg).Run())

	var remaining []events.PageView
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "fresh", remaining[0].SessionID)

	var actions int64
	require.NoError(t, db.Model(&events.UserAction{}).Count(&actions).Error)
	assert.Zero(t, actions)

	t.Run("zero retention keeps everything", func(t *testing.T) {
		cfg.EventsRetentionDays = 0
		require.NoError(t, jobs.NewCleanupJob(dbManager, logger, &cfg).Run())

		var count int64
		require.NoError(t, db.Model(&events.PageView{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}

func TestPresencePruneJob(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanTables(db, "heartbeat_logs", "user_sessions")

	now := time.Now()
	testsupport.CreateSession(t, db, "idle", now.Add(-48*time.Hour))
	testsupport.CreateSession(t, db, "active", now.Add(-time.Minute))
	testsupport.CreateHeartbeat(t, db, "idle", now.Add(-48*time.Hour))
	testsupport.CreateHeartbeat(t, db, "active", now.Add(-time.Minute))

	cfg := *config.GetConfig()
	cfg.HeartbeatRetentionHours = 24

	require.NoError(t, jobs.NewPresencePruneJob(dbManager, logger, &cfg).Run())

	var sessions []presence.Session
	require.NoError(t, db.Find(&sessions).Error)
	require.Len(t, sessions, 1)
	assert.Equal(t, "active", sessions[0].SessionID)

	var heartbeats int64
	require.NoError(t, db.Model(&presence.Heartbeat{}).Count(&heartbeats).Error)
	assert.Equal(t, int64(1), heartbeats)
}

func TestJobsWithoutDatabase(t *testing.T) {
	cfg := *config.GetConfig()
	cfg.EventsRetentionDays = 30
	cfg.HeartbeatRetentionHours = 1
	logger := testsupport.GetLogger()

	assert.Error(t, jobs.NewCleanupJob(testsupport.UnavailableDB{}, logger, &cfg).Run())
	assert.Error(t, jobs.NewPresencePruneJob(testsupport.UnavailableDB{}, logger, &cfg).Run())
}

func TestGeoReloadJob(t *testing.T) {
	logger := testsupport.GetLogger()

	t.Run("missing file is not an error", func(t *testing.T) {
		job := jobs.NewGeoReloadJob(filepath.Join(t.TempDir(), "missing.mmdb"), logger)
		assert.NoError(t, job.Run())
	})

	t.Run("unchanged file is left alone", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "country.mmdb")
		require.NoError(t, os.WriteFile(path, []byte("not a database"), 0o644))

		job := jobs.NewGeoReloadJob(path, logger)
		assert.NoError(t, job.Run())
	})
}

func TestScheduler(t *testing.T) {
	logger := testsupport.GetLogger()

	t.Run("runs jobs immediately and on every tick", func(t *testing.T) {
		s, err := jobs.NewScheduler(testsupport.UnavailableDB{}, logger)
		require.NoError(t, err)

		job := &countingJob{name: "counter"}
		s.Every(20*time.Millisecond, job)

		require.NoError(t, s.Start())
		assert.True(t, s.IsRunning())

		assert.Eventually(t, func() bool { return job.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

		s.Stop()
		assert.False(t, s.IsRunning())
	})

	t.Run("skips overlapping runs and survives panics", func(t *testing.T) {
		s, err := jobs.NewScheduler(testsupport.UnavailableDB{}, logger)
		require.NoError(t, err)

		slow := &countingJob{name: "slow", block: make(chan struct{})}
		panicky := &countingJob{name: "panicky", panic: true}
		s.Every(5*time.Millisecond, slow)
		s.Every(5*time.Millisecond, panicky)

		require.NoError(t, s.Start())
		assert.Eventually(t, func() bool { return panicky.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)

		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, int32(1), slow.runs.Load(), "a running job is not started again")

		close(slow.block)
		s.Stop()
	})

	t.Run("run now", func(t *testing.T) {
		s, err := jobs.NewScheduler(testsupport.UnavailableDB{}, logger)
		require.NoError(t, err)

		failing := &countingJob{name: "failing", fail: true}
		s.Every(time.Hour, failing)

		assert.Error(t, s.RunNow("failing"))
		assert.Equal(t, int32(1), failing.runs.Load())
		assert.Error(t, s.RunNow("nope"))
	})
}
