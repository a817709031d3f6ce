package jobs

import (
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"folio/internal/config"
	"folio/internal/events"
	"folio/internal/metrics"
	"folio/internal/presence"
)

const cleanupBatchSize = 1000

// CleanupJob removes page views and user actions past the retention period.
type CleanupJob struct {
	dbManager events.Connector
	logger    *slog.Logger
	cfg       *config.Config
	now       func() time.Time
}

func NewCleanupJob(dbManager events.Connector, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (j *CleanupJob) Name() string { return "cleanup" }

// Run deletes old events in batches. A retention of zero or less keeps
// everything.
func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.EventsRetentionDays
	if retentionDays <= 0 {
		j.logger.Debug("Event retention disabled, skipping cleanup")
		return nil
	}

	db := j.dbManager.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}
	cutoffDate := j.now().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting cleanup of old analytics events",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoffDate))

	views, viewsErr := events.DeletePageViewsOlderThan(db, j.logger, cutoffDate, cleanupBatchSize)
	metrics.RecordPruned("page_views", views)

	actions, actionsErr := events.DeleteUserActionsOlderThan(db, j.logger, cutoffDate, cleanupBatchSize)
	metrics.RecordPruned("user_actions", actions)

	if err := errors.Join(viewsErr, actionsErr); err != nil {
		return err
	}

	j.logger.Info("Cleaned up old analytics events",
		slog.Int64("page_views", views),
		slog.Int64("user_actions", actions))
	return nil
}

// PresencePruneJob trims the heartbeat log and forgets idle sessions.
type PresencePruneJob struct {
	dbManager events.Connector
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time
}

func NewPresencePruneJob(dbManager events.Connector, logger *slog.Logger, cfg *config.Config) *PresencePruneJob {
	return &PresencePruneJob{
		dbManager: dbManager,
		logger:    logger,
		retention: cfg.HeartbeatRetention(),
		now:       time.Now,
	}
}

func (j *PresencePruneJob) Name() string { return "presence_prune" }

func (j *PresencePruneJob) Run() error {
	if j.retention <= 0 {
		return nil
	}

	db := j.dbManager.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}
	cutoff := j.now().Add(-j.retention)

	heartbeats, hbErr := presence.PruneHeartbeats(db, j.logger, cutoff)
	metrics.RecordPruned("heartbeat_logs", heartbeats)

	sessions, sessErr := presence.PruneSessions(db, j.logger, cutoff)
	metrics.RecordPruned("user_sessions", sessions)

	if err := errors.Join(hbErr, sessErr); err != nil {
		return err
	}

	if heartbeats > 0 || sessions > 0 {
		j.logger.Debug("Pruned presence data",
			slog.Int64("heartbeats", heartbeats),
			slog.Int64("sessions", sessions))
	}
	return nil
}
