package events

import (
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// pageViewStatColumns are the columns the aggregations need.
var pageViewStatColumns = []string{"session_id", "user_id", "page", "country", "referrer", "visitor_signature", "timestamp"}

// PageViewsSince returns page views with timestamp >= from.
func PageViewsSince(db *gorm.DB, from time.Time) ([]PageView, error) {
	var rows []PageView
	err := db.Model(&PageView{}).
		Select(pageViewStatColumns).
		Where("timestamp >= ?", from.UTC()).
		Find(&rows).Error
	return rows, err
}

// PageViewsBetween returns page views with from <= timestamp < to.
func PageViewsBetween(db *gorm.DB, from, to time.Time) ([]PageView, error) {
	var rows []PageView
	err := db.Model(&PageView{}).
		Select(pageViewStatColumns).
		Where("timestamp >= ? AND timestamp < ?", from.UTC(), to.UTC()).
		Find(&rows).Error
	return rows, err
}

// PageViewsForPage returns page views since from, restricted to page when it is non-empty.
func PageViewsForPage(db *gorm.DB, page string, from time.Time) ([]PageView, error) {
	query := db.Model(&PageView{}).
		Select(pageViewStatColumns).
		Where("timestamp >= ?", from.UTC())
	if page != "" {
		query = query.Where("page = ?", page)
	}

	var rows []PageView
	err := query.Find(&rows).Error
	return rows, err
}

// CountDistinctSessions counts distinct session ids across all page views.
func CountDistinctSessions(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&PageView{}).
		Distinct("session_id").
		Count(&count).Error
	return count, err
}

// SessionIDsSince returns the session id of every page view with timestamp >= from.
// Duplicates are kept; callers decide how to count.
func SessionIDsSince(db *gorm.DB, from time.Time) ([]string, error) {
	var ids []string
	err := db.Model(&PageView{}).
		Where("timestamp >= ?", from.UTC()).
		Pluck("session_id", &ids).Error
	return ids, err
}

// ActionsSince returns user actions with timestamp >= from, newest first.
func ActionsSince(db *gorm.DB, from time.Time, limit int) ([]UserAction, error) {
	var rows []UserAction
	query := db.Where("timestamp >= ?", from.UTC()).Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

// DeletePageViewsOlderThan removes page views older than cutoff in batches.
func DeletePageViewsOlderThan(db *gorm.DB, logger *slog.Logger, cutoff time.Time, batchSize int) (int64, error) {
	return deleteOlderThan(db, logger, "page_views", cutoff, batchSize)
}

// DeleteUserActionsOlderThan removes user actions older than cutoff in batches.
func DeleteUserActionsOlderThan(db *gorm.DB, logger *slog.Logger, cutoff time.Time, batchSize int) (int64, error) {
	return deleteOlderThan(db, logger, "user_actions", cutoff, batchSize)
}

// deleteOlderThan deletes in batches to avoid locking the database for too long.
// SQLite builds without DELETE ... LIMIT support, so each batch is selected by id.
func deleteOlderThan(db *gorm.DB, logger *slog.Logger, table string, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	totalDeleted := int64(0)
	for {
		result := db.Exec(
			"DELETE FROM "+table+" WHERE id IN (SELECT id FROM "+table+" WHERE timestamp < ? LIMIT ?)",
			cutoff.UTC(), batchSize,
		)
		if result.Error != nil {
			logger.Error("Failed to delete old rows",
				slog.String("table", table),
				slog.Any("error", result.Error),
				slog.Int64("deleted_so_far", totalDeleted))
			return totalDeleted, result.Error
		}

		totalDeleted += result.RowsAffected
		if result.RowsAffected < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}
