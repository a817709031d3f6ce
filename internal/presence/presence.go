package presence

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"folio/internal/visitors"
)

// ErrInvalidSession is returned for a missing or malformed session id.
var ErrInvalidSession = errors.New("presence: invalid session id")

// Source selects which table answers "who is online".
type Source string

const (
	SourceSessions   Source = "sessions"
	SourceHeartbeats Source = "heartbeats"
)

// ParseSource maps a config value to a Source, defaulting to sessions.
func ParseSource(value string) Source {
	if Source(strings.ToLower(strings.TrimSpace(value))) == SourceHeartbeats {
		return SourceHeartbeats
	}
	return SourceSessions
}

// SessionInput describes one touch of a session.
type SessionInput struct {
	SessionID string
	UserID    string
	UserAgent string
	// PageView increments the session's page view counter.
	PageView bool
	At       time.Time
}

// HeartbeatInput describes one liveness ping.
type HeartbeatInput struct {
	SessionID    string
	UserID       string
	UserAgent    string
	LastActivity time.Time
	At           time.Time
}

// Activity is the most recent activity of a session as seen by one source.
type Activity struct {
	SessionID    string
	LastActivity time.Time
}

const upsertSessionSQL = `
	INSERT INTO user_sessions (session_id, user_id, user_agent, page_views, started_at, last_activity, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		user_id = CASE WHEN excluded.user_id <> '' THEN excluded.user_id ELSE user_sessions.user_id END,
		user_agent = CASE WHEN excluded.user_agent <> '' THEN excluded.user_agent ELSE user_sessions.user_agent END,
		page_views = user_sessions.page_views + excluded.page_views,
		last_activity = excluded.last_activity,
		updated_at = excluded.updated_at
`

// TouchSession inserts the session or refreshes its last activity.
// Concurrent writers are not coordinated; the last write wins.
func TouchSession(db *gorm.DB, logger *slog.Logger, input SessionInput) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}
	if !visitors.IsValidSessionID(input.SessionID) {
		return ErrInvalidSession
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return upsertSession(tx, input)
	})
	if err != nil {
		logger.Error("Failed to upsert session",
			slog.String("session_id", input.SessionID),
			slog.Any("error", err))
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// RecordHeartbeat refreshes the session and appends a heartbeat row in one write.
func RecordHeartbeat(db *gorm.DB, logger *slog.Logger, input HeartbeatInput) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}
	if !visitors.IsValidSessionID(input.SessionID) {
		return ErrInvalidSession
	}

	at := nowOr(input.At)
	lastActivity := input.LastActivity
	if lastActivity.IsZero() {
		lastActivity = at
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := upsertSession(tx, SessionInput{
			SessionID: input.SessionID,
			UserID:    input.UserID,
			UserAgent: input.UserAgent,
			At:        at,
		}); err != nil {
			return err
		}
		return tx.Create(&Heartbeat{
			SessionID:    input.SessionID,
			UserID:       input.UserID,
			UserAgent:    input.UserAgent,
			LastActivity: lastActivity.UTC(),
			Timestamp:    at,
		}).Error
	})
	if err != nil {
		logger.Error("Failed to record heartbeat",
			slog.String("session_id", input.SessionID),
			slog.Any("error", err))
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

func upsertSession(tx *gorm.DB, input SessionInput) error {
	at := nowOr(input.At)
	pageViews := 0
	if input.PageView {
		pageViews = 1
	}
	return tx.Exec(upsertSessionSQL,
		input.SessionID, strings.TrimSpace(input.UserID), input.UserAgent,
		pageViews, at, at, at, at,
	).Error
}

// ActivitySince returns activity rows at or after cutoff for the given source.
// Heartbeat rows use the server receive time so client clocks cannot skew presence.
func ActivitySince(db *gorm.DB, source Source, cutoff time.Time) ([]Activity, error) {
	if db == nil {
		return nil, gorm.ErrInvalidDB
	}

	switch source {
	case SourceHeartbeats:
		var beats []Heartbeat
		if err := db.Select("session_id", "timestamp").
			Where("timestamp >= ?", cutoff.UTC()).
			Find(&beats).Error; err != nil {
			return nil, err
		}
		rows := make([]Activity, 0, len(beats))
		for _, b := range beats {
			rows = append(rows, Activity{SessionID: b.SessionID, LastActivity: b.Timestamp})
		}
		return rows, nil
	default:
		var sessions []Session
		if err := db.Select("session_id", "last_activity").
			Where("last_activity >= ?", cutoff.UTC()).
			Find(&sessions).Error; err != nil {
			return nil, err
		}
		rows := make([]Activity, 0, len(sessions))
		for _, s := range sessions {
			rows = append(rows, Activity{SessionID: s.SessionID, LastActivity: s.LastActivity})
		}
		return rows, nil
	}
}

// GetSession loads a session by its id.
func GetSession(db *gorm.DB, sessionID string) (*Session, error) {
	var session Session
	if err := db.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// PruneHeartbeats deletes heartbeat rows received before cutoff.
func PruneHeartbeats(db *gorm.DB, logger *slog.Logger, cutoff time.Time) (int64, error) {
	var deleted int64
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Where("timestamp < ?", cutoff.UTC()).Delete(&Heartbeat{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

// PruneSessions deletes sessions idle since before cutoff. A pruned session
// that comes back is simply recreated by its next touch.
func PruneSessions(db *gorm.DB, logger *slog.Logger, cutoff time.Time) (int64, error) {
	var deleted int64
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Where("last_activity < ?", cutoff.UTC()).Delete(&Session{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
