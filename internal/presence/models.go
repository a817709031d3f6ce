package presence

import "time"

// Session is the single row per browser session. It is upserted on every
// page view and heartbeat and is the authority for who is online.
type Session struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	SessionID    string    `gorm:"uniqueIndex;size:128;not null"`
	UserID       string    `gorm:"index;size:128"`
	UserAgent    string
	PageViews    int       `gorm:"not null;default:0"`
	StartedAt    time.Time `gorm:"not null"`
	LastActivity time.Time `gorm:"index;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName keeps the session table apart from any HTTP session storage.
func (Session) TableName() string {
	return "user_sessions"
}

// Heartbeat is an append-only liveness ping. LastActivity is what the
// client reported, Timestamp is when the server received it.
type Heartbeat struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	SessionID    string    `gorm:"index;size:128;not null"`
	UserID       string    `gorm:"size:128"`
	UserAgent    string
	LastActivity time.Time
	Timestamp    time.Time `gorm:"index;not null"`
}

// TableName returns the heartbeat log table name.
func (Heartbeat) TableName() string {
	return "heartbeat_logs"
}
