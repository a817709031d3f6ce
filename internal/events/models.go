package events

import "time"

// PageView is a single navigation recorded by the client beacon.
// Rows are immutable and only removed by the retention cleanup.
type PageView struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Page             string    `gorm:"index;not null" json:"page"`
	URL              string    `json:"url"`
	Hostname         string    `gorm:"index" json:"-"`
	UserAgent        string    `json:"userAgent"`
	Referrer         string    `json:"referrer"`
	ReferrerHostname string    `gorm:"index" json:"-"`
	SessionID        string    `gorm:"index;size:128;not null" json:"sessionId"`
	UserID           string    `gorm:"index;size:128" json:"userId,omitempty"`
	VisitorSignature string    `gorm:"index;size:64" json:"-"`
	Country          string    `gorm:"size:2" json:"country,omitempty"`
	ScreenSize       string    `json:"screenSize,omitempty"`
	ViewportSize     string    `json:"viewportSize,omitempty"`
	Language         string    `json:"language,omitempty"`
	Timezone         string    `json:"timezone,omitempty"`
	Timestamp        time.Time `gorm:"index;not null" json:"timestamp"`
	CreatedAt        time.Time `json:"-"`
}

// UserAction is a free-form interaction tag (click, scroll, form_submit,
// time_on_page) with an opaque JSON payload stored as text.
type UserAction struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Action    string    `gorm:"index;not null" json:"action"`
	Page      string    `gorm:"index" json:"page"`
	SessionID string    `gorm:"index;size:128;not null" json:"sessionId"`
	UserID    string    `gorm:"index;size:128" json:"userId,omitempty"`
	Data      string    `gorm:"type:text" json:"-"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	CreatedAt time.Time `json:"-"`
}
