// Package analytics computes visitor statistics from the event store and the
// session tracker.
//
// The package is organized into focused files:
//   - analytics.go: result types and safe defaults
//   - aggregate.go: pure counting functions over raw rows
//   - countries.go: country display names
//   - display.go: presentation-only adjustments (floor at one)
//   - service.go: store-backed reads and writes behind a circuit breaker
package analytics

import (
	"errors"
	"fmt"
	"time"

	"folio/internal/timeframe"
)

// ErrStoreUnavailable is returned when no database connection is configured
// or the store circuit breaker is open.
var ErrStoreUnavailable = errors.New("analytics: store unavailable")

// TopPagesLimit is how many pages ranked lists keep.
const TopPagesLimit = 10

// RealTimeStats is the live readout: online sessions, distinct sessions
// seen today and distinct sessions ever.
type RealTimeStats struct {
	OnlineUsers int       `json:"onlineUsers"`
	TotalViews  int       `json:"totalViews"`
	TodayViews  int       `json:"todayViews"`
	Timestamp   time.Time `json:"timestamp"`
}

// DailyStat is the number of page view rows on one calendar day.
type DailyStat struct {
	Date  string `json:"date"`
	Views int    `json:"views"`
}

// HistoricalStats summarizes page views over a trailing window of days.
// TotalViews counts rows while UniqueSessions counts distinct sessions.
type HistoricalStats struct {
	TotalViews     int            `json:"totalViews"`
	UniqueUsers    int            `json:"uniqueUsers"`
	UniqueSessions int            `json:"uniqueSessions"`
	TopPages       map[string]int `json:"topPages"`
	DailyStats     []DailyStat    `json:"dailyStats"`
	Period         string         `json:"period"`
}

// PageCount is a ranked page entry.
type PageCount struct {
	Page  string `json:"page"`
	Views int    `json:"views"`
}

// NamedCount is a generic ranked entry.
type NamedCount struct {
	Name  string `json:"name"`
	Code  string `json:"code,omitempty"`
	Count int    `json:"count"`
}

// PageStats is the per-page (or site-wide) breakdown.
type PageStats struct {
	Page           string       `json:"page,omitempty"`
	Days           int          `json:"days"`
	TotalViews     int          `json:"totalViews"`
	UniqueSessions int          `json:"uniqueSessions"`
	UniqueUsers    int          `json:"uniqueUsers"`
	UniqueVisitors int          `json:"uniqueVisitors"`
	TopPages       []PageCount  `json:"topPages"`
	TopCountries   []NamedCount `json:"topCountries"`
	TopReferrers   []NamedCount `json:"topReferrers"`
}

// DefaultRealTimeStats is what readers get when the store cannot answer.
func DefaultRealTimeStats(now time.Time) RealTimeStats {
	return RealTimeStats{OnlineUsers: 1, TotalViews: 1, TodayViews: 1, Timestamp: now}
}

// EmptyHistoricalStats is a zeroed result with a zero-filled daily series.
func EmptyHistoricalStats(days int, now time.Time, loc *time.Location) HistoricalStats {
	return HistoricalStats{
		TopPages:   map[string]int{},
		DailyStats: EmptyDailyStats(days, now, loc),
		Period:     PeriodLabel(days),
	}
}

// EmptyDailyStats returns days zero-view entries, oldest first.
func EmptyDailyStats(days int, now time.Time, loc *time.Location) []DailyStat {
	trailing := timeframe.TrailingDays(now, days, loc)
	out := make([]DailyStat, len(trailing))
	for i, d := range trailing {
		out[i] = DailyStat{Date: d.Key}
	}
	return out
}

// EmptyPageStats is a zeroed page breakdown.
func EmptyPageStats(page string, days int) PageStats {
	return PageStats{
		Page:         page,
		Days:         days,
		TopPages:     []PageCount{},
		TopCountries: []NamedCount{},
		TopReferrers: []NamedCount{},
	}
}

// PeriodLabel renders a window length, e.g. "7 days" or "1 day".
func PeriodLabel(days int) string {
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
