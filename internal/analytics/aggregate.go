package analytics

import (
	"sort"
	"strings"
	"time"

	"folio/internal/events"
	"folio/internal/presence"
	"folio/internal/timeframe"
)

// CountOnline counts distinct sessions whose last activity is no older than
// window at now. The boundary is inclusive; activity stamped after now
// (client clock ahead) counts as online.
func CountOnline(activity []presence.Activity, now time.Time, window time.Duration) int {
	seen := make(map[string]struct{}, len(activity))
	for _, a := range activity {
		if a.SessionID == "" {
			continue
		}
		if now.Sub(a.LastActivity) <= window {
			seen[a.SessionID] = struct{}{}
		}
	}
	return len(seen)
}

// DistinctCount counts distinct non-empty values.
func DistinctCount(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// DistinctSessions counts distinct session ids among rows.
func DistinctSessions(rows []events.PageView) int {
	return distinctBy(rows, func(pv events.PageView) string { return pv.SessionID })
}

// DistinctUsers counts distinct non-empty user ids among rows.
func DistinctUsers(rows []events.PageView) int {
	return distinctBy(rows, func(pv events.PageView) string { return strings.TrimSpace(pv.UserID) })
}

// DistinctVisitors counts distinct visitor signatures among rows.
func DistinctVisitors(rows []events.PageView) int {
	return distinctBy(rows, func(pv events.PageView) string { return pv.VisitorSignature })
}

func distinctBy(rows []events.PageView, key func(events.PageView) string) int {
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if k := key(row); k != "" {
			seen[k] = struct{}{}
		}
	}
	return len(seen)
}

// TopPages is the page frequency table of rows. Its values sum to len(rows).
func TopPages(rows []events.PageView) map[string]int {
	counts := make(map[string]int)
	for _, row := range rows {
		counts[row.Page]++
	}
	return counts
}

// RankPages orders a frequency table by views descending, then page name,
// and keeps the first n entries (all when n <= 0).
func RankPages(counts map[string]int, n int) []PageCount {
	ranked := make([]PageCount, 0, len(counts))
	for page, views := range counts {
		ranked = append(ranked, PageCount{Page: page, Views: views})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Views != ranked[j].Views {
			return ranked[i].Views > ranked[j].Views
		}
		return ranked[i].Page < ranked[j].Page
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// RankBy groups rows by key and returns the n largest groups (all when n <= 0).
// Rows with an empty key are grouped under fallback.
func RankBy(rows []events.PageView, n int, fallback string, key func(events.PageView) string) []NamedCount {
	counts := make(map[string]int)
	for _, row := range rows {
		k := key(row)
		if k == "" {
			k = fallback
		}
		counts[k]++
	}

	ranked := make([]NamedCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, NamedCount{Name: name, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// DailyStats buckets rows into exactly days calendar days ending today in
// loc, oldest first, with zero entries for empty days. Rows outside those
// days are ignored.
func DailyStats(rows []events.PageView, days int, now time.Time, loc *time.Location) []DailyStat {
	stats := EmptyDailyStats(days, now, loc)
	index := make(map[string]int, len(stats))
	for i, s := range stats {
		index[s.Date] = i
	}

	for _, row := range rows {
		if i, ok := index[timeframe.DayKey(row.Timestamp, loc)]; ok {
			stats[i].Views++
		}
	}
	return stats
}

// TodayViews counts distinct sessions with a page view since local midnight.
func TodayViews(rows []events.PageView, now time.Time, loc *time.Location) int {
	midnight := timeframe.StartOfDay(now, loc)
	seen := make(map[string]struct{})
	for _, row := range rows {
		if row.SessionID == "" || row.Timestamp.Before(midnight) {
			continue
		}
		seen[row.SessionID] = struct{}{}
	}
	return len(seen)
}

// Summarize builds historical totals from the rows of one window.
func Summarize(rows []events.PageView, days int) HistoricalStats {
	return HistoricalStats{
		TotalViews:     len(rows),
		UniqueUsers:    DistinctUsers(rows),
		UniqueSessions: DistinctSessions(rows),
		TopPages:       TopPages(rows),
		Period:         PeriodLabel(days),
	}
}
