package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/analytics"
	"folio/internal/events"
	"folio/internal/presence"
)

var noon = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func view(session, page string, at time.Time) events.PageView {
	return events.PageView{SessionID: session, Page: page, Timestamp: at}
}

func TestCountOnline(t *testing.T) {
	window := 5 * time.Minute

	t.Run("window boundary", func(t *testing.T) {
		activity := []presence.Activity{
			{SessionID: "inside", LastActivity: noon.Add(-window + time.Second)},
			{SessionID: "edge", LastActivity: noon.Add(-window)},
			{SessionID: "outside", LastActivity: noon.Add(-window - time.Second)},
		}
		assert.Equal(t, 2, analytics.CountOnline(activity, noon, window))
	})

	t.Run("counts each session once", func(t *testing.T) {
		activity := []presence.Activity{
			{SessionID: "s1", LastActivity: noon.Add(-time.Minute)},
			{SessionID: "s1", LastActivity: noon.Add(-2 * time.Minute)},
			{SessionID: "s2", LastActivity: noon},
			{SessionID: "", LastActivity: noon},
		}
		assert.Equal(t, 2, analytics.CountOnline(activity, noon, window))
	})

	t.Run("future activity counts as online", func(t *testing.T) {
		activity := []presence.Activity{{SessionID: "skewed", LastActivity: noon.Add(time.Minute)}}
		assert.Equal(t, 1, analytics.CountOnline(activity, noon, window))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Zero(t, analytics.CountOnline(nil, noon, window))
	})
}

func TestSameSessionCounting(t *testing.T) {
	rows := make([]events.PageView, 0, 5)
	for i := 0; i < 5; i++ {
		rows = append(rows, view("s1", "/", noon.Add(-time.Duration(i)*time.Minute)))
	}

	assert.Equal(t, 1, analytics.TodayViews(rows, noon, time.UTC))

	summary := analytics.Summarize(rows, 7)
	assert.Equal(t, 5, summary.TotalViews)
	assert.Equal(t, 1, summary.UniqueSessions)
}

func TestTopPages(t *testing.T) {
	rows := []events.PageView{
		view("s1", "/", noon),
		view("s2", "/blog", noon),
		view("s3", "/blog", noon),
		view("s3", "/projects", noon),
		view("s4", "/blog", noon),
	}

	top := analytics.TopPages(rows)
	sum := 0
	for _, n := range top {
		sum += n
	}
	assert.Equal(t, len(rows), sum)
	assert.Equal(t, map[string]int{"/": 1, "/blog": 3, "/projects": 1}, top)

	ranked := analytics.RankPages(top, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, analytics.PageCount{Page: "/blog", Views: 3}, ranked[0])
	assert.Equal(t, analytics.PageCount{Page: "/", Views: 1}, ranked[1], "ties break by page name")

	assert.Len(t, analytics.RankPages(top, 0), 3)
}

func TestDistinctCounts(t *testing.T) {
	rows := []events.PageView{
		{SessionID: "s1", UserID: "u1", VisitorSignature: "v1"},
		{SessionID: "s1", UserID: "", VisitorSignature: "v1"},
		{SessionID: "s2", UserID: " ", VisitorSignature: "v2"},
		{SessionID: "s3", UserID: "u1", VisitorSignature: ""},
	}

	assert.Equal(t, 3, analytics.DistinctSessions(rows))
	assert.Equal(t, 1, analytics.DistinctUsers(rows))
	assert.Equal(t, 2, analytics.DistinctVisitors(rows))
	assert.Equal(t, 2, analytics.DistinctCount([]string{"a", "b", "a", ""}))
}

func TestDailyStats(t *testing.T) {
	rows := []events.PageView{
		view("s1", "/", noon),
		view("s2", "/", noon.Add(-time.Hour)),
		view("s3", "/", noon.AddDate(0, 0, -2)),
		view("s4", "/", noon.AddDate(0, 0, -30)),
	}

	stats := analytics.DailyStats(rows, 7, noon, time.UTC)
	require.Len(t, stats, 7)
	assert.Equal(t, "2025-06-09", stats[0].Date)
	assert.Equal(t, "2025-06-15", stats[6].Date)

	for i := 1; i < len(stats); i++ {
		assert.Less(t, stats[i-1].Date, stats[i].Date)
	}

	assert.Equal(t, 2, stats[6].Views)
	assert.Equal(t, 1, stats[4].Views)
	assert.Zero(t, stats[5].Views, "empty days are zero-filled")

	total := 0
	for _, s := range stats {
		total += s.Views
	}
	assert.Equal(t, 3, total, "rows outside the days are ignored")

	assert.Empty(t, analytics.DailyStats(rows, 0, noon, time.UTC))
}

func TestTodayViews(t *testing.T) {
	rows := []events.PageView{
		view("s1", "/", noon),
		view("s2", "/blog", noon.Add(time.Second)),
		view("s3", "/", noon.AddDate(0, 0, -1)),
	}
	assert.Equal(t, 2, analytics.TodayViews(rows, noon.Add(time.Minute), time.UTC))
}

func TestPeriodLabel(t *testing.T) {
	assert.Equal(t, "1 day", analytics.PeriodLabel(1))
	assert.Equal(t, "30 days", analytics.PeriodLabel(30))
}

func TestFloorAtOne(t *testing.T) {
	assert.Equal(t, 1, analytics.FloorAtOne(0))
	assert.Equal(t, 1, analytics.FloorAtOne(-3))
	assert.Equal(t, 4, analytics.FloorAtOne(4))

	stats := analytics.RealTimeStats{OnlineUsers: 0, TodayViews: 3, TotalViews: 0}.ForDisplay()
	assert.Equal(t, 1, stats.OnlineUsers)
	assert.Equal(t, 3, stats.TodayViews)
	assert.Equal(t, 1, stats.TotalViews)
}

func TestCountryName(t *testing.T) {
	assert.Equal(t, "Spain", analytics.CountryName("ES"))
	assert.Equal(t, "Germany", analytics.CountryName("de"))
	assert.Equal(t, "ZZ", analytics.CountryName("zz"))
	assert.Equal(t, analytics.UnknownCountry, analytics.CountryName(""))

	named := analytics.WithCountryNames([]analytics.NamedCount{
		{Name: "ES", Count: 3},
		{Name: analytics.UnknownCountry, Count: 1},
	})
	assert.Equal(t, analytics.NamedCount{Name: "Spain", Code: "ES", Count: 3}, named[0])
	assert.Equal(t, analytics.NamedCount{Name: analytics.UnknownCountry, Count: 1}, named[1])
}
