package timeframe

import (
	"time"
)

// DayFormat is the user-facing calendar day key.
const DayFormat = "2006-01-02"

// TimeProvider abstracts the clock so aggregation can be tested at fixed instants.
type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

// Now returns the current time in loc.
func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// FixedTimeProvider always returns the same instant.
type FixedTimeProvider struct {
	CurrentTime time.Time
}

// Now returns the fixed instant in loc.
func (p *FixedTimeProvider) Now(loc *time.Location) time.Time {
	return p.CurrentTime.In(loc)
}

// Day is a single calendar day in a location.
type Day struct {
	Key   string
	Start time.Time
	End   time.Time
}

// StartOfDay returns local midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// DayKey formats t's calendar day in loc as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayFormat)
}

// TrailingDays returns exactly days consecutive calendar days ending with the
// day containing now, oldest first. Days are built with AddDate so DST
// transitions produce 23 or 25 hour days rather than skipped or repeated keys.
func TrailingDays(now time.Time, days int, loc *time.Location) []Day {
	if days <= 0 {
		return []Day{}
	}
	if loc == nil {
		loc = time.Local
	}

	today := StartOfDay(now, loc)
	out := make([]Day, 0, days)
	for i := days - 1; i >= 0; i-- {
		start := today.AddDate(0, 0, -i)
		out = append(out, Day{
			Key:   start.Format(DayFormat),
			Start: start,
			End:   start.AddDate(0, 0, 1),
		})
	}
	return out
}

// WindowStart returns now minus days*24h, the lower bound of a history window.
func WindowStart(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}
