package timeframe

import (
	"strconv"
	"strings"
	"time"
)

// DefaultMaxDays bounds a history window when no positive maximum is given.
const DefaultMaxDays = 365

// ParseDays reads a "days" query value. Missing or unparsable values fall back
// to defaultDays; the result is clamped to [1, maxDays], or to
// [1, DefaultMaxDays] when maxDays is not positive.
func ParseDays(raw string, defaultDays, maxDays int) int {
	days := defaultDays
	if raw = strings.TrimSpace(raw); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			days = n
		}
	}

	if maxDays <= 0 {
		maxDays = DefaultMaxDays
	}
	if days < 1 {
		days = 1
	}
	if days > maxDays {
		days = maxDays
	}
	return days
}

// ParseLocation loads an IANA timezone name, falling back to the server's
// local zone when the name is empty or unknown.
func ParseLocation(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}
