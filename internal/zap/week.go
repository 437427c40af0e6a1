package zap

import (
	"fmt"
	"time"
)

// WeekKey returns the ISO-8601 week bucket ("2025-W36") for a unix timestamp.
// A receipt always buckets by its own event time, never by processing time.
func WeekKey(ts int64) string {
	year, week := time.Unix(ts, 0).UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// CurrentWeekKey returns the ISO week bucket containing now.
func CurrentWeekKey(now time.Time) string {
	year, week := now.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// PrevWeekKey returns the week bucket of the day before now. Meant for the
// standalone leaderboard publish that runs shortly after a week rolls over.
func PrevWeekKey(now time.Time) string {
	return CurrentWeekKey(now.Add(-24 * time.Hour))
}
