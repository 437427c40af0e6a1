// Package publish gates automatic leaderboard publishes behind a debounce
// window with single-flight semantics.
package publish

import (
	"sync"
	"time"

	"github.com/davidebtc/zapboard/internal/zap"
)

// Debouncer decides when an aggregate snapshot may trigger an outward
// publish. The check and the state update happen under one lock, so of two
// triggers racing within the same instant only one is permitted even when
// both would pass the time check on their own.
type Debouncer struct {
	mu          sync.Mutex
	now         func() time.Time
	minInterval time.Duration

	lastPublishedAt   time.Time
	lastPublishedWeek string
}

// NewDebouncer creates a debouncer with an injected clock. Pass time.Now in
// production.
func NewDebouncer(minInterval time.Duration, now func() time.Time) *Debouncer {
	return &Debouncer{minInterval: minInterval, now: now}
}

// Seed initializes the state from persisted history at process start.
func (d *Debouncer) Seed(lastPublishedAt time.Time, lastPublishedWeek string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastPublishedAt = lastPublishedAt
	d.lastPublishedWeek = lastPublishedWeek
}

// MaybePublish reports whether a publish for weekKey is permitted now. The
// state is advanced before the caller runs the publish action, so a second
// trigger arriving while the first is still in flight observes the updated
// timestamp and skips. Past weeks never auto-publish.
func (d *Debouncer) MaybePublish(weekKey string) (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if weekKey != zap.CurrentWeekKey(now) {
		return false, "not the current week"
	}
	if !d.lastPublishedAt.IsZero() && now.Sub(d.lastPublishedAt) < d.minInterval {
		return false, "inside debounce window"
	}

	d.lastPublishedAt = now
	d.lastPublishedWeek = weekKey
	return true, ""
}

// Last returns the current publish state.
func (d *Debouncer) Last() (time.Time, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastPublishedAt, d.lastPublishedWeek
}
