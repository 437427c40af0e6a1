// Package aggregate maintains the in-memory weekly zap totals the leaderboard
// and rank replies are computed from. The durable source of truth stays in the
// ledger; buckets are rebuilt from it on restart.
package aggregate

import (
	"sort"
	"sync"

	"github.com/davidebtc/zapboard/internal/models"
)

// Entry is one ranked leaderboard row.
type Entry struct {
	PayerPubkey string
	Sats        int64
	Count       int64
}

type totals struct {
	sats  int64
	count int64
}

// Aggregator accumulates counted zap records into per-week buckets keyed by
// payer pubkey. Writes are serialized; reads work on sorted snapshots.
type Aggregator struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*totals
}

func NewAggregator() *Aggregator {
	return &Aggregator{buckets: make(map[string]map[string]*totals)}
}

// Apply incorporates one newly inserted record into its week's bucket.
// The caller is responsible for only applying records that count toward
// totals (no self-zaps, no unknown amounts, no below-threshold zaps).
func (a *Aggregator) Apply(record *models.ZapRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket, ok := a.buckets[record.WeekKey]
	if !ok {
		bucket = make(map[string]*totals)
		a.buckets[record.WeekKey] = bucket
	}
	t, ok := bucket[record.PayerPubkey]
	if !ok {
		t = &totals{}
		bucket[record.PayerPubkey] = t
	}
	t.sats += record.Sats
	t.count++
}

// Replay rebuilds a week's bucket from persisted records, dropping whatever
// was accumulated for that week so far.
func (a *Aggregator) Replay(weekKey string, records []*models.ZapRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket := make(map[string]*totals)
	for _, record := range records {
		if !record.Counted || record.WeekKey != weekKey {
			continue
		}
		t, ok := bucket[record.PayerPubkey]
		if !ok {
			t = &totals{}
			bucket[record.PayerPubkey] = t
		}
		t.sats += record.Sats
		t.count++
	}
	a.buckets[weekKey] = bucket
}

// Top returns the week's entries ordered by descending sats, ties broken by
// ascending payer pubkey, truncated to n (n <= 0 means no truncation).
func (a *Aggregator) Top(weekKey string, n int) []Entry {
	entries := a.snapshot(weekKey)
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// Rank returns the payer's 1-based position in the week's ordering. A payer
// with no counted zaps this week ranks first, matching the reply wording for
// fresh or unknown-amount zappers.
func (a *Aggregator) Rank(weekKey, payerPubkey string) int {
	for i, entry := range a.snapshot(weekKey) {
		if entry.PayerPubkey == payerPubkey {
			return i + 1
		}
	}
	return 1
}

// TotalSats returns the summed counted sats for a payer in a week.
func (a *Aggregator) TotalSats(weekKey, payerPubkey string) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if t, ok := a.buckets[weekKey][payerPubkey]; ok {
		return t.sats
	}
	return 0
}

func (a *Aggregator) snapshot(weekKey string) []Entry {
	a.mu.RLock()
	bucket := a.buckets[weekKey]
	entries := make([]Entry, 0, len(bucket))
	for payer, t := range bucket {
		entries = append(entries, Entry{PayerPubkey: payer, Sats: t.sats, Count: t.count})
	}
	a.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Sats != entries[j].Sats {
			return entries[i].Sats > entries[j].Sats
		}
		return entries[i].PayerPubkey < entries[j].PayerPubkey
	})
	return entries
}
