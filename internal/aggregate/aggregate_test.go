package aggregate

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidebtc/zapboard/internal/models"
)

func record(week, payer string, sats int64) *models.ZapRecord {
	return &models.ZapRecord{
		ReceiptID:   fmt.Sprintf("%s-%s-%d", week, payer, sats),
		PayerPubkey: payer,
		Sats:        sats,
		Counted:     true,
		WeekKey:     week,
	}
}

func TestApplyAccumulatesPerPayer(t *testing.T) {
	agg := NewAggregator()
	agg.Apply(record("2025-W36", "alice", 10))
	agg.Apply(record("2025-W36", "alice", 25))
	agg.Apply(record("2025-W36", "bob", 20))

	assert.Equal(t, int64(35), agg.TotalSats("2025-W36", "alice"))
	assert.Equal(t, int64(20), agg.TotalSats("2025-W36", "bob"))

	top := agg.Top("2025-W36", 10)
	require.Len(t, top, 2)
	assert.Equal(t, "alice", top[0].PayerPubkey)
	assert.Equal(t, int64(35), top[0].Sats)
	assert.Equal(t, int64(2), top[0].Count)
	assert.Equal(t, "bob", top[1].PayerPubkey)
}

func TestRankOrderingAndTies(t *testing.T) {
	agg := NewAggregator()
	agg.Apply(record("2025-W36", "carol", 100))
	agg.Apply(record("2025-W36", "alice", 50))
	agg.Apply(record("2025-W36", "bob", 50))

	assert.Equal(t, 1, agg.Rank("2025-W36", "carol"))
	// ties break by ascending pubkey
	assert.Equal(t, 2, agg.Rank("2025-W36", "alice"))
	assert.Equal(t, 3, agg.Rank("2025-W36", "bob"))
	// a payer with no counted zaps this week ranks first
	assert.Equal(t, 1, agg.Rank("2025-W36", "dave"))
}

func TestLateRecordStaysInOwnWeek(t *testing.T) {
	agg := NewAggregator()
	agg.Apply(record("2025-W36", "alice", 100))
	// late arrival for a past week
	agg.Apply(record("2025-W35", "alice", 40))

	assert.Equal(t, int64(100), agg.TotalSats("2025-W36", "alice"))
	assert.Equal(t, int64(40), agg.TotalSats("2025-W35", "alice"))

	top := agg.Top("2025-W36", 10)
	require.Len(t, top, 1)
	assert.Equal(t, int64(100), top[0].Sats)
}

func TestTopTruncates(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < 5; i++ {
		agg.Apply(record("2025-W36", fmt.Sprintf("payer-%d", i), int64(10*(i+1))))
	}

	top := agg.Top("2025-W36", 3)
	require.Len(t, top, 3)
	assert.Equal(t, "payer-4", top[0].PayerPubkey)
	assert.Equal(t, int64(50), top[0].Sats)
}

func TestReplayRebuildsBucket(t *testing.T) {
	agg := NewAggregator()
	// stale in-memory state that a restart must discard
	agg.Apply(record("2025-W36", "ghost", 999))

	records := []*models.ZapRecord{
		record("2025-W36", "alice", 10),
		record("2025-W36", "alice", 25),
		record("2025-W35", "alice", 500), // other week, ignored
		{ReceiptID: "x", PayerPubkey: "bob", Sats: 5, Counted: false, WeekKey: "2025-W36"},
	}
	agg.Replay("2025-W36", records)

	assert.Equal(t, int64(35), agg.TotalSats("2025-W36", "alice"))
	assert.Equal(t, int64(0), agg.TotalSats("2025-W36", "ghost"))
	assert.Equal(t, int64(0), agg.TotalSats("2025-W36", "bob"))
}

func TestApplyConcurrent(t *testing.T) {
	agg := NewAggregator()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.Apply(record("2025-W36", "alice", 1))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), agg.TotalSats("2025-W36", "alice"))
}
