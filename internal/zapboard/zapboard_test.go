package zapboard

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidebtc/zapboard/internal/config"
	"github.com/davidebtc/zapboard/internal/models"
	"github.com/davidebtc/zapboard/internal/publish"
	"github.com/davidebtc/zapboard/internal/zap"
	"github.com/davidebtc/zapboard/pkg/logger"
	"github.com/davidebtc/zapboard/pkg/nostr"
)

const (
	testPayer     = "82341f882b6eabcd2ba7f1ef90aad961cf074af15b9ef44a09f9d2a8fbfbe6a2"
	testRecipient = "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"
)

var testNow = time.Date(2025, 9, 3, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	mu      sync.Mutex
	records map[string]*models.ZapRecord
	state   map[string]string
	failTry bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records: make(map[string]*models.ZapRecord),
		state:   make(map[string]string),
	}
}

func (r *fakeRepo) TryRecord(record *models.ZapRecord) (bool, *models.ZapRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTry {
		return false, nil, fmt.Errorf("storage unavailable")
	}
	if existing, ok := r.records[record.ReceiptID]; ok {
		return false, existing, nil
	}
	stored := *record
	r.records[record.ReceiptID] = &stored
	return true, nil, nil
}

func (r *fakeRepo) IsProcessed(receiptID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[receiptID]
	return ok, nil
}

func (r *fakeRepo) RecordsForWeek(weekKey string) ([]*models.ZapRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ZapRecord
	for _, record := range r.records {
		if record.WeekKey == weekKey {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *fakeRepo) WeekTotals(weekKey string, limit int) ([]*models.WeekTotal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPayer := make(map[string]*models.WeekTotal)
	for _, record := range r.records {
		if record.WeekKey != weekKey || !record.Counted || record.PayerPubkey == "" {
			continue
		}
		total, ok := byPayer[record.PayerPubkey]
		if !ok {
			total = &models.WeekTotal{PayerPubkey: record.PayerPubkey}
			byPayer[record.PayerPubkey] = total
		}
		total.Sats += record.Sats
		total.Count++
	}
	totals := make([]*models.WeekTotal, 0, len(byPayer))
	for _, total := range byPayer {
		totals = append(totals, total)
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Sats != totals[j].Sats {
			return totals[i].Sats > totals[j].Sats
		}
		return totals[i].PayerPubkey < totals[j].PayerPubkey
	})
	if limit > 0 && len(totals) > limit {
		totals = totals[:limit]
	}
	return totals, nil
}

func (r *fakeRepo) CountRecords() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.records)), nil
}

func (r *fakeRepo) GetState(key, fallback string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if value, ok := r.state[key]; ok {
		return value, nil
	}
	return fallback, nil
}

func (r *fakeRepo) SetState(key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[key] = value
	return nil
}

func (r *fakeRepo) Close() error { return nil }

type fakeRelay struct {
	mu        sync.Mutex
	published []*nostr.Event
	receipts  chan *zap.Receipt
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{receipts: make(chan *zap.Receipt, 16)}
}

func (f *fakeRelay) Subscribe(ctx context.Context, since int64) error { return nil }

func (f *fakeRelay) Receipts() <-chan *zap.Receipt { return f.receipts }

func (f *fakeRelay) Publish(event *nostr.Event, extraRelays []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, event)
	return nil
}

func (f *fakeRelay) Close() {}

// replies returns the published events that acknowledge a payer (leaderboard
// posts carry no p tag).
func (f *fakeRelay) replies() []*nostr.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*nostr.Event
	for _, event := range f.published {
		if len(event.TagValues("p")) > 0 {
			out = append(out, event)
		}
	}
	return out
}

func (f *fakeRelay) leaderboards() []*nostr.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*nostr.Event
	for _, event := range f.published {
		if len(event.TagValues("p")) == 0 {
			out = append(out, event)
		}
	}
	return out
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (n *fakeNotifier) Alert(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, message)
}

func testConfig() *config.Config {
	return &config.Config{
		MaxSatsPerZap:          10_000_000,
		MinZapSats:             10,
		ReplyOnUnknown:         true,
		AllowSelfZap:           false,
		ThankTemplate:          config.DefaultThankTemplate,
		UnknownAmountLabel:     "⚡",
		MinLeaderboardInterval: 300 * time.Second,
		TopN:                   10,
	}
}

func newTestBoard(t *testing.T, cfg *config.Config) (*Zapboard, *fakeRepo, *fakeRelay, *fakeNotifier) {
	t.Helper()
	raw, err := hex.DecodeString("67dea2ed018072d675f5415ecfaed7d2597555e202d85b3d65ea4e58d2d92ffa")
	require.NoError(t, err)
	sk, _ := btcec.PrivKeyFromBytes(raw)

	repo := newFakeRepo()
	relay := newFakeRelay()
	notifier := &fakeNotifier{}
	board := NewZapboard(repo, relay, notifier, logger.NewNop(), cfg, sk)
	board.now = func() time.Time { return testNow }
	board.debouncer = publish.NewDebouncer(cfg.MinLeaderboardInterval, board.now)
	return board, repo, relay, notifier
}

func receipt(id string, sats int64) *zap.Receipt {
	msat := sats * 1000
	return &zap.Receipt{
		ID:              id,
		PayerPubkey:     testPayer,
		RecipientPubkey: testRecipient,
		CreatedAt:       testNow.Unix(),
		AmountMsat:      &msat,
		NoteID:          "note-" + id,
	}
}

func TestHandleReceiptRepliesAndRecords(t *testing.T) {
	board, repo, relay, _ := newTestBoard(t, testConfig())

	board.handleReceipt(receipt("r1", 21))

	require.Len(t, repo.records, 1)
	record := repo.records["r1"]
	assert.Equal(t, int64(21), record.Sats)
	assert.Equal(t, string(zap.SourceReceiptAmount), record.Source)
	assert.True(t, record.Counted)
	assert.Equal(t, zap.WeekKey(testNow.Unix()), record.WeekKey)

	replies := relay.replies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Content, "21 sats")
	assert.Contains(t, replies[0].Content, "#1")
	assert.Equal(t, []string{testPayer}, replies[0].TagValues("p"))
	assert.Equal(t, []string{"note-r1"}, replies[0].TagValues("e"))

	// the cursor advanced with the insert
	assert.NotEmpty(t, repo.state[models.StateLastSince])
}

func TestConcurrentDuplicatesProcessOnce(t *testing.T) {
	board, repo, relay, _ := newTestBoard(t, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			board.handleReceipt(receipt("dup", 100))
		}()
	}
	wg.Wait()

	assert.Len(t, repo.records, 1)
	assert.Len(t, relay.replies(), 1, "exactly one reply for N concurrent deliveries")
	assert.Equal(t, int64(100), board.agg.TotalSats(zap.WeekKey(testNow.Unix()), testPayer))
}

func TestUnknownAmountReplyGovernedByFlag(t *testing.T) {
	cfg := testConfig()
	cfg.ReplyOnUnknown = false
	board, repo, relay, _ := newTestBoard(t, cfg)

	r := receipt("u1", 0)
	r.AmountMsat = nil
	board.handleReceipt(r)

	// recorded but silent: no reply, no aggregate contribution
	require.Len(t, repo.records, 1)
	assert.False(t, repo.records["u1"].Counted)
	assert.Empty(t, relay.published)
	assert.Equal(t, int64(0), board.agg.TotalSats(zap.WeekKey(testNow.Unix()), testPayer))

	// a redelivery is still a duplicate
	board.handleReceipt(r)
	assert.Len(t, repo.records, 1)
	assert.Empty(t, relay.published)
}

func TestUnknownAmountRepliesWithFallbackLabel(t *testing.T) {
	board, _, relay, _ := newTestBoard(t, testConfig())

	r := receipt("u2", 0)
	r.AmountMsat = nil
	board.handleReceipt(r)

	replies := relay.replies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Content, "the ⚡ sats")
	assert.NotContains(t, replies[0].Content, "the 0 sats")
}

func TestBelowThresholdRecordedButExcluded(t *testing.T) {
	board, repo, relay, _ := newTestBoard(t, testConfig())

	board.handleReceipt(receipt("small", 5))

	require.Len(t, repo.records, 1)
	assert.False(t, repo.records["small"].Counted)
	assert.Empty(t, relay.published)
	assert.Equal(t, int64(0), board.agg.TotalSats(zap.WeekKey(testNow.Unix()), testPayer))
}

func TestSelfZapRecordedButExcluded(t *testing.T) {
	board, repo, relay, _ := newTestBoard(t, testConfig())

	r := receipt("self", 500)
	r.PayerPubkey = testRecipient
	board.handleReceipt(r)

	require.Len(t, repo.records, 1)
	assert.False(t, repo.records["self"].Counted)
	assert.Empty(t, relay.published)
}

func TestSelfZapCountsWhenAllowed(t *testing.T) {
	cfg := testConfig()
	cfg.AllowSelfZap = true
	board, repo, relay, _ := newTestBoard(t, cfg)

	r := receipt("self", 500)
	r.PayerPubkey = testRecipient
	board.handleReceipt(r)

	require.Len(t, repo.records, 1)
	assert.True(t, repo.records["self"].Counted)
	assert.Len(t, relay.replies(), 1)
}

func TestClampedAmountStoredAtBound(t *testing.T) {
	board, repo, _, _ := newTestBoard(t, testConfig())

	board.handleReceipt(receipt("huge", 50_000_000))

	record := repo.records["huge"]
	require.NotNil(t, record)
	assert.Equal(t, int64(10_000_000), record.Sats)
	assert.True(t, record.Clamped)
}

func TestPersistenceFailureAlertsAndRetries(t *testing.T) {
	board, repo, relay, notifier := newTestBoard(t, testConfig())
	repo.failTry = true

	board.handleReceipt(receipt("r1", 21))

	assert.Empty(t, repo.records)
	assert.Empty(t, relay.published)
	assert.NotEmpty(t, notifier.alerts, "operator is alerted on persistence failure")
	// the cursor must not advance, so the receipt is retried on redelivery
	assert.Empty(t, repo.state[models.StateLastSince])

	repo.failTry = false
	board.handleReceipt(receipt("r1", 21))
	assert.Len(t, repo.records, 1)
	assert.Len(t, relay.replies(), 1)
}

func TestWeeklyTotalsAndRank(t *testing.T) {
	board, _, relay, _ := newTestBoard(t, testConfig())
	week := zap.WeekKey(testNow.Unix())

	other := receipt("big", 1000)
	other.PayerPubkey = "0000000000000000000000000000000000000000000000000000000000000001"
	board.handleReceipt(other)

	board.handleReceipt(receipt("a1", 10))
	board.handleReceipt(receipt("a2", 25))

	assert.Equal(t, int64(35), board.agg.TotalSats(week, testPayer))
	assert.Equal(t, 2, board.agg.Rank(week, testPayer))

	replies := relay.replies()
	require.Len(t, replies, 3)
	assert.Contains(t, replies[2].Content, "#2")
}

func TestLateReceiptRankedAgainstLedgerWeek(t *testing.T) {
	board, repo, relay, _ := newTestBoard(t, testConfig())

	lateTime := time.Date(2025, 8, 27, 12, 0, 0, 0, time.UTC)
	lateWeek := zap.WeekKey(lateTime.Unix())
	require.NotEqual(t, zap.WeekKey(testNow.Unix()), lateWeek)

	// ledger history for the old week that replay() does not load
	repo.records["old"] = &models.ZapRecord{
		ReceiptID:   "old",
		PayerPubkey: "0000000000000000000000000000000000000000000000000000000000000001",
		Sats:        100_000,
		Counted:     true,
		WeekKey:     lateWeek,
	}
	require.NoError(t, board.replay())

	r := receipt("late", 50)
	r.CreatedAt = lateTime.Unix()
	board.handleReceipt(r)

	replies := relay.replies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Content, "#2")
	assert.NotContains(t, replies[0].Content, "#1")

	// past weeks never trigger a scheduled leaderboard post
	assert.Empty(t, relay.leaderboards())
}

func TestLeaderboardDebounced(t *testing.T) {
	board, _, relay, _ := newTestBoard(t, testConfig())

	board.handleReceipt(receipt("a1", 100))
	board.handleReceipt(receipt("a2", 200))

	// two qualifying zaps inside one window publish one leaderboard
	boards := relay.leaderboards()
	require.Len(t, boards, 1)
	assert.Contains(t, boards[0].Content, "Weekly Zap Leaderboard")
	assert.Contains(t, boards[0].Content, zap.WeekKey(testNow.Unix()))
}

func TestReplayRebuildsStateFromLedger(t *testing.T) {
	board, repo, _, _ := newTestBoard(t, testConfig())
	week := zap.WeekKey(testNow.Unix())

	repo.records["old1"] = &models.ZapRecord{
		ReceiptID: "old1", PayerPubkey: testPayer, Sats: 40, Counted: true, WeekKey: week,
	}
	repo.records["old2"] = &models.ZapRecord{
		ReceiptID: "old2", PayerPubkey: testPayer, Sats: 2, Counted: false, WeekKey: week,
	}
	repo.state[models.StateLastPublishedAt] = fmt.Sprint(testNow.Add(-100 * time.Second).Unix())
	repo.state[models.StateLastPublishedWk] = week

	require.NoError(t, board.replay())

	assert.Equal(t, int64(40), board.agg.TotalSats(week, testPayer))

	// seeded publish state keeps the debounce window closed
	ok, _ := board.debouncer.MaybePublish(week)
	assert.False(t, ok)
}

func TestPublishLeaderboardFromLedger(t *testing.T) {
	board, repo, relay, _ := newTestBoard(t, testConfig())
	week := zap.WeekKey(testNow.Unix())

	repo.records["r1"] = &models.ZapRecord{
		ReceiptID: "r1", PayerPubkey: testPayer, Sats: 1500, Counted: true, WeekKey: week,
	}

	require.NoError(t, board.PublishLeaderboard(week, 10))

	boards := relay.leaderboards()
	require.Len(t, boards, 1)
	assert.Contains(t, boards[0].Content, "1,500 sats")

	// empty weeks post nothing
	require.NoError(t, board.PublishLeaderboard("2020-W01", 10))
	assert.Len(t, relay.leaderboards(), 1)
}
