package zapboard

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/davidebtc/zapboard/internal/aggregate"
	"github.com/davidebtc/zapboard/internal/compose"
	"github.com/davidebtc/zapboard/internal/config"
	"github.com/davidebtc/zapboard/internal/models"
	"github.com/davidebtc/zapboard/internal/publish"
	"github.com/davidebtc/zapboard/internal/zap"
	"github.com/davidebtc/zapboard/pkg/logger"
	"github.com/davidebtc/zapboard/pkg/nostr"
)

const (
	// heartbeatInterval paces the liveness log line an external watchdog
	// keys on.
	heartbeatInterval = time.Minute

	// defaultLookback bounds the initial subscription when no cursor has
	// been persisted yet.
	defaultLookback = 24 * time.Hour
)

// Zapboard wires the pipeline together: receipts from the relay layer are
// amount-resolved, gated through the ledger, aggregated into weekly totals
// and acknowledged with a thank-you reply.
type Zapboard struct {
	logger *logger.Logger
	config *config.Config

	repo     models.Repository
	relay    models.RelayService
	notifier models.Notifier

	agg       *aggregate.Aggregator
	debouncer *publish.Debouncer

	sk *btcec.PrivateKey

	now func() time.Time

	mu    sync.Mutex
	since int64

	processed atomic.Int64
}

// NewZapboard creates a new Zapboard instance.
func NewZapboard(
	repo models.Repository,
	relay models.RelayService,
	notifier models.Notifier,
	logger *logger.Logger,
	config *config.Config,
	sk *btcec.PrivateKey,
) *Zapboard {
	return &Zapboard{
		repo:      repo,
		relay:     relay,
		notifier:  notifier,
		logger:    logger,
		config:    config,
		agg:       aggregate.NewAggregator(),
		debouncer: publish.NewDebouncer(config.MinLeaderboardInterval, time.Now),
		sk:        sk,
		now:       time.Now,
	}
}

// Start replays persisted state, opens the relay subscription and runs the
// ingest loop until ctx ends. No in-memory state survives a restart; the
// ledger is the sole source of truth.
func (z *Zapboard) Start(ctx context.Context) error {
	if err := z.replay(); err != nil {
		return err
	}

	since, err := z.loadSince()
	if err != nil {
		return err
	}
	z.since = since

	if err := z.relay.Subscribe(ctx, since); err != nil {
		return fmt.Errorf("failed to subscribe to relays: %w", err)
	}

	go z.heartbeat(ctx)

	for {
		select {
		case <-ctx.Done():
			z.relay.Close()
			return nil
		case receipt := <-z.relay.Receipts():
			go z.handleReceipt(receipt)
		}
	}
}

// replay rebuilds the current week's bucket and the publish state from the
// ledger.
func (z *Zapboard) replay() error {
	weekKey := zap.CurrentWeekKey(z.now())
	records, err := z.repo.RecordsForWeek(weekKey)
	if err != nil {
		return fmt.Errorf("failed to replay week %s: %w", weekKey, err)
	}
	z.agg.Replay(weekKey, records)
	z.logger.Info("Replayed week from ledger ", "week ", weekKey, "records ", len(records))

	lastAtStr, err := z.repo.GetState(models.StateLastPublishedAt, "0")
	if err != nil {
		return fmt.Errorf("failed to load publish state: %w", err)
	}
	lastWeek, err := z.repo.GetState(models.StateLastPublishedWk, "")
	if err != nil {
		return fmt.Errorf("failed to load publish state: %w", err)
	}
	if lastAt, err := strconv.ParseInt(lastAtStr, 10, 64); err == nil && lastAt > 0 {
		z.debouncer.Seed(time.Unix(lastAt, 0), lastWeek)
	}
	return nil
}

func (z *Zapboard) loadSince() (int64, error) {
	fallback := z.now().Add(-defaultLookback).Unix()
	raw, err := z.repo.GetState(models.StateLastSince, strconv.FormatInt(fallback, 10))
	if err != nil {
		return 0, fmt.Errorf("failed to load subscription cursor: %w", err)
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		z.logger.Warn("Invalid subscription cursor, falling back ", "value ", raw)
		return fallback, nil
	}
	return since, nil
}

// handleReceipt runs one receipt through the pipeline. Every side effect
// below the ledger insert is conditioned on having won the insert.
func (z *Zapboard) handleReceipt(receipt *zap.Receipt) {
	// cheap pre-check; the atomic insert below remains the authority
	processed, err := z.repo.IsProcessed(receipt.ID)
	if err != nil {
		z.logger.Error("Failed to pre-check receipt ", "receipt ", receipt.ID, "error ", err)
	} else if processed {
		z.logger.Debug("Receipt already processed ", "receipt ", receipt.ID)
		return
	}

	resolved := zap.Resolve(receipt, z.config.MaxSatsPerZap)
	if resolved.Clamped {
		z.logger.Warn("Zap amount clamped to configured bound ",
			"receipt ", receipt.ID, "source ", resolved.Source, "sats ", resolved.Sats)
	}
	if resolved.Unknown() {
		z.logger.Debug("Could not resolve zap amount ", "receipt ", receipt.ID)
	}

	selfZap := receipt.PayerPubkey != "" &&
		receipt.PayerPubkey == receipt.RecipientPubkey &&
		!z.config.AllowSelfZap
	counted := !selfZap && !resolved.Unknown() && resolved.Sats >= z.config.MinZapSats

	record := &models.ZapRecord{
		ReceiptID:   receipt.ID,
		PayerPubkey: receipt.PayerPubkey,
		NoteID:      receipt.NoteID,
		Sats:        resolved.Sats,
		Source:      string(resolved.Source),
		Clamped:     resolved.Clamped,
		Counted:     counted,
		CreatedAt:   receipt.CreatedAt,
		ProcessedAt: z.now().Unix(),
		WeekKey:     zap.WeekKey(receipt.CreatedAt),
	}

	inserted, _, err := z.repo.TryRecord(record)
	if err != nil {
		// Leave the cursor untouched so the receipt is retried on the next
		// delivery; one failed receipt must not take the process down.
		z.logger.Error("Failed to persist zap receipt ", "receipt ", receipt.ID, "error ", err)
		z.notifier.Alert(fmt.Sprintf("zapboard: failed to persist receipt %s: %v", receipt.ID, err))
		return
	}
	if !inserted {
		z.logger.Debug("Duplicate receipt, skipping ", "receipt ", receipt.ID)
		return
	}

	z.processed.Add(1)
	z.advanceSince(receipt.CreatedAt)

	if counted {
		z.agg.Apply(record)
	}

	shouldReply := counted || (resolved.Unknown() && z.config.ReplyOnUnknown && !selfZap)
	if shouldReply {
		z.reply(receipt, resolved, record.WeekKey)
	}

	if counted {
		z.maybePublishLeaderboard(record.WeekKey)
	}
}

// advanceSince moves the durable subscription cursor forward, never back.
func (z *Zapboard) advanceSince(ts int64) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if ts <= z.since {
		return
	}
	z.since = ts
	if err := z.repo.SetState(models.StateLastSince, strconv.FormatInt(ts, 10)); err != nil {
		z.logger.Error("Failed to persist subscription cursor ", "error ", err)
	}
}

// rankFor returns the payer's position in a week. The in-memory bucket only
// covers the current week; a late receipt into a past week is ranked against
// the ledger so its history is not ignored.
func (z *Zapboard) rankFor(weekKey, payerPubkey string) int {
	if weekKey == zap.CurrentWeekKey(z.now()) {
		return z.agg.Rank(weekKey, payerPubkey)
	}
	totals, err := z.repo.WeekTotals(weekKey, 0)
	if err != nil {
		z.logger.Error("Failed to load week totals for rank ", "week ", weekKey, "error ", err)
		return z.agg.Rank(weekKey, payerPubkey)
	}
	for i, total := range totals {
		if total.PayerPubkey == payerPubkey {
			return i + 1
		}
	}
	return 1
}

// reply composes, signs and publishes the thank-you note. A transport
// failure is logged and never rolls back the already committed record.
func (z *Zapboard) reply(receipt *zap.Receipt, resolved zap.Resolved, weekKey string) {
	rank := z.rankFor(weekKey, receipt.PayerPubkey)

	who := ""
	if receipt.PayerPubkey != "" {
		who = nostr.PayerLabel(receipt.PayerPubkey)
	}
	text := compose.Thanks(z.config.ThankTemplate, resolved.Sats, resolved.Unknown(),
		z.config.UnknownAmountLabel, who, rank)

	var tags [][]string
	if receipt.PayerPubkey != "" {
		tags = append(tags, []string{"p", receipt.PayerPubkey})
	}
	if receipt.NoteID != "" {
		tags = append(tags, []string{"e", receipt.NoteID, "", "reply"})
	}

	event := &nostr.Event{
		CreatedAt: z.now().Unix(),
		Kind:      nostr.KindTextNote,
		Tags:      tags,
		Content:   text,
	}
	if err := event.Sign(z.sk); err != nil {
		z.logger.Error("Failed to sign reply ", "receipt ", receipt.ID, "error ", err)
		return
	}

	if err := z.relay.Publish(event, receipt.Relays); err != nil {
		z.logger.Error("Failed to publish reply ", "receipt ", receipt.ID, "error ", err)
		z.notifier.Alert(fmt.Sprintf("zapboard: failed to publish reply for %s: %v", receipt.ID, err))
		return
	}
	z.logger.Info("Published reply ", "id ", event.ID, "text ", text)
}

// maybePublishLeaderboard posts the current week's leaderboard when the
// debouncer permits it.
func (z *Zapboard) maybePublishLeaderboard(weekKey string) {
	ok, reason := z.debouncer.MaybePublish(weekKey)
	if !ok {
		z.logger.Debug("Skipping leaderboard publish ", "week ", weekKey, "reason ", reason)
		return
	}

	entries := z.agg.Top(weekKey, z.config.TopN)
	if len(entries) == 0 {
		return
	}
	text := compose.Leaderboard(weekKey, entries, nostr.PayerLabel)

	event := &nostr.Event{
		CreatedAt: z.now().Unix(),
		Kind:      nostr.KindTextNote,
		Tags:      [][]string{},
		Content:   text,
	}
	if err := event.Sign(z.sk); err != nil {
		z.logger.Error("Failed to sign leaderboard ", "week ", weekKey, "error ", err)
		return
	}
	if err := z.relay.Publish(event, nil); err != nil {
		z.logger.Error("Failed to publish leaderboard ", "week ", weekKey, "error ", err)
		z.notifier.Alert(fmt.Sprintf("zapboard: failed to publish leaderboard for %s: %v", weekKey, err))
		return
	}

	// Publish state is reconstructible; persistence failures here only cost
	// an extra post after a restart.
	lastAt, lastWeek := z.debouncer.Last()
	if err := z.repo.SetState(models.StateLastPublishedAt, strconv.FormatInt(lastAt.Unix(), 10)); err != nil {
		z.logger.Error("Failed to persist publish state ", "error ", err)
	}
	if err := z.repo.SetState(models.StateLastPublishedWk, lastWeek); err != nil {
		z.logger.Error("Failed to persist publish state ", "error ", err)
	}

	z.logger.Info("Published weekly leaderboard ", "week ", weekKey, "entries ", len(entries))
	z.notifier.Alert("zapboard: published leaderboard for " + weekKey)
}

// PublishLeaderboard renders and posts a week's leaderboard from the ledger,
// bypassing the debounce window. Backs the publish-leaderboard subcommand.
func (z *Zapboard) PublishLeaderboard(weekKey string, top int) error {
	totals, err := z.repo.WeekTotals(weekKey, top)
	if err != nil {
		return err
	}
	if len(totals) == 0 {
		z.logger.Info("No zaps recorded, nothing to post ", "week ", weekKey)
		return nil
	}

	entries := make([]aggregate.Entry, 0, len(totals))
	for _, t := range totals {
		entries = append(entries, aggregate.Entry{PayerPubkey: t.PayerPubkey, Sats: t.Sats, Count: t.Count})
	}
	text := compose.Leaderboard(weekKey, entries, nostr.PayerLabel)

	event := &nostr.Event{
		CreatedAt: z.now().Unix(),
		Kind:      nostr.KindTextNote,
		Tags:      [][]string{},
		Content:   text,
	}
	if err := event.Sign(z.sk); err != nil {
		return fmt.Errorf("failed to sign leaderboard: %w", err)
	}
	if err := z.relay.Publish(event, nil); err != nil {
		return fmt.Errorf("failed to publish leaderboard: %w", err)
	}
	z.logger.Info("Posted leaderboard ", "week ", weekKey, "entries ", len(entries))
	return nil
}

// LeaderboardFor returns the ranked totals for a week from the ledger.
func (z *Zapboard) LeaderboardFor(weekKey string, top int) ([]*models.WeekTotal, error) {
	return z.repo.WeekTotals(weekKey, top)
}

// Stats reports ledger counters for the ops API.
func (z *Zapboard) Stats() (int64, string, error) {
	total, err := z.repo.CountRecords()
	if err != nil {
		return 0, "", err
	}
	return total, zap.CurrentWeekKey(z.now()), nil
}

// heartbeat emits a periodic progress line so an external liveness monitor
// can tell the ingest loop is alive.
func (z *Zapboard) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			z.logger.Infof("zap listener alive: %d receipts processed", z.processed.Load())
		}
	}
}
