package models

import (
	"context"

	"github.com/davidebtc/zapboard/internal/zap"
	"github.com/davidebtc/zapboard/pkg/nostr"
)

// RelayService represents the connection to the Nostr relay network. It
// delivers candidate zap receipts, already filtered to kind 9735,
// signature-checked and addressed to the service's pubkey.
type RelayService interface {
	// Subscribe opens the relay connections and requests zap receipts newer
	// than since. Receipts arrive on the Receipts channel until ctx ends.
	Subscribe(ctx context.Context, since int64) error
	Receipts() <-chan *zap.Receipt
	// Publish broadcasts a signed event to the configured relays plus any
	// extra relays advertised by the zap request.
	Publish(event *nostr.Event, extraRelays []string) error
	Close()
}

// Notifier is the operator alert channel.
type Notifier interface {
	Alert(message string)
}

// ZapboardI is the main application interface.
type ZapboardI interface {
	// Start replays persisted state and runs the ingest loop until ctx ends.
	Start(ctx context.Context) error

	// LeaderboardFor returns the ranked totals for a week.
	LeaderboardFor(weekKey string, top int) ([]*WeekTotal, error)

	// PublishLeaderboard renders and posts the leaderboard for a week,
	// bypassing the debounce window. Used by the CLI subcommand.
	PublishLeaderboard(weekKey string, top int) error

	// Stats reports ledger counters for the ops API.
	Stats() (total int64, currentWeek string, err error)
}
