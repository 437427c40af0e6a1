// Package compose renders the thank-you reply and the leaderboard post.
// Pure template substitution, no state.
package compose

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/davidebtc/zapboard/internal/aggregate"
)

// Thanks substitutes {sats}, {who} and {rank} in the template. When the
// amount is unknown the configured label is used instead of "0" so the reply
// never implies a zero-value payment. who is the pre-rendered payer label
// ("" when the payer is unknown).
func Thanks(template string, sats int64, unknown bool, unknownLabel, who string, rank int) string {
	satsStr := strconv.FormatInt(sats, 10)
	if unknown {
		satsStr = unknownLabel
	}
	whoStr := ""
	if who != "" {
		whoStr = " (nostr:" + who + ")"
	}
	return strings.NewReplacer(
		"{sats}", satsStr,
		"{who}", whoStr,
		"{rank}", strconv.Itoa(rank),
	).Replace(template)
}

// Leaderboard renders the weekly top list. labelFor maps a payer pubkey to
// its display form (npub or truncated hex).
func Leaderboard(weekKey string, entries []aggregate.Entry, labelFor func(string) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚡ Weekly Zap Leaderboard — %s\n", weekKey)
	for i, entry := range entries {
		fmt.Fprintf(&b, "\n%d) %s — %s sats (%d zaps)",
			i+1, labelFor(entry.PayerPubkey), groupDigits(entry.Sats), entry.Count)
	}
	return b.String()
}

// groupDigits formats n with comma thousands separators.
func groupDigits(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
