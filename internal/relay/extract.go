package relay

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/davidebtc/zapboard/internal/zap"
	"github.com/davidebtc/zapboard/pkg/nostr"
)

// zapRequest is the zap request JSON carried in a receipt's description tag.
type zapRequest struct {
	Pubkey string     `json:"pubkey"`
	Tags   [][]string `json:"tags"`
}

// ExtractReceipt builds the fixed-shape zap receipt from a raw kind-9735
// event. Tag inspection happens only here; the rest of the pipeline works on
// the typed receipt. Returns nil when the event is not addressed to
// ownPubkey (and is not a permitted self-zap).
func ExtractReceipt(event *nostr.Event, ownPubkey string, allowSelfZap bool) *zap.Receipt {
	if event.Kind != nostr.KindZapReceipt {
		return nil
	}

	receipt := &zap.Receipt{
		ID:        event.ID,
		CreatedAt: event.CreatedAt,
	}

	var descRecipients []string

	// zap request embedded in the description tag
	if descs := event.TagValues("description"); len(descs) > 0 {
		var req zapRequest
		if err := json.Unmarshal([]byte(descs[0]), &req); err == nil {
			receipt.PayerPubkey = req.Pubkey
			for _, tag := range req.Tags {
				if len(tag) < 2 {
					continue
				}
				switch tag[0] {
				case "e":
					if receipt.NoteID == "" {
						receipt.NoteID = tag[1]
					}
				case "p":
					descRecipients = append(descRecipients, tag[1])
				case "relays":
					for _, url := range tag[1:] {
						if strings.HasPrefix(url, "wss://") {
							receipt.Relays = append(receipt.Relays, strings.TrimSpace(url))
						}
					}
				case "amount":
					if msat, err := strconv.ParseInt(strings.TrimSpace(tag[1]), 10, 64); err == nil {
						receipt.DescriptionAmountMsat = &msat
					}
				}
			}
		}
	}

	// receipt-level amount tag (msat)
	if amounts := event.TagValues("amount"); len(amounts) > 0 {
		if msat, err := strconv.ParseInt(strings.TrimSpace(amounts[0]), 10, 64); err == nil {
			receipt.AmountMsat = &msat
		}
	}

	if invoices := event.TagValues("bolt11"); len(invoices) > 0 {
		receipt.Invoice = invoices[0]
	}

	eventRecipients := event.TagValues("p")

	// NIP-57 puts the zapper in the big-P tag; fall back to it when the
	// description carried no pubkey
	if receipt.PayerPubkey == "" {
		if payers := event.TagValues("P"); len(payers) > 0 {
			receipt.PayerPubkey = payers[0]
		}
	}
	if receipt.NoteID == "" {
		if notes := event.TagValues("e"); len(notes) > 0 {
			receipt.NoteID = notes[0]
		}
	}

	if len(eventRecipients) > 0 {
		receipt.RecipientPubkey = eventRecipients[0]
	} else if len(descRecipients) > 0 {
		receipt.RecipientPubkey = descRecipients[0]
	}

	matchDesc := contains(descRecipients, ownPubkey)
	matchEvent := contains(eventRecipients, ownPubkey)
	matchSelf := allowSelfZap && receipt.PayerPubkey == ownPubkey
	if !matchDesc && !matchEvent && !matchSelf {
		return nil
	}

	return receipt
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
