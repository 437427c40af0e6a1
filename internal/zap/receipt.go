// Package zap holds the zap receipt model and the amount resolution logic.
package zap

// Source identifies which field of a receipt an amount was resolved from.
type Source string

const (
	SourceReceiptAmount  Source = "receipt_amount"
	SourceInvoiceHRP     Source = "invoice_hrp"
	SourceDescriptionTag Source = "description_tag"
	SourceUnknown        Source = "unknown"
)

// Receipt is the fixed-shape view of a kind-9735 zap receipt. It is
// constructed only at the relay boundary, after the event layer has checked
// the event kind and signature; the pipeline never re-validates it.
type Receipt struct {
	// ID is the unique event id of the receipt.
	ID string
	// PayerPubkey is the zapper, taken from the zap request description
	// with the receipt's P tag as fallback.
	PayerPubkey string
	// RecipientPubkey is the zapped account (first p tag match).
	RecipientPubkey string
	// CreatedAt is the event timestamp (unix seconds).
	CreatedAt int64
	// AmountMsat is the receipt-level amount tag in millisatoshi, if present.
	AmountMsat *int64
	// Invoice is the bolt11 invoice string, if present.
	Invoice string
	// DescriptionAmountMsat is the amount tag inside the zap request
	// description, if present.
	DescriptionAmountMsat *int64
	// NoteID is the zapped note (e tag), if any.
	NoteID string
	// Relays are the relay URLs advertised in the zap request.
	Relays []string
}

// Resolved is the outcome of amount resolution for one receipt.
type Resolved struct {
	Sats    int64
	Source  Source
	Clamped bool
}

// Unknown reports whether no trustworthy amount could be extracted.
func (r Resolved) Unknown() bool {
	return r.Source == SourceUnknown
}
