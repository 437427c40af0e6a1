package models

// ZapRecord is the durable record of one processed zap receipt. The primary
// key on ReceiptID is the idempotency gate for the whole pipeline: a record
// is created exactly once per distinct receipt and never updated or deleted.
type ZapRecord struct {
	// ReceiptID is the unique event id of the zap receipt.
	ReceiptID string `json:"receipt_id" gorm:"column:receipt_id;primaryKey"`
	// PayerPubkey is the zapper's public key in hex.
	PayerPubkey string `json:"payer_pubkey" gorm:"column:payer_pubkey;index"`
	// NoteID is the zapped note id, if the zap targeted one.
	NoteID string `json:"note_id" gorm:"column:note_id"`
	// Sats is the resolved amount in satoshis (0 when the source is unknown).
	Sats int64 `json:"sats" gorm:"column:sats"`
	// Source records which receipt field the amount was resolved from.
	Source string `json:"source" gorm:"column:source"`
	// Clamped is set when the resolved amount exceeded the configured bound.
	Clamped bool `json:"clamped" gorm:"column:clamped"`
	// Counted is set when the record contributes to weekly totals. Self-zaps,
	// below-threshold and unknown-amount receipts are stored with Counted=false.
	Counted bool `json:"counted" gorm:"column:counted;index"`
	// CreatedAt is the receipt's event timestamp (unix seconds).
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;index"`
	// ProcessedAt is when this service recorded the receipt (unix seconds).
	ProcessedAt int64 `json:"processed_at" gorm:"column:processed_at"`
	// WeekKey is the ISO week bucket derived from CreatedAt.
	WeekKey string `json:"week_key" gorm:"column:week_key;index"`
}

// TableName specifies the table name for GORM
func (ZapRecord) TableName() string {
	return "zap_records"
}

// StateEntry is a key/value row for small process state such as the
// subscription cursor and the last leaderboard publish time.
type StateEntry struct {
	Key   string `gorm:"column:k;primaryKey;size:64"`
	Value string `gorm:"column:v;not null"`
}

// TableName specifies the table name for GORM
func (StateEntry) TableName() string {
	return "state"
}

// State keys used by the service.
const (
	StateLastSince       = "last_since"
	StateLastPublishedAt = "last_published_at"
	StateLastPublishedWk = "last_published_week"
)

// WeekTotal is one aggregated leaderboard row for a week.
type WeekTotal struct {
	PayerPubkey string `json:"payer_pubkey"`
	Sats        int64  `json:"sats"`
	Count       int64  `json:"count"`
}
