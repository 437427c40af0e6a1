package models

type Repository interface {
	// TryRecord atomically inserts the record, keyed by receipt id. It returns
	// inserted=false with the existing row when the receipt was already
	// processed; exactly one of any set of concurrent callers sees
	// inserted=true.
	TryRecord(record *ZapRecord) (inserted bool, existing *ZapRecord, err error)
	// IsProcessed is a cheap pre-check only; it can race and is never a
	// substitute for TryRecord.
	IsProcessed(receiptID string) (bool, error)

	RecordsForWeek(weekKey string) ([]*ZapRecord, error)
	WeekTotals(weekKey string, limit int) ([]*WeekTotal, error)
	CountRecords() (int64, error)

	GetState(key, fallback string) (string, error)
	SetState(key, value string) error

	Close() error
}
