package repository

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/davidebtc/zapboard/internal/models"
	"github.com/davidebtc/zapboard/pkg/logger"
)

type PostgresDB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (models.Repository, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // Use standard logger
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond, // Log queries slower than this
			LogLevel:                  gormLogger.Warn,        // Only log warnings or errors
			IgnoreRecordNotFoundError: true,                   // Suppress "record not found" errors
			Colorful:                  true,                   // Enable colorful logs
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %s", err)
	}

	if err := db.AutoMigrate(&models.ZapRecord{}, &models.StateEntry{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %s", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return &PostgresDB{Conn: db, logger: logger}, nil
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

// TryRecord inserts the record with ON CONFLICT (receipt_id) DO NOTHING.
// The primary key constraint makes concurrent duplicate deliveries race to
// exactly one inserted row; losers get the already stored record back.
func (db *PostgresDB) TryRecord(record *models.ZapRecord) (bool, *models.ZapRecord, error) {
	res := db.Conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "receipt_id"}},
		DoNothing: true,
	}).Create(record)
	if res.Error != nil {
		return false, nil, fmt.Errorf("failed to record zap receipt: %s", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil, nil
	}

	var existing models.ZapRecord
	if err := db.Conn.Where("receipt_id = ?", record.ReceiptID).First(&existing).Error; err != nil {
		return false, nil, fmt.Errorf("failed to load existing zap record: %s", err)
	}
	return false, &existing, nil
}

func (db *PostgresDB) IsProcessed(receiptID string) (bool, error) {
	var record models.ZapRecord
	if err := db.Conn.Select("receipt_id").Where("receipt_id = ?", receiptID).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check if receipt is processed: %s", err)
	}

	return true, nil
}

func (db *PostgresDB) RecordsForWeek(weekKey string) ([]*models.ZapRecord, error) {
	var records []*models.ZapRecord
	if err := db.Conn.Where("week_key = ?", weekKey).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get records for week %s: %s", weekKey, err)
	}

	return records, nil
}

// WeekTotals aggregates the counted records of a week into ranked rows,
// descending by sats with payer pubkey as the stable tie break.
func (db *PostgresDB) WeekTotals(weekKey string, limit int) ([]*models.WeekTotal, error) {
	var totals []*models.WeekTotal
	query := db.Conn.Model(&models.ZapRecord{}).
		Select("payer_pubkey, SUM(sats) AS sats, COUNT(*) AS count").
		Where("week_key = ? AND counted = ? AND payer_pubkey <> ''", weekKey, true).
		Group("payer_pubkey").
		Order("sats DESC, payer_pubkey ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&totals).Error; err != nil {
		return nil, fmt.Errorf("failed to get week totals: %s", err)
	}

	return totals, nil
}

func (db *PostgresDB) CountRecords() (int64, error) {
	var count int64
	if err := db.Conn.Model(&models.ZapRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count zap records: %s", err)
	}

	return count, nil
}

func (db *PostgresDB) GetState(key, fallback string) (string, error) {
	var entry models.StateEntry
	if err := db.Conn.Where("k = ?", key).First(&entry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fallback, nil
		}
		return "", fmt.Errorf("failed to get state %s: %s", key, err)
	}

	return entry.Value, nil
}

func (db *PostgresDB) SetState(key, value string) error {
	entry := models.StateEntry{Key: key, Value: value}
	err := db.Conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "k"}},
		DoUpdates: clause.AssignmentColumns([]string{"v"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to set state %s: %s", key, err)
	}
	return nil
}
