package database

import (
	"fmt"
	"time"

	"github.com/aurumpay/backend/internal/config"
	"github.com/aurumpay/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB initializes the database connection with configuration
func InitDB(dbConfig config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(postgres.Open(dbConfig.URL), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdle)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Migrate runs database migrations
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// Users and wallets
		&models.User{},
		&models.Wallet{},
		&models.LedgerEntry{},

		// Physical custody and locks
		&models.VaultHolding{},
		&models.CollateralLock{},
		&models.TradeFinanceLock{},

		// Money movement
		&models.MoneyMovementRequest{},

		// Reconciliation
		&models.ReconciliationReport{},
		&models.Discrepancy{},

		// Step-up gate
		&models.ApprovalGateTicket{},
		&models.GateSetting{},

		// Audit trail
		&models.AuditEntry{},
	)
}
