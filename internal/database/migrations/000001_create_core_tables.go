package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// createCoreTablesMigration creates users, wallets and the ledger
func createCoreTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_core_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Exec(`
				CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					email VARCHAR(255) NOT NULL UNIQUE,
					password VARCHAR(255) NOT NULL,
					first_name VARCHAR(255),
					last_name VARCHAR(255),
					phone VARCHAR(30),
					role VARCHAR(20) DEFAULT 'customer',
					is_admin BOOLEAN DEFAULT FALSE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS wallets (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					user_id UUID NOT NULL UNIQUE REFERENCES users(id),
					gold_grams DECIMAL(20,8) DEFAULT 0,
					usd_balance DECIMAL(20,8) DEFAULT 0,
					eur_balance DECIMAL(20,8) DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_wallets_user_id ON wallets(user_id);
			`).Error; err != nil {
				return err
			}

			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS ledger_entries (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					request_id UUID NOT NULL,
					wallet_id UUID NOT NULL REFERENCES wallets(id),
					gold_grams_delta DECIMAL(20,8) DEFAULT 0,
					usd_delta DECIMAL(20,8) DEFAULT 0,
					eur_delta DECIMAL(20,8) DEFAULT 0,
					gold_before DECIMAL(20,8),
					gold_after DECIMAL(20,8),
					usd_before DECIMAL(20,8),
					usd_after DECIMAL(20,8),
					description TEXT,
					reference_number VARCHAR(100),
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					UNIQUE(request_id, wallet_id)
				);

				CREATE INDEX IF NOT EXISTS idx_ledger_entries_wallet_id ON ledger_entries(wallet_id);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			if err := tx.Exec("DROP TABLE IF EXISTS ledger_entries").Error; err != nil {
				return err
			}
			if err := tx.Exec("DROP TABLE IF EXISTS wallets").Error; err != nil {
				return err
			}
			return tx.Exec("DROP TABLE IF EXISTS users").Error
		},
	}
}
