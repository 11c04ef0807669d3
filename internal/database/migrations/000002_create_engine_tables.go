package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// createEngineTablesMigration creates custody, movement, reconciliation,
// gate and audit tables
func createEngineTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_engine_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS vault_holdings (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					location VARCHAR(100) NOT NULL,
					gold_grams DECIMAL(20,8) NOT NULL,
					bar_serial VARCHAR(100),
					active BOOLEAN DEFAULT TRUE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS collateral_locks (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					user_id UUID NOT NULL,
					loan_ref VARCHAR(100),
					gold_grams DECIMAL(20,8) NOT NULL,
					status VARCHAR(20) DEFAULT 'active',
					released_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS trade_finance_locks (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					user_id UUID NOT NULL,
					trade_ref VARCHAR(100),
					gold_grams DECIMAL(20,8) NOT NULL,
					status VARCHAR(20) DEFAULT 'active',
					due_date TIMESTAMP WITH TIME ZONE,
					released_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS money_movement_requests (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					request_type VARCHAR(30) NOT NULL,
					user_id UUID NOT NULL REFERENCES users(id),
					counterparty_id UUID,
					amount_usd DECIMAL(20,8) DEFAULT 0,
					amount_gold DECIMAL(20,8) DEFAULT 0,
					currency VARCHAR(3) DEFAULT 'USD',
					reference_number VARCHAR(100) UNIQUE,
					status VARCHAR(20) NOT NULL,
					evidence JSONB,
					processed_by UUID,
					processed_at TIMESTAMP WITH TIME ZONE,
					rejection_reason TEXT,
					expires_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_mmr_status ON money_movement_requests(status);
				CREATE INDEX IF NOT EXISTS idx_mmr_type ON money_movement_requests(request_type);
				CREATE INDEX IF NOT EXISTS idx_mmr_user ON money_movement_requests(user_id);
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS reconciliation_reports (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					report_date DATE NOT NULL,
					source VARCHAR(20) NOT NULL,
					total_gold_grams DECIMAL(20,8),
					total_claims_grams DECIMAL(20,8),
					delta_grams DECIMAL(20,8),
					total_usd_value DECIMAL(20,8),
					transaction_count BIGINT DEFAULT 0,
					deposit_count BIGINT DEFAULT 0,
					withdrawal_count BIGINT DEFAULT 0,
					gold_inflow_grams DECIMAL(20,8),
					gold_outflow_grams DECIMAL(20,8),
					net_gold_change DECIMAL(20,8),
					status VARCHAR(30) NOT NULL,
					generated_by UUID,
					reviewed_by UUID,
					reviewed_at TIMESTAMP WITH TIME ZONE,
					review_notes TEXT,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					UNIQUE(report_date, source)
				);

				CREATE TABLE IF NOT EXISTS discrepancies (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					report_id UUID NOT NULL REFERENCES reconciliation_reports(id),
					module VARCHAR(50) NOT NULL,
					expected_grams DECIMAL(20,8),
					actual_grams DECIMAL(20,8),
					delta_grams DECIMAL(20,8),
					explanation TEXT,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_discrepancies_report ON discrepancies(report_id);
			`).Error; err != nil {
				return err
			}

			return tx.Exec(`
				CREATE TABLE IF NOT EXISTS approval_gate_tickets (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					actor_id UUID NOT NULL,
					action_type VARCHAR(50) NOT NULL,
					target_id UUID NOT NULL,
					target_type VARCHAR(50),
					code_hash VARCHAR(255) NOT NULL,
					expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
					attempts_remaining INT NOT NULL,
					verified_at TIMESTAMP WITH TIME ZONE,
					consumed_at TIMESTAMP WITH TIME ZONE,
					invalidated_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_gate_tickets_target ON approval_gate_tickets(target_id);

				CREATE TABLE IF NOT EXISTS gate_settings (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					action_type VARCHAR(50) NOT NULL UNIQUE,
					required BOOLEAN DEFAULT TRUE,
					updated_by UUID,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS audit_entries (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					entity_type VARCHAR(50) NOT NULL,
					entity_id UUID NOT NULL,
					actor UUID,
					actor_role VARCHAR(20),
					action_type VARCHAR(50) NOT NULL,
					old_value TEXT,
					new_value TEXT,
					timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_entries(entity_type, entity_id);
				CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp);
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			for _, table := range []string{
				"audit_entries", "gate_settings", "approval_gate_tickets",
				"discrepancies", "reconciliation_reports", "money_movement_requests",
				"trade_finance_locks", "collateral_locks", "vault_holdings",
			} {
				if err := tx.Exec("DROP TABLE IF EXISTS " + table).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}
