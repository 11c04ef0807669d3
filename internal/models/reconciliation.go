package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Snapshot is an immutable point-in-time view of physical custody and
// every digital claim against it. It is produced fresh per reconciliation
// run and never mutated after creation.
type Snapshot struct {
	AsOf                        time.Time                    `json:"as_of"`
	PhysicalGoldGrams           decimal.Decimal              `json:"physical_gold_grams"`
	WalletGoldGrams             decimal.Decimal              `json:"wallet_gold_grams"`
	LockedCollateralGoldGrams   decimal.Decimal              `json:"locked_collateral_gold_grams"`
	TradeFinanceLockedGoldGrams decimal.Decimal              `json:"trade_finance_locked_gold_grams"`
	CashByCurrency              map[Currency]decimal.Decimal `json:"cash_by_currency"`
	VaultByLocation             map[string]decimal.Decimal   `json:"vault_by_location"`
}

// Claims returns the sum of all digital claims in the snapshot
func (s Snapshot) Claims() decimal.Decimal {
	return s.WalletGoldGrams.
		Add(s.LockedCollateralGoldGrams).
		Add(s.TradeFinanceLockedGoldGrams)
}

// ReportStatus represents the review state of a reconciliation report
type ReportStatus string

const (
	ReportStatusBalanced         ReportStatus = "balanced"
	ReportStatusDiscrepancyFound ReportStatus = "discrepancy_found"
	ReportStatusPendingReview    ReportStatus = "pending_review"
	ReportStatusResolved         ReportStatus = "resolved"
)

// ReportSource tags how a report generation was triggered
type ReportSource string

const (
	ReportSourceScheduled ReportSource = "scheduled"
	ReportSourceManual    ReportSource = "manual"
)

// ReconciliationReport is the persisted outcome of comparing physical
// gold in custody against the sum of all digital claims. Reports are a
// regulatory record and are never deleted.
type ReconciliationReport struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	ReportDate       time.Time       `gorm:"type:date;uniqueIndex:idx_report_date_source;not null" json:"report_date"`
	Source           ReportSource    `gorm:"type:varchar(20);uniqueIndex:idx_report_date_source;not null" json:"source"`
	TotalGoldGrams   decimal.Decimal `gorm:"type:decimal(20,8)" json:"total_gold_grams"`
	TotalClaimsGrams decimal.Decimal `gorm:"type:decimal(20,8)" json:"total_claims_grams"`
	DeltaGrams       decimal.Decimal `gorm:"type:decimal(20,8)" json:"delta_grams"`
	TotalUSDValue    decimal.Decimal `gorm:"type:decimal(20,8)" json:"total_usd_value"`
	TransactionCount int64           `json:"transaction_count"`
	DepositCount     int64           `json:"deposit_count"`
	WithdrawalCount  int64           `json:"withdrawal_count"`
	GoldInflowGrams  decimal.Decimal `gorm:"type:decimal(20,8)" json:"gold_inflow_grams"`
	GoldOutflowGrams decimal.Decimal `gorm:"type:decimal(20,8)" json:"gold_outflow_grams"`
	NetGoldChange    decimal.Decimal `gorm:"type:decimal(20,8)" json:"net_gold_change"`
	Discrepancies    []Discrepancy   `gorm:"foreignKey:ReportID" json:"discrepancies"`
	Status           ReportStatus    `gorm:"type:varchar(30);not null;index" json:"status"`
	GeneratedBy      uuid.UUID       `gorm:"type:uuid" json:"generated_by"`
	ReviewedBy       *uuid.UUID      `gorm:"type:uuid" json:"reviewed_by"`
	ReviewedAt       *time.Time      `json:"reviewed_at"`
	ReviewNotes      string          `gorm:"type:text" json:"review_notes"`
	CreatedAt        time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate sets the report ID
func (r *ReconciliationReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Discrepancy records an expected-vs-actual mismatch for one contributing
// module. Discrepancies exist only inside their report's lifetime.
type Discrepancy struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	ReportID      uuid.UUID       `gorm:"type:uuid;index;not null" json:"report_id"`
	Module        string          `gorm:"type:varchar(50);not null" json:"module"`
	ExpectedGrams decimal.Decimal `gorm:"type:decimal(20,8)" json:"expected_grams"`
	ActualGrams   decimal.Decimal `gorm:"type:decimal(20,8)" json:"actual_grams"`
	DeltaGrams    decimal.Decimal `gorm:"type:decimal(20,8)" json:"delta_grams"`
	Explanation   string          `gorm:"type:text" json:"explanation"`
	CreatedAt     time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

// BeforeCreate sets the discrepancy ID
func (d *Discrepancy) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
