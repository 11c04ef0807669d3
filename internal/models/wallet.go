package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Currency represents supported fiat currencies
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// Wallet represents a user's digital holdings: a gold claim against
// physical custody plus fiat cash balances.
type Wallet struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	UserID     uuid.UUID       `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	User       User            `gorm:"foreignKey:UserID" json:"-"`
	GoldGrams  decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"gold_grams"`
	USDBalance decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"usd_balance"`
	EURBalance decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"eur_balance"`
	CreatedAt  time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt  gorm.DeletedAt  `gorm:"index" json:"-"`
}

// BeforeCreate sets the wallet ID
func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// LedgerEntry records a single applied wallet effect. The unique index on
// (request_id, wallet_id) is the idempotency key: a money-movement request
// mutates a given wallet at most once, no matter how often its terminal
// transition is retried.
type LedgerEntry struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	RequestID       uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_ledger_request_wallet" json:"request_id"`
	WalletID        uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_ledger_request_wallet;index" json:"wallet_id"`
	GoldGramsDelta  decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"gold_grams_delta"`
	USDDelta        decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"usd_delta"`
	EURDelta        decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"eur_delta"`
	GoldBefore      decimal.Decimal `gorm:"type:decimal(20,8)" json:"gold_before"`
	GoldAfter       decimal.Decimal `gorm:"type:decimal(20,8)" json:"gold_after"`
	USDBefore       decimal.Decimal `gorm:"type:decimal(20,8)" json:"usd_before"`
	USDAfter        decimal.Decimal `gorm:"type:decimal(20,8)" json:"usd_after"`
	Description     string          `gorm:"type:text" json:"description"`
	ReferenceNumber string          `gorm:"type:varchar(100)" json:"reference_number"`
	CreatedAt       time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

// BeforeCreate sets the ledger entry ID
func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
