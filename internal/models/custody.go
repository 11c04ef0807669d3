package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VaultHolding represents physical gold stored at a custody location.
// The sum over all active holdings is the backing asset every digital
// claim is reconciled against.
type VaultHolding struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	Location  string          `gorm:"type:varchar(100);not null" json:"location"`
	GoldGrams decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"gold_grams"`
	BarSerial string          `gorm:"type:varchar(100)" json:"bar_serial"`
	Active    bool            `gorm:"default:true" json:"active"`
	CreatedAt time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate sets the holding ID
func (v *VaultHolding) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// LockStatus represents the state of a gold lock
type LockStatus string

const (
	LockStatusActive   LockStatus = "active"
	LockStatusReleased LockStatus = "released"
)

// CollateralLock is gold pledged against a collateralized loan (BNSL).
// Locked grams count as a digital claim against physical custody.
type CollateralLock struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	UserID     uuid.UUID       `gorm:"type:uuid;index" json:"user_id"`
	LoanRef    string          `gorm:"type:varchar(100)" json:"loan_ref"`
	GoldGrams  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"gold_grams"`
	Status     LockStatus      `gorm:"type:varchar(20);default:'active'" json:"status"`
	ReleasedAt *time.Time      `json:"released_at"`
	CreatedAt  time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate sets the lock ID
func (c *CollateralLock) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// TradeFinanceLock is gold earmarked as collateral for a financed trade
// transaction.
type TradeFinanceLock struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	UserID     uuid.UUID       `gorm:"type:uuid;index" json:"user_id"`
	TradeRef   string          `gorm:"type:varchar(100)" json:"trade_ref"`
	GoldGrams  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"gold_grams"`
	Status     LockStatus      `gorm:"type:varchar(20);default:'active'" json:"status"`
	DueDate    *time.Time      `json:"due_date"`
	ReleasedAt *time.Time      `json:"released_at"`
	CreatedAt  time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate sets the lock ID
func (l *TradeFinanceLock) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
