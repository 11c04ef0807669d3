package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RequestType identifies what kind of money movement a request performs
type RequestType string

const (
	RequestTypeDeposit       RequestType = "deposit"
	RequestTypeWithdrawal    RequestType = "withdrawal"
	RequestTypeCryptoPayment RequestType = "crypto_payment"
	RequestTypeGoldPurchase  RequestType = "gold_purchase"
	RequestTypePeerTransfer  RequestType = "peer_transfer"
	RequestTypePeerRequest   RequestType = "peer_request"
)

// RequestStatus represents the workflow state of a money-movement request
type RequestStatus string

const (
	RequestStatusPending     RequestStatus = "pending"
	RequestStatusUnderReview RequestStatus = "under_review"
	RequestStatusProcessing  RequestStatus = "processing"
	RequestStatusCompleted   RequestStatus = "completed"
	RequestStatusCredited    RequestStatus = "credited"
	RequestStatusRejected    RequestStatus = "rejected"
	RequestStatusCancelled   RequestStatus = "cancelled"
	RequestStatusExpired     RequestStatus = "expired"
)

// IsTerminal reports whether no further transition is legal from s
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusCompleted, RequestStatusCredited, RequestStatusRejected,
		RequestStatusCancelled, RequestStatusExpired:
		return true
	}
	return false
}

// MoneyMovementRequest unifies deposit, withdrawal, crypto-payment,
// gold-purchase and peer-transfer requests under one workflow. A request
// maps to at most one ledger effect, applied exactly once on the
// transition into its funds-moved terminal status.
type MoneyMovementRequest struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	RequestType     RequestType     `gorm:"type:varchar(30);not null;index" json:"request_type"`
	UserID          uuid.UUID       `gorm:"type:uuid;index" json:"user_id"`
	User            User            `gorm:"foreignKey:UserID" json:"-"`
	CounterpartyID  *uuid.UUID      `gorm:"type:uuid" json:"counterparty_id"` // peer transfer recipient
	AmountUSD       decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"amount_usd"`
	AmountGold      decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"amount_gold"`
	Currency        Currency        `gorm:"type:varchar(3);default:'USD'" json:"currency"`
	ReferenceNumber string          `gorm:"type:varchar(100);uniqueIndex" json:"reference_number"`
	Status          RequestStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	Evidence        JSON            `gorm:"type:jsonb" json:"evidence"` // proof of payment, tx hash, receipt
	ProcessedBy     *uuid.UUID      `gorm:"type:uuid" json:"processed_by"`
	ProcessedAt     *time.Time      `json:"processed_at"`
	RejectionReason string          `gorm:"type:text" json:"rejection_reason"`
	ExpiresAt       *time.Time      `json:"expires_at"` // unclaimed peer requests
	CreatedAt       time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`
}

// BeforeCreate sets the request ID
func (r *MoneyMovementRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// TerminalStatus returns the funds-moved terminal status for the request
// type: crypto payments and deposits credit a wallet, everything else
// completes.
func (r *MoneyMovementRequest) TerminalStatus() RequestStatus {
	switch r.RequestType {
	case RequestTypeCryptoPayment, RequestTypeDeposit:
		return RequestStatusCredited
	}
	return RequestStatusCompleted
}
