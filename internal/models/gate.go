package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GateActionType identifies the sensitive action a step-up ticket covers
type GateActionType string

const (
	GateActionApproveWithdrawal   GateActionType = "approve_withdrawal"
	GateActionApproveDeposit      GateActionType = "approve_deposit"
	GateActionApproveCryptoCredit GateActionType = "approve_crypto_credit"
	GateActionApproveGoldPurchase GateActionType = "approve_gold_purchase"
	GateActionApprovePeerTransfer GateActionType = "approve_peer_transfer"
	GateActionResolveDiscrepancy  GateActionType = "resolve_discrepancy"
)

// ApprovalGateTicket binds a one-time code to a specific
// (actor, action type, target) tuple. A ticket verifies at most once and
// authorizes at most one approval.
type ApprovalGateTicket struct {
	ID                uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ActorID           uuid.UUID      `gorm:"type:uuid;index;not null" json:"actor_id"`
	ActionType        GateActionType `gorm:"type:varchar(50);not null" json:"action_type"`
	TargetID          uuid.UUID      `gorm:"type:uuid;index;not null" json:"target_id"`
	TargetType        string         `gorm:"type:varchar(50)" json:"target_type"`
	CodeHash          string         `gorm:"type:varchar(255);not null" json:"-"`
	ExpiresAt         time.Time      `gorm:"not null" json:"expires_at"`
	AttemptsRemaining int            `gorm:"not null" json:"attempts_remaining"`
	VerifiedAt        *time.Time     `json:"verified_at"`
	ConsumedAt        *time.Time     `json:"consumed_at"`
	InvalidatedAt     *time.Time     `json:"invalidated_at"`
	CreatedAt         time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate sets the ticket ID
func (t *ApprovalGateTicket) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// GateSetting is the operator-toggleable flag deciding whether an action
// type requires step-up authentication at all.
type GateSetting struct {
	ID         uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ActionType GateActionType `gorm:"type:varchar(50);uniqueIndex;not null" json:"action_type"`
	Required   bool           `gorm:"default:true" json:"required"`
	UpdatedBy  *uuid.UUID     `gorm:"type:uuid" json:"updated_by"`
	CreatedAt  time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate sets the setting ID
func (s *GateSetting) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// GateActionForRequest maps a money-movement request type to the gate
// action covering its approval.
func GateActionForRequest(t RequestType) GateActionType {
	switch t {
	case RequestTypeDeposit:
		return GateActionApproveDeposit
	case RequestTypeCryptoPayment:
		return GateActionApproveCryptoCredit
	case RequestTypeGoldPurchase:
		return GateActionApproveGoldPurchase
	case RequestTypePeerTransfer, RequestTypePeerRequest:
		return GateActionApprovePeerTransfer
	default:
		return GateActionApproveWithdrawal
	}
}
