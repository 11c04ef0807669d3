package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditActionType represents the kind of transition an audit entry records
type AuditActionType string

const (
	AuditActionRequestCreated      AuditActionType = "REQUEST_CREATED"
	AuditActionRequestTransition   AuditActionType = "REQUEST_TRANSITION"
	AuditActionRequestApproved     AuditActionType = "REQUEST_APPROVED"
	AuditActionRequestRejected     AuditActionType = "REQUEST_REJECTED"
	AuditActionRequestCancelled    AuditActionType = "REQUEST_CANCELLED"
	AuditActionRequestExpired      AuditActionType = "REQUEST_EXPIRED"
	AuditActionReportGenerated     AuditActionType = "REPORT_GENERATED"
	AuditActionReportReviewed      AuditActionType = "REPORT_REVIEWED"
	AuditActionGateTicketIssued    AuditActionType = "GATE_TICKET_ISSUED"
	AuditActionGateVerifySucceeded AuditActionType = "GATE_VERIFY_SUCCEEDED"
	AuditActionGateVerifyFailed    AuditActionType = "GATE_VERIFY_FAILED"
	AuditActionGateSettingChanged  AuditActionType = "GATE_SETTING_CHANGED"
)

// AuditEntry is one row of the append-only compliance ledger. Entries are
// immutable once written; there is no update or delete path.
type AuditEntry struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	EntityType string          `gorm:"type:varchar(50);index;not null" json:"entity_type"`
	EntityID   uuid.UUID       `gorm:"type:uuid;index;not null" json:"entity_id"`
	Actor      uuid.UUID       `gorm:"type:uuid;index" json:"actor"`
	ActorRole  string          `gorm:"type:varchar(20)" json:"actor_role"`
	ActionType AuditActionType `gorm:"type:varchar(50);index;not null" json:"action_type"`
	OldValue   string          `gorm:"type:text" json:"old_value"`
	NewValue   string          `gorm:"type:text" json:"new_value"`
	Timestamp  time.Time       `gorm:"index;not null" json:"timestamp"`
	CreatedAt  time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

// BeforeCreate sets the entry ID
func (e *AuditEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
