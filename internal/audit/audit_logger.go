package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aurumpay/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entry describes one transition to record. Old and New are serialized to
// JSON before persisting.
type Entry struct {
	EntityType string
	EntityID   uuid.UUID
	Actor      uuid.UUID
	ActorRole  string
	ActionType models.AuditActionType
	Old        interface{}
	New        interface{}
}

// Logger writes and queries the append-only audit ledger
type Logger struct {
	db *gorm.DB
}

// NewLogger creates a new audit logger
func NewLogger(db *gorm.DB) *Logger {
	return &Logger{db: db}
}

// Append durably writes one audit entry using the caller's transaction.
// Callers append inside the same transaction as the transition they
// record, so a failed audit write rolls the transition back: an
// unauditable fund movement must never commit.
func (l *Logger) Append(tx *gorm.DB, e Entry) error {
	oldJSON, err := marshalValue(e.Old)
	if err != nil {
		return fmt.Errorf("failed to marshal audit old value: %w", err)
	}
	newJSON, err := marshalValue(e.New)
	if err != nil {
		return fmt.Errorf("failed to marshal audit new value: %w", err)
	}

	entry := models.AuditEntry{
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Actor:      e.Actor,
		ActorRole:  e.ActorRole,
		ActionType: e.ActionType,
		OldValue:   oldJSON,
		NewValue:   newJSON,
		Timestamp:  time.Now().UTC(),
	}

	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	return nil
}

// QueryFilters narrows an audit query. Zero values are ignored.
type QueryFilters struct {
	EntityType string
	EntityID   *uuid.UUID
	Actor      *uuid.UUID
	ActionType models.AuditActionType
	StartTime  *time.Time
	EndTime    *time.Time
}

// Query returns matching audit entries, newest first, with a total count
// for pagination. There is no update or delete counterpart.
func (l *Logger) Query(filters QueryFilters, limit, offset int) ([]models.AuditEntry, int64, error) {
	var entries []models.AuditEntry
	var count int64

	query := l.db.Model(&models.AuditEntry{})

	if filters.EntityType != "" {
		query = query.Where("entity_type = ?", filters.EntityType)
	}
	if filters.EntityID != nil {
		query = query.Where("entity_id = ?", filters.EntityID)
	}
	if filters.Actor != nil {
		query = query.Where("actor = ?", filters.Actor)
	}
	if filters.ActionType != "" {
		query = query.Where("action_type = ?", filters.ActionType)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", filters.EndTime)
	}

	if err := query.Count(&count).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("timestamp DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, count, nil
}

// EntityHistory returns the full trail for one entity, oldest first, for
// replay and compliance review.
func (l *Logger) EntityHistory(entityType string, entityID uuid.UUID) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	if err := l.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("timestamp ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func marshalValue(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
