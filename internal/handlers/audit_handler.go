package handlers

import (
	"net/http"
	"time"

	"github.com/aurumpay/backend/internal/audit"
	"github.com/aurumpay/backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditHandler handles audit trail queries
type AuditHandler struct {
	auditLog *audit.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(auditLog *audit.Logger) *AuditHandler {
	return &AuditHandler{auditLog: auditLog}
}

// QueryEntries returns a filtered, paged slice of the audit trail. The
// trail is append-only; there is no mutating endpoint.
func (h *AuditHandler) QueryEntries(c *gin.Context) {
	page, pageSize := pagination(c)

	filters := audit.QueryFilters{
		EntityType: c.Query("entity_type"),
		ActionType: models.AuditActionType(c.Query("action_type")),
	}

	if raw := c.Query("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity ID"})
			return
		}
		filters.EntityID = &id
	}
	if raw := c.Query("actor"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor ID"})
			return
		}
		filters.Actor = &id
	}
	if raw := c.Query("start_time"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start_time must be RFC3339"})
			return
		}
		filters.StartTime = &t
	}
	if raw := c.Query("end_time"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_time must be RFC3339"})
			return
		}
		filters.EndTime = &t
	}

	entries, total, err := h.auditLog.Query(filters, pageSize, (page-1)*pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query audit trail"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":   entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// EntityHistory returns the full audit history for one entity
func (h *AuditHandler) EntityHistory(c *gin.Context) {
	entityType := c.Param("entity_type")
	entityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity ID"})
		return
	}

	entries, err := h.auditLog.EntityHistory(entityType, entityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load entity history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
