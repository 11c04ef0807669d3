package handlers

import (
	"errors"
	"net/http"

	"github.com/aurumpay/backend/internal/models"
	"github.com/aurumpay/backend/internal/services/gate"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GateHandler handles step-up authentication requests
type GateHandler struct {
	db      *gorm.DB
	gateSvc *gate.Service
}

// NewGateHandler creates a new gate handler
func NewGateHandler(db *gorm.DB, gateSvc *gate.Service) *GateHandler {
	return &GateHandler{db: db, gateSvc: gateSvc}
}

// RequestTicket issues a step-up ticket and sends a one-time code out of
// band. The code itself never appears in the response.
func (h *GateHandler) RequestTicket(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}

	var input struct {
		ActionType models.GateActionType `json:"action_type" binding:"required"`
		TargetID   uuid.UUID             `json:"target_id" binding:"required"`
		TargetType string                `json:"target_type"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket, err := h.gateSvc.RequestTicket(c.Request.Context(), actorID, input.ActionType, input.TargetID, input.TargetType)
	if err != nil {
		if errors.Is(err, gate.ErrCooldown) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "please wait before requesting another code"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue ticket"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"ticket_id":  ticket.ID,
		"expires_at": ticket.ExpiresAt,
	})
}

// VerifyTicket checks a one-time code against a ticket
func (h *GateHandler) VerifyTicket(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}

	var input struct {
		TicketID uuid.UUID `json:"ticket_id" binding:"required"`
		Code     string    `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// A ticket is only verifiable by the actor it was issued to
	var ticket models.ApprovalGateTicket
	if err := h.db.First(&ticket, "id = ?", input.TicketID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}
	if ticket.ActorID != actorID {
		c.JSON(http.StatusForbidden, gin.H{"error": "ticket belongs to another actor"})
		return
	}

	verdict, err := h.gateSvc.Verify(c.Request.Context(), input.TicketID, input.Code)
	if err != nil {
		if errors.Is(err, gate.ErrAlreadyVerified) {
			c.JSON(http.StatusConflict, gin.H{"error": "ticket already verified"})
			return
		}
		if errors.Is(err, gate.ErrTicketNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify ticket"})
		return
	}

	status := http.StatusOK
	if verdict != gate.VerifiedOK {
		status = http.StatusForbidden
	}
	c.JSON(status, gin.H{"verdict": verdict})
}

// GetSettings returns the per-action-type gate toggles
func (h *GateHandler) GetSettings(c *gin.Context) {
	var settings []models.GateSetting
	if err := h.db.Order("action_type").Find(&settings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load gate settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// UpdateSetting toggles whether an action type requires the gate
func (h *GateHandler) UpdateSetting(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}

	var input struct {
		ActionType models.GateActionType `json:"action_type" binding:"required"`
		Required   *bool                 `json:"required" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.gateSvc.SetRequired(c.Request.Context(), input.ActionType, *input.Required, actorID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update gate setting"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"action_type": input.ActionType,
		"required":    *input.Required,
	})
}
