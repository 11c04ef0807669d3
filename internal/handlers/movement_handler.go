package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/aurumpay/backend/internal/models"
	"github.com/aurumpay/backend/internal/services/gate"
	"github.com/aurumpay/backend/internal/services/movement"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MovementHandler handles money-movement request operations
type MovementHandler struct {
	db          *gorm.DB
	movementSvc *movement.Service
}

// NewMovementHandler creates a new money-movement handler
func NewMovementHandler(db *gorm.DB, movementSvc *movement.Service) *MovementHandler {
	return &MovementHandler{db: db, movementSvc: movementSvc}
}

// CreateRequest creates a new money-movement request in Pending
func (h *MovementHandler) CreateRequest(c *gin.Context) {
	userID, ok := actorFromContext(c)
	if !ok {
		return
	}

	var input struct {
		RequestType    models.RequestType `json:"request_type" binding:"required"`
		CounterpartyID *uuid.UUID         `json:"counterparty_id"`
		AmountUSD      decimal.Decimal    `json:"amount_usd"`
		AmountGold     decimal.Decimal    `json:"amount_gold"`
		Currency       models.Currency    `json:"currency"`
		Evidence       models.JSON        `json:"evidence"`
		ExpiresInHours int                `json:"expires_in_hours"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var expiresAt *time.Time
	if input.ExpiresInHours > 0 {
		t := time.Now().UTC().Add(time.Duration(input.ExpiresInHours) * time.Hour)
		expiresAt = &t
	}

	req, err := h.movementSvc.Create(c.Request.Context(), movement.CreateParams{
		RequestType:    input.RequestType,
		UserID:         userID,
		CounterpartyID: input.CounterpartyID,
		AmountUSD:      input.AmountUSD,
		AmountGold:     input.AmountGold,
		Currency:       input.Currency,
		Evidence:       input.Evidence,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, movement.ErrUnknownRequestType):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown request type"})
		case errors.Is(err, movement.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "movement amount must be positive"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create request"})
		}
		return
	}

	c.JSON(http.StatusCreated, req)
}

// ListRequests returns a page of requests filtered by status and type
func (h *MovementHandler) ListRequests(c *gin.Context) {
	page, pageSize := pagination(c)
	status := models.RequestStatus(c.Query("status"))
	reqType := models.RequestType(c.Query("type"))

	requests, total, err := h.movementSvc.List(c.Request.Context(), status, reqType, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list requests"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requests":  requests,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetRequest returns one request
func (h *MovementHandler) GetRequest(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request ID"})
		return
	}

	req, err := h.movementSvc.Get(c.Request.Context(), requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get request"})
		return
	}

	c.JSON(http.StatusOK, req)
}

// StartReview moves a pending request under operator review
func (h *MovementHandler) StartReview(c *gin.Context) {
	h.transition(c, func(ctx *gin.Context, id, actor uuid.UUID) (*models.MoneyMovementRequest, error) {
		return h.movementSvc.StartReview(ctx.Request.Context(), id, actor)
	})
}

// MarkProcessing marks a request as processing
func (h *MovementHandler) MarkProcessing(c *gin.Context) {
	h.transition(c, func(ctx *gin.Context, id, actor uuid.UUID) (*models.MoneyMovementRequest, error) {
		return h.movementSvc.MarkProcessing(ctx.Request.Context(), id, actor)
	})
}

// ApproveRequest drives a request into its funds-moved terminal status.
// For gated action types the body must carry a verified step-up ticket.
func (h *MovementHandler) ApproveRequest(c *gin.Context) {
	operatorID, ok := actorFromContext(c)
	if !ok {
		return
	}

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request ID"})
		return
	}

	var input struct {
		TicketID *uuid.UUID `json:"ticket_id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy, err := gate.LoadPolicy(h.db)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load gate policy"})
		return
	}

	req, err := h.movementSvc.Approve(c.Request.Context(), requestID, operatorID, policy, input.TicketID)
	if err != nil {
		h.writeTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

// RejectRequest moves a request to Rejected with a mandatory reason
func (h *MovementHandler) RejectRequest(c *gin.Context) {
	operatorID, ok := actorFromContext(c)
	if !ok {
		return
	}

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request ID"})
		return
	}

	var input struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a rejection reason is required"})
		return
	}

	req, err := h.movementSvc.Reject(c.Request.Context(), requestID, operatorID, input.Reason)
	if err != nil {
		h.writeTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

// CancelRequest lets the requester withdraw a pending request
func (h *MovementHandler) CancelRequest(c *gin.Context) {
	h.transition(c, func(ctx *gin.Context, id, actor uuid.UUID) (*models.MoneyMovementRequest, error) {
		return h.movementSvc.Cancel(ctx.Request.Context(), id, actor)
	})
}

func (h *MovementHandler) transition(c *gin.Context, fn func(*gin.Context, uuid.UUID, uuid.UUID) (*models.MoneyMovementRequest, error)) {
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request ID"})
		return
	}

	req, err := fn(c, requestID, actorID)
	if err != nil {
		h.writeTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

func (h *MovementHandler) writeTransitionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
	case errors.Is(err, movement.ErrStaleState):
		c.JSON(http.StatusConflict, gin.H{"error": "request state changed concurrently, re-fetch and retry"})
	case errors.Is(err, movement.ErrIllegalTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "illegal state transition"})
	case errors.Is(err, movement.ErrReasonRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "a rejection reason is required"})
	case errors.Is(err, movement.ErrNotRequester):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the requester may cancel"})
	case errors.Is(err, movement.ErrGateRequired):
		c.JSON(http.StatusForbidden, gin.H{"error": "step-up verification required for this action"})
	case errors.Is(err, gate.ErrTicketNotFound):
		c.JSON(http.StatusForbidden, gin.H{"error": "step-up ticket not found or not valid for this action"})
	case errors.Is(err, gate.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "step-up ticket does not authorize this action"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update request"})
	}
}
