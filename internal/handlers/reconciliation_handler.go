package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aurumpay/backend/internal/models"
	"github.com/aurumpay/backend/internal/services/exposure"
	"github.com/aurumpay/backend/internal/services/gate"
	"github.com/aurumpay/backend/internal/services/reconciliation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReconciliationHandler handles reconciliation report requests
type ReconciliationHandler struct {
	reconService *reconciliation.Service
}

// NewReconciliationHandler creates a new reconciliation handler
func NewReconciliationHandler(reconService *reconciliation.Service) *ReconciliationHandler {
	return &ReconciliationHandler{reconService: reconService}
}

// GenerateReport triggers a manual reconciliation run
func (h *ReconciliationHandler) GenerateReport(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}

	report, err := h.reconService.Generate(c.Request.Context(), actorID, models.ReportSourceManual)
	if err != nil {
		var partial *exposure.PartialDataError
		if errors.As(err, &partial) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "snapshot incomplete, report not generated",
				"missing": partial.Missing,
			})
			return
		}
		if errors.Is(err, reconciliation.ErrDuplicateReport) {
			c.JSON(http.StatusConflict, gin.H{"error": "a report for this date already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate report"})
		return
	}

	c.JSON(http.StatusCreated, report)
}

// ListReports returns a page of reconciliation reports, newest first
func (h *ReconciliationHandler) ListReports(c *gin.Context) {
	page, pageSize := pagination(c)

	reports, total, err := h.reconService.Reports(c.Request.Context(), page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reports":   reports,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetReport returns a single report with its discrepancies
func (h *ReconciliationHandler) GetReport(c *gin.Context) {
	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report ID"})
		return
	}

	report, err := h.reconService.GetReport(c.Request.Context(), reportID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get report"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// ReviewReport records an approve or resolve decision on a report
func (h *ReconciliationHandler) ReviewReport(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}

	reportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report ID"})
		return
	}

	var input struct {
		Action   string     `json:"action" binding:"required"`
		Notes    string     `json:"notes"`
		TicketID *uuid.UUID `json:"ticket_id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.reconService.Review(c.Request.Context(), reportID, actorID, input.Action, input.Notes, input.TicketID)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		case errors.Is(err, reconciliation.ErrInvalidReviewAction):
			c.JSON(http.StatusBadRequest, gin.H{"error": "action must be approve or resolve"})
		case errors.Is(err, reconciliation.ErrNotesRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "resolution notes are required"})
		case errors.Is(err, reconciliation.ErrMakerChecker):
			c.JSON(http.StatusForbidden, gin.H{"error": "the report generator cannot resolve their own report"})
		case errors.Is(err, reconciliation.ErrGateRequired), errors.Is(err, gate.ErrTicketNotFound), errors.Is(err, gate.ErrNotAuthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "resolving this discrepancy requires a verified step-up ticket"})
		case errors.Is(err, reconciliation.ErrStaleReport):
			c.JSON(http.StatusConflict, gin.H{"error": "report has been superseded or reviewed concurrently"})
		case errors.Is(err, reconciliation.ErrReviewNotAllowed):
			c.JSON(http.StatusConflict, gin.H{"error": "report status does not permit this action"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to review report"})
		}
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetSummary returns the reconciliation dashboard summary
func (h *ReconciliationHandler) GetSummary(c *gin.Context) {
	summary, err := h.reconService.GetSummary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get summary"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// actorFromContext extracts the authenticated user's ID
func actorFromContext(c *gin.Context) (uuid.UUID, bool) {
	userIDStr := c.GetString("user_id")
	if userIDStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return uuid.Nil, false
	}

	return userID, true
}

// pagination reads page and page_size query params with sane defaults
func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
