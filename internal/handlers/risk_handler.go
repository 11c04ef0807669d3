package handlers

import (
	"errors"
	"net/http"

	"github.com/aurumpay/backend/internal/services/exposure"
	"github.com/aurumpay/backend/internal/services/risk"
	"github.com/gin-gonic/gin"
)

// RiskHandler handles risk and exposure dashboard requests
type RiskHandler struct {
	riskSvc     *risk.Service
	exposureSvc *exposure.Service
}

// NewRiskHandler creates a new risk handler
func NewRiskHandler(riskSvc *risk.Service, exposureSvc *exposure.Service) *RiskHandler {
	return &RiskHandler{riskSvc: riskSvc, exposureSvc: exposureSvc}
}

// GetRiskView returns the full risk and exposure view
func (h *RiskHandler) GetRiskView(c *gin.Context) {
	view, err := h.riskSvc.View(c.Request.Context())
	if err != nil {
		var partial *exposure.PartialDataError
		if errors.As(err, &partial) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "all exposure subsystems unreachable",
				"missing": partial.Missing,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute risk view"})
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetLiquidity returns just the liquidity slice of the risk view
func (h *RiskHandler) GetLiquidity(c *gin.Context) {
	view, err := h.riskSvc.View(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute liquidity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"as_of":                   view.AsOf,
		"available_liquidity_usd": view.AvailableLiquidityUSD,
		"pending_obligations_usd": view.PendingObligationsUSD,
		"liquidity_ratio":         view.LiquidityRatio,
		"risk_level":              view.RiskLevel,
		"alerts":                  view.Alerts,
	})
}

// GetSnapshot returns the current exposure snapshot, served from cache
// when fresh
func (h *RiskHandler) GetSnapshot(c *gin.Context) {
	snap, err := h.exposureSvc.CachedSnapshot(c.Request.Context())
	if err != nil {
		var partial *exposure.PartialDataError
		if errors.As(err, &partial) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "snapshot incomplete",
				"missing": partial.Missing,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read snapshot"})
		return
	}

	c.JSON(http.StatusOK, snap)
}
