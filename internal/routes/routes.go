package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aurumpay/backend/internal/handlers"
	"github.com/aurumpay/backend/internal/middleware"
	"github.com/aurumpay/backend/internal/models"
)

// Handlers bundles every handler the engine exposes
type Handlers struct {
	Reconciliation *handlers.ReconciliationHandler
	Movement       *handlers.MovementHandler
	Gate           *handlers.GateHandler
	Risk           *handlers.RiskHandler
	Audit          *handlers.AuditHandler
	Wallet         *handlers.WalletHandler
}

// SetupRoutes registers all API routes
func SetupRoutes(router *gin.Engine, h Handlers, rateLimiter *middleware.RateLimiter) {
	router.Use(rateLimiter.IPRateLimiterMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC(),
		})
	})

	// Reconciliation reports; generation and review are back-office only
	reconGroup := router.Group("/api/reconciliation")
	reconGroup.Use(middleware.AuthMiddleware(), middleware.RequireRole(models.RoleOperator, models.RoleCompliance))
	{
		reconGroup.GET("/reports", h.Reconciliation.ListReports)
		reconGroup.GET("/reports/:id", h.Reconciliation.GetReport)
		reconGroup.GET("/summary", h.Reconciliation.GetSummary)
		reconGroup.POST("/generate", middleware.AdminMiddleware(), h.Reconciliation.GenerateReport)
		reconGroup.POST("/reports/:id/review", h.Reconciliation.ReviewReport)
	}

	// Money-movement requests
	movementGroup := router.Group("/api/money-movement")
	movementGroup.Use(middleware.AuthMiddleware())
	{
		movementGroup.POST("", h.Movement.CreateRequest)
		movementGroup.GET("/:id", h.Movement.GetRequest)
		movementGroup.POST("/:id/cancel", h.Movement.CancelRequest)

		operatorOnly := middleware.RequireRole(models.RoleOperator, models.RoleCompliance)
		movementGroup.GET("", operatorOnly, h.Movement.ListRequests)
		movementGroup.POST("/:id/review", operatorOnly, h.Movement.StartReview)
		movementGroup.POST("/:id/processing", operatorOnly, h.Movement.MarkProcessing)
		movementGroup.POST("/:id/approve", operatorOnly, h.Movement.ApproveRequest)
		movementGroup.POST("/:id/reject", operatorOnly, h.Movement.RejectRequest)
	}

	// Step-up authentication gate
	gateGroup := router.Group("/api/gate")
	gateGroup.Use(middleware.AuthMiddleware())
	{
		gateGroup.POST("/request-otp", h.Gate.RequestTicket)
		gateGroup.POST("/verify", rateLimiter.VerifyRateLimiterMiddleware(), h.Gate.VerifyTicket)
		gateGroup.GET("/settings", middleware.RequireRole(models.RoleOperator), h.Gate.GetSettings)
		gateGroup.PUT("/settings", middleware.AdminMiddleware(), h.Gate.UpdateSetting)
	}

	// Risk and exposure dashboards
	riskGroup := router.Group("/api")
	riskGroup.Use(middleware.AuthMiddleware(), middleware.RequireRole(models.RoleOperator, models.RoleCompliance))
	{
		riskGroup.GET("/risk-exposure", h.Risk.GetRiskView)
		riskGroup.GET("/liquidity", h.Risk.GetLiquidity)
		riskGroup.GET("/exposure-snapshot", h.Risk.GetSnapshot)
	}

	// Audit trail is admin-only and read-only
	auditGroup := router.Group("/api/audit")
	auditGroup.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		auditGroup.GET("", h.Audit.QueryEntries)
		auditGroup.GET("/:entity_type/:id", h.Audit.EntityHistory)
	}

	// Wallet balances and ledger for the authenticated user
	walletGroup := router.Group("/api/wallet")
	walletGroup.Use(middleware.AuthMiddleware())
	{
		walletGroup.GET("/balance", h.Wallet.GetBalance)
		walletGroup.GET("/ledger", h.Wallet.GetLedger)
	}
}
