package main

import (
	"fmt"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/aurumpay/backend/internal/audit"
	"github.com/aurumpay/backend/internal/config"
	"github.com/aurumpay/backend/internal/database"
	"github.com/aurumpay/backend/internal/database/migrations"
	"github.com/aurumpay/backend/internal/handlers"
	"github.com/aurumpay/backend/internal/jobs"
	"github.com/aurumpay/backend/internal/middleware"
	"github.com/aurumpay/backend/internal/routes"
	"github.com/aurumpay/backend/internal/services/exposure"
	"github.com/aurumpay/backend/internal/services/gate"
	"github.com/aurumpay/backend/internal/services/movement"
	"github.com/aurumpay/backend/internal/services/notify"
	"github.com/aurumpay/backend/internal/services/reconciliation"
	"github.com/aurumpay/backend/internal/services/risk"
	"github.com/aurumpay/backend/internal/services/wallet"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := migrations.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid Redis URL: %v", err)
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	redisOpts.DB = cfg.Redis.DB
	redisClient := redis.NewClient(redisOpts)

	// Services
	auditLog := audit.NewLogger(db)
	walletSvc := wallet.NewService(db)

	snapshotCache := exposure.NewCache(redisClient, cfg.Risk.SnapshotCacheTTL)
	exposureSvc := exposure.NewService(
		exposure.NewGormWalletStore(db),
		exposure.NewGormVaultStore(db),
		exposure.NewGormCollateralStore(db),
		exposure.NewGormTradeFinanceStore(db),
		cfg.Reconciliation.SnapshotTimeout,
		snapshotCache,
	)

	notifier := notify.NewEmailNotifier(db)
	gateSvc := gate.NewService(db, notifier, auditLog, cfg.Gate)
	reconSvc := reconciliation.NewService(db, exposureSvc, gateSvc, auditLog, cfg.Reconciliation)
	movementSvc := movement.NewService(db, walletSvc, gateSvc, exposureSvc, auditLog)
	riskSvc := risk.NewService(db, exposureSvc, cfg.Risk, cfg.Reconciliation)

	// Background jobs share the same service code as the request path
	scheduler := jobs.NewScheduler(reconSvc, movementSvc, gateSvc, cfg.Reconciliation)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}
	defer scheduler.Stop()

	// HTTP transport
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	rateLimiter := middleware.NewRateLimiter(20, 10, 40, 5)
	defer rateLimiter.Stop()

	routes.SetupRoutes(router, routes.Handlers{
		Reconciliation: handlers.NewReconciliationHandler(reconSvc),
		Movement:       handlers.NewMovementHandler(db, movementSvc),
		Gate:           handlers.NewGateHandler(db, gateSvc),
		Risk:           handlers.NewRiskHandler(riskSvc, exposureSvc),
		Audit:          handlers.NewAuditHandler(auditLog),
		Wallet:         handlers.NewWalletHandler(walletSvc),
	}, rateLimiter)

	fmt.Printf("AurumPay custody engine running on port %s\n", cfg.Server.Port)
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
