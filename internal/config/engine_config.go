package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// GateConfig holds step-up authentication gate tunables
type GateConfig struct {
	CodeExpiry      time.Duration // how long an issued code stays valid
	MaxAttempts     int           // failed verifies before the ticket is invalidated
	ReissueCooldown time.Duration // minimum gap between tickets for the same tuple
	CodeDigits      int
}

// ReconciliationConfig holds reconciliation engine tunables
type ReconciliationConfig struct {
	// EpsilonGrams is the tolerance below which a physical-vs-claims delta
	// still classifies as balanced. Default is the smallest reporting unit.
	EpsilonGrams    decimal.Decimal
	GoldPriceUSD    decimal.Decimal // USD per gram, supplied by the pricing collaborator
	ScheduleTime    string          // HH:MM, UTC, daily scheduled run
	SnapshotTimeout time.Duration   // read deadline applied per subsystem
}

// RiskConfig holds risk scoring weights and cache tunables. Weights are
// configuration so operators can retune without redeploying logic.
type RiskConfig struct {
	LiquidityWeight     int // share of the 0-100 score driven by liquidity shortfall
	ConcentrationWeight int // share driven by top-user concentration
	ObligationWeight    int // share driven by obligation concentration by due date
	SnapshotCacheTTL    time.Duration
}

func loadGateConfig() GateConfig {
	return GateConfig{
		CodeExpiry:      time.Duration(getEnvInt("GATE_CODE_EXPIRY_MINUTES", 10)) * time.Minute,
		MaxAttempts:     getEnvInt("GATE_MAX_ATTEMPTS", 3),
		ReissueCooldown: time.Duration(getEnvInt("GATE_REISSUE_COOLDOWN_SECONDS", 60)) * time.Second,
		CodeDigits:      getEnvInt("GATE_CODE_DIGITS", 6),
	}
}

func loadReconciliationConfig() ReconciliationConfig {
	return ReconciliationConfig{
		EpsilonGrams:    getEnvDecimal("RECON_EPSILON_GRAMS", "0.01"),
		GoldPriceUSD:    getEnvDecimal("GOLD_PRICE_USD_PER_GRAM", "75.00"),
		ScheduleTime:    getEnv("RECON_SCHEDULE_TIME", "02:00"),
		SnapshotTimeout: time.Duration(getEnvInt("SNAPSHOT_TIMEOUT_SECONDS", 10)) * time.Second,
	}
}

func loadRiskConfig() RiskConfig {
	return RiskConfig{
		LiquidityWeight:     getEnvInt("RISK_LIQUIDITY_WEIGHT", 50),
		ConcentrationWeight: getEnvInt("RISK_CONCENTRATION_WEIGHT", 30),
		ObligationWeight:    getEnvInt("RISK_OBLIGATION_WEIGHT", 20),
		SnapshotCacheTTL:    time.Duration(getEnvInt("SNAPSHOT_CACHE_TTL_SECONDS", 30)) * time.Second,
	}
}
