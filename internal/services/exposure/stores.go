package exposure

import (
	"context"
	"fmt"

	"github.com/aurumpay/backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WalletStore reads aggregate digital-claim totals from the wallet ledger
type WalletStore interface {
	Totals(ctx context.Context) (gold decimal.Decimal, cash map[models.Currency]decimal.Decimal, err error)
}

// VaultStore reads physical custody totals
type VaultStore interface {
	PhysicalTotals(ctx context.Context) (total decimal.Decimal, byLocation map[string]decimal.Decimal, err error)
}

// LockStore reads the total gold locked by a collateral module
type LockStore interface {
	LockedTotal(ctx context.Context) (decimal.Decimal, error)
}

type sumRow struct {
	Gold decimal.Decimal
	USD  decimal.Decimal
	EUR  decimal.Decimal
}

// GormWalletStore sums wallet balances from the primary database
type GormWalletStore struct {
	db *gorm.DB
}

// NewGormWalletStore creates a wallet store backed by gorm
func NewGormWalletStore(db *gorm.DB) *GormWalletStore {
	return &GormWalletStore{db: db}
}

// Totals returns the sum of all wallet gold claims and cash balances
func (s *GormWalletStore) Totals(ctx context.Context) (decimal.Decimal, map[models.Currency]decimal.Decimal, error) {
	var row sumRow
	err := s.db.WithContext(ctx).Model(&models.Wallet{}).
		Select("COALESCE(SUM(gold_grams),0) AS gold, COALESCE(SUM(usd_balance),0) AS usd, COALESCE(SUM(eur_balance),0) AS eur").
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("wallet totals: %w", err)
	}

	cash := map[models.Currency]decimal.Decimal{
		models.CurrencyUSD: row.USD,
		models.CurrencyEUR: row.EUR,
	}
	return row.Gold, cash, nil
}

// GormVaultStore sums active vault holdings
type GormVaultStore struct {
	db *gorm.DB
}

// NewGormVaultStore creates a vault store backed by gorm
func NewGormVaultStore(db *gorm.DB) *GormVaultStore {
	return &GormVaultStore{db: db}
}

// PhysicalTotals returns total physical gold and a per-location breakdown
func (s *GormVaultStore) PhysicalTotals(ctx context.Context) (decimal.Decimal, map[string]decimal.Decimal, error) {
	type locRow struct {
		Location string
		Gold     decimal.Decimal
	}
	var rows []locRow
	err := s.db.WithContext(ctx).Model(&models.VaultHolding{}).
		Select("location, COALESCE(SUM(gold_grams),0) AS gold").
		Where("active = ?", true).
		Group("location").
		Scan(&rows).Error
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("vault totals: %w", err)
	}

	total := decimal.Zero
	byLocation := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		byLocation[r.Location] = r.Gold
		total = total.Add(r.Gold)
	}
	return total, byLocation, nil
}

// GormCollateralStore sums active BNSL collateral locks
type GormCollateralStore struct {
	db *gorm.DB
}

// NewGormCollateralStore creates a collateral lock store backed by gorm
func NewGormCollateralStore(db *gorm.DB) *GormCollateralStore {
	return &GormCollateralStore{db: db}
}

// LockedTotal returns the total gold held by active collateral locks
func (s *GormCollateralStore) LockedTotal(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.WithContext(ctx).Model(&models.CollateralLock{}).
		Select("COALESCE(SUM(gold_grams),0)").
		Where("status = ?", models.LockStatusActive).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("collateral totals: %w", err)
	}
	return total, nil
}

// GormTradeFinanceStore sums active trade finance locks
type GormTradeFinanceStore struct {
	db *gorm.DB
}

// NewGormTradeFinanceStore creates a trade finance lock store backed by gorm
func NewGormTradeFinanceStore(db *gorm.DB) *GormTradeFinanceStore {
	return &GormTradeFinanceStore{db: db}
}

// LockedTotal returns the total gold held by active trade finance locks
func (s *GormTradeFinanceStore) LockedTotal(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.WithContext(ctx).Model(&models.TradeFinanceLock{}).
		Select("COALESCE(SUM(gold_grams),0)").
		Where("status = ?", models.LockStatusActive).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("trade finance totals: %w", err)
	}
	return total, nil
}
