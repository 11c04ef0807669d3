package exposure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aurumpay/backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:exposure_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Wallet{}, &models.VaultHolding{},
		&models.CollateralLock{}, &models.TradeFinanceLock{},
	))
	return db
}

type failingWalletStore struct{}

func (failingWalletStore) Totals(ctx context.Context) (decimal.Decimal, map[models.Currency]decimal.Decimal, error) {
	return decimal.Zero, nil, errors.New("wallet store unreachable")
}

type failingLockStore struct{}

func (failingLockStore) LockedTotal(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("lock store unreachable")
}

type failingVaultStore struct{}

func (failingVaultStore) PhysicalTotals(ctx context.Context) (decimal.Decimal, map[string]decimal.Decimal, error) {
	return decimal.Zero, nil, errors.New("vault store unreachable")
}

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&models.Wallet{
		UserID:    uuid.New(),
		GoldGrams: decimal.RequireFromString("40"),
	}).Error)
	require.NoError(t, db.Create(&models.Wallet{
		UserID:     uuid.New(),
		GoldGrams:  decimal.RequireFromString("20"),
		USDBalance: decimal.NewFromInt(5000),
	}).Error)
	require.NoError(t, db.Create(&models.VaultHolding{
		Location: "zurich", GoldGrams: decimal.RequireFromString("70"), Active: true,
	}).Error)
	require.NoError(t, db.Create(&models.VaultHolding{
		Location: "dubai", GoldGrams: decimal.RequireFromString("30"), Active: false,
	}).Error)
	require.NoError(t, db.Create(&models.CollateralLock{
		UserID: uuid.New(), GoldGrams: decimal.RequireFromString("7"), Status: models.LockStatusActive,
	}).Error)
	require.NoError(t, db.Create(&models.CollateralLock{
		UserID: uuid.New(), GoldGrams: decimal.RequireFromString("99"), Status: models.LockStatusReleased,
	}).Error)
	require.NoError(t, db.Create(&models.TradeFinanceLock{
		UserID: uuid.New(), GoldGrams: decimal.RequireFromString("3"), Status: models.LockStatusActive,
	}).Error)
}

func newGormService(db *gorm.DB) *Service {
	return NewService(
		NewGormWalletStore(db),
		NewGormVaultStore(db),
		NewGormCollateralStore(db),
		NewGormTradeFinanceStore(db),
		5*time.Second,
		nil,
	)
}

func TestSnapshotAggregatesAllSubsystems(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	svc := newGormService(db)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)

	// Inactive holdings and released locks are excluded
	assert.True(t, snap.PhysicalGoldGrams.Equal(decimal.RequireFromString("70")))
	assert.True(t, snap.WalletGoldGrams.Equal(decimal.RequireFromString("60")))
	assert.True(t, snap.LockedCollateralGoldGrams.Equal(decimal.RequireFromString("7")))
	assert.True(t, snap.TradeFinanceLockedGoldGrams.Equal(decimal.RequireFromString("3")))
	assert.True(t, snap.Claims().Equal(decimal.RequireFromString("70")))
	assert.True(t, snap.CashByCurrency[models.CurrencyUSD].Equal(decimal.NewFromInt(5000)))
	assert.True(t, snap.VaultByLocation["zurich"].Equal(decimal.RequireFromString("70")))
	assert.False(t, snap.AsOf.IsZero())
}

func TestSnapshotFailsClosedOnUnreachableSubsystem(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)

	svc := NewService(
		failingWalletStore{},
		NewGormVaultStore(db),
		NewGormCollateralStore(db),
		NewGormTradeFinanceStore(db),
		5*time.Second,
		nil,
	)

	_, err := svc.Snapshot(context.Background())
	require.Error(t, err)

	var partial *PartialDataError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{SubsystemWallets}, partial.Missing)
	require.Len(t, partial.Causes, 1)
}

func TestSnapshotAllowPartialDegrades(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)

	svc := NewService(
		NewGormWalletStore(db),
		failingVaultStore{},
		NewGormCollateralStore(db),
		failingLockStore{},
		5*time.Second,
		nil,
	)

	snap, missing, err := svc.SnapshotAllowPartial(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{SubsystemVault, SubsystemTradeFinance}, missing)
	assert.True(t, snap.WalletGoldGrams.Equal(decimal.RequireFromString("60")))
	assert.True(t, snap.PhysicalGoldGrams.IsZero())
}

func TestSnapshotAllowPartialErrorsWhenEverythingIsDown(t *testing.T) {
	svc := NewService(
		failingWalletStore{},
		failingVaultStore{},
		failingLockStore{},
		failingLockStore{},
		time.Second,
		nil,
	)

	_, missing, err := svc.SnapshotAllowPartial(context.Background())
	require.Error(t, err)
	assert.Len(t, missing, 4)
}

func TestEmptyDatabaseSnapshotsToZero(t *testing.T) {
	db := newTestDB(t)
	svc := newGormService(db)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.PhysicalGoldGrams.IsZero())
	assert.True(t, snap.Claims().IsZero())
}
