package wallet

import (
	"testing"

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
	dsn := "file:wallet_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Wallet{}, &models.LedgerEntry{}))
	return db
}

func TestGetOrCreateWallet(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	userID := uuid.New()

	w, err := svc.GetOrCreateWallet(userID)
	require.NoError(t, err)
	assert.Equal(t, userID, w.UserID)
	assert.True(t, w.GoldGrams.IsZero())

	again, err := svc.GetOrCreateWallet(userID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)
}

func TestApplyEffectCreditsAndDebits(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	userID := uuid.New()
	_, err := svc.GetOrCreateWallet(userID)
	require.NoError(t, err)

	credit := Effect{
		RequestID: uuid.New(),
		UserID:    userID,
		USDDelta:  decimal.NewFromInt(500),
	}
	entry, err := svc.ApplyEffect(db, credit)
	require.NoError(t, err)
	assert.True(t, entry.USDBefore.IsZero())
	assert.True(t, entry.USDAfter.Equal(decimal.NewFromInt(500)))

	debit := Effect{
		RequestID: uuid.New(),
		UserID:    userID,
		USDDelta:  decimal.NewFromInt(-200),
	}
	_, err = svc.ApplyEffect(db, debit)
	require.NoError(t, err)

	balance, err := svc.GetBalance(userID)
	require.NoError(t, err)
	assert.True(t, balance.USDBalance.Equal(decimal.NewFromInt(300)))
}

func TestApplyEffectIsIdempotentPerRequest(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	userID := uuid.New()
	_, err := svc.GetOrCreateWallet(userID)
	require.NoError(t, err)

	effect := Effect{
		RequestID: uuid.New(),
		UserID:    userID,
		USDDelta:  decimal.NewFromInt(100),
	}

	first, err := svc.ApplyEffect(db, effect)
	require.NoError(t, err)

	// Retrying the same request must not move the balance again
	second, err := svc.ApplyEffect(db, effect)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	balance, err := svc.GetBalance(userID)
	require.NoError(t, err)
	assert.True(t, balance.USDBalance.Equal(decimal.NewFromInt(100)))

	var count int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestApplyEffectRejectsOverdraft(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	userID := uuid.New()
	_, err := svc.GetOrCreateWallet(userID)
	require.NoError(t, err)

	_, err = svc.ApplyEffect(db, Effect{
		RequestID: uuid.New(),
		UserID:    userID,
		USDDelta:  decimal.NewFromInt(-50),
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	balance, err := svc.GetBalance(userID)
	require.NoError(t, err)
	assert.True(t, balance.USDBalance.IsZero())

	var count int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestApplyEffectGoldAndCash(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	userID := uuid.New()
	_, err := svc.GetOrCreateWallet(userID)
	require.NoError(t, err)

	_, err = svc.ApplyEffect(db, Effect{
		RequestID: uuid.New(),
		UserID:    userID,
		USDDelta:  decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	// Gold purchase: gold up, cash down, one ledger row
	_, err = svc.ApplyEffect(db, Effect{
		RequestID:      uuid.New(),
		UserID:         userID,
		GoldGramsDelta: decimal.RequireFromString("10.5"),
		USDDelta:       decimal.NewFromInt(-750),
	})
	require.NoError(t, err)

	balance, err := svc.GetBalance(userID)
	require.NoError(t, err)
	assert.True(t, balance.GoldGrams.Equal(decimal.RequireFromString("10.5")))
	assert.True(t, balance.USDBalance.Equal(decimal.NewFromInt(250)))
}

func TestLedgerHistoryPaging(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	userID := uuid.New()
	w, err := svc.GetOrCreateWallet(userID)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := svc.ApplyEffect(db, Effect{
			RequestID: uuid.New(),
			UserID:    userID,
			USDDelta:  decimal.NewFromInt(10),
		})
		require.NoError(t, err)
	}

	entries, total, err := svc.LedgerHistory(w.ID, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, entries, 3)
}
