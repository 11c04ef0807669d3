package wallet

import (
	"errors"
	"fmt"

	"github.com/aurumpay/backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientFunds is returned when a debit would take a balance negative
var ErrInsufficientFunds = errors.New("insufficient funds")

// Balance is the externally visible view of a wallet
type Balance struct {
	GoldGrams  decimal.Decimal `json:"gold_grams"`
	USDBalance decimal.Decimal `json:"usd_balance"`
	EURBalance decimal.Decimal `json:"eur_balance"`
}

// Effect is the single wallet mutation a money-movement request performs.
// Positive deltas credit, negative deltas debit.
type Effect struct {
	RequestID       uuid.UUID
	UserID          uuid.UUID
	GoldGramsDelta  decimal.Decimal
	USDDelta        decimal.Decimal
	EURDelta        decimal.Decimal
	Description     string
	ReferenceNumber string
}

// Service handles wallet reads and the single mutating path for balances.
// No other component writes wallet fields directly.
type Service struct {
	db *gorm.DB
}

// NewService creates a new wallet service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetOrCreateWallet gets a user's wallet or creates one if it doesn't exist
func (s *Service) GetOrCreateWallet(userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet

	err := s.db.Where("user_id = ?", userID).First(&w).Error
	if err == nil {
		return &w, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("error finding wallet: %w", err)
	}

	w = models.Wallet{UserID: userID}
	if err := s.db.Create(&w).Error; err != nil {
		return nil, fmt.Errorf("error creating wallet: %w", err)
	}

	return &w, nil
}

// GetBalance returns the current balances for a user
func (s *Service) GetBalance(userID uuid.UUID) (*Balance, error) {
	var w models.Wallet
	if err := s.db.Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, fmt.Errorf("error finding wallet: %w", err)
	}
	return &Balance{
		GoldGrams:  w.GoldGrams,
		USDBalance: w.USDBalance,
		EURBalance: w.EURBalance,
	}, nil
}

// ApplyEffect applies a wallet mutation exactly once per (request, wallet)
// using the caller's transaction. The ledger row keyed by request id is
// the idempotency guard: when it already exists the effect was applied by
// an earlier attempt and this call is a no-op.
func (s *Service) ApplyEffect(tx *gorm.DB, effect Effect) (*models.LedgerEntry, error) {
	var w models.Wallet
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", effect.UserID).First(&w).Error; err != nil {
		return nil, fmt.Errorf("error finding wallet: %w", err)
	}

	var existing models.LedgerEntry
	err := tx.Where("request_id = ? AND wallet_id = ?", effect.RequestID, w.ID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("error checking ledger: %w", err)
	}

	goldBefore := w.GoldGrams
	usdBefore := w.USDBalance

	newGold := w.GoldGrams.Add(effect.GoldGramsDelta)
	newUSD := w.USDBalance.Add(effect.USDDelta)
	newEUR := w.EURBalance.Add(effect.EURDelta)

	if newGold.IsNegative() || newUSD.IsNegative() || newEUR.IsNegative() {
		return nil, ErrInsufficientFunds
	}

	w.GoldGrams = newGold
	w.USDBalance = newUSD
	w.EURBalance = newEUR
	if err := tx.Save(&w).Error; err != nil {
		return nil, fmt.Errorf("error updating wallet balance: %w", err)
	}

	entry := models.LedgerEntry{
		RequestID:       effect.RequestID,
		WalletID:        w.ID,
		GoldGramsDelta:  effect.GoldGramsDelta,
		USDDelta:        effect.USDDelta,
		EURDelta:        effect.EURDelta,
		GoldBefore:      goldBefore,
		GoldAfter:       w.GoldGrams,
		USDBefore:       usdBefore,
		USDAfter:        w.USDBalance,
		Description:     effect.Description,
		ReferenceNumber: effect.ReferenceNumber,
	}

	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("error creating ledger entry: %w", err)
	}

	return &entry, nil
}

// LedgerHistory gets ledger entries for a wallet, newest first
func (s *Service) LedgerHistory(walletID uuid.UUID, page, pageSize int) ([]models.LedgerEntry, int64, error) {
	var entries []models.LedgerEntry
	var total int64

	if err := s.db.Model(&models.LedgerEntry{}).Where("wallet_id = ?", walletID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting ledger entries: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := s.db.Where("wallet_id = ?", walletID).
		Order("created_at DESC").Offset(offset).Limit(pageSize).
		Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("error finding ledger entries: %w", err)
	}

	return entries, total, nil
}
