package movement

import (
	"fmt"

	"github.com/aurumpay/backend/internal/models"
	"github.com/aurumpay/backend/internal/services/wallet"
	"github.com/shopspring/decimal"
)

// effectFunc returns the wallet effects a request applies on its
// funds-moved terminal transition. Most request types produce one effect;
// a peer transfer produces two (debit sender, credit recipient). Each
// effect is guarded by the ledger idempotency key, so the set as a whole
// applies exactly once.
type effectFunc func(req *models.MoneyMovementRequest) ([]wallet.Effect, error)

// effects maps each request type to its terminal-transition ledger
// mutation. This is the only place wallet deltas are derived; adding a
// request type means adding exactly one entry here.
var effects = map[models.RequestType]effectFunc{
	models.RequestTypeDeposit: func(req *models.MoneyMovementRequest) ([]wallet.Effect, error) {
		return []wallet.Effect{{
			RequestID:       req.ID,
			UserID:          req.UserID,
			USDDelta:        req.AmountUSD,
			Description:     "deposit credited",
			ReferenceNumber: req.ReferenceNumber,
		}}, nil
	},

	models.RequestTypeWithdrawal: func(req *models.MoneyMovementRequest) ([]wallet.Effect, error) {
		return []wallet.Effect{{
			RequestID:       req.ID,
			UserID:          req.UserID,
			USDDelta:        req.AmountUSD.Neg(),
			Description:     "withdrawal completed",
			ReferenceNumber: req.ReferenceNumber,
		}}, nil
	},

	models.RequestTypeCryptoPayment: func(req *models.MoneyMovementRequest) ([]wallet.Effect, error) {
		return []wallet.Effect{{
			RequestID:       req.ID,
			UserID:          req.UserID,
			USDDelta:        req.AmountUSD,
			Description:     "crypto payment credited",
			ReferenceNumber: req.ReferenceNumber,
		}}, nil
	},

	models.RequestTypeGoldPurchase: func(req *models.MoneyMovementRequest) ([]wallet.Effect, error) {
		if !req.AmountGold.IsPositive() {
			return nil, fmt.Errorf("gold purchase %s has no gold amount", req.ID)
		}
		return []wallet.Effect{{
			RequestID:       req.ID,
			UserID:          req.UserID,
			GoldGramsDelta:  req.AmountGold,
			USDDelta:        req.AmountUSD.Neg(),
			Description:     "gold purchase settled",
			ReferenceNumber: req.ReferenceNumber,
		}}, nil
	},

	models.RequestTypePeerTransfer: peerEffect,
	models.RequestTypePeerRequest:  peerEffect,
}

func peerEffect(req *models.MoneyMovementRequest) ([]wallet.Effect, error) {
	if req.CounterpartyID == nil {
		return nil, fmt.Errorf("peer transfer %s has no counterparty", req.ID)
	}

	debit := wallet.Effect{
		RequestID:       req.ID,
		UserID:          req.UserID,
		Description:     "peer transfer sent",
		ReferenceNumber: req.ReferenceNumber,
	}
	credit := wallet.Effect{
		RequestID:       req.ID,
		UserID:          *req.CounterpartyID,
		Description:     "peer transfer received",
		ReferenceNumber: req.ReferenceNumber,
	}

	if req.AmountGold.IsPositive() {
		debit.GoldGramsDelta = req.AmountGold.Neg()
		credit.GoldGramsDelta = req.AmountGold
	} else {
		debit.USDDelta = req.AmountUSD.Neg()
		credit.USDDelta = req.AmountUSD
	}

	return []wallet.Effect{debit, credit}, nil
}

// validateAmounts rejects requests that would move nothing
func validateAmounts(req *models.MoneyMovementRequest) error {
	if req.AmountUSD.LessThan(decimal.Zero) || req.AmountGold.LessThan(decimal.Zero) {
		return ErrInvalidAmount
	}
	if req.AmountUSD.IsZero() && req.AmountGold.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}
