package handlers

import (
	"net/http"

	"github.com/aurumpay/backend/internal/services/wallet"
	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet balance and ledger requests
type WalletHandler struct {
	walletSvc *wallet.Service
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(walletSvc *wallet.Service) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// GetBalance returns the authenticated user's balances
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := actorFromContext(c)
	if !ok {
		return
	}

	balance, err := h.walletSvc.GetBalance(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get balance"})
		return
	}

	c.JSON(http.StatusOK, balance)
}

// GetLedger returns a page of ledger entries for the user's wallet
func (h *WalletHandler) GetLedger(c *gin.Context) {
	userID, ok := actorFromContext(c)
	if !ok {
		return
	}

	w, err := h.walletSvc.GetOrCreateWallet(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get wallet"})
		return
	}

	page, pageSize := pagination(c)
	entries, total, err := h.walletSvc.LedgerHistory(w.ID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get ledger"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet_id": w.ID,
		"entries":   entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
