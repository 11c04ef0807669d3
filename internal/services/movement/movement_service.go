package movement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aurumpay/backend/internal/audit"
	"github.com/aurumpay/backend/internal/models"
	"github.com/aurumpay/backend/internal/services/exposure"
	"github.com/aurumpay/backend/internal/services/gate"
	"github.com/aurumpay/backend/internal/services/wallet"
	"github.com/aurumpay/backend/internal/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ErrStaleState is returned when a compare-and-swap transition lost to
	// a concurrent caller; re-fetch and retry.
	ErrStaleState = errors.New("request state changed concurrently: re-fetch and retry")

	// ErrReasonRequired is returned when a rejection carries no reason
	ErrReasonRequired = errors.New("a rejection reason is required")

	// ErrIllegalTransition is returned when the requested transition is not
	// legal from the request's current status
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrNotRequester is returned when someone other than the requester
	// attempts a cancellation
	ErrNotRequester = errors.New("only the requester may cancel")

	// ErrGateRequired is returned when an approval is attempted without a
	// verified step-up ticket for a gated action type
	ErrGateRequired = errors.New("step-up verification required for this action")

	// ErrInvalidAmount is returned for zero or negative movement amounts
	ErrInvalidAmount = errors.New("movement amount must be positive")

	// ErrUnknownRequestType is returned when no effect is registered for
	// the request type
	ErrUnknownRequestType = errors.New("unknown request type")
)

// legalTransitions enumerates the canonical state machine. Terminal
// statuses have no outgoing edges.
var legalTransitions = map[models.RequestStatus][]models.RequestStatus{
	models.RequestStatusPending: {
		models.RequestStatusUnderReview,
		models.RequestStatusProcessing,
		models.RequestStatusCompleted,
		models.RequestStatusCredited,
		models.RequestStatusRejected,
		models.RequestStatusCancelled,
		models.RequestStatusExpired,
	},
	models.RequestStatusUnderReview: {
		models.RequestStatusProcessing,
		models.RequestStatusCompleted,
		models.RequestStatusCredited,
		models.RequestStatusRejected,
	},
	models.RequestStatusProcessing: {
		models.RequestStatusCompleted,
		models.RequestStatusCredited,
		models.RequestStatusRejected,
	},
}

func transitionAllowed(from, to models.RequestStatus) bool {
	for _, t := range legalTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// CreateParams describes a new money-movement request
type CreateParams struct {
	RequestType    models.RequestType
	UserID         uuid.UUID
	CounterpartyID *uuid.UUID
	AmountUSD      decimal.Decimal
	AmountGold     decimal.Decimal
	Currency       models.Currency
	Evidence       models.JSON
	ExpiresAt      *time.Time
}

// Service is the single state machine every money movement goes through.
// All wallet mutation happens on its terminal transitions; nothing else
// writes balances.
type Service struct {
	db       *gorm.DB
	wallets  *wallet.Service
	gate     *gate.Service
	exposure *exposure.Service
	auditLog *audit.Logger
}

// NewService creates a new money-movement state machine
func NewService(db *gorm.DB, wallets *wallet.Service, gateSvc *gate.Service, exposureSvc *exposure.Service, auditLog *audit.Logger) *Service {
	return &Service{db: db, wallets: wallets, gate: gateSvc, exposure: exposureSvc, auditLog: auditLog}
}

// Create records a new request in Pending
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.MoneyMovementRequest, error) {
	if _, ok := effects[params.RequestType]; !ok {
		return nil, ErrUnknownRequestType
	}

	currency := params.Currency
	if currency == "" {
		currency = models.CurrencyUSD
	}

	req := &models.MoneyMovementRequest{
		RequestType:     params.RequestType,
		UserID:          params.UserID,
		CounterpartyID:  params.CounterpartyID,
		AmountUSD:       params.AmountUSD,
		AmountGold:      params.AmountGold,
		Currency:        currency,
		ReferenceNumber: utils.GenerateReference(referencePrefix(params.RequestType)),
		Status:          models.RequestStatusPending,
		Evidence:        params.Evidence,
		ExpiresAt:       params.ExpiresAt,
	}

	if err := validateAmounts(req); err != nil {
		return nil, err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return fmt.Errorf("error creating request: %w", err)
		}
		return s.auditLog.Append(tx, audit.Entry{
			EntityType: "money_movement_request",
			EntityID:   req.ID,
			Actor:      params.UserID,
			ActionType: models.AuditActionRequestCreated,
			New:        req,
		})
	})
	if err != nil {
		return nil, err
	}

	return req, nil
}

// Get returns one request
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.MoneyMovementRequest, error) {
	var req models.MoneyMovementRequest
	if err := s.db.First(&req, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("error finding request: %w", err)
	}
	return &req, nil
}

// List returns a page of requests, optionally filtered by status and type
func (s *Service) List(ctx context.Context, status models.RequestStatus, reqType models.RequestType, page, pageSize int) ([]models.MoneyMovementRequest, int64, error) {
	query := s.db.Model(&models.MoneyMovementRequest{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if reqType != "" {
		query = query.Where("request_type = ?", reqType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting requests: %w", err)
	}

	var requests []models.MoneyMovementRequest
	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&requests).Error; err != nil {
		return nil, 0, fmt.Errorf("error finding requests: %w", err)
	}

	return requests, total, nil
}

// StartReview moves a pending request under operator review
func (s *Service) StartReview(ctx context.Context, id, operator uuid.UUID) (*models.MoneyMovementRequest, error) {
	return s.simpleTransition(ctx, id, operator, models.RequestStatusPending, models.RequestStatusUnderReview, "")
}

// MarkProcessing records that processing has begun; from here the
// requester can no longer cancel.
func (s *Service) MarkProcessing(ctx context.Context, id, operator uuid.UUID) (*models.MoneyMovementRequest, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.simpleTransition(ctx, id, operator, req.Status, models.RequestStatusProcessing, "")
}

// Approve drives a request into its funds-moved terminal status. The
// step-up gate is a precondition checked before any state is touched: a
// failed gate check leaves the request unchanged. The CAS update, wallet
// effect and audit entry commit in one transaction, and the ledger
// idempotency key makes a retried approval a no-op on balances.
func (s *Service) Approve(ctx context.Context, id, operator uuid.UUID, policy gate.Policy, ticketID *uuid.UUID) (*models.MoneyMovementRequest, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	target := req.TerminalStatus()
	if !transitionAllowed(req.Status, target) {
		if req.Status.IsTerminal() {
			return nil, ErrStaleState
		}
		return nil, ErrIllegalTransition
	}

	effectFn := effects[req.RequestType]
	if effectFn == nil {
		return nil, ErrUnknownRequestType
	}
	walletEffects, err := effectFn(req)
	if err != nil {
		return nil, err
	}

	gateAction := models.GateActionForRequest(req.RequestType)
	gated := policy.Requires(gateAction)
	if gated && ticketID == nil {
		return nil, ErrGateRequired
	}

	oldStatus := req.Status
	now := time.Now().UTC()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if gated {
			if err := s.gate.Authorize(tx, *ticketID, operator, gateAction, req.ID); err != nil {
				return err
			}
		}

		result := tx.Model(&models.MoneyMovementRequest{}).
			Where("id = ? AND status = ?", req.ID, oldStatus).
			Updates(map[string]interface{}{
				"status":       target,
				"processed_by": operator,
				"processed_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("error updating request: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}

		for _, effect := range walletEffects {
			if _, err := s.wallets.ApplyEffect(tx, effect); err != nil {
				return err
			}
		}

		return s.auditLog.Append(tx, audit.Entry{
			EntityType: "money_movement_request",
			EntityID:   req.ID,
			Actor:      operator,
			ActionType: models.AuditActionRequestApproved,
			Old:        map[string]interface{}{"status": oldStatus},
			New:        map[string]interface{}{"status": target},
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshot(ctx)

	req.Status = target
	req.ProcessedBy = &operator
	req.ProcessedAt = &now
	return req, nil
}

// Reject moves a request to Rejected. A non-empty reason is mandatory; it
// is propagated to the requester and written to the audit trail.
func (s *Service) Reject(ctx context.Context, id, operator uuid.UUID, reason string) (*models.MoneyMovementRequest, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}

	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(req.Status, models.RequestStatusRejected) {
		if req.Status.IsTerminal() {
			return nil, ErrStaleState
		}
		return nil, ErrIllegalTransition
	}

	return s.terminalTransition(ctx, req, operator, models.RequestStatusRejected,
		models.AuditActionRequestRejected, reason)
}

// Cancel lets the requester withdraw a request before processing starts
func (s *Service) Cancel(ctx context.Context, id, requester uuid.UUID) (*models.MoneyMovementRequest, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != requester {
		return nil, ErrNotRequester
	}
	if req.Status != models.RequestStatusPending {
		if req.Status.IsTerminal() {
			return nil, ErrStaleState
		}
		return nil, ErrIllegalTransition
	}

	return s.terminalTransition(ctx, req, requester, models.RequestStatusCancelled,
		models.AuditActionRequestCancelled, "")
}

// ExpireStale expires pending requests whose deadline has passed
// (unclaimed peer requests and the like). Shared by the background sweep
// and manual triggers; returns the number of requests expired.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	var stale []models.MoneyMovementRequest
	now := time.Now().UTC()
	if err := s.db.Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?",
		models.RequestStatusPending, now).Find(&stale).Error; err != nil {
		return 0, fmt.Errorf("error finding stale requests: %w", err)
	}

	expired := 0
	for i := range stale {
		req := stale[i]
		if _, err := s.terminalTransition(ctx, &req, uuid.Nil, models.RequestStatusExpired,
			models.AuditActionRequestExpired, ""); err != nil {
			if errors.Is(err, ErrStaleState) {
				continue // lost the race to another transition; fine
			}
			log.Printf("Error expiring request %s: %v", req.ID, err)
			continue
		}
		expired++
	}

	return expired, nil
}

// terminalTransition applies a non-fund-moving terminal transition with
// CAS and audit in one transaction
func (s *Service) terminalTransition(ctx context.Context, req *models.MoneyMovementRequest, actor uuid.UUID, target models.RequestStatus, auditAction models.AuditActionType, reason string) (*models.MoneyMovementRequest, error) {
	oldStatus := req.Status
	now := time.Now().UTC()

	updates := map[string]interface{}{
		"status":       target,
		"processed_at": now,
	}
	if actor != uuid.Nil {
		updates["processed_by"] = actor
	}
	if reason != "" {
		updates["rejection_reason"] = reason
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.MoneyMovementRequest{}).
			Where("id = ? AND status = ?", req.ID, oldStatus).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("error updating request: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}

		return s.auditLog.Append(tx, audit.Entry{
			EntityType: "money_movement_request",
			EntityID:   req.ID,
			Actor:      actor,
			ActionType: auditAction,
			Old:        map[string]interface{}{"status": oldStatus},
			New:        map[string]interface{}{"status": target, "reason": reason},
		})
	})
	if err != nil {
		return nil, err
	}

	req.Status = target
	req.ProcessedAt = &now
	req.RejectionReason = reason
	return req, nil
}

// simpleTransition applies a non-terminal transition with CAS and audit
func (s *Service) simpleTransition(ctx context.Context, id, actor uuid.UUID, from, to models.RequestStatus, note string) (*models.MoneyMovementRequest, error) {
	if !transitionAllowed(from, to) {
		if from.IsTerminal() {
			return nil, ErrStaleState
		}
		return nil, ErrIllegalTransition
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.MoneyMovementRequest{}).
			Where("id = ? AND status = ?", id, from).
			Update("status", to)
		if result.Error != nil {
			return fmt.Errorf("error updating request: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrStaleState
		}

		return s.auditLog.Append(tx, audit.Entry{
			EntityType: "money_movement_request",
			EntityID:   id,
			Actor:      actor,
			ActionType: models.AuditActionRequestTransition,
			Old:        map[string]interface{}{"status": from},
			New:        map[string]interface{}{"status": to, "note": note},
		})
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

func (s *Service) invalidateSnapshot(ctx context.Context) {
	if s.exposure != nil {
		s.exposure.InvalidateCache(ctx)
	}
}

func referencePrefix(t models.RequestType) string {
	switch t {
	case models.RequestTypeDeposit:
		return "DEP"
	case models.RequestTypeWithdrawal:
		return "WDR"
	case models.RequestTypeCryptoPayment:
		return "CRY"
	case models.RequestTypeGoldPurchase:
		return "GLD"
	default:
		return "TRF"
	}
}
