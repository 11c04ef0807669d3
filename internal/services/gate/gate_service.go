package gate

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aurumpay/backend/internal/audit"
	"github.com/aurumpay/backend/internal/config"
	"github.com/aurumpay/backend/internal/models"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Verdict is the typed outcome of a verification attempt
type Verdict string

const (
	VerifiedOK        Verdict = "verified_ok"
	WrongCode         Verdict = "wrong_code"
	Expired           Verdict = "expired"
	AttemptsExhausted Verdict = "attempts_exhausted"
)

var (
	// ErrCooldown is returned when a ticket for the same tuple was issued
	// too recently
	ErrCooldown = errors.New("a code was issued recently: wait before requesting another")

	// ErrTicketNotFound is returned for an unknown ticket id
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrAlreadyVerified is returned when a ticket that has already
	// verified is verified again; tickets are single-use
	ErrAlreadyVerified = errors.New("ticket already verified")

	// ErrNotAuthorized is returned when Authorize finds no verified,
	// unconsumed ticket for the exact tuple
	ErrNotAuthorized = errors.New("no verified step-up ticket for this action")
)

// Notifier delivers codes out of band. Delivery failures are reported but
// do not fail ticket creation; the code stays valid and redelivery can be
// requested after the cooldown.
type Notifier interface {
	SendCode(ctx context.Context, actorID uuid.UUID, code string) error
}

// Policy is the per-action-type toggle deciding whether the gate applies.
// It is loaded from gate settings and passed into callers as a value, so
// tests can supply deterministic configurations.
type Policy map[models.GateActionType]bool

// Requires reports whether action is gated. Unknown action types default
// to gated: the safe direction for a control that moves funds.
func (p Policy) Requires(action models.GateActionType) bool {
	required, ok := p[action]
	if !ok {
		return true
	}
	return required
}

// Service issues, verifies and consumes step-up authentication tickets
type Service struct {
	db       *gorm.DB
	notifier Notifier
	auditLog *audit.Logger
	cfg      config.GateConfig
}

// NewService creates a new step-up gate
func NewService(db *gorm.DB, notifier Notifier, auditLog *audit.Logger, cfg config.GateConfig) *Service {
	return &Service{db: db, notifier: notifier, auditLog: auditLog, cfg: cfg}
}

// RequestTicket creates a ticket bound to (actor, action, target), sends
// the one-time code out of band and returns the ticket. The plaintext
// code is never stored; only its bcrypt hash is.
func (s *Service) RequestTicket(ctx context.Context, actorID uuid.UUID, action models.GateActionType, targetID uuid.UUID, targetType string) (*models.ApprovalGateTicket, error) {
	var recent models.ApprovalGateTicket
	cooldownStart := time.Now().Add(-s.cfg.ReissueCooldown)
	err := s.db.Where(
		"actor_id = ? AND action_type = ? AND target_id = ? AND created_at > ? AND invalidated_at IS NULL",
		actorID, action, targetID, cooldownStart,
	).First(&recent).Error
	if err == nil {
		return nil, ErrCooldown
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("error checking recent tickets: %w", err)
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing code: %w", err)
	}

	ticket := &models.ApprovalGateTicket{
		ActorID:           actorID,
		ActionType:        action,
		TargetID:          targetID,
		TargetType:        targetType,
		CodeHash:          string(hash),
		ExpiresAt:         time.Now().Add(s.cfg.CodeExpiry),
		AttemptsRemaining: s.cfg.MaxAttempts,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ticket).Error; err != nil {
			return fmt.Errorf("error creating ticket: %w", err)
		}
		return s.auditLog.Append(tx, audit.Entry{
			EntityType: "gate_ticket",
			EntityID:   ticket.ID,
			Actor:      actorID,
			ActionType: models.AuditActionGateTicketIssued,
			New: map[string]interface{}{
				"action_type": action,
				"target_id":   targetID,
				"expires_at":  ticket.ExpiresAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendCode(ctx, actorID, code); err != nil {
		// The code is still valid; the actor can request redelivery
		// after the cooldown window.
		log.Printf("Failed to deliver step-up code for ticket %s: %v", ticket.ID, err)
	}

	return ticket, nil
}

// Verify checks a code against a ticket. A ticket verifies at most once;
// each wrong code burns an attempt and reaching zero invalidates the
// ticket so a fresh code must be requested.
func (s *Service) Verify(ctx context.Context, ticketID uuid.UUID, code string) (Verdict, error) {
	var ticket models.ApprovalGateTicket
	if err := s.db.First(&ticket, "id = ?", ticketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrTicketNotFound
		}
		return "", fmt.Errorf("error finding ticket: %w", err)
	}

	if ticket.VerifiedAt != nil {
		return "", ErrAlreadyVerified
	}
	if ticket.InvalidatedAt != nil || ticket.AttemptsRemaining <= 0 {
		return AttemptsExhausted, nil
	}
	if time.Now().After(ticket.ExpiresAt) {
		s.invalidate(ctx, &ticket, "expired")
		return Expired, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(ticket.CodeHash), []byte(code)) != nil {
		return s.recordFailedAttempt(ctx, &ticket)
	}

	now := time.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ApprovalGateTicket{}).
			Where("id = ? AND verified_at IS NULL AND invalidated_at IS NULL", ticket.ID).
			Update("verified_at", now)
		if result.Error != nil {
			return fmt.Errorf("error marking ticket verified: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyVerified
		}

		return s.auditLog.Append(tx, audit.Entry{
			EntityType: "gate_ticket",
			EntityID:   ticket.ID,
			Actor:      ticket.ActorID,
			ActionType: models.AuditActionGateVerifySucceeded,
			New:        map[string]interface{}{"verified_at": now},
		})
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyVerified) {
			return "", ErrAlreadyVerified
		}
		return "", err
	}

	return VerifiedOK, nil
}

// Authorize consumes a verified ticket for exactly one approval of the
// given (action, target) tuple. Runs in the caller's transaction so the
// consumption commits or rolls back together with the approval itself.
func (s *Service) Authorize(tx *gorm.DB, ticketID, actorID uuid.UUID, action models.GateActionType, targetID uuid.UUID) error {
	now := time.Now()
	result := tx.Model(&models.ApprovalGateTicket{}).
		Where("id = ? AND actor_id = ? AND action_type = ? AND target_id = ?", ticketID, actorID, action, targetID).
		Where("verified_at IS NOT NULL AND consumed_at IS NULL AND invalidated_at IS NULL").
		Update("consumed_at", now)
	if result.Error != nil {
		return fmt.Errorf("error consuming ticket: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotAuthorized
	}
	return nil
}

// ExpireStaleTickets invalidates tickets past their expiry. Called by the
// background sweep.
func (s *Service) ExpireStaleTickets(ctx context.Context) (int64, error) {
	now := time.Now()
	result := s.db.Model(&models.ApprovalGateTicket{}).
		Where("expires_at < ? AND invalidated_at IS NULL AND consumed_at IS NULL", now).
		Update("invalidated_at", now)
	if result.Error != nil {
		return 0, fmt.Errorf("error expiring tickets: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// LoadPolicy reads the per-action gate settings into a Policy value
func LoadPolicy(db *gorm.DB) (Policy, error) {
	var settings []models.GateSetting
	if err := db.Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("error loading gate settings: %w", err)
	}

	policy := make(Policy, len(settings))
	for _, s := range settings {
		policy[s.ActionType] = s.Required
	}
	return policy, nil
}

// SetRequired toggles whether an action type requires the gate
func (s *Service) SetRequired(ctx context.Context, action models.GateActionType, required bool, updatedBy uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var setting models.GateSetting
		err := tx.Where("action_type = ?", action).First(&setting).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			setting = models.GateSetting{ActionType: action, Required: required, UpdatedBy: &updatedBy}
			if err := tx.Create(&setting).Error; err != nil {
				return fmt.Errorf("error creating gate setting: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("error finding gate setting: %w", err)
		} else {
			setting.Required = required
			setting.UpdatedBy = &updatedBy
			if err := tx.Save(&setting).Error; err != nil {
				return fmt.Errorf("error updating gate setting: %w", err)
			}
		}

		return s.auditLog.Append(tx, audit.Entry{
			EntityType: "gate_setting",
			EntityID:   setting.ID,
			Actor:      updatedBy,
			ActionType: models.AuditActionGateSettingChanged,
			New:        map[string]interface{}{"action_type": action, "required": required},
		})
	})
}

// recordFailedAttempt burns one attempt and invalidates the ticket at zero
// recordFailedAttempt burns one attempt. The decrement happens in SQL,
// not from the in-memory copy, so concurrent wrong codes each consume a
// distinct attempt instead of overwriting the same remaining value.
func (s *Service) recordFailedAttempt(ctx context.Context, ticket *models.ApprovalGateTicket) (Verdict, error) {
	var remaining int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ApprovalGateTicket{}).
			Where("id = ? AND attempts_remaining > 0 AND invalidated_at IS NULL", ticket.ID).
			Update("attempts_remaining", gorm.Expr("attempts_remaining - 1"))
		if result.Error != nil {
			return fmt.Errorf("error recording failed attempt: %w", result.Error)
		}

		var current models.ApprovalGateTicket
		if err := tx.Select("attempts_remaining").First(&current, "id = ?", ticket.ID).Error; err != nil {
			return fmt.Errorf("error reading remaining attempts: %w", err)
		}
		remaining = current.AttemptsRemaining

		if remaining <= 0 {
			if err := tx.Model(&models.ApprovalGateTicket{}).
				Where("id = ? AND invalidated_at IS NULL", ticket.ID).
				Update("invalidated_at", time.Now()).Error; err != nil {
				return fmt.Errorf("error invalidating ticket: %w", err)
			}
		}

		return s.auditLog.Append(tx, audit.Entry{
			EntityType: "gate_ticket",
			EntityID:   ticket.ID,
			Actor:      ticket.ActorID,
			ActionType: models.AuditActionGateVerifyFailed,
			New:        map[string]interface{}{"attempts_remaining": remaining},
		})
	})
	if err != nil {
		return "", err
	}

	if remaining <= 0 {
		return AttemptsExhausted, nil
	}
	return WrongCode, nil
}

func (s *Service) invalidate(ctx context.Context, ticket *models.ApprovalGateTicket, reason string) {
	if err := s.db.Model(&models.ApprovalGateTicket{}).
		Where("id = ? AND invalidated_at IS NULL", ticket.ID).
		Update("invalidated_at", time.Now()).Error; err != nil {
		log.Printf("Error invalidating ticket %s (%s): %v", ticket.ID, reason, err)
	}
}

// generateCode derives a numeric one-time code from a fresh random HOTP
// secret. The secret is discarded; the code round-trips only through the
// bcrypt hash on the ticket.
func (s *Service) generateCode() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("error generating code secret: %w", err)
	}
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)

	digits := otp.DigitsSix
	if s.cfg.CodeDigits == 8 {
		digits = otp.DigitsEight
	}

	code, err := hotp.GenerateCodeCustom(secret, 1, hotp.ValidateOpts{
		Digits:    digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("error generating code: %w", err)
	}
	return code, nil
}
