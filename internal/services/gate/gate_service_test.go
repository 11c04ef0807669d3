package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aurumpay/backend/internal/audit"
	"github.com/aurumpay/backend/internal/config"
	"github.com/aurumpay/backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeNotifier struct {
	lastCode string
	fail     bool
}

func (n *fakeNotifier) SendCode(ctx context.Context, actorID uuid.UUID, code string) error {
	if n.fail {
		return errors.New("delivery failed")
	}
	n.lastCode = code
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:gate_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ApprovalGateTicket{}, &models.GateSetting{}, &models.AuditEntry{},
	))
	return db
}

func testConfig() config.GateConfig {
	return config.GateConfig{
		CodeExpiry:      10 * time.Minute,
		MaxAttempts:     3,
		ReissueCooldown: time.Minute,
		CodeDigits:      6,
	}
}

func newTestService(t *testing.T) (*Service, *fakeNotifier, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	notifier := &fakeNotifier{}
	return NewService(db, notifier, audit.NewLogger(db), testConfig()), notifier, db
}

func TestRequestAndVerifyTicket(t *testing.T) {
	svc, notifier, _ := newTestService(t)
	ctx := context.Background()
	actor := uuid.New()
	target := uuid.New()

	ticket, err := svc.RequestTicket(ctx, actor, models.GateActionApproveWithdrawal, target, "money_movement_request")
	require.NoError(t, err)
	require.NotEmpty(t, notifier.lastCode)
	assert.Len(t, notifier.lastCode, 6)
	assert.Equal(t, 3, ticket.AttemptsRemaining)
	assert.NotEqual(t, notifier.lastCode, ticket.CodeHash)

	verdict, err := svc.Verify(ctx, ticket.ID, notifier.lastCode)
	require.NoError(t, err)
	assert.Equal(t, VerifiedOK, verdict)

	// Tickets verify at most once
	_, err = svc.Verify(ctx, ticket.ID, notifier.lastCode)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestVerifyWrongCodeBurnsAttempts(t *testing.T) {
	svc, notifier, _ := newTestService(t)
	ctx := context.Background()

	ticket, err := svc.RequestTicket(ctx, uuid.New(), models.GateActionApproveWithdrawal, uuid.New(), "")
	require.NoError(t, err)

	verdict, err := svc.Verify(ctx, ticket.ID, "000000")
	require.NoError(t, err)
	assert.Equal(t, WrongCode, verdict)

	verdict, err = svc.Verify(ctx, ticket.ID, "000000")
	require.NoError(t, err)
	assert.Equal(t, WrongCode, verdict)

	// Third failure exhausts the ticket and invalidates it
	verdict, err = svc.Verify(ctx, ticket.ID, "000000")
	require.NoError(t, err)
	assert.Equal(t, AttemptsExhausted, verdict)

	// Even the right code no longer verifies; a fresh ticket is required
	verdict, err = svc.Verify(ctx, ticket.ID, notifier.lastCode)
	require.NoError(t, err)
	assert.Equal(t, AttemptsExhausted, verdict)
}

func TestConcurrentWrongCodesEachBurnAnAttempt(t *testing.T) {
	svc, notifier, db := newTestService(t)
	ctx := context.Background()

	// One connection serializes the writes without weakening the check:
	// the decrement must hold regardless of interleaving
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	ticket, err := svc.RequestTicket(ctx, uuid.New(), models.GateActionApproveWithdrawal, uuid.New(), "")
	require.NoError(t, err)

	wrong := "000000"
	if notifier.lastCode == wrong {
		wrong = "111111"
	}

	verdicts := make(chan Verdict, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			verdict, err := svc.Verify(ctx, ticket.ID, wrong)
			assert.NoError(t, err)
			verdicts <- verdict
		}()
	}
	wg.Wait()
	close(verdicts)

	for verdict := range verdicts {
		assert.Equal(t, WrongCode, verdict)
	}

	var stored models.ApprovalGateTicket
	require.NoError(t, db.First(&stored, "id = ?", ticket.ID).Error)
	assert.Equal(t, 1, stored.AttemptsRemaining, "each failure must consume a distinct attempt")
	assert.Nil(t, stored.InvalidatedAt)

	// The surviving attempt still accepts the right code
	verdict, err := svc.Verify(ctx, ticket.ID, notifier.lastCode)
	require.NoError(t, err)
	assert.Equal(t, VerifiedOK, verdict)
}

func TestVerifyExpiredTicket(t *testing.T) {
	svc, notifier, db := newTestService(t)
	ctx := context.Background()

	ticket, err := svc.RequestTicket(ctx, uuid.New(), models.GateActionApproveWithdrawal, uuid.New(), "")
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.ApprovalGateTicket{}).
		Where("id = ?", ticket.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	verdict, err := svc.Verify(ctx, ticket.ID, notifier.lastCode)
	require.NoError(t, err)
	assert.Equal(t, Expired, verdict)

	var reloaded models.ApprovalGateTicket
	require.NoError(t, db.First(&reloaded, "id = ?", ticket.ID).Error)
	assert.NotNil(t, reloaded.InvalidatedAt)
}

func TestReissueCooldown(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	actor := uuid.New()
	target := uuid.New()

	_, err := svc.RequestTicket(ctx, actor, models.GateActionApproveWithdrawal, target, "")
	require.NoError(t, err)

	_, err = svc.RequestTicket(ctx, actor, models.GateActionApproveWithdrawal, target, "")
	assert.ErrorIs(t, err, ErrCooldown)

	// A different target is a different tuple, no cooldown applies
	_, err = svc.RequestTicket(ctx, actor, models.GateActionApproveWithdrawal, uuid.New(), "")
	assert.NoError(t, err)
}

func TestDeliveryFailureKeepsTicketValid(t *testing.T) {
	db := newTestDB(t)
	notifier := &fakeNotifier{fail: true}
	svc := NewService(db, notifier, audit.NewLogger(db), testConfig())

	ticket, err := svc.RequestTicket(context.Background(), uuid.New(), models.GateActionApproveWithdrawal, uuid.New(), "")
	require.NoError(t, err)
	assert.NotNil(t, ticket)
}

func TestAuthorizeConsumesTicketOnce(t *testing.T) {
	svc, notifier, db := newTestService(t)
	ctx := context.Background()
	actor := uuid.New()
	target := uuid.New()

	ticket, err := svc.RequestTicket(ctx, actor, models.GateActionApproveWithdrawal, target, "")
	require.NoError(t, err)

	// Unverified tickets never authorize
	err = svc.Authorize(db, ticket.ID, actor, models.GateActionApproveWithdrawal, target)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	verdict, err := svc.Verify(ctx, ticket.ID, notifier.lastCode)
	require.NoError(t, err)
	require.Equal(t, VerifiedOK, verdict)

	require.NoError(t, svc.Authorize(db, ticket.ID, actor, models.GateActionApproveWithdrawal, target))

	// Single use: a second consumption fails
	err = svc.Authorize(db, ticket.ID, actor, models.GateActionApproveWithdrawal, target)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestAuthorizeIsScopedToExactTuple(t *testing.T) {
	svc, notifier, db := newTestService(t)
	ctx := context.Background()
	actor := uuid.New()
	target := uuid.New()

	ticket, err := svc.RequestTicket(ctx, actor, models.GateActionApproveWithdrawal, target, "")
	require.NoError(t, err)
	verdict, err := svc.Verify(ctx, ticket.ID, notifier.lastCode)
	require.NoError(t, err)
	require.Equal(t, VerifiedOK, verdict)

	// Verifying for withdrawal X does not authorize withdrawal Y
	err = svc.Authorize(db, ticket.ID, actor, models.GateActionApproveWithdrawal, uuid.New())
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// Nor a different action on the same target
	err = svc.Authorize(db, ticket.ID, actor, models.GateActionResolveDiscrepancy, target)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// Nor a different actor
	err = svc.Authorize(db, ticket.ID, uuid.New(), models.GateActionApproveWithdrawal, target)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// The exact tuple still works
	require.NoError(t, svc.Authorize(db, ticket.ID, actor, models.GateActionApproveWithdrawal, target))
}

func TestExpireStaleTickets(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	ticket, err := svc.RequestTicket(ctx, uuid.New(), models.GateActionApproveWithdrawal, uuid.New(), "")
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.ApprovalGateTicket{}).
		Where("id = ?", ticket.ID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	count, err := svc.ExpireStaleTickets(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPolicyDefaultsToGated(t *testing.T) {
	policy := Policy{
		models.GateActionApproveDeposit: false,
	}

	assert.False(t, policy.Requires(models.GateActionApproveDeposit))
	// Unknown action types fail safe
	assert.True(t, policy.Requires(models.GateActionApproveWithdrawal))
}

func TestSetRequiredAndLoadPolicy(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()
	admin := uuid.New()

	require.NoError(t, svc.SetRequired(ctx, models.GateActionApproveDeposit, false, admin))
	require.NoError(t, svc.SetRequired(ctx, models.GateActionApproveWithdrawal, true, admin))

	policy, err := LoadPolicy(db)
	require.NoError(t, err)
	assert.False(t, policy.Requires(models.GateActionApproveDeposit))
	assert.True(t, policy.Requires(models.GateActionApproveWithdrawal))

	// Toggling is idempotent on the same row
	require.NoError(t, svc.SetRequired(ctx, models.GateActionApproveDeposit, true, admin))
	policy, err = LoadPolicy(db)
	require.NoError(t, err)
	assert.True(t, policy.Requires(models.GateActionApproveDeposit))

	var count int64
	require.NoError(t, db.Model(&models.GateSetting{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
