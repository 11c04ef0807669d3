package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/aurumpay/backend/internal/audit"
	"github.com/aurumpay/backend/internal/config"
	"github.com/aurumpay/backend/internal/models"
	"github.com/aurumpay/backend/internal/services/exposure"
	"github.com/aurumpay/backend/internal/services/gate"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:recon_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Wallet{}, &models.VaultHolding{},
		&models.CollateralLock{}, &models.TradeFinanceLock{},
		&models.MoneyMovementRequest{}, &models.ReconciliationReport{},
		&models.Discrepancy{}, &models.AuditEntry{},
		&models.ApprovalGateTicket{}, &models.GateSetting{},
	))
	return db
}

type capturingNotifier struct {
	lastCode string
}

func (n *capturingNotifier) SendCode(ctx context.Context, actorID uuid.UUID, code string) error {
	n.lastCode = code
	return nil
}

func newGateService(db *gorm.DB, notifier gate.Notifier) *gate.Service {
	return gate.NewService(db, notifier, audit.NewLogger(db), config.GateConfig{
		CodeExpiry:      10 * time.Minute,
		MaxAttempts:     3,
		ReissueCooldown: time.Minute,
		CodeDigits:      6,
	})
}

// allowUngatedResolve turns the gate off for discrepancy resolution so
// review tests can exercise the workflow without tickets
func allowUngatedResolve(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&models.GateSetting{
		ActionType: models.GateActionResolveDiscrepancy,
		Required:   false,
	}).Error)
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	exposureSvc := exposure.NewService(
		exposure.NewGormWalletStore(db),
		exposure.NewGormVaultStore(db),
		exposure.NewGormCollateralStore(db),
		exposure.NewGormTradeFinanceStore(db),
		5*time.Second,
		nil,
	)
	cfg := config.ReconciliationConfig{
		EpsilonGrams:    decimal.RequireFromString("0.01"),
		GoldPriceUSD:    decimal.RequireFromString("75.00"),
		ScheduleTime:    "02:00",
		SnapshotTimeout: 5 * time.Second,
	}
	gateSvc := newGateService(db, &capturingNotifier{})
	return NewService(db, exposureSvc, gateSvc, audit.NewLogger(db), cfg), db
}

func seedBalanced(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&models.Wallet{
		UserID: uuid.New(), GoldGrams: decimal.RequireFromString("55"),
	}).Error)
	require.NoError(t, db.Create(&models.CollateralLock{
		UserID: uuid.New(), GoldGrams: decimal.RequireFromString("10"), Status: models.LockStatusActive,
	}).Error)
	require.NoError(t, db.Create(&models.TradeFinanceLock{
		UserID: uuid.New(), GoldGrams: decimal.RequireFromString("5"), Status: models.LockStatusActive,
	}).Error)
	require.NoError(t, db.Create(&models.VaultHolding{
		Location: "zurich", GoldGrams: decimal.RequireFromString("70"), Active: true,
	}).Error)
}

func TestGenerateBalancedReport(t *testing.T) {
	svc, db := newTestService(t)
	seedBalanced(t, db)
	admin := uuid.New()

	report, err := svc.Generate(context.Background(), admin, models.ReportSourceManual)
	require.NoError(t, err)

	assert.Equal(t, models.ReportStatusBalanced, report.Status)
	assert.True(t, report.TotalGoldGrams.Equal(decimal.RequireFromString("70")))
	assert.True(t, report.TotalClaimsGrams.Equal(decimal.RequireFromString("70")))
	assert.True(t, report.DeltaGrams.IsZero())
	assert.Empty(t, report.Discrepancies)
	assert.Equal(t, admin, report.GeneratedBy)
}

func TestGenerateFlagsDiscrepancy(t *testing.T) {
	svc, db := newTestService(t)
	seedBalanced(t, db)
	// Shave physical custody so claims exceed it by 2 grams
	require.NoError(t, db.Model(&models.VaultHolding{}).
		Where("location = ?", "zurich").
		Update("gold_grams", decimal.RequireFromString("68")).Error)

	report, err := svc.Generate(context.Background(), uuid.New(), models.ReportSourceManual)
	require.NoError(t, err)

	assert.Equal(t, models.ReportStatusDiscrepancyFound, report.Status)
	assert.True(t, report.DeltaGrams.Equal(decimal.RequireFromString("-2")))
	require.Len(t, report.Discrepancies, 1)

	// The flagged rows account for the full delta
	sum := decimal.Zero
	for _, d := range report.Discrepancies {
		sum = sum.Add(d.DeltaGrams)
	}
	assert.True(t, sum.Equal(report.DeltaGrams))
}

func TestGenerateToleratesSubEpsilonDeficit(t *testing.T) {
	svc, db := newTestService(t)
	seedBalanced(t, db)
	// Claims exceed physical by 0.005g, under the 0.01g epsilon
	require.NoError(t, db.Model(&models.VaultHolding{}).
		Where("location = ?", "zurich").
		Update("gold_grams", decimal.RequireFromString("69.995")).Error)

	report, err := svc.Generate(context.Background(), uuid.New(), models.ReportSourceManual)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusBalanced, report.Status)
}

func TestGeneratePhysicalSurplusIsBalanced(t *testing.T) {
	svc, db := newTestService(t)
	seedBalanced(t, db)
	// 80g in custody against 70g of claims: every claim is fully backed
	require.NoError(t, db.Model(&models.VaultHolding{}).
		Where("location = ?", "zurich").
		Update("gold_grams", decimal.RequireFromString("80")).Error)

	report, err := svc.Generate(context.Background(), uuid.New(), models.ReportSourceManual)
	require.NoError(t, err)

	assert.Equal(t, models.ReportStatusBalanced, report.Status)
	assert.True(t, report.DeltaGrams.Equal(decimal.RequireFromString("10")))
	assert.Empty(t, report.Discrepancies)
}

func TestGenerateFailsClosedOnPartialSnapshot(t *testing.T) {
	db := newTestDB(t)
	seedBalanced(t, db)

	exposureSvc := exposure.NewService(
		exposure.NewGormWalletStore(db),
		unreachableVaultStore{},
		exposure.NewGormCollateralStore(db),
		exposure.NewGormTradeFinanceStore(db),
		time.Second,
		nil,
	)
	svc := NewService(db, exposureSvc, newGateService(db, &capturingNotifier{}), audit.NewLogger(db), config.ReconciliationConfig{
		EpsilonGrams: decimal.RequireFromString("0.01"),
		GoldPriceUSD: decimal.RequireFromString("75.00"),
	})

	_, err := svc.Generate(context.Background(), uuid.New(), models.ReportSourceScheduled)
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.ReconciliationReport{}).Count(&count).Error)
	assert.Zero(t, count, "a partial snapshot must never produce a report")
}

type unreachableVaultStore struct{}

func (unreachableVaultStore) PhysicalTotals(ctx context.Context) (decimal.Decimal, map[string]decimal.Decimal, error) {
	return decimal.Zero, nil, context.DeadlineExceeded
}

func TestScheduledRunsDeduplicatePerDate(t *testing.T) {
	svc, db := newTestService(t)
	seedBalanced(t, db)
	ctx := context.Background()

	first, err := svc.Generate(ctx, uuid.Nil, models.ReportSourceScheduled)
	require.NoError(t, err)

	second, err := svc.Generate(ctx, uuid.Nil, models.ReportSourceScheduled)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.ReconciliationReport{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestManualDuplicateIsRejected(t *testing.T) {
	svc, db := newTestService(t)
	seedBalanced(t, db)
	ctx := context.Background()

	_, err := svc.Generate(ctx, uuid.New(), models.ReportSourceManual)
	require.NoError(t, err)

	_, err = svc.Generate(ctx, uuid.New(), models.ReportSourceManual)
	assert.ErrorIs(t, err, ErrDuplicateReport)

	// A scheduled run the same day is tagged separately and still allowed
	_, err = svc.Generate(ctx, uuid.Nil, models.ReportSourceScheduled)
	assert.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.ReconciliationReport{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestReviewApproveAndResolve(t *testing.T) {
	svc, db := newTestService(t)
	seedBalanced(t, db)
	allowUngatedResolve(t, db)
	require.NoError(t, db.Model(&models.VaultHolding{}).
		Where("location = ?", "zurich").
		Update("gold_grams", decimal.RequireFromString("60")).Error)
	ctx := context.Background()
	generator := uuid.New()
	reviewer := uuid.New()

	report, err := svc.Generate(ctx, generator, models.ReportSourceManual)
	require.NoError(t, err)
	require.Equal(t, models.ReportStatusDiscrepancyFound, report.Status)

	// Approve opens the discrepancy for review
	opened, err := svc.Review(ctx, report.ID, reviewer, ActionApprove, "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusPendingReview, opened.Status)

	// Resolution requires notes
	_, err = svc.Review(ctx, report.ID, reviewer, ActionResolve, "", nil)
	assert.ErrorIs(t, err, ErrNotesRequired)

	// The generator cannot resolve their own report
	_, err = svc.Review(ctx, report.ID, generator, ActionResolve, "custody transfer in transit", nil)
	assert.ErrorIs(t, err, ErrMakerChecker)

	resolved, err := svc.Review(ctx, report.ID, reviewer, ActionResolve, "custody transfer in transit", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusResolved, resolved.Status)
	assert.Equal(t, "custody transfer in transit", resolved.ReviewNotes)
	require.NotNil(t, resolved.ReviewedBy)
	assert.Equal(t, reviewer, *resolved.ReviewedBy)

	// Resolved is terminal for review purposes
	_, err = svc.Review(ctx, report.ID, reviewer, ActionResolve, "again", nil)
	assert.ErrorIs(t, err, ErrReviewNotAllowed)
}

func TestResolveGatedRequiresVerifiedTicket(t *testing.T) {
	svc, db := newTestService(t)
	seedBalanced(t, db)
	require.NoError(t, db.Model(&models.VaultHolding{}).
		Where("location = ?", "zurich").
		Update("gold_grams", decimal.RequireFromString("60")).Error)
	ctx := context.Background()
	reviewer := uuid.New()

	report, err := svc.Generate(ctx, uuid.New(), models.ReportSourceManual)
	require.NoError(t, err)

	_, err = svc.Review(ctx, report.ID, reviewer, ActionApprove, "", nil)
	require.NoError(t, err)

	// With no gate setting the resolve action defaults to gated
	_, err = svc.Review(ctx, report.ID, reviewer, ActionResolve, "vault recount confirmed shortfall", nil)
	assert.ErrorIs(t, err, ErrGateRequired)

	// An unverified ticket is not enough
	notifier := &capturingNotifier{}
	gateSvc := newGateService(db, notifier)
	ticket, err := gateSvc.RequestTicket(ctx, reviewer, models.GateActionResolveDiscrepancy, report.ID, "reconciliation_report")
	require.NoError(t, err)
	_, err = svc.Review(ctx, report.ID, reviewer, ActionResolve, "vault recount confirmed shortfall", &ticket.ID)
	assert.ErrorIs(t, err, gate.ErrNotAuthorized)

	verdict, err := gateSvc.Verify(ctx, ticket.ID, notifier.lastCode)
	require.NoError(t, err)
	require.Equal(t, gate.VerifiedOK, verdict)

	resolved, err := svc.Review(ctx, report.ID, reviewer, ActionResolve, "vault recount confirmed shortfall", &ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusResolved, resolved.Status)
}

func TestReviewInvalidAction(t *testing.T) {
	svc, db := newTestService(t)
	seedBalanced(t, db)

	report, err := svc.Generate(context.Background(), uuid.New(), models.ReportSourceManual)
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), report.ID, uuid.New(), "escalate", "", nil)
	assert.ErrorIs(t, err, ErrInvalidReviewAction)
}

func TestReviewSupersededReportIsStale(t *testing.T) {
	svc, db := newTestService(t)
	seedBalanced(t, db)
	ctx := context.Background()

	manual, err := svc.Generate(ctx, uuid.New(), models.ReportSourceManual)
	require.NoError(t, err)

	// A later run for the same date supersedes the earlier report
	later, err := svc.Generate(ctx, uuid.Nil, models.ReportSourceScheduled)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.ReconciliationReport{}).
		Where("id = ?", later.ID).
		Update("created_at", manual.CreatedAt.Add(time.Second)).Error)

	_, err = svc.Review(ctx, manual.ID, uuid.New(), ActionApprove, "", nil)
	assert.ErrorIs(t, err, ErrStaleReport)
}

func TestReportPersistenceRoundTrip(t *testing.T) {
	svc, db := newTestService(t)
	seedBalanced(t, db)
	require.NoError(t, db.Model(&models.VaultHolding{}).
		Where("location = ?", "zurich").
		Update("gold_grams", decimal.RequireFromString("65")).Error)
	ctx := context.Background()

	generated, err := svc.Generate(ctx, uuid.New(), models.ReportSourceManual)
	require.NoError(t, err)

	loaded, err := svc.GetReport(ctx, generated.ID)
	require.NoError(t, err)
	assert.Equal(t, generated.Status, loaded.Status)
	assert.True(t, generated.DeltaGrams.Equal(loaded.DeltaGrams))
	assert.True(t, generated.TotalGoldGrams.Equal(loaded.TotalGoldGrams))
	require.Len(t, loaded.Discrepancies, 1)
	assert.Equal(t, "vault_custody", loaded.Discrepancies[0].Module)
}

func TestGetSummary(t *testing.T) {
	svc, db := newTestService(t)
	seedBalanced(t, db)
	ctx := context.Background()

	_, err := svc.Generate(ctx, uuid.New(), models.ReportSourceManual)
	require.NoError(t, err)

	summary, err := svc.GetSummary(ctx)
	require.NoError(t, err)
	require.NotNil(t, summary.LatestReport)
	assert.Equal(t, int64(1), summary.TotalReportCount)
	assert.Equal(t, int64(1), summary.BalancedLast30d)
	assert.Zero(t, summary.PendingReview)
}

func TestGenerateCountsSettledActivity(t *testing.T) {
	svc, db := newTestService(t)
	seedBalanced(t, db)
	now := time.Now().UTC()

	deposits := []models.MoneyMovementRequest{
		{RequestType: models.RequestTypeDeposit, UserID: uuid.New(), Status: models.RequestStatusCredited, ProcessedAt: &now, ReferenceNumber: "DEP_1"},
		{RequestType: models.RequestTypeWithdrawal, UserID: uuid.New(), Status: models.RequestStatusCompleted, ProcessedAt: &now, ReferenceNumber: "WDR_1"},
		{RequestType: models.RequestTypeWithdrawal, UserID: uuid.New(), Status: models.RequestStatusPending, ReferenceNumber: "WDR_2"},
	}
	for i := range deposits {
		require.NoError(t, db.Create(&deposits[i]).Error)
	}

	report, err := svc.Generate(context.Background(), uuid.New(), models.ReportSourceManual)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.TransactionCount)
	assert.Equal(t, int64(1), report.DepositCount)
	assert.Equal(t, int64(1), report.WithdrawalCount)
}
