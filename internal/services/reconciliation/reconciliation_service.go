package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aurumpay/backend/internal/audit"
	"github.com/aurumpay/backend/internal/config"
	"github.com/aurumpay/backend/internal/models"
	"github.com/aurumpay/backend/internal/services/exposure"
	"github.com/aurumpay/backend/internal/services/gate"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Review actions. Approve acknowledges a report (and opens review on a
// discrepancy report); Resolve closes out a discrepancy.
const (
	ActionApprove = "approve"
	ActionResolve = "resolve"
)

var (
	// ErrStaleReport is returned when the reviewed report has been
	// superseded by a newer run, or when a concurrent review won the race.
	ErrStaleReport = errors.New("report is stale: re-fetch and retry")

	// ErrNotesRequired is returned when a resolve action carries no review note
	ErrNotesRequired = errors.New("review notes are required to resolve a discrepancy")

	// ErrMakerChecker is returned when the resolver is the same identity
	// that generated the report
	ErrMakerChecker = errors.New("reviewer must differ from report generator")

	// ErrInvalidReviewAction is returned for an unknown review action
	ErrInvalidReviewAction = errors.New("invalid review action")

	// ErrReviewNotAllowed is returned when the report's current status does
	// not permit the requested action
	ErrReviewNotAllowed = errors.New("report status does not permit this action")

	// ErrDuplicateReport is returned on a manual run when a manual report
	// already exists for today
	ErrDuplicateReport = errors.New("a report for this date already exists")

	// ErrGateRequired is returned when resolving a discrepancy is a gated
	// action and no step-up ticket was supplied
	ErrGateRequired = errors.New("resolving a discrepancy requires a verified step-up ticket")
)

// Summary is the dashboard view of reconciliation state
type Summary struct {
	LatestReport     *models.ReconciliationReport `json:"latest_report"`
	PendingReview    int64                        `json:"pending_review"`
	OpenDiscrepancy  int64                        `json:"open_discrepancy"`
	BalancedLast30d  int64                        `json:"balanced_last_30d"`
	ResolvedLast30d  int64                        `json:"resolved_last_30d"`
	TotalReportCount int64                        `json:"total_report_count"`
}

// Service generates and reviews reconciliation reports
type Service struct {
	db       *gorm.DB
	exposure *exposure.Service
	gate     *gate.Service
	auditLog *audit.Logger
	cfg      config.ReconciliationConfig
}

// NewService creates a new reconciliation engine
func NewService(db *gorm.DB, exposureSvc *exposure.Service, gateSvc *gate.Service, auditLog *audit.Logger, cfg config.ReconciliationConfig) *Service {
	return &Service{db: db, exposure: exposureSvc, gate: gateSvc, auditLog: auditLog, cfg: cfg}
}

// Generate takes a fresh snapshot, compares physical custody against the
// sum of digital claims and persists an immutable report. Scheduled runs
// are deduplicated to at most one report per date; manual runs are tagged
// separately. A partial snapshot aborts generation with no report; the
// scheduler retries on the next tick.
func (s *Service) Generate(ctx context.Context, generatedBy uuid.UUID, source models.ReportSource) (*models.ReconciliationReport, error) {
	reportDate := truncateToDate(time.Now().UTC())

	var existing models.ReconciliationReport
	err := s.db.Where("report_date = ? AND source = ?", reportDate, source).First(&existing).Error
	if err == nil {
		if source == models.ReportSourceScheduled {
			return &existing, nil
		}
		return nil, fmt.Errorf("%w: %s run for %s", ErrDuplicateReport, source, reportDate.Format("2006-01-02"))
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("error checking existing report: %w", err)
	}

	// Fail closed: a PartialDataError from the aggregator means no report.
	snap, err := s.exposure.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot unavailable, reconciliation skipped: %w", err)
	}

	report := s.classify(snap, generatedBy, source, reportDate)

	if err := s.fillFlows(report, snap); err != nil {
		return nil, err
	}
	if err := s.fillCounts(report, reportDate); err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(report).Error; err != nil {
			return fmt.Errorf("error persisting report: %w", err)
		}
		return s.auditLog.Append(tx, audit.Entry{
			EntityType: "reconciliation_report",
			EntityID:   report.ID,
			Actor:      generatedBy,
			ActionType: models.AuditActionReportGenerated,
			New:        report,
		})
	})
	if err != nil {
		return nil, err
	}

	return report, nil
}

// classify computes claims and delta and assigns the initial status. A
// report is a discrepancy only when digital claims exceed physical
// custody by at least epsilon. A physical surplus keeps the invariant
// intact (claims remain fully backed) and stays balanced.
func (s *Service) classify(snap models.Snapshot, generatedBy uuid.UUID, source models.ReportSource, reportDate time.Time) *models.ReconciliationReport {
	claims := snap.Claims()
	delta := snap.PhysicalGoldGrams.Sub(claims)

	report := &models.ReconciliationReport{
		ReportDate:       reportDate,
		Source:           source,
		TotalGoldGrams:   snap.PhysicalGoldGrams,
		TotalClaimsGrams: claims,
		DeltaGrams:       delta,
		TotalUSDValue:    s.usdValue(snap),
		GeneratedBy:      generatedBy,
	}

	if delta.GreaterThan(s.cfg.EpsilonGrams.Neg()) {
		report.Status = models.ReportStatusBalanced
		return report
	}

	report.Status = models.ReportStatusDiscrepancyFound
	report.Discrepancies = []models.Discrepancy{
		{
			Module:        "vault_custody",
			ExpectedGrams: claims,
			ActualGrams:   snap.PhysicalGoldGrams,
			DeltaGrams:    delta,
			Explanation: fmt.Sprintf(
				"physical custody %s g vs digital claims %s g (wallets %s, collateral %s, trade finance %s)",
				snap.PhysicalGoldGrams, claims, snap.WalletGoldGrams,
				snap.LockedCollateralGoldGrams, snap.TradeFinanceLockedGoldGrams),
		},
	}
	return report
}

// fillFlows computes net gold change and inflow/outflow by diffing the
// snapshot against the most recent prior report, so the cost does not
// grow with transaction history.
func (s *Service) fillFlows(report *models.ReconciliationReport, snap models.Snapshot) error {
	var prev models.ReconciliationReport
	err := s.db.Where("report_date < ?", report.ReportDate).
		Order("report_date DESC, created_at DESC").
		First(&prev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		report.NetGoldChange = decimal.Zero
		report.GoldInflowGrams = decimal.Zero
		report.GoldOutflowGrams = decimal.Zero
		return nil
	}
	if err != nil {
		return fmt.Errorf("error loading prior report: %w", err)
	}

	change := snap.PhysicalGoldGrams.Sub(prev.TotalGoldGrams)
	report.NetGoldChange = change
	if change.IsPositive() {
		report.GoldInflowGrams = change
		report.GoldOutflowGrams = decimal.Zero
	} else {
		report.GoldInflowGrams = decimal.Zero
		report.GoldOutflowGrams = change.Neg()
	}
	return nil
}

// fillCounts counts the day's settled movement activity
func (s *Service) fillCounts(report *models.ReconciliationReport, reportDate time.Time) error {
	dayStart := reportDate
	dayEnd := reportDate.Add(24 * time.Hour)

	base := s.db.Model(&models.MoneyMovementRequest{}).
		Where("status IN ?", []models.RequestStatus{models.RequestStatusCompleted, models.RequestStatusCredited}).
		Where("processed_at >= ? AND processed_at < ?", dayStart, dayEnd)

	if err := base.Session(&gorm.Session{}).Count(&report.TransactionCount).Error; err != nil {
		return fmt.Errorf("error counting transactions: %w", err)
	}
	if err := base.Session(&gorm.Session{}).
		Where("request_type = ?", models.RequestTypeDeposit).
		Count(&report.DepositCount).Error; err != nil {
		return fmt.Errorf("error counting deposits: %w", err)
	}
	if err := base.Session(&gorm.Session{}).
		Where("request_type = ?", models.RequestTypeWithdrawal).
		Count(&report.WithdrawalCount).Error; err != nil {
		return fmt.Errorf("error counting withdrawals: %w", err)
	}
	return nil
}

func (s *Service) usdValue(snap models.Snapshot) decimal.Decimal {
	value := snap.PhysicalGoldGrams.Mul(s.cfg.GoldPriceUSD)
	if usd, ok := snap.CashByCurrency[models.CurrencyUSD]; ok {
		value = value.Add(usd)
	}
	return value
}

// Review applies a review action to a report. Approve on a balanced
// report records the acknowledging reviewer; approve on a discrepancy
// report opens it for review; resolve closes a discrepancy and requires a
// non-empty note and a reviewer distinct from the generator. When the
// resolve action is gated a verified step-up ticket is consumed in the
// same transaction as the status change; a failed gate check leaves the
// report untouched. The status update is compare-and-swap on the expected
// current status, and a report superseded by a newer run for the same
// date cannot be reviewed.
func (s *Service) Review(ctx context.Context, reportID, reviewer uuid.UUID, action, notes string, ticketID *uuid.UUID) (*models.ReconciliationReport, error) {
	var report models.ReconciliationReport
	if err := s.db.Preload("Discrepancies").First(&report, "id = ?", reportID).Error; err != nil {
		return nil, fmt.Errorf("error finding report: %w", err)
	}

	superseded, err := s.isSuperseded(&report)
	if err != nil {
		return nil, err
	}
	if superseded {
		return nil, ErrStaleReport
	}

	var target models.ReportStatus
	var gated bool
	switch action {
	case ActionApprove:
		switch report.Status {
		case models.ReportStatusBalanced:
			target = models.ReportStatusBalanced
		case models.ReportStatusDiscrepancyFound:
			target = models.ReportStatusPendingReview
		default:
			return nil, ErrReviewNotAllowed
		}
	case ActionResolve:
		if report.Status != models.ReportStatusDiscrepancyFound && report.Status != models.ReportStatusPendingReview {
			return nil, ErrReviewNotAllowed
		}
		if notes == "" {
			return nil, ErrNotesRequired
		}
		if reviewer == report.GeneratedBy && report.GeneratedBy != uuid.Nil {
			return nil, ErrMakerChecker
		}
		policy, err := gate.LoadPolicy(s.db)
		if err != nil {
			return nil, err
		}
		gated = policy.Requires(models.GateActionResolveDiscrepancy)
		if gated && ticketID == nil {
			return nil, ErrGateRequired
		}
		target = models.ReportStatusResolved
	default:
		return nil, ErrInvalidReviewAction
	}

	oldStatus := report.Status
	now := time.Now().UTC()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if gated {
			if err := s.gate.Authorize(tx, *ticketID, reviewer, models.GateActionResolveDiscrepancy, report.ID); err != nil {
				return err
			}
		}

		result := tx.Model(&models.ReconciliationReport{}).
			Where("id = ? AND status = ?", report.ID, oldStatus).
			Updates(map[string]interface{}{
				"status":       target,
				"reviewed_by":  reviewer,
				"reviewed_at":  now,
				"review_notes": notes,
			})
		if result.Error != nil {
			return fmt.Errorf("error updating report: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrStaleReport
		}

		return s.auditLog.Append(tx, audit.Entry{
			EntityType: "reconciliation_report",
			EntityID:   report.ID,
			Actor:      reviewer,
			ActionType: models.AuditActionReportReviewed,
			Old:        map[string]interface{}{"status": oldStatus},
			New:        map[string]interface{}{"status": target, "action": action, "notes": notes},
		})
	})
	if err != nil {
		return nil, err
	}

	report.Status = target
	report.ReviewedBy = &reviewer
	report.ReviewedAt = &now
	report.ReviewNotes = notes
	return &report, nil
}

// isSuperseded reports whether a newer report exists for the same date
func (s *Service) isSuperseded(report *models.ReconciliationReport) (bool, error) {
	var count int64
	err := s.db.Model(&models.ReconciliationReport{}).
		Where("report_date = ? AND created_at > ? AND id <> ?", report.ReportDate, report.CreatedAt, report.ID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("error checking for superseding report: %w", err)
	}
	return count > 0, nil
}

// Reports returns a page of reports, newest first, with discrepancies
func (s *Service) Reports(ctx context.Context, page, pageSize int) ([]models.ReconciliationReport, int64, error) {
	var reports []models.ReconciliationReport
	var total int64

	if err := s.db.Model(&models.ReconciliationReport{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting reports: %w", err)
	}

	offset := (page - 1) * pageSize
	if err := s.db.Preload("Discrepancies").
		Order("report_date DESC, created_at DESC").
		Offset(offset).Limit(pageSize).
		Find(&reports).Error; err != nil {
		return nil, 0, fmt.Errorf("error finding reports: %w", err)
	}

	return reports, total, nil
}

// GetReport returns one report with its discrepancies
func (s *Service) GetReport(ctx context.Context, id uuid.UUID) (*models.ReconciliationReport, error) {
	var report models.ReconciliationReport
	if err := s.db.Preload("Discrepancies").First(&report, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("error finding report: %w", err)
	}
	return &report, nil
}

// GetSummary returns the dashboard view of reconciliation state
func (s *Service) GetSummary(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	var latest models.ReconciliationReport
	err := s.db.Preload("Discrepancies").
		Order("report_date DESC, created_at DESC").
		First(&latest).Error
	if err == nil {
		summary.LatestReport = &latest
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("error finding latest report: %w", err)
	}

	since := time.Now().UTC().AddDate(0, 0, -30)
	counts := []struct {
		status models.ReportStatus
		dest   *int64
		scoped bool
	}{
		{models.ReportStatusPendingReview, &summary.PendingReview, false},
		{models.ReportStatusDiscrepancyFound, &summary.OpenDiscrepancy, false},
		{models.ReportStatusBalanced, &summary.BalancedLast30d, true},
		{models.ReportStatusResolved, &summary.ResolvedLast30d, true},
	}
	for _, c := range counts {
		q := s.db.Model(&models.ReconciliationReport{}).Where("status = ?", c.status)
		if c.scoped {
			q = q.Where("report_date >= ?", since)
		}
		if err := q.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("error counting %s reports: %w", c.status, err)
		}
	}

	if err := s.db.Model(&models.ReconciliationReport{}).Count(&summary.TotalReportCount).Error; err != nil {
		return nil, fmt.Errorf("error counting reports: %w", err)
	}

	return summary, nil
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
