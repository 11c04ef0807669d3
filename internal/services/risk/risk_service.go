package risk

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aurumpay/backend/internal/config"
	"github.com/aurumpay/backend/internal/models"
	"github.com/aurumpay/backend/internal/services/exposure"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RiskLevel classifies the platform's liquidity position
type RiskLevel string

const (
	RiskLevelHealthy  RiskLevel = "healthy"
	RiskLevelWarning  RiskLevel = "warning"
	RiskLevelCritical RiskLevel = "critical"
)

// ModuleExposure is one subsystem's share of total exposure
type ModuleExposure struct {
	Module      string          `json:"module"`
	ExposureUSD decimal.Decimal `json:"exposure_usd"`
	Percent     decimal.Decimal `json:"percent"`
}

// ConcentrationRisk measures how much of total exposure sits with the
// largest holders. Ties on exposure are broken by user id so the view is
// deterministic across calls.
type ConcentrationRisk struct {
	Top10UsersPercent decimal.Decimal `json:"top_10_users_percent"`
	Top20UsersPercent decimal.Decimal `json:"top_20_users_percent"`
	LargestHolderUSD  decimal.Decimal `json:"largest_holder_usd"`
	HolderCount       int             `json:"holder_count"`
}

// Alert is a derived warning. Alerts are recomputed on every call and
// never persisted, so they cannot go stale independently of the data.
type Alert struct {
	Severity RiskLevel `json:"severity"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
}

// RiskView is the aggregated risk and liquidity picture
type RiskView struct {
	AsOf                  time.Time         `json:"as_of"`
	OverallRiskScore      int               `json:"overall_risk_score"`
	RiskLevel             RiskLevel         `json:"risk_level"`
	TotalExposureUSD      decimal.Decimal   `json:"total_exposure_usd"`
	ExposureByModule      []ModuleExposure  `json:"exposure_by_module"`
	PendingObligationsUSD decimal.Decimal   `json:"pending_obligations_usd"`
	AvailableLiquidityUSD decimal.Decimal   `json:"available_liquidity_usd"`
	LiquidityRatio        decimal.Decimal   `json:"liquidity_ratio"`
	Concentration         ConcentrationRisk `json:"concentration_risk"`
	Alerts                []Alert           `json:"alerts"`
	PartialData           []string          `json:"partial_data,omitempty"`
}

// Service computes the risk view on demand from the exposure snapshot
// and the money-movement queue. Nothing here is cached or stored.
type Service struct {
	db       *gorm.DB
	exposure *exposure.Service
	cfg      config.RiskConfig
	reconCfg config.ReconciliationConfig
}

// NewService creates a new risk aggregator
func NewService(db *gorm.DB, exposureSvc *exposure.Service, cfg config.RiskConfig, reconCfg config.ReconciliationConfig) *Service {
	return &Service{db: db, exposure: exposureSvc, cfg: cfg, reconCfg: reconCfg}
}

type holderExposure struct {
	UserID string          `gorm:"column:user_id"`
	Grams  decimal.Decimal `gorm:"column:grams"`
}

// View builds the risk view. It reads the snapshot fail-open: a partial
// snapshot still produces a view, with the missing subsystems named, so
// the dashboard degrades instead of going dark.
func (s *Service) View(ctx context.Context) (*RiskView, error) {
	snap, missing, err := s.exposure.SnapshotAllowPartial(ctx)
	if err != nil {
		return nil, err
	}

	obligations, err := s.pendingObligations(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading pending obligations: %w", err)
	}

	holders, err := s.holderExposures(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading holder exposures: %w", err)
	}

	price := s.reconCfg.GoldPriceUSD

	cashUSD := snap.CashByCurrency[models.CurrencyUSD]
	goldValueUSD := snap.PhysicalGoldGrams.Mul(price)
	lockedUSD := snap.LockedCollateralGoldGrams.Add(snap.TradeFinanceLockedGoldGrams).Mul(price)
	available := cashUSD.Add(goldValueUSD).Sub(lockedUSD)

	byModule := []ModuleExposure{
		{Module: exposure.SubsystemWallets, ExposureUSD: snap.WalletGoldGrams.Mul(price)},
		{Module: exposure.SubsystemCollateral, ExposureUSD: snap.LockedCollateralGoldGrams.Mul(price)},
		{Module: exposure.SubsystemTradeFinance, ExposureUSD: snap.TradeFinanceLockedGoldGrams.Mul(price)},
	}
	total := decimal.Zero
	for _, m := range byModule {
		total = total.Add(m.ExposureUSD)
	}
	for i := range byModule {
		byModule[i].Percent = percentOf(byModule[i].ExposureUSD, total)
	}

	ratio := liquidityRatio(available, obligations)
	level := classify(ratio)
	concentration := s.concentration(holders, price)
	dueSoonShare, err := s.obligationDueConcentration(ctx, obligations)
	if err != nil {
		return nil, err
	}

	view := &RiskView{
		AsOf:                  snap.AsOf,
		TotalExposureUSD:      total,
		ExposureByModule:      byModule,
		PendingObligationsUSD: obligations,
		AvailableLiquidityUSD: available,
		LiquidityRatio:        ratio,
		RiskLevel:             level,
		Concentration:         concentration,
		PartialData:           missing,
	}
	view.OverallRiskScore = s.score(ratio, concentration.Top10UsersPercent, dueSoonShare)
	view.Alerts = s.alerts(view, missing)

	return view, nil
}

// pendingObligations sums the USD value of every request that has been
// admitted but not yet settled. Withdrawals and outbound payments are
// the platform's obligations; inbound deposits are not.
func (s *Service) pendingObligations(ctx context.Context) (decimal.Decimal, error) {
	var raw struct {
		TotalUSD  decimal.Decimal `gorm:"column:total_usd"`
		TotalGold decimal.Decimal `gorm:"column:total_gold"`
	}
	err := s.db.Model(&models.MoneyMovementRequest{}).
		Select("COALESCE(SUM(amount_usd), 0) AS total_usd, COALESCE(SUM(amount_gold), 0) AS total_gold").
		Where("status IN ?", []models.RequestStatus{
			models.RequestStatusPending,
			models.RequestStatusUnderReview,
			models.RequestStatusProcessing,
		}).
		Where("request_type IN ?", []models.RequestType{
			models.RequestTypeWithdrawal,
			models.RequestTypeCryptoPayment,
		}).
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	return raw.TotalUSD.Add(raw.TotalGold.Mul(s.reconCfg.GoldPriceUSD)), nil
}

func (s *Service) holderExposures(ctx context.Context) ([]holderExposure, error) {
	var holders []holderExposure
	err := s.db.Model(&models.Wallet{}).
		Select("user_id, gold_grams AS grams").
		Where("gold_grams > 0").
		Scan(&holders).Error
	return holders, err
}

// concentration sorts holders by exposure descending, user id ascending
// on ties, and reports the share held by the top 10 and top 20.
func (s *Service) concentration(holders []holderExposure, price decimal.Decimal) ConcentrationRisk {
	sort.Slice(holders, func(i, j int) bool {
		if !holders[i].Grams.Equal(holders[j].Grams) {
			return holders[i].Grams.GreaterThan(holders[j].Grams)
		}
		return holders[i].UserID < holders[j].UserID
	})

	total := decimal.Zero
	for _, h := range holders {
		total = total.Add(h.Grams)
	}

	risk := ConcentrationRisk{HolderCount: len(holders)}
	if len(holders) == 0 || total.IsZero() {
		return risk
	}

	risk.LargestHolderUSD = holders[0].Grams.Mul(price)
	risk.Top10UsersPercent = percentOf(sumTop(holders, 10), total)
	risk.Top20UsersPercent = percentOf(sumTop(holders, 20), total)
	return risk
}

// obligationDueConcentration returns the share of pending obligations
// coming due within 24 hours, as a percent. Obligations without an
// explicit deadline do not count as due soon.
func (s *Service) obligationDueConcentration(ctx context.Context, totalObligations decimal.Decimal) (decimal.Decimal, error) {
	if totalObligations.IsZero() {
		return decimal.Zero, nil
	}

	cutoff := time.Now().UTC().Add(24 * time.Hour)
	var raw struct {
		TotalUSD  decimal.Decimal `gorm:"column:total_usd"`
		TotalGold decimal.Decimal `gorm:"column:total_gold"`
	}
	err := s.db.Model(&models.MoneyMovementRequest{}).
		Select("COALESCE(SUM(amount_usd), 0) AS total_usd, COALESCE(SUM(amount_gold), 0) AS total_gold").
		Where("status IN ?", []models.RequestStatus{
			models.RequestStatusPending,
			models.RequestStatusUnderReview,
			models.RequestStatusProcessing,
		}).
		Where("request_type IN ?", []models.RequestType{
			models.RequestTypeWithdrawal,
			models.RequestTypeCryptoPayment,
		}).
		Where("expires_at IS NOT NULL AND expires_at < ?", cutoff).
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("error reading due obligations: %w", err)
	}

	dueSoon := raw.TotalUSD.Add(raw.TotalGold.Mul(s.reconCfg.GoldPriceUSD))
	return percentOf(dueSoon, totalObligations), nil
}

// score combines liquidity shortfall, holder concentration and
// due-date concentration into a 0-100 risk score. Higher is worse. The
// weights come from configuration so operators can retune without a
// redeploy.
func (s *Service) score(ratio, top10Percent, dueSoonPercent decimal.Decimal) int {
	// Liquidity component: 0 at ratio >= 1.5, full weight at ratio <= 0.5.
	liquidityShortfall := decimal.NewFromFloat(1.5).Sub(ratio)
	liquidityComponent := clampFraction(liquidityShortfall)

	concentrationComponent := clampFraction(top10Percent.Div(decimal.NewFromInt(100)))
	obligationComponent := clampFraction(dueSoonPercent.Div(decimal.NewFromInt(100)))

	score := liquidityComponent.Mul(decimal.NewFromInt(int64(s.cfg.LiquidityWeight))).
		Add(concentrationComponent.Mul(decimal.NewFromInt(int64(s.cfg.ConcentrationWeight)))).
		Add(obligationComponent.Mul(decimal.NewFromInt(int64(s.cfg.ObligationWeight))))

	n := int(score.Round(0).IntPart())
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return n
}

func (s *Service) alerts(view *RiskView, missing []string) []Alert {
	alerts := []Alert{}

	switch view.RiskLevel {
	case RiskLevelCritical:
		alerts = append(alerts, Alert{
			Severity: RiskLevelCritical,
			Code:     "LIQUIDITY_CRITICAL",
			Message:  fmt.Sprintf("liquidity ratio %s is below 1.0: pending obligations exceed available liquidity", view.LiquidityRatio.StringFixed(2)),
		})
	case RiskLevelWarning:
		alerts = append(alerts, Alert{
			Severity: RiskLevelWarning,
			Code:     "LIQUIDITY_WARNING",
			Message:  fmt.Sprintf("liquidity ratio %s is below the healthy threshold of 1.2", view.LiquidityRatio.StringFixed(2)),
		})
	}

	if view.Concentration.Top10UsersPercent.GreaterThan(decimal.NewFromInt(50)) {
		alerts = append(alerts, Alert{
			Severity: RiskLevelWarning,
			Code:     "CONCENTRATION_HIGH",
			Message:  fmt.Sprintf("top 10 holders control %s%% of exposure", view.Concentration.Top10UsersPercent.StringFixed(1)),
		})
	}

	for _, subsystem := range missing {
		alerts = append(alerts, Alert{
			Severity: RiskLevelWarning,
			Code:     "PARTIAL_DATA",
			Message:  fmt.Sprintf("subsystem %s was unreachable; view excludes its exposure", subsystem),
		})
	}

	return alerts
}

// liquidityRatio is availableLiquidity / pendingObligations. With no
// obligations the position is trivially healthy; a large sentinel keeps
// the ratio comparable without dividing by zero.
func liquidityRatio(available, obligations decimal.Decimal) decimal.Decimal {
	if obligations.IsZero() {
		return decimal.NewFromInt(999)
	}
	return available.DivRound(obligations, 8)
}

func classify(ratio decimal.Decimal) RiskLevel {
	switch {
	case ratio.GreaterThanOrEqual(decimal.NewFromFloat(1.2)):
		return RiskLevelHealthy
	case ratio.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return RiskLevelWarning
	default:
		return RiskLevelCritical
	}
}

func sumTop(holders []holderExposure, n int) decimal.Decimal {
	if n > len(holders) {
		n = len(holders)
	}
	sum := decimal.Zero
	for _, h := range holders[:n] {
		sum = sum.Add(h.Grams)
	}
	return sum
}

func percentOf(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Div(total).Mul(decimal.NewFromInt(100)).Round(4)
}

// clampFraction limits a decimal to the [0, 1] interval
func clampFraction(d decimal.Decimal) decimal.Decimal {
	if d.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return d
}
