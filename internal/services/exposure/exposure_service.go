package exposure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aurumpay/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Subsystem names used in PartialDataError and stale-field reporting
const (
	SubsystemWallets      = "wallets"
	SubsystemVault        = "vault"
	SubsystemCollateral   = "collateral_locks"
	SubsystemTradeFinance = "trade_finance_locks"
)

// PartialDataError reports that one or more contributing subsystems could
// not be read. Reconciliation must treat a partial snapshot as unusable;
// dashboards may degrade gracefully and mark the missing fields as stale.
type PartialDataError struct {
	Missing []string
	Causes  []error
}

func (e *PartialDataError) Error() string {
	return fmt.Sprintf("partial exposure data: %s unreachable", strings.Join(e.Missing, ", "))
}

// Service produces consistent point-in-time snapshots of physical custody
// and every digital claim against it.
type Service struct {
	wallets      WalletStore
	vault        VaultStore
	collateral   LockStore
	tradeFinance LockStore
	readTimeout  time.Duration
	cache        *Cache
}

// NewService creates a new exposure aggregator. cache may be nil when no
// redis instance is configured.
func NewService(wallets WalletStore, vault VaultStore, collateral, tradeFinance LockStore, readTimeout time.Duration, cache *Cache) *Service {
	return &Service{
		wallets:      wallets,
		vault:        vault,
		collateral:   collateral,
		tradeFinance: tradeFinance,
		readTimeout:  readTimeout,
		cache:        cache,
	}
}

// Snapshot reads every contributing subsystem within one logical read and
// fails closed: any unreachable subsystem yields a *PartialDataError and
// no snapshot. A timed-out read is an error, never a default-zero value.
func (s *Service) Snapshot(ctx context.Context) (models.Snapshot, error) {
	snap, missing, causes := s.read(ctx)
	if len(missing) > 0 {
		return models.Snapshot{}, &PartialDataError{Missing: missing, Causes: causes}
	}
	return snap, nil
}

// SnapshotAllowPartial is the fail-open variant for best-effort dashboard
// reads. It returns whatever could be read plus the names of the
// subsystems whose fields are missing and must be marked stale. The error
// is non-nil only when every subsystem failed.
func (s *Service) SnapshotAllowPartial(ctx context.Context) (models.Snapshot, []string, error) {
	snap, missing, causes := s.read(ctx)
	if len(missing) == 4 {
		return models.Snapshot{}, missing, &PartialDataError{Missing: missing, Causes: causes}
	}
	return snap, missing, nil
}

// CachedSnapshot serves the dashboard path from the redis cache when a
// fresh-enough snapshot exists, falling back to a direct read. Cache
// staleness is bounded by the configured TTL.
func (s *Service) CachedSnapshot(ctx context.Context) (models.Snapshot, error) {
	if s.cache != nil {
		if snap, ok := s.cache.Get(ctx); ok {
			return snap, nil
		}
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, snap)
	}
	return snap, nil
}

// InvalidateCache drops the cached snapshot. Called by the state machine
// after any fund-moving transition.
func (s *Service) InvalidateCache(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func (s *Service) read(ctx context.Context) (models.Snapshot, []string, []error) {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	snap := models.Snapshot{
		AsOf:           time.Now().UTC(),
		CashByCurrency: map[models.Currency]decimal.Decimal{},
	}

	var missing []string
	var causes []error

	gold, cash, err := s.wallets.Totals(ctx)
	if err != nil {
		missing = append(missing, SubsystemWallets)
		causes = append(causes, err)
	} else {
		snap.WalletGoldGrams = gold
		snap.CashByCurrency = cash
	}

	physical, byLocation, err := s.vault.PhysicalTotals(ctx)
	if err != nil {
		missing = append(missing, SubsystemVault)
		causes = append(causes, err)
	} else {
		snap.PhysicalGoldGrams = physical
		snap.VaultByLocation = byLocation
	}

	locked, err := s.collateral.LockedTotal(ctx)
	if err != nil {
		missing = append(missing, SubsystemCollateral)
		causes = append(causes, err)
	} else {
		snap.LockedCollateralGoldGrams = locked
	}

	tfLocked, err := s.tradeFinance.LockedTotal(ctx)
	if err != nil {
		missing = append(missing, SubsystemTradeFinance)
		causes = append(causes, err)
	} else {
		snap.TradeFinanceLockedGoldGrams = tfLocked
	}

	return snap, missing, causes
}
