package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type (
	// LedgerService bundles the stores every risk computation reads.
	LedgerService struct {
		CollateralStore
		DebtStore
		EventStore
	}

	// StagedState carries balances an in-flight operation has mutated
	// but not committed yet. The risk engine evaluates against these
	// instead of the stored rows, so guards see the post-state of the
	// operation before anything is persisted.
	StagedState struct {
		Collateral []*CollateralBalance
		Debt       *DebtBalance
	}

	// RiskEngine computes health factors. Read-only, no caching:
	// balances and prices can change between calls, so every call
	// recomputes from scratch.
	RiskEngine struct {
		registry *AssetRegistry
		oracle   *PriceOracle
		ledger   LedgerService
	}
)

func NewRiskEngine(registry *AssetRegistry, oracle *PriceOracle, ledger LedgerService) *RiskEngine {
	return &RiskEngine{
		registry: registry,
		oracle:   oracle,
		ledger:   ledger,
	}
}

// HealthComponents returns the account's total collateral USD value and
// total debt, with any staged balances overriding stored ones.
func (r *RiskEngine) HealthComponents(ctx context.Context, accountId uuid.UUID, staged *StagedState) (decimal.Decimal, decimal.Decimal, error) {
	balances, err := r.ledger.ListCollateral(ctx, accountId)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	if staged != nil {
		balances = mergeStagedBalances(balances, staged.Collateral, accountId)
	}

	collateralUsd := decimal.Zero
	for _, balance := range balances {
		if balance.IsEmpty() {
			continue
		}
		value, err := r.oracle.UsdValue(ctx, balance.AssetId, balance.Quantity)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		collateralUsd = collateralUsd.Add(value)
	}

	totalDebt, err := r.totalDebt(ctx, accountId, staged)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return collateralUsd, totalDebt, nil
}

func (r *RiskEngine) totalDebt(ctx context.Context, accountId uuid.UUID, staged *StagedState) (decimal.Decimal, error) {
	if staged != nil && staged.Debt != nil && staged.Debt.AccountId == accountId {
		return staged.Debt.Quantity, nil
	}
	debt, err := r.ledger.FindDebt(ctx, accountId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return debt.Quantity, nil
}

// HealthFactor evaluates the account fresh from ledgers and oracle.
func (r *RiskEngine) HealthFactor(ctx context.Context, accountId uuid.UUID, staged *StagedState) (decimal.Decimal, error) {
	collateralUsd, totalDebt, err := r.HealthComponents(ctx, accountId, staged)
	if err != nil {
		return decimal.Zero, err
	}
	return CalcHealthFactor(collateralUsd, totalDebt), nil
}

func (r *RiskEngine) AssertSafe(ctx context.Context, accountId uuid.UUID, staged *StagedState) error {
	healthFactor, err := r.HealthFactor(ctx, accountId, staged)
	if err != nil {
		return err
	}
	if healthFactor.LessThan(MIN_HEALTH_FACTOR) {
		return HealthFactorBroken
	}
	return nil
}

// CalcHealthFactor is the threshold-adjusted collateral-to-debt ratio.
// Debt-free accounts get the MAX_HEALTH_FACTOR sentinel.
func CalcHealthFactor(collateralUsd, totalDebt decimal.Decimal) decimal.Decimal {
	if totalDebt.IsZero() {
		return MAX_HEALTH_FACTOR
	}
	return collateralUsd.Mul(LIQUIDATION_THRESHOLD).Div(totalDebt)
}

func mergeStagedBalances(stored, staged []*CollateralBalance, accountId uuid.UUID) []*CollateralBalance {
	merged := make([]*CollateralBalance, 0, len(stored)+len(staged))
	stagedByAsset := make(map[uuid.UUID]*CollateralBalance, len(staged))
	for _, balance := range staged {
		if balance.AccountId == accountId {
			stagedByAsset[balance.AssetId] = balance
		}
	}

	for _, balance := range stored {
		if override, ok := stagedByAsset[balance.AssetId]; ok {
			merged = append(merged, override)
			delete(stagedByAsset, balance.AssetId)
			continue
		}
		merged = append(merged, balance)
	}
	for _, balance := range staged {
		if _, ok := stagedByAsset[balance.AssetId]; ok && balance.AccountId == accountId {
			merged = append(merged, balance)
		}
	}
	return merged
}
