package core

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// LiquidateResult records one settled liquidation.
type LiquidateResult struct {
	Liquidator uuid.UUID `json:"liquidator"`
	Target     uuid.UUID `json:"target"`
	AssetId    uuid.UUID `json:"assetId"`

	DebtCovered    decimal.Decimal `json:"debtCovered"`
	SeizedQuantity decimal.Decimal `json:"seizedQuantity"`
	BonusQuantity  decimal.Decimal `json:"bonusQuantity"`

	PreHealth  decimal.Decimal `json:"preHealth"`
	PostHealth decimal.Decimal `json:"postHealth"`
}

// Liquidate lets a third party repay debtToCover of the target's debt
// in exchange for the debt-equivalent quantity of the chosen collateral
// plus the liquidation bonus. Permitted only against positions below
// the minimum health factor, and only when it leaves the target
// strictly healthier. Partial liquidation across several calls or
// assets is the caller's responsibility; the seizure fails outright if
// the target does not hold enough of the chosen asset.
func (e *Engine) Liquidate(ctx context.Context, liquidatorId, targetId, assetId uuid.UUID, debtToCover decimal.Decimal) (*LiquidateResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !debtToCover.IsPositive() {
		return nil, InvalidAmount
	}
	if liquidatorId == targetId {
		return nil, SelfLiquidation
	}
	if _, err := e.registry.Get(assetId); err != nil {
		return nil, err
	}

	startingHealth, err := e.risk.HealthFactor(ctx, targetId, nil)
	if err != nil {
		return nil, err
	}
	if startingHealth.GreaterThanOrEqual(MIN_HEALTH_FACTOR) {
		return nil, HealthFactorNotBelowMinimum
	}

	baseQuantity, err := e.oracle.TokenQuantity(ctx, assetId, debtToCover)
	if err != nil {
		return nil, err
	}
	bonusQuantity := baseQuantity.Mul(LIQUIDATION_BONUS)
	seizeQuantity := baseQuantity.Add(bonusQuantity)

	stagedBalance, priorBalance, err := e.stageCollateralDecrease(ctx, targetId, assetId, seizeQuantity)
	if err != nil {
		return nil, err
	}
	stagedDebt, _, err := e.stageDebtDecrease(ctx, targetId, debtToCover)
	if err != nil {
		return nil, err
	}
	staged := &StagedState{
		Collateral: []*CollateralBalance{stagedBalance},
		Debt:       stagedDebt,
	}

	endingHealth, err := e.risk.HealthFactor(ctx, targetId, staged)
	if err != nil {
		return nil, err
	}
	if endingHealth.LessThanOrEqual(startingHealth) {
		return nil, HealthFactorNotImproved
	}

	// The liquidator may itself hold a leveraged position; it must not
	// exit this operation unsafe. Its own ledgers are untouched here,
	// so no staged overrides apply.
	if err := e.risk.AssertSafe(ctx, liquidatorId, nil); err != nil {
		return nil, err
	}

	if err := e.pullAndBurn(ctx, liquidatorId, debtToCover); err != nil {
		return nil, err
	}
	if err := e.custody.TransferOut(ctx, liquidatorId, assetId, seizeQuantity); err != nil {
		e.unwindBurn(ctx, liquidatorId, debtToCover)
		return nil, err
	}

	if err := e.ledger.UpsertCollateral(ctx, stagedBalance); err != nil {
		e.unwindBurn(ctx, liquidatorId, debtToCover)
		e.unwindTransferOut(ctx, liquidatorId, assetId, seizeQuantity)
		return nil, err
	}
	if err := e.ledger.UpsertDebt(ctx, stagedDebt); err != nil {
		e.restoreCollateral(ctx, priorBalance)
		e.unwindBurn(ctx, liquidatorId, debtToCover)
		e.unwindTransferOut(ctx, liquidatorId, assetId, seizeQuantity)
		return nil, err
	}
	e.emitEvent(ctx, EventTypeLiquidation, targetId, liquidatorId, assetId, seizeQuantity)

	e.log.Info().Msgf("liquidate: target %s liquidator %s asset %s debt %s seized %s health %s -> %s",
		targetId, liquidatorId, assetId, debtToCover, seizeQuantity, startingHealth, endingHealth)

	return &LiquidateResult{
		Liquidator:     liquidatorId,
		Target:         targetId,
		AssetId:        assetId,
		DebtCovered:    debtToCover,
		SeizedQuantity: seizeQuantity,
		BonusQuantity:  bonusQuantity,
		PreHealth:      startingHealth,
		PostHealth:     endingHealth,
	}, nil
}
