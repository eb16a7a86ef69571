package core

import (
	"context"
	"sync"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type (
	// Config wires the engine's collaborators at construction time.
	// The asset universe is fixed here and immutable afterward.
	Config struct {
		Assets  []*CollateralAsset
		Feed    PriceFeed
		Token   PeggedToken
		Custody Custody
		Ledger  LedgerService

		// AccountId identifies the engine itself on the pegged
		// token ledger; burns pull tokens here first.
		AccountId uuid.UUID

		Clock clock.Clock
		Log   Log
	}

	// Engine owns the collateral and debt ledgers and enforces the
	// solvency invariant on every mutation. Exactly one mutating
	// operation runs at a time; the mutex doubles as the re-entrancy
	// guard, so a collaborator callback can never observe or act on
	// intermediate ledger state.
	Engine struct {
		mu  sync.Mutex
		clk clock.Clock
		log Log

		accountId uuid.UUID
		registry  *AssetRegistry
		oracle    *PriceOracle
		risk      *RiskEngine
		token     PeggedToken
		custody   Custody
		ledger    LedgerService
	}
)

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Feed == nil || cfg.Token == nil || cfg.Custody == nil {
		return nil, InvalidConfig
	}
	if cfg.Ledger.CollateralStore == nil || cfg.Ledger.DebtStore == nil || cfg.Ledger.EventStore == nil {
		return nil, InvalidConfig
	}
	if cfg.AccountId == uuid.Nil || cfg.Log == nil {
		return nil, InvalidConfig
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	registry, err := NewAssetRegistry(cfg.Assets)
	if err != nil {
		return nil, err
	}

	oracle := NewPriceOracle(registry, cfg.Feed, cfg.Clock)
	return &Engine{
		clk:       cfg.Clock,
		log:       cfg.Log,
		accountId: cfg.AccountId,
		registry:  registry,
		oracle:    oracle,
		risk:      NewRiskEngine(registry, oracle, cfg.Ledger),
		token:     cfg.Token,
		custody:   cfg.Custody,
		ledger:    cfg.Ledger,
	}, nil
}

func (e *Engine) AccountId() uuid.UUID {
	return e.accountId
}

func (e *Engine) Registry() *AssetRegistry {
	return e.registry
}

func (e *Engine) Oracle() *PriceOracle {
	return e.oracle
}

// ------------ staging helpers
//
// Every mutation is prepared on clones first. Guards and external
// transfers run against the staged copies; the stores only see a commit
// once everything has passed, so a failed operation leaves the ledgers
// bit for bit unchanged.

func (e *Engine) stageCollateralIncrease(ctx context.Context, accountId, assetId uuid.UUID, quantity decimal.Decimal) (staged, prior *CollateralBalance, err error) {
	if !quantity.IsPositive() {
		return nil, nil, InvalidAmount
	}
	if _, err := e.registry.Get(assetId); err != nil {
		return nil, nil, err
	}
	balance, err := FindOrCreateCollateralBalance(ctx, e.clk, e.ledger, accountId, assetId)
	if err != nil {
		return nil, nil, err
	}
	staged = balance.Clone()
	if err := staged.Increase(e.clk, quantity); err != nil {
		return nil, nil, err
	}
	return staged, balance, nil
}

func (e *Engine) stageCollateralDecrease(ctx context.Context, accountId, assetId uuid.UUID, quantity decimal.Decimal) (staged, prior *CollateralBalance, err error) {
	if !quantity.IsPositive() {
		return nil, nil, InvalidAmount
	}
	if _, err := e.registry.Get(assetId); err != nil {
		return nil, nil, err
	}
	balance, err := e.ledger.FindCollateral(ctx, accountId, assetId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, InsufficientCollateral
		}
		return nil, nil, err
	}
	staged = balance.Clone()
	if err := staged.Decrease(e.clk, quantity); err != nil {
		return nil, nil, err
	}
	return staged, balance, nil
}

func (e *Engine) stageDebtIncrease(ctx context.Context, accountId uuid.UUID, quantity decimal.Decimal) (staged, prior *DebtBalance, err error) {
	if !quantity.IsPositive() {
		return nil, nil, InvalidAmount
	}
	debt, err := FindOrCreateDebtBalance(ctx, e.clk, e.ledger, accountId)
	if err != nil {
		return nil, nil, err
	}
	staged = debt.Clone()
	if err := staged.Increase(e.clk, quantity); err != nil {
		return nil, nil, err
	}
	return staged, debt, nil
}

func (e *Engine) stageDebtDecrease(ctx context.Context, accountId uuid.UUID, quantity decimal.Decimal) (staged, prior *DebtBalance, err error) {
	if !quantity.IsPositive() {
		return nil, nil, InvalidAmount
	}
	debt, err := e.ledger.FindDebt(ctx, accountId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, InsufficientDebt
		}
		return nil, nil, err
	}
	staged = debt.Clone()
	if err := staged.Decrease(e.clk, quantity); err != nil {
		return nil, nil, err
	}
	return staged, debt, nil
}

// pullAndBurn collects quantity of the pegged token from payer and
// destroys it. A burn failure hands the pulled tokens back.
func (e *Engine) pullAndBurn(ctx context.Context, payer uuid.UUID, quantity decimal.Decimal) error {
	if err := e.token.TransferFrom(ctx, payer, e.accountId, quantity); err != nil {
		return err
	}
	if err := e.token.Burn(ctx, quantity); err != nil {
		if refundErr := e.token.TransferFrom(ctx, e.accountId, payer, quantity); refundErr != nil {
			e.log.Error().Msgf("burn refund failed: payer %s quantity %s: %v", payer, quantity, refundErr)
		}
		return err
	}
	return nil
}

// ------------ compensation
//
// Once an external leg has executed, any later failure must put the
// external systems back where they were, or the ledgers and the outside
// world disagree. Each compensation failure is logged for the operator
// to reconcile; there is nothing further the engine can do about it.

func (e *Engine) unwindMint(ctx context.Context, account uuid.UUID, quantity decimal.Decimal) {
	if err := e.pullAndBurn(ctx, account, quantity); err != nil {
		e.log.Error().Msgf("mint unwind failed: account %s quantity %s: %v", account, quantity, err)
	}
}

func (e *Engine) unwindBurn(ctx context.Context, account uuid.UUID, quantity decimal.Decimal) {
	if err := e.token.Mint(ctx, account, quantity); err != nil {
		e.log.Error().Msgf("burn unwind failed: account %s quantity %s: %v", account, quantity, err)
	}
}

func (e *Engine) unwindTransferIn(ctx context.Context, account, assetId uuid.UUID, quantity decimal.Decimal) {
	if err := e.custody.TransferOut(ctx, account, assetId, quantity); err != nil {
		e.log.Error().Msgf("transfer-in unwind failed: account %s asset %s quantity %s: %v", account, assetId, quantity, err)
	}
}

func (e *Engine) unwindTransferOut(ctx context.Context, account, assetId uuid.UUID, quantity decimal.Decimal) {
	if err := e.custody.TransferIn(ctx, account, assetId, quantity); err != nil {
		e.log.Error().Msgf("transfer-out unwind failed: account %s asset %s quantity %s: %v", account, assetId, quantity, err)
	}
}

func (e *Engine) restoreCollateral(ctx context.Context, prior *CollateralBalance) {
	if err := e.ledger.UpsertCollateral(ctx, prior); err != nil {
		e.log.Error().Msgf("collateral restore failed: account %s asset %s: %v", prior.AccountId, prior.AssetId, err)
	}
}

func (e *Engine) restoreDebt(ctx context.Context, prior *DebtBalance) {
	if err := e.ledger.UpsertDebt(ctx, prior); err != nil {
		e.log.Error().Msgf("debt restore failed: account %s: %v", prior.AccountId, err)
	}
}

func (e *Engine) emitEvent(ctx context.Context, typ CollateralEventType, from, to, assetId uuid.UUID, quantity decimal.Decimal) {
	event := NewCollateralEvent(e.clk, typ, from, to, assetId, quantity)
	if err := e.ledger.CreateEvent(ctx, event); err != nil {
		e.log.Warn().Msgf("event %s not recorded: %v", typ, err)
	}
}

// ------------ position operations

// DepositCollateral pulls quantity of the asset from the account's
// wallet into custody and credits the collateral ledger. Depositing can
// only improve health, so no safety check runs here.
func (e *Engine) DepositCollateral(ctx context.Context, accountId, assetId uuid.UUID, quantity decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	staged, _, err := e.stageCollateralIncrease(ctx, accountId, assetId, quantity)
	if err != nil {
		return err
	}

	if err := e.custody.TransferIn(ctx, accountId, assetId, quantity); err != nil {
		return err
	}

	if err := e.ledger.UpsertCollateral(ctx, staged); err != nil {
		e.unwindTransferIn(ctx, accountId, assetId, quantity)
		return err
	}
	e.emitEvent(ctx, EventTypeDeposit, accountId, accountId, assetId, quantity)

	e.log.Info().Msgf("deposit: account %s asset %s quantity %s", accountId, assetId, quantity)
	return nil
}

// RedeemCollateral returns quantity of the asset from custody to the
// account's wallet. The account must exit at or above the minimum
// health factor.
func (e *Engine) RedeemCollateral(ctx context.Context, accountId, assetId uuid.UUID, quantity decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	staged, _, err := e.stageCollateralDecrease(ctx, accountId, assetId, quantity)
	if err != nil {
		return err
	}
	if err := e.risk.AssertSafe(ctx, accountId, &StagedState{Collateral: []*CollateralBalance{staged}}); err != nil {
		return err
	}

	if err := e.custody.TransferOut(ctx, accountId, assetId, quantity); err != nil {
		return err
	}

	if err := e.ledger.UpsertCollateral(ctx, staged); err != nil {
		e.unwindTransferOut(ctx, accountId, assetId, quantity)
		return err
	}
	e.emitEvent(ctx, EventTypeRedeem, accountId, accountId, assetId, quantity)

	e.log.Info().Msgf("redeem: account %s asset %s quantity %s", accountId, assetId, quantity)
	return nil
}

// Mint issues quantity of the pegged token against the account's
// collateral. Rejected atomically if the post-state is unsafe.
func (e *Engine) Mint(ctx context.Context, accountId uuid.UUID, quantity decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	staged, _, err := e.stageDebtIncrease(ctx, accountId, quantity)
	if err != nil {
		return err
	}
	if err := e.risk.AssertSafe(ctx, accountId, &StagedState{Debt: staged}); err != nil {
		return err
	}

	if err := e.token.Mint(ctx, accountId, quantity); err != nil {
		return err
	}

	if err := e.ledger.UpsertDebt(ctx, staged); err != nil {
		e.unwindMint(ctx, accountId, quantity)
		return err
	}
	e.log.Info().Msgf("mint: account %s quantity %s", accountId, quantity)
	return nil
}

// Burn retires quantity of the account's own debt, paid from its own
// token balance. Burning can only improve health; the assert stays for
// structural symmetry.
func (e *Engine) Burn(ctx context.Context, accountId uuid.UUID, quantity decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	staged, _, err := e.stageDebtDecrease(ctx, accountId, quantity)
	if err != nil {
		return err
	}
	if err := e.risk.AssertSafe(ctx, accountId, &StagedState{Debt: staged}); err != nil {
		return err
	}

	if err := e.pullAndBurn(ctx, accountId, quantity); err != nil {
		return err
	}

	if err := e.ledger.UpsertDebt(ctx, staged); err != nil {
		e.unwindBurn(ctx, accountId, quantity)
		return err
	}
	e.log.Info().Msgf("burn: account %s quantity %s", accountId, quantity)
	return nil
}

// DepositCollateralAndMint composes deposit and mint as one atomic
// transition: both legs are staged and checked before any external
// transfer, and a mint failure unwinds the custody leg.
func (e *Engine) DepositCollateralAndMint(ctx context.Context, accountId, assetId uuid.UUID, depositQuantity, mintQuantity decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	stagedBalance, priorBalance, err := e.stageCollateralIncrease(ctx, accountId, assetId, depositQuantity)
	if err != nil {
		return err
	}
	stagedDebt, _, err := e.stageDebtIncrease(ctx, accountId, mintQuantity)
	if err != nil {
		return err
	}
	staged := &StagedState{
		Collateral: []*CollateralBalance{stagedBalance},
		Debt:       stagedDebt,
	}
	if err := e.risk.AssertSafe(ctx, accountId, staged); err != nil {
		return err
	}

	if err := e.custody.TransferIn(ctx, accountId, assetId, depositQuantity); err != nil {
		return err
	}
	if err := e.token.Mint(ctx, accountId, mintQuantity); err != nil {
		e.unwindTransferIn(ctx, accountId, assetId, depositQuantity)
		return err
	}

	if err := e.ledger.UpsertCollateral(ctx, stagedBalance); err != nil {
		e.unwindMint(ctx, accountId, mintQuantity)
		e.unwindTransferIn(ctx, accountId, assetId, depositQuantity)
		return err
	}
	if err := e.ledger.UpsertDebt(ctx, stagedDebt); err != nil {
		e.restoreCollateral(ctx, priorBalance)
		e.unwindMint(ctx, accountId, mintQuantity)
		e.unwindTransferIn(ctx, accountId, assetId, depositQuantity)
		return err
	}
	e.emitEvent(ctx, EventTypeDeposit, accountId, accountId, assetId, depositQuantity)

	e.log.Info().Msgf("deposit+mint: account %s asset %s deposit %s mint %s", accountId, assetId, depositQuantity, mintQuantity)
	return nil
}

// RedeemCollateralAndBurn retires debt and withdraws collateral in one
// atomic transition. The post-state is checked with both legs staged,
// so the withdrawal is measured against the reduced debt.
func (e *Engine) RedeemCollateralAndBurn(ctx context.Context, accountId, assetId uuid.UUID, redeemQuantity, burnQuantity decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	stagedDebt, priorDebt, err := e.stageDebtDecrease(ctx, accountId, burnQuantity)
	if err != nil {
		return err
	}
	stagedBalance, _, err := e.stageCollateralDecrease(ctx, accountId, assetId, redeemQuantity)
	if err != nil {
		return err
	}
	staged := &StagedState{
		Collateral: []*CollateralBalance{stagedBalance},
		Debt:       stagedDebt,
	}
	if err := e.risk.AssertSafe(ctx, accountId, staged); err != nil {
		return err
	}

	if err := e.pullAndBurn(ctx, accountId, burnQuantity); err != nil {
		return err
	}
	if err := e.custody.TransferOut(ctx, accountId, assetId, redeemQuantity); err != nil {
		e.unwindBurn(ctx, accountId, burnQuantity)
		return err
	}

	if err := e.ledger.UpsertDebt(ctx, stagedDebt); err != nil {
		e.unwindBurn(ctx, accountId, burnQuantity)
		e.unwindTransferOut(ctx, accountId, assetId, redeemQuantity)
		return err
	}
	if err := e.ledger.UpsertCollateral(ctx, stagedBalance); err != nil {
		e.restoreDebt(ctx, priorDebt)
		e.unwindBurn(ctx, accountId, burnQuantity)
		e.unwindTransferOut(ctx, accountId, assetId, redeemQuantity)
		return err
	}
	e.emitEvent(ctx, EventTypeRedeem, accountId, accountId, assetId, redeemQuantity)

	e.log.Info().Msgf("redeem+burn: account %s asset %s redeem %s burn %s", accountId, assetId, redeemQuantity, burnQuantity)
	return nil
}

// ------------ read-only surface

func (e *Engine) HealthFactorOf(ctx context.Context, accountId uuid.UUID) (decimal.Decimal, error) {
	return e.risk.HealthFactor(ctx, accountId, nil)
}

func (e *Engine) CollateralOf(ctx context.Context, accountId, assetId uuid.UUID) (decimal.Decimal, error) {
	balance, err := e.ledger.FindCollateral(ctx, accountId, assetId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return balance.Quantity, nil
}

func (e *Engine) DebtOf(ctx context.Context, accountId uuid.UUID) (decimal.Decimal, error) {
	debt, err := e.ledger.FindDebt(ctx, accountId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return debt.Quantity, nil
}

func (e *Engine) UsdValue(ctx context.Context, assetId uuid.UUID, quantity decimal.Decimal) (decimal.Decimal, error) {
	return e.oracle.UsdValue(ctx, assetId, quantity)
}

func (e *Engine) TokenQuantity(ctx context.Context, assetId uuid.UUID, usdValue decimal.Decimal) (decimal.Decimal, error) {
	return e.oracle.TokenQuantity(ctx, assetId, usdValue)
}

type AccountSummary struct {
	AccountId     uuid.UUID            `json:"accountId"`
	Balances      []*CollateralBalance `json:"balances"`
	CollateralUsd decimal.Decimal      `json:"collateralUsd"`
	TotalDebt     decimal.Decimal      `json:"totalDebt"`
	HealthFactor  decimal.Decimal      `json:"healthFactor"`
}

func (e *Engine) AccountSummaryOf(ctx context.Context, accountId uuid.UUID) (*AccountSummary, error) {
	stored, err := e.ledger.ListCollateral(ctx, accountId)
	if err != nil {
		return nil, err
	}
	// Zero rows linger on the ledger after full exits; they carry no
	// position and stay out of the summary.
	balances := make([]*CollateralBalance, 0, len(stored))
	for _, balance := range stored {
		if balance.IsEmpty() {
			continue
		}
		balances = append(balances, balance)
	}
	collateralUsd, totalDebt, err := e.risk.HealthComponents(ctx, accountId, nil)
	if err != nil {
		return nil, err
	}
	return &AccountSummary{
		AccountId:     accountId,
		Balances:      balances,
		CollateralUsd: collateralUsd,
		TotalDebt:     totalDebt,
		HealthFactor:  CalcHealthFactor(collateralUsd, totalDebt),
	}, nil
}
