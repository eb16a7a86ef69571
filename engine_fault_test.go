package core

import (
	"context"
	"testing"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("service unavailable")

// faultStore fails the next N upserts of a kind, then behaves normally.
// Compensation writes land after the countdown is spent, so they go
// through.
type faultStore struct {
	*MemoryStore

	failUpsertCollateral int
	failUpsertDebt       int
}

func (s *faultStore) UpsertCollateral(ctx context.Context, balance *CollateralBalance) error {
	if s.failUpsertCollateral > 0 {
		s.failUpsertCollateral--
		return errUnavailable
	}
	return s.MemoryStore.UpsertCollateral(ctx, balance)
}

func (s *faultStore) UpsertDebt(ctx context.Context, debt *DebtBalance) error {
	if s.failUpsertDebt > 0 {
		s.failUpsertDebt--
		return errUnavailable
	}
	return s.MemoryStore.UpsertDebt(ctx, debt)
}

type faultToken struct {
	*TokenLedger

	failMint int
	failBurn int
}

func (t *faultToken) Mint(ctx context.Context, to uuid.UUID, amount decimal.Decimal) error {
	if t.failMint > 0 {
		t.failMint--
		return errUnavailable
	}
	return t.TokenLedger.Mint(ctx, to, amount)
}

func (t *faultToken) Burn(ctx context.Context, amount decimal.Decimal) error {
	if t.failBurn > 0 {
		t.failBurn--
		return errUnavailable
	}
	return t.TokenLedger.Burn(ctx, amount)
}

type faultCustody struct {
	*VaultCustody

	failTransferOut int
}

func (c *faultCustody) TransferOut(ctx context.Context, account, assetId uuid.UUID, quantity decimal.Decimal) error {
	if c.failTransferOut > 0 {
		c.failTransferOut--
		return errUnavailable
	}
	return c.VaultCustody.TransferOut(ctx, account, assetId, quantity)
}

type faultRig struct {
	clk     *clock.Mock
	feed    *StaticPriceFeed
	token   *faultToken
	custody *faultCustody
	store   *faultStore
	engine  *Engine

	weth *CollateralAsset
	wbtc *CollateralAsset
}

func newFaultRig(t *testing.T) *faultRig {
	t.Helper()

	clk := clock.NewMock()
	weth := NewCollateralAsset("WETH", "feed-weth", 8, 8)
	wbtc := NewCollateralAsset("WBTC", "feed-wbtc", 8, 8)

	feed := NewStaticPriceFeed(clk)
	feed.SetPrice("feed-weth", decimal.New(2000, 8), 8)
	feed.SetPrice("feed-wbtc", decimal.New(40000, 8), 8)

	engineId := uuid.Must(uuid.NewV4())
	token := &faultToken{TokenLedger: NewTokenLedger(clk, NopLogger(), engineId)}
	custody := &faultCustody{VaultCustody: NewVaultCustody()}
	store := &faultStore{MemoryStore: NewMemoryStore()}

	engine, err := NewEngine(Config{
		Assets:  []*CollateralAsset{weth, wbtc},
		Feed:    feed,
		Token:   token,
		Custody: custody,
		Ledger: LedgerService{
			CollateralStore: store,
			DebtStore:       store,
			EventStore:      store.MemoryStore,
		},
		AccountId: engineId,
		Clock:     clk,
		Log:       NopLogger(),
	})
	require.NoError(t, err)

	return &faultRig{
		clk:     clk,
		feed:    feed,
		token:   token,
		custody: custody,
		store:   store,
		engine:  engine,
		weth:    weth,
		wbtc:    wbtc,
	}
}

func (r *faultRig) fundAndDeposit(t *testing.T, account uuid.UUID, asset *CollateralAsset, quantity decimal.Decimal) {
	t.Helper()
	r.custody.Fund(account, asset.Id, quantity)
	require.NoError(t, r.engine.DepositCollateral(context.Background(), account, asset.Id, quantity))
}

func (r *faultRig) assertConservation(t *testing.T, accounts ...uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	for _, asset := range r.engine.Registry().List() {
		total := decimal.Zero
		for _, account := range accounts {
			quantity, err := r.engine.CollateralOf(ctx, account, asset.Id)
			require.NoError(t, err)
			total = total.Add(quantity)
		}
		holdings, err := r.custody.Holdings(ctx, asset.Id)
		require.NoError(t, err)
		assert.True(t, total.Equal(holdings), "asset %s: ledger %s custody %s", asset.Symbol, total, holdings)
	}

	totalDebt := decimal.Zero
	for _, account := range accounts {
		debt, err := r.engine.DebtOf(ctx, account)
		require.NoError(t, err)
		totalDebt = totalDebt.Add(debt)
	}
	supply, err := r.token.TotalSupply(ctx)
	require.NoError(t, err)
	assert.True(t, totalDebt.Equal(supply), "debt %s supply %s", totalDebt, supply)
}

func TestBurnDebtCommitFailureReMints(t *testing.T) {
	r := newFaultRig(t)
	ctx := context.Background()
	account := uuid.Must(uuid.NewV4())

	r.fundAndDeposit(t, account, r.weth, decimal.NewFromInt(1))
	require.NoError(t, r.engine.Mint(ctx, account, decimal.NewFromInt(800)))

	r.store.failUpsertDebt = 1
	err := r.engine.Burn(ctx, account, decimal.NewFromInt(300))
	assert.ErrorIs(t, err, errUnavailable)

	debt, err := r.engine.DebtOf(ctx, account)
	require.NoError(t, err)
	assert.True(t, debt.Equal(decimal.NewFromInt(800)))

	balance, err := r.token.BalanceOf(ctx, account)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(800)))

	supply, err := r.token.TotalSupply(ctx)
	require.NoError(t, err)
	assert.True(t, supply.Equal(decimal.NewFromInt(800)))
	r.assertConservation(t, account)
}

func TestMintDebtCommitFailureBurnsBack(t *testing.T) {
	r := newFaultRig(t)
	ctx := context.Background()
	account := uuid.Must(uuid.NewV4())

	r.fundAndDeposit(t, account, r.weth, decimal.NewFromInt(1))
	require.NoError(t, r.engine.Mint(ctx, account, decimal.NewFromInt(10)))

	r.store.failUpsertDebt = 1
	err := r.engine.Mint(ctx, account, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, errUnavailable)

	debt, err := r.engine.DebtOf(ctx, account)
	require.NoError(t, err)
	assert.True(t, debt.Equal(decimal.NewFromInt(10)))

	supply, err := r.token.TotalSupply(ctx)
	require.NoError(t, err)
	assert.True(t, supply.Equal(decimal.NewFromInt(10)))
	r.assertConservation(t, account)
}

func TestDepositCommitFailureRefundsWallet(t *testing.T) {
	r := newFaultRig(t)
	ctx := context.Background()
	account := uuid.Must(uuid.NewV4())

	r.fundAndDeposit(t, account, r.weth, decimal.NewFromInt(1))
	r.custody.Fund(account, r.weth.Id, decimal.NewFromInt(1))

	r.store.failUpsertCollateral = 1
	err := r.engine.DepositCollateral(ctx, account, r.weth.Id, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, errUnavailable)

	quantity, err := r.engine.CollateralOf(ctx, account, r.weth.Id)
	require.NoError(t, err)
	assert.True(t, quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, r.custody.WalletBalance(account, r.weth.Id).Equal(decimal.NewFromInt(1)))
	r.assertConservation(t, account)
}

func TestRedeemCommitFailureReturnsToVault(t *testing.T) {
	r := newFaultRig(t)
	ctx := context.Background()
	account := uuid.Must(uuid.NewV4())

	r.fundAndDeposit(t, account, r.weth, decimal.NewFromInt(2))

	r.store.failUpsertCollateral = 1
	err := r.engine.RedeemCollateral(ctx, account, r.weth.Id, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, errUnavailable)

	quantity, err := r.engine.CollateralOf(ctx, account, r.weth.Id)
	require.NoError(t, err)
	assert.True(t, quantity.Equal(decimal.NewFromInt(2)))
	assert.True(t, r.custody.WalletBalance(account, r.weth.Id).IsZero())
	r.assertConservation(t, account)
}

func TestBurnTokenFailureRefundsPayer(t *testing.T) {
	r := newFaultRig(t)
	ctx := context.Background()
	account := uuid.Must(uuid.NewV4())

	r.fundAndDeposit(t, account, r.weth, decimal.NewFromInt(1))
	require.NoError(t, r.engine.Mint(ctx, account, decimal.NewFromInt(800)))

	r.token.failBurn = 1
	err := r.engine.Burn(ctx, account, decimal.NewFromInt(300))
	assert.ErrorIs(t, err, errUnavailable)

	balance, err := r.token.BalanceOf(ctx, account)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(800)))

	debt, err := r.engine.DebtOf(ctx, account)
	require.NoError(t, err)
	assert.True(t, debt.Equal(decimal.NewFromInt(800)))
	r.assertConservation(t, account)
}

func TestDepositAndMintUnwindsOnMintFailure(t *testing.T) {
	r := newFaultRig(t)
	ctx := context.Background()
	account := uuid.Must(uuid.NewV4())

	r.custody.Fund(account, r.weth.Id, decimal.NewFromInt(1))

	r.token.failMint = 1
	err := r.engine.DepositCollateralAndMint(ctx, account, r.weth.Id, decimal.NewFromInt(1), decimal.NewFromInt(500))
	assert.ErrorIs(t, err, errUnavailable)

	quantity, err := r.engine.CollateralOf(ctx, account, r.weth.Id)
	require.NoError(t, err)
	assert.True(t, quantity.IsZero())
	assert.True(t, r.custody.WalletBalance(account, r.weth.Id).Equal(decimal.NewFromInt(1)))

	supply, err := r.token.TotalSupply(ctx)
	require.NoError(t, err)
	assert.True(t, supply.IsZero())
	r.assertConservation(t, account)
}

func TestDepositAndMintDebtCommitFailureRestoresCollateral(t *testing.T) {
	r := newFaultRig(t)
	ctx := context.Background()
	account := uuid.Must(uuid.NewV4())

	r.fundAndDeposit(t, account, r.weth, decimal.NewFromInt(1))
	require.NoError(t, r.engine.Mint(ctx, account, decimal.NewFromInt(10)))
	r.custody.Fund(account, r.weth.Id, decimal.NewFromInt(1))

	r.store.failUpsertDebt = 1
	err := r.engine.DepositCollateralAndMint(ctx, account, r.weth.Id, decimal.NewFromInt(1), decimal.NewFromInt(500))
	assert.ErrorIs(t, err, errUnavailable)

	quantity, err := r.engine.CollateralOf(ctx, account, r.weth.Id)
	require.NoError(t, err)
	assert.True(t, quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, r.custody.WalletBalance(account, r.weth.Id).Equal(decimal.NewFromInt(1)))

	debt, err := r.engine.DebtOf(ctx, account)
	require.NoError(t, err)
	assert.True(t, debt.Equal(decimal.NewFromInt(10)))

	supply, err := r.token.TotalSupply(ctx)
	require.NoError(t, err)
	assert.True(t, supply.Equal(decimal.NewFromInt(10)))
	r.assertConservation(t, account)
}

func TestRedeemAndBurnUnwindsOnTransferOutFailure(t *testing.T) {
	r := newFaultRig(t)
	ctx := context.Background()
	account := uuid.Must(uuid.NewV4())

	r.fundAndDeposit(t, account, r.weth, decimal.NewFromInt(1))
	require.NoError(t, r.engine.Mint(ctx, account, decimal.NewFromInt(500)))

	r.custody.failTransferOut = 1
	err := r.engine.RedeemCollateralAndBurn(ctx, account, r.weth.Id, decimal.NewFromInt(1), decimal.NewFromInt(500))
	assert.ErrorIs(t, err, errUnavailable)

	debt, err := r.engine.DebtOf(ctx, account)
	require.NoError(t, err)
	assert.True(t, debt.Equal(decimal.NewFromInt(500)))

	balance, err := r.token.BalanceOf(ctx, account)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(500)))

	quantity, err := r.engine.CollateralOf(ctx, account, r.weth.Id)
	require.NoError(t, err)
	assert.True(t, quantity.Equal(decimal.NewFromInt(1)))
	r.assertConservation(t, account)
}

func TestLiquidateUnwindsOnTransferOutFailure(t *testing.T) {
	r := newFaultRig(t)
	ctx := context.Background()
	target := uuid.Must(uuid.NewV4())
	liquidator := uuid.Must(uuid.NewV4())

	r.fundAndDeposit(t, target, r.weth, decimal.NewFromInt(1))
	require.NoError(t, r.engine.Mint(ctx, target, decimal.NewFromInt(1000)))
	r.fundAndDeposit(t, liquidator, r.wbtc, decimal.NewFromInt(1))
	require.NoError(t, r.engine.Mint(ctx, liquidator, decimal.NewFromInt(200)))

	r.feed.SetPrice("feed-weth", decimal.New(1800, 8), 8)

	r.custody.failTransferOut = 1
	_, err := r.engine.Liquidate(ctx, liquidator, target, r.weth.Id, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, errUnavailable)

	debt, err := r.engine.DebtOf(ctx, target)
	require.NoError(t, err)
	assert.True(t, debt.Equal(decimal.NewFromInt(1000)))

	quantity, err := r.engine.CollateralOf(ctx, target, r.weth.Id)
	require.NoError(t, err)
	assert.True(t, quantity.Equal(decimal.NewFromInt(1)))

	balance, err := r.token.BalanceOf(ctx, liquidator)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(200)))
	r.assertConservation(t, target, liquidator)
}

func TestLiquidateDebtCommitFailureRestoresTarget(t *testing.T) {
	r := newFaultRig(t)
	ctx := context.Background()
	target := uuid.Must(uuid.NewV4())
	liquidator := uuid.Must(uuid.NewV4())

	r.fundAndDeposit(t, target, r.weth, decimal.NewFromInt(1))
	require.NoError(t, r.engine.Mint(ctx, target, decimal.NewFromInt(1000)))
	r.fundAndDeposit(t, liquidator, r.wbtc, decimal.NewFromInt(1))
	require.NoError(t, r.engine.Mint(ctx, liquidator, decimal.NewFromInt(200)))

	r.feed.SetPrice("feed-weth", decimal.New(1800, 8), 8)

	r.store.failUpsertDebt = 1
	_, err := r.engine.Liquidate(ctx, liquidator, target, r.weth.Id, decimal.NewFromInt(100))
	assert.ErrorIs(t, err, errUnavailable)

	debt, err := r.engine.DebtOf(ctx, target)
	require.NoError(t, err)
	assert.True(t, debt.Equal(decimal.NewFromInt(1000)))

	quantity, err := r.engine.CollateralOf(ctx, target, r.weth.Id)
	require.NoError(t, err)
	assert.True(t, quantity.Equal(decimal.NewFromInt(1)))

	balance, err := r.token.BalanceOf(ctx, liquidator)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(200)))
	assert.True(t, r.custody.WalletBalance(liquidator, r.weth.Id).IsZero())
	r.assertConservation(t, target, liquidator)
}
