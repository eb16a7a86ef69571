package core

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalcHealthFactor(t *testing.T) {
	tests := []struct {
		name          string
		collateralUsd decimal.Decimal
		totalDebt     decimal.Decimal
		expected      decimal.Decimal
	}{
		{
			name:          "no debt",
			collateralUsd: decimal.NewFromInt(2000),
			totalDebt:     decimal.Zero,
			expected:      MAX_HEALTH_FACTOR,
		},
		{
			name:          "no debt no collateral",
			collateralUsd: decimal.Zero,
			totalDebt:     decimal.Zero,
			expected:      MAX_HEALTH_FACTOR,
		},
		{
			name:          "far above minimum",
			collateralUsd: decimal.NewFromInt(20000),
			totalDebt:     decimal.NewFromInt(1),
			expected:      decimal.NewFromInt(10000),
		},
		{
			name:          "exactly at minimum",
			collateralUsd: decimal.NewFromInt(2000),
			totalDebt:     decimal.NewFromInt(1000),
			expected:      ONE,
		},
		{
			name:          "below minimum",
			collateralUsd: decimal.NewFromInt(1800),
			totalDebt:     decimal.NewFromInt(1000),
			expected:      decimal.NewFromFloat(0.9),
		},
		{
			name:          "no collateral",
			collateralUsd: decimal.Zero,
			totalDebt:     decimal.NewFromInt(1000),
			expected:      decimal.Zero,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalcHealthFactor(tt.collateralUsd, tt.totalDebt)
			assert.True(t, result.Equal(tt.expected), "expected %s, got %s", tt.expected, result)
		})
	}
}

func TestHealthComponentsWithStagedState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.newAccount(t)

	f.fundAndDeposit(t, account, f.weth, decimal.NewFromInt(2))
	require.NoError(t, f.engine.Mint(ctx, account, decimal.NewFromInt(1000)))

	risk := f.engine.risk

	// Unstaged view.
	collateralUsd, totalDebt, err := risk.HealthComponents(ctx, account, nil)
	require.NoError(t, err)
	assert.True(t, collateralUsd.Equal(decimal.NewFromInt(4000)))
	assert.True(t, totalDebt.Equal(decimal.NewFromInt(1000)))

	// A staged withdrawal halves the collateral before any commit.
	stagedBalance, err := f.store.FindCollateral(ctx, account, f.weth.Id)
	require.NoError(t, err)
	stagedBalance.Quantity = decimal.NewFromInt(1)

	stagedDebt, err := f.store.FindDebt(ctx, account)
	require.NoError(t, err)
	stagedDebt.Quantity = decimal.NewFromInt(600)

	collateralUsd, totalDebt, err = risk.HealthComponents(ctx, account, &StagedState{
		Collateral: []*CollateralBalance{stagedBalance},
		Debt:       stagedDebt,
	})
	require.NoError(t, err)
	assert.True(t, collateralUsd.Equal(decimal.NewFromInt(2000)))
	assert.True(t, totalDebt.Equal(decimal.NewFromInt(600)))

	// Nothing was committed.
	quantity, err := f.engine.CollateralOf(ctx, account, f.weth.Id)
	require.NoError(t, err)
	assert.True(t, quantity.Equal(decimal.NewFromInt(2)))
}

func TestHealthFactorUnknownAccount(t *testing.T) {
	f := newFixture(t)

	healthFactor, err := f.engine.HealthFactorOf(context.Background(), f.newAccount(t))
	require.NoError(t, err)
	assert.True(t, healthFactor.Equal(MAX_HEALTH_FACTOR))
}
