package core

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	ONE = decimal.NewFromInt(1)

	ZERO_AMOUNT_THRESHOLD = decimal.Zero

	// LIQUIDATION_THRESHOLD weights collateral value when computing the
	// health factor. 0.5 means a position needs at least 200% face-value
	// collateralization to stay at or above MIN_HEALTH_FACTOR.
	LIQUIDATION_THRESHOLD = decimal.NewFromFloat(0.5)

	// LIQUIDATION_BONUS is the premium slice of collateral paid to a
	// liquidator on top of the debt-equivalent amount.
	LIQUIDATION_BONUS = decimal.NewFromFloat(0.1)

	MIN_HEALTH_FACTOR = ONE

	// MAX_HEALTH_FACTOR is the sentinel health factor of a debt-free
	// account. A distinguished maximum, not an infinity, so comparisons
	// stay exact.
	MAX_HEALTH_FACTOR = decimal.NewFromUint64(math.MaxUint64)
)

const (
	// DefaultAssetPrecision is the fractional precision used for
	// collateral assets that do not carry their own precision.
	DefaultAssetPrecision int32 = 8
)
