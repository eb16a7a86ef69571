package core

import "github.com/pkg/errors"

var (
	InvalidConfig      = errors.New("invalid engine configuration")
	InvalidAmount      = errors.New("amount must be positive")
	AssetNotRegistered = errors.New("collateral asset not registered")

	InsufficientCollateral = errors.New("insufficient collateral deposited")
	InsufficientDebt       = errors.New("repay amount exceeds recorded debt")

	TransferFailed = errors.New("asset transfer failed")
	MintFailed     = errors.New("pegged token mint failed")
	BurnFailed     = errors.New("pegged token burn failed")

	HealthFactorBroken          = errors.New("health factor below minimum")
	HealthFactorNotBelowMinimum = errors.New("health factor not below minimum")
	HealthFactorNotImproved     = errors.New("health factor not improved")

	SelfLiquidation = errors.New("cannot liquidate own account")

	StalePrice   = errors.New("oracle price is stale")
	InvalidPrice = errors.New("oracle price is zero or negative")
)
