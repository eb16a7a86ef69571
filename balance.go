package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type (
	CollateralStore interface {
		FindCollateral(ctx context.Context, accountId, assetId uuid.UUID) (*CollateralBalance, error)
		UpsertCollateral(ctx context.Context, balance *CollateralBalance) error
		ListCollateral(ctx context.Context, accountId uuid.UUID) ([]*CollateralBalance, error)
	}

	// CollateralBalance is one account's position in one collateral
	// asset, in natural asset units. Accounts are implicit: a balance
	// appears on first deposit and simply returns to zero, it is never
	// destroyed.
	CollateralBalance struct {
		AccountId uuid.UUID `json:"accountId"`
		AssetId   uuid.UUID `json:"assetId"`

		Quantity   decimal.Decimal `json:"quantity"`
		LastUpdate int64           `json:"lastUpdate"`
	}
)

func NewCollateralBalance(clk clock.Clock, accountId, assetId uuid.UUID) *CollateralBalance {
	return &CollateralBalance{
		AccountId:  accountId,
		AssetId:    assetId,
		Quantity:   decimal.Zero,
		LastUpdate: clk.Now().Unix(),
	}
}

func FindOrCreateCollateralBalance(ctx context.Context, clk clock.Clock, store CollateralStore, accountId, assetId uuid.UUID) (*CollateralBalance, error) {
	balance, err := store.FindCollateral(ctx, accountId, assetId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			balance = NewCollateralBalance(clk, accountId, assetId)
			if err := store.UpsertCollateral(ctx, balance); err != nil {
				return nil, err
			}
			return balance, nil
		}
		return nil, err
	}
	return balance, nil
}

func (b *CollateralBalance) Clone() *CollateralBalance {
	return &CollateralBalance{
		AccountId:  b.AccountId,
		AssetId:    b.AssetId,
		Quantity:   b.Quantity,
		LastUpdate: b.LastUpdate,
	}
}

func (b *CollateralBalance) Increase(clk clock.Clock, quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return InvalidAmount
	}
	b.Quantity = b.Quantity.Add(quantity)
	b.LastUpdate = clk.Now().Unix()
	return nil
}

func (b *CollateralBalance) Decrease(clk clock.Clock, quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return InvalidAmount
	}
	remaining := b.Quantity.Sub(quantity)
	if remaining.LessThan(ZERO_AMOUNT_THRESHOLD) {
		return InsufficientCollateral
	}
	b.Quantity = remaining
	b.LastUpdate = clk.Now().Unix()
	return nil
}

func (b *CollateralBalance) IsEmpty() bool {
	return !b.Quantity.IsPositive()
}
