package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type (
	DebtStore interface {
		FindDebt(ctx context.Context, accountId uuid.UUID) (*DebtBalance, error)
		UpsertDebt(ctx context.Context, debt *DebtBalance) error
	}

	// DebtBalance is the pegged-token quantity minted against one
	// account's collateral. The sum over all accounts equals the token's
	// outstanding supply.
	DebtBalance struct {
		AccountId uuid.UUID `json:"accountId"`

		Quantity   decimal.Decimal `json:"quantity"`
		LastUpdate int64           `json:"lastUpdate"`
	}
)

func NewDebtBalance(clk clock.Clock, accountId uuid.UUID) *DebtBalance {
	return &DebtBalance{
		AccountId:  accountId,
		Quantity:   decimal.Zero,
		LastUpdate: clk.Now().Unix(),
	}
}

func FindOrCreateDebtBalance(ctx context.Context, clk clock.Clock, store DebtStore, accountId uuid.UUID) (*DebtBalance, error) {
	debt, err := store.FindDebt(ctx, accountId)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			debt = NewDebtBalance(clk, accountId)
			if err := store.UpsertDebt(ctx, debt); err != nil {
				return nil, err
			}
			return debt, nil
		}
		return nil, err
	}
	return debt, nil
}

func (d *DebtBalance) Clone() *DebtBalance {
	return &DebtBalance{
		AccountId:  d.AccountId,
		Quantity:   d.Quantity,
		LastUpdate: d.LastUpdate,
	}
}

func (d *DebtBalance) Increase(clk clock.Clock, quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return InvalidAmount
	}
	d.Quantity = d.Quantity.Add(quantity)
	d.LastUpdate = clk.Now().Unix()
	return nil
}

func (d *DebtBalance) Decrease(clk clock.Clock, quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return InvalidAmount
	}
	remaining := d.Quantity.Sub(quantity)
	if remaining.LessThan(ZERO_AMOUNT_THRESHOLD) {
		return InsufficientDebt
	}
	d.Quantity = remaining
	d.LastUpdate = clk.Now().Unix()
	return nil
}

func (d *DebtBalance) IsZero() bool {
	return d.Quantity.IsZero()
}
