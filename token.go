package core

import (
	"context"
	"sync"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	// PeggedToken is the external fungible-balance service for the
	// synthetic dollar. The engine must be its sole authorized
	// minter and burner.
	PeggedToken interface {
		Mint(ctx context.Context, to uuid.UUID, amount decimal.Decimal) error
		// Burn destroys amount from the engine's own holding,
		// previously pulled in with TransferFrom.
		Burn(ctx context.Context, amount decimal.Decimal) error
		TransferFrom(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal) error
		BalanceOf(ctx context.Context, account uuid.UUID) (decimal.Decimal, error)
		TotalSupply(ctx context.Context) (decimal.Decimal, error)
	}

	// TokenLedger is an in-memory pegged token. Mint and burn are
	// reachable only through the engine, which keeps the sole-minter
	// restriction structural.
	TokenLedger struct {
		mu  sync.Mutex
		clk clock.Clock
		log Log

		engineId uuid.UUID
		balances map[uuid.UUID]decimal.Decimal
		supply   decimal.Decimal
	}
)

func NewTokenLedger(clk clock.Clock, log Log, engineId uuid.UUID) *TokenLedger {
	return &TokenLedger{
		clk:      clk,
		log:      log,
		engineId: engineId,
		balances: make(map[uuid.UUID]decimal.Decimal),
		supply:   decimal.Zero,
	}
}

func (t *TokenLedger) Mint(ctx context.Context, to uuid.UUID, amount decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if to == uuid.Nil || !amount.IsPositive() {
		return MintFailed
	}
	t.balances[to] = t.balance(to).Add(amount)
	t.supply = t.supply.Add(amount)

	t.log.Debug().Str("to", to.String()).Str("amount", amount.String()).Msg("token minted")
	return nil
}

func (t *TokenLedger) Burn(ctx context.Context, amount decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !amount.IsPositive() {
		return BurnFailed
	}
	held := t.balance(t.engineId)
	if held.LessThan(amount) {
		return BurnFailed
	}
	t.balances[t.engineId] = held.Sub(amount)
	t.supply = t.supply.Sub(amount)

	t.log.Debug().Str("amount", amount.String()).Msg("token burned")
	return nil
}

func (t *TokenLedger) TransferFrom(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if from == uuid.Nil || to == uuid.Nil || !amount.IsPositive() {
		return TransferFailed
	}
	held := t.balance(from)
	if held.LessThan(amount) {
		return TransferFailed
	}
	t.balances[from] = held.Sub(amount)
	t.balances[to] = t.balance(to).Add(amount)
	return nil
}

func (t *TokenLedger) BalanceOf(ctx context.Context, account uuid.UUID) (decimal.Decimal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance(account), nil
}

func (t *TokenLedger) TotalSupply(ctx context.Context) (decimal.Decimal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supply, nil
}

func (t *TokenLedger) balance(account uuid.UUID) decimal.Decimal {
	if held, ok := t.balances[account]; ok {
		return held
	}
	return decimal.Zero
}
