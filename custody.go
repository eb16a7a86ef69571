package core

import (
	"context"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	// Custody moves collateral between account wallets and the
	// protocol's vault. Failures surface as TransferFailed and abort
	// the calling operation before any ledger state is committed.
	Custody interface {
		TransferIn(ctx context.Context, account, assetId uuid.UUID, quantity decimal.Decimal) error
		TransferOut(ctx context.Context, account, assetId uuid.UUID, quantity decimal.Decimal) error
		Holdings(ctx context.Context, assetId uuid.UUID) (decimal.Decimal, error)
	}

	// VaultCustody is an in-memory custody backend tracking per-account
	// wallets and the vault per asset.
	VaultCustody struct {
		mu      sync.Mutex
		wallets map[uuid.UUID]map[uuid.UUID]decimal.Decimal
		vault   map[uuid.UUID]decimal.Decimal
	}
)

func NewVaultCustody() *VaultCustody {
	return &VaultCustody{
		wallets: make(map[uuid.UUID]map[uuid.UUID]decimal.Decimal),
		vault:   make(map[uuid.UUID]decimal.Decimal),
	}
}

// Fund credits an account's external wallet. Deposits pull from this
// balance.
func (c *VaultCustody) Fund(account, assetId uuid.UUID, quantity decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setWallet(account, assetId, c.wallet(account, assetId).Add(quantity))
}

func (c *VaultCustody) WalletBalance(account, assetId uuid.UUID) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wallet(account, assetId)
}

func (c *VaultCustody) TransferIn(ctx context.Context, account, assetId uuid.UUID, quantity decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !quantity.IsPositive() {
		return TransferFailed
	}
	held := c.wallet(account, assetId)
	if held.LessThan(quantity) {
		return TransferFailed
	}
	c.setWallet(account, assetId, held.Sub(quantity))
	c.vault[assetId] = c.vaultBalance(assetId).Add(quantity)
	return nil
}

func (c *VaultCustody) TransferOut(ctx context.Context, account, assetId uuid.UUID, quantity decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !quantity.IsPositive() {
		return TransferFailed
	}
	held := c.vaultBalance(assetId)
	if held.LessThan(quantity) {
		return TransferFailed
	}
	c.vault[assetId] = held.Sub(quantity)
	c.setWallet(account, assetId, c.wallet(account, assetId).Add(quantity))
	return nil
}

func (c *VaultCustody) Holdings(ctx context.Context, assetId uuid.UUID) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vaultBalance(assetId), nil
}

func (c *VaultCustody) wallet(account, assetId uuid.UUID) decimal.Decimal {
	if byAsset, ok := c.wallets[account]; ok {
		if held, ok := byAsset[assetId]; ok {
			return held
		}
	}
	return decimal.Zero
}

func (c *VaultCustody) setWallet(account, assetId uuid.UUID, quantity decimal.Decimal) {
	byAsset, ok := c.wallets[account]
	if !ok {
		byAsset = make(map[uuid.UUID]decimal.Decimal)
		c.wallets[account] = byAsset
	}
	byAsset[assetId] = quantity
}

func (c *VaultCustody) vaultBalance(assetId uuid.UUID) decimal.Decimal {
	if held, ok := c.vault[assetId]; ok {
		return held
	}
	return decimal.Zero
}
