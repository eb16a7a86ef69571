package core

import (
	"context"
	"sync"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	// PriceData is the latest price reported by a feed, in the feed's
	// own fixed-point scale.
	PriceData struct {
		Price     decimal.Decimal `json:"price"`
		Decimals  int32           `json:"decimals"`
		UpdatedAt int64           `json:"updatedAt"`
	}

	PriceFeed interface {
		LatestPrice(ctx context.Context, feedId string) (*PriceData, error)
	}

	// PriceOracle converts between asset quantities and canonical USD
	// values using the latest feed price. Stateless beyond the registry
	// binding; every call reads the feed fresh.
	PriceOracle struct {
		registry *AssetRegistry
		feed     PriceFeed
		clk      clock.Clock
	}
)

func NewPriceOracle(registry *AssetRegistry, feed PriceFeed, clk clock.Clock) *PriceOracle {
	return &PriceOracle{
		registry: registry,
		feed:     feed,
		clk:      clk,
	}
}

// normalizedPrice returns the USD price of one whole unit of the asset.
func (o *PriceOracle) normalizedPrice(ctx context.Context, asset *CollateralAsset) (decimal.Decimal, error) {
	data, err := o.feed.LatestPrice(ctx, asset.FeedId)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "feed %s", asset.FeedId)
	}
	if !data.Price.IsPositive() {
		return decimal.Zero, InvalidPrice
	}
	if asset.OracleMaxAge > 0 {
		age := o.clk.Now().Unix() - data.UpdatedAt
		if age > asset.OracleMaxAge {
			return decimal.Zero, StalePrice
		}
	}
	return data.Price.Shift(-data.Decimals), nil
}

func (o *PriceOracle) UsdValue(ctx context.Context, assetId uuid.UUID, quantity decimal.Decimal) (decimal.Decimal, error) {
	asset, err := o.registry.Get(assetId)
	if err != nil {
		return decimal.Zero, err
	}
	price, err := o.normalizedPrice(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	return quantity.Mul(price), nil
}

// TokenQuantity converts a USD amount into a quantity of the asset,
// truncated toward zero at the asset's precision.
func (o *PriceOracle) TokenQuantity(ctx context.Context, assetId uuid.UUID, usdValue decimal.Decimal) (decimal.Decimal, error) {
	asset, err := o.registry.Get(assetId)
	if err != nil {
		return decimal.Zero, err
	}
	price, err := o.normalizedPrice(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	return usdValue.Div(price).Truncate(asset.Precision), nil
}

// StaticPriceFeed is an in-memory PriceFeed with settable prices, used
// in tests and by embedders that push prices from elsewhere.
type StaticPriceFeed struct {
	mu     sync.RWMutex
	clk    clock.Clock
	prices map[string]*PriceData
}

func NewStaticPriceFeed(clk clock.Clock) *StaticPriceFeed {
	return &StaticPriceFeed{
		clk:    clk,
		prices: make(map[string]*PriceData),
	}
}

func (f *StaticPriceFeed) SetPrice(feedId string, price decimal.Decimal, decimals int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[feedId] = &PriceData{
		Price:     price,
		Decimals:  decimals,
		UpdatedAt: f.clk.Now().Unix(),
	}
}

func (f *StaticPriceFeed) LatestPrice(ctx context.Context, feedId string) (*PriceData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, ok := f.prices[feedId]
	if !ok {
		return nil, errors.Errorf("no price for feed %s", feedId)
	}
	copied := *data
	return &copied, nil
}
