package core

import (
	"github.com/fox-one/mixin-sdk-go/v2"
)

// NewCollateralAssetFromMixin builds a registry entry for an asset
// custodied on Mixin Safe, taking symbol and precision from the chain's
// own asset metadata.
func NewCollateralAssetFromMixin(asset *mixin.SafeAsset, feedId string, feedDecimals int32) *CollateralAsset {
	precision := asset.Precision
	if precision <= 0 {
		precision = DefaultAssetPrecision
	}
	a := NewCollateralAsset(asset.Symbol, feedId, feedDecimals, precision)
	return a
}
