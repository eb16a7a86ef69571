package core

import (
	"github.com/gofrs/uuid"
	"github.com/halodollar/core/utils"
)

type (
	// CollateralAsset binds an accepted collateral asset to its price
	// feed. The registry is assembled once at engine construction and
	// never mutated afterward.
	CollateralAsset struct {
		Id     uuid.UUID `json:"id"`
		Symbol string    `json:"symbol"`

		FeedId       string `json:"feedId"`
		FeedDecimals int32  `json:"feedDecimals"`

		// Precision is the fractional precision of the asset's
		// smallest unit; USD to token conversions truncate to it.
		Precision int32 `json:"precision"`

		// OracleMaxAge bounds the age of an acceptable price in
		// seconds. Zero disables the staleness check.
		OracleMaxAge int64 `json:"oracleMaxAge"`
	}

	AssetRegistry struct {
		assets map[uuid.UUID]*CollateralAsset
		order  []uuid.UUID
	}
)

func NewCollateralAsset(symbol, feedId string, feedDecimals, precision int32) *CollateralAsset {
	return &CollateralAsset{
		Id:           uuid.Must(uuid.FromString(utils.GenUuidFromStrings(symbol, feedId))),
		Symbol:       symbol,
		FeedId:       feedId,
		FeedDecimals: feedDecimals,
		Precision:    precision,
	}
}

func (a *CollateralAsset) Validate() error {
	if a.Id == uuid.Nil || a.Symbol == "" || a.FeedId == "" {
		return InvalidConfig
	}
	if a.FeedDecimals < 0 || a.Precision < 0 {
		return InvalidConfig
	}
	if a.OracleMaxAge < 0 {
		return InvalidConfig
	}
	return nil
}

// NewAssetRegistry builds the immutable universe of accepted collateral.
// Duplicate ids and invalid feed bindings fail here, at construction,
// never at runtime.
func NewAssetRegistry(assets []*CollateralAsset) (*AssetRegistry, error) {
	r := &AssetRegistry{
		assets: make(map[uuid.UUID]*CollateralAsset, len(assets)),
		order:  make([]uuid.UUID, 0, len(assets)),
	}
	for _, asset := range assets {
		if err := asset.Validate(); err != nil {
			return nil, err
		}
		if _, ok := r.assets[asset.Id]; ok {
			return nil, InvalidConfig
		}
		r.assets[asset.Id] = asset
		r.order = append(r.order, asset.Id)
	}
	return r, nil
}

func (r *AssetRegistry) Get(assetId uuid.UUID) (*CollateralAsset, error) {
	asset, ok := r.assets[assetId]
	if !ok {
		return nil, AssetNotRegistered
	}
	return asset, nil
}

// List returns the registered assets in registration order.
func (r *AssetRegistry) List() []*CollateralAsset {
	assets := make([]*CollateralAsset, 0, len(r.order))
	for _, id := range r.order {
		assets = append(assets, r.assets[id])
	}
	return assets
}
