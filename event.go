package core

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type (
	EventStore interface {
		CreateEvent(ctx context.Context, event *CollateralEvent) error
		ListEvents(ctx context.Context, accountId uuid.UUID, createdBeforeAt, limit int64) ([]*CollateralEvent, error)
	}

	// CollateralEvent records one custody movement for external
	// indexing. From and To differ only on liquidation redemptions.
	CollateralEvent struct {
		Id   uuid.UUID           `json:"id"`
		Type CollateralEventType `json:"type"`

		From     uuid.UUID       `json:"from"`
		To       uuid.UUID       `json:"to"`
		AssetId  uuid.UUID       `json:"assetId"`
		Quantity decimal.Decimal `json:"quantity"`

		CreatedAt int64 `json:"createdAt"`
	}

	CollateralEventType string
)

const (
	EventTypeDeposit     CollateralEventType = "deposit"
	EventTypeRedeem      CollateralEventType = "redeem"
	EventTypeLiquidation CollateralEventType = "liquidation"
)

func NewCollateralEvent(clk clock.Clock, typ CollateralEventType, from, to, assetId uuid.UUID, quantity decimal.Decimal) *CollateralEvent {
	return &CollateralEvent{
		Id:        uuid.Must(uuid.NewV4()),
		Type:      typ,
		From:      from,
		To:        to,
		AssetId:   assetId,
		Quantity:  quantity,
		CreatedAt: clk.Now().Unix(),
	}
}
