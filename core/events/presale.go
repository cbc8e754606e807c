package events

import (
	"math/big"

	"tiersale/core/types"
)

const (
	TypePresaleInitialized = "presale.initialized"
	TypePresalePurchase    = "presale.purchase"
	TypePresaleEnded       = "presale.ended"
	TypePresaleReactivated = "presale.reactivated"
)

type PresaleInitialized struct {
	Owner        [20]byte
	Treasury     [20]byte
	PaymentAsset string
	SaleAsset    string
	HardCap      uint64
	StartTime    int64
}

func (PresaleInitialized) EventType() string { return TypePresaleInitialized }

func (e PresaleInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypePresaleInitialized,
		Attributes: map[string]string{
			"owner":        formatAddress(e.Owner),
			"treasury":     formatAddress(e.Treasury),
			"paymentAsset": normalizeAsset(e.PaymentAsset),
			"saleAsset":    normalizeAsset(e.SaleAsset),
			"hardCap":      formatUint(e.HardCap),
			"startTime":    intToString(e.StartTime),
		},
	}
}

// PresalePurchase records a committed buy. Price and Cost are denominated in
// the payment asset's smallest unit.
type PresalePurchase struct {
	Buyer       [20]byte
	Amount      uint64
	Cost        *big.Int
	Tier        uint64
	Price       *big.Int
	TotalSold   uint64
	BuyerAmount uint64
}

func (PresalePurchase) EventType() string { return TypePresalePurchase }

func (e PresalePurchase) Event() *types.Event {
	return &types.Event{
		Type: TypePresalePurchase,
		Attributes: map[string]string{
			"buyer":       formatAddress(e.Buyer),
			"amount":      formatUint(e.Amount),
			"cost":        formatAmount(e.Cost),
			"tier":        formatUint(e.Tier),
			"price":       formatAmount(e.Price),
			"totalSold":   formatUint(e.TotalSold),
			"buyerAmount": formatUint(e.BuyerAmount),
		},
	}
}

type PresaleEnded struct {
	Owner     [20]byte
	TotalSold uint64
	EndTime   int64
}

func (PresaleEnded) EventType() string { return TypePresaleEnded }

func (e PresaleEnded) Event() *types.Event {
	return &types.Event{
		Type: TypePresaleEnded,
		Attributes: map[string]string{
			"owner":     formatAddress(e.Owner),
			"totalSold": formatUint(e.TotalSold),
			"endTime":   intToString(e.EndTime),
		},
	}
}

type PresaleReactivated struct {
	Owner            [20]byte
	ReactivationTime int64
}

func (PresaleReactivated) EventType() string { return TypePresaleReactivated }

func (e PresaleReactivated) Event() *types.Event {
	return &types.Event{
		Type: TypePresaleReactivated,
		Attributes: map[string]string{
			"owner":            formatAddress(e.Owner),
			"reactivationTime": intToString(e.ReactivationTime),
		},
	}
}
