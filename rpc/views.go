package rpc

import (
	"tiersale/crypto"
	"tiersale/explorer"
	"tiersale/native/presale"
)

// StatusView tells clients which chain id to sign for.
type StatusView struct {
	ChainID     uint64 `json:"chainId"`
	Initialized bool   `json:"initialized"`
}

// SaleView is the JSON rendering of the sale record. Prices and costs are
// decimal strings because they may exceed 64 bits.
type SaleView struct {
	Owner             string `json:"owner"`
	Treasury          string `json:"treasury"`
	PaymentAsset      string `json:"paymentAsset"`
	SaleAsset         string `json:"saleAsset"`
	InitialPrice      uint64 `json:"initialPrice"`
	StartTime         int64  `json:"startTime"`
	TotalSold         uint64 `json:"totalSold"`
	Active            bool   `json:"active"`
	HardCap           uint64 `json:"hardCap"`
	TierSize          uint64 `json:"tierSize"`
	TierCount         uint64 `json:"tierCount"`
	WalletCap         uint64 `json:"walletCap"`
	GrowthNumerator   uint64 `json:"growthNumerator"`
	GrowthDenominator uint64 `json:"growthDenominator"`
	CurrentTier       uint64 `json:"currentTier"`
	CurrentPrice      string `json:"currentPrice,omitempty"`
	Remaining         uint64 `json:"remaining"`
}

func newSaleView(sale *presale.SaleState) (*SaleView, error) {
	view := &SaleView{
		Owner:             crypto.FromRaw(sale.Owner).String(),
		Treasury:          crypto.FromRaw(sale.Treasury).String(),
		PaymentAsset:      sale.PaymentAsset,
		SaleAsset:         sale.SaleAsset,
		InitialPrice:      sale.InitialPrice,
		StartTime:         sale.StartTime,
		TotalSold:         sale.TotalSold,
		Active:            sale.Active,
		HardCap:           sale.HardCap,
		TierSize:          sale.TierSize,
		TierCount:         sale.TierCount,
		WalletCap:         sale.WalletCap,
		GrowthNumerator:   sale.GrowthNumerator,
		GrowthDenominator: sale.GrowthDenominator,
		CurrentTier:       sale.CurrentTier(),
		Remaining:         sale.Remaining(),
	}
	if view.CurrentTier < sale.TierCount {
		price, err := sale.Schedule().PriceAt(view.CurrentTier)
		if err != nil {
			return nil, err
		}
		view.CurrentPrice = price.ToBig().String()
	}
	return view, nil
}

// ScheduleView lists the price of every tier.
type ScheduleView struct {
	HardCap uint64              `json:"hardCap"`
	Tiers   []presale.TierQuote `json:"tiers"`
}

func newScheduleView(schedule presale.Schedule) (*ScheduleView, error) {
	hardCap, err := schedule.HardCap()
	if err != nil {
		return nil, err
	}
	tiers, err := schedule.Table()
	if err != nil {
		return nil, err
	}
	return &ScheduleView{HardCap: hardCap, Tiers: tiers}, nil
}

type QuoteView struct {
	Amount    uint64 `json:"amount"`
	Tier      uint64 `json:"tier"`
	Price     string `json:"price"`
	Cost      string `json:"cost"`
	Remaining uint64 `json:"remaining"`
	Active    bool   `json:"active"`
}

func newQuoteView(q *presale.Quote) QuoteView {
	return QuoteView{
		Amount:    q.Amount,
		Tier:      q.Tier,
		Price:     q.Price.String(),
		Cost:      q.Cost.String(),
		Remaining: q.Remaining,
		Active:    q.Active,
	}
}

type PurchaseView struct {
	Buyer  string `json:"buyer"`
	Amount uint64 `json:"amount"`
}

type HistoryView struct {
	Buyer     string                    `json:"buyer"`
	Purchases []explorer.PurchaseRecord `json:"purchases"`
}

type LifecycleView struct {
	Events []explorer.LifecycleRecord `json:"events"`
}

type AccountView struct {
	Address  string            `json:"address"`
	Nonce    uint64            `json:"nonce"`
	Balances map[string]string `json:"balances"`
}
