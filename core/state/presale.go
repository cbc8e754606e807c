package state

import (
	"fmt"

	"tiersale/native/presale"
)

var (
	presaleStateKey       = []byte("presale/state")
	presalePurchasePrefix = []byte("presale/purchase/")
)

// storedSaleState mirrors presale.SaleState with RLP friendly field types.
type storedSaleState struct {
	Owner             [20]byte
	Treasury          [20]byte
	PaymentAsset      string
	SaleAsset         string
	InitialPrice      uint64
	StartTime         uint64
	TotalSold         uint64
	Active            bool
	HardCap           uint64
	TierSize          uint64
	TierCount         uint64
	WalletCap         uint64
	GrowthNumerator   uint64
	GrowthDenominator uint64
}

func newStoredSaleState(s *presale.SaleState) (*storedSaleState, error) {
	if s.StartTime < 0 {
		return nil, fmt.Errorf("state: negative presale start time %d", s.StartTime)
	}
	return &storedSaleState{
		Owner:             s.Owner,
		Treasury:          s.Treasury,
		PaymentAsset:      s.PaymentAsset,
		SaleAsset:         s.SaleAsset,
		InitialPrice:      s.InitialPrice,
		StartTime:         uint64(s.StartTime),
		TotalSold:         s.TotalSold,
		Active:            s.Active,
		HardCap:           s.HardCap,
		TierSize:          s.TierSize,
		TierCount:         s.TierCount,
		WalletCap:         s.WalletCap,
		GrowthNumerator:   s.GrowthNumerator,
		GrowthDenominator: s.GrowthDenominator,
	}, nil
}

func (s *storedSaleState) toSaleState() *presale.SaleState {
	return &presale.SaleState{
		Owner:             s.Owner,
		Treasury:          s.Treasury,
		PaymentAsset:      s.PaymentAsset,
		SaleAsset:         s.SaleAsset,
		InitialPrice:      s.InitialPrice,
		StartTime:         int64(s.StartTime),
		TotalSold:         s.TotalSold,
		Active:            s.Active,
		HardCap:           s.HardCap,
		TierSize:          s.TierSize,
		TierCount:         s.TierCount,
		WalletCap:         s.WalletCap,
		GrowthNumerator:   s.GrowthNumerator,
		GrowthDenominator: s.GrowthDenominator,
	}
}

type storedPurchase struct {
	Buyer  [20]byte
	Amount uint64
}

func presalePurchaseKey(buyer [20]byte) []byte {
	buf := make([]byte, 0, len(presalePurchasePrefix)+len(buyer))
	buf = append(buf, presalePurchasePrefix...)
	return append(buf, buyer[:]...)
}

func readPresaleState(r kvReader) (*presale.SaleState, bool, error) {
	var stored storedSaleState
	ok, err := r.KVGet(presaleStateKey, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toSaleState(), true, nil
}

func readPresalePurchase(r kvReader, buyer [20]byte) (*presale.Purchase, bool, error) {
	var stored storedPurchase
	ok, err := r.KVGet(presalePurchaseKey(buyer), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &presale.Purchase{Buyer: stored.Buyer, Amount: stored.Amount}, true, nil
}

// PresaleState returns the committed sale record.
func (m *Manager) PresaleState() (*presale.SaleState, bool, error) {
	return readPresaleState(m)
}

// PresalePurchase returns the committed purchase record of buyer.
func (m *Manager) PresalePurchase(buyer [20]byte) (*presale.Purchase, bool, error) {
	return readPresalePurchase(m, buyer)
}

// PresaleState returns the sale record as seen by the transaction.
func (t *Txn) PresaleState() (*presale.SaleState, bool, error) {
	return readPresaleState(t)
}

// PutPresaleState buffers the sale record.
func (t *Txn) PutPresaleState(s *presale.SaleState) error {
	if s == nil {
		return fmt.Errorf("state: nil presale state")
	}
	stored, err := newStoredSaleState(s)
	if err != nil {
		return err
	}
	return t.KVPut(presaleStateKey, stored)
}

// PresalePurchase returns the purchase record of buyer as seen by the
// transaction.
func (t *Txn) PresalePurchase(buyer [20]byte) (*presale.Purchase, bool, error) {
	return readPresalePurchase(t, buyer)
}

// PutPresalePurchase buffers a purchase record keyed by its buyer.
func (t *Txn) PutPresalePurchase(p *presale.Purchase) error {
	if p == nil {
		return fmt.Errorf("state: nil presale purchase")
	}
	return t.KVPut(presalePurchaseKey(p.Buyer), &storedPurchase{Buyer: p.Buyer, Amount: p.Amount})
}
