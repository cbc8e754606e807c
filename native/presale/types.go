package presale

import (
	"fmt"
	"math/big"
	"strings"
)

const maxAssetSymbolLength = 16

// SaleState is the singleton sale record. Everything except TotalSold and
// Active is fixed when the sale is initialised.
type SaleState struct {
	Owner             [20]byte
	Treasury          [20]byte
	PaymentAsset      string
	SaleAsset         string
	InitialPrice      uint64
	StartTime         int64
	TotalSold         uint64
	Active            bool
	HardCap           uint64
	TierSize          uint64
	TierCount         uint64
	WalletCap         uint64
	GrowthNumerator   uint64
	GrowthDenominator uint64
}

// Clone returns a copy of the sale record.
func (s *SaleState) Clone() *SaleState {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// Schedule reconstructs the price curve frozen into the sale record.
func (s *SaleState) Schedule() Schedule {
	if s == nil {
		return Schedule{}
	}
	return Schedule{
		InitialPrice:      s.InitialPrice,
		TierSize:          s.TierSize,
		TierCount:         s.TierCount,
		GrowthNumerator:   s.GrowthNumerator,
		GrowthDenominator: s.GrowthDenominator,
	}
}

// CurrentTier returns the tier whose price applies to the next purchase.
func (s *SaleState) CurrentTier() uint64 {
	return s.Schedule().TierOf(s.TotalSold)
}

// Remaining returns the number of units still available under the hard cap.
func (s *SaleState) Remaining() uint64 {
	if s == nil || s.TotalSold >= s.HardCap {
		return 0
	}
	return s.HardCap - s.TotalSold
}

// Purchase is the per-buyer record tracking the cumulative amount bought.
type Purchase struct {
	Buyer  [20]byte
	Amount uint64
}

// Clone returns a copy of the purchase record.
func (p *Purchase) Clone() *Purchase {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// PurchaseResult summarises a committed buy. Tier is the tier the purchase
// was priced at; NextTier is the tier in effect once it is applied, derived
// from the schedule frozen in the sale record.
type PurchaseResult struct {
	TotalSold   uint64
	BuyerAmount uint64
	Tier        uint64
	NextTier    uint64
	Price       *big.Int
	Cost        *big.Int
}

// Quote reports what a purchase of Amount units would pay right now.
type Quote struct {
	Amount    uint64
	Tier      uint64
	Price     *big.Int
	Cost      *big.Int
	Remaining uint64
	Active    bool
}

// NormalizeAsset trims and upper-cases an asset symbol and rejects anything
// outside [A-Z0-9] or longer than 16 characters.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrInvalidAsset)
	}
	if len(trimmed) > maxAssetSymbolLength {
		return "", fmt.Errorf("%w: symbol %q too long", ErrInvalidAsset, symbol)
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: symbol %q contains %q", ErrInvalidAsset, symbol, r)
		}
	}
	return trimmed, nil
}
