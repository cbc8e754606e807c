package presale

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Reference schedule constants: 30 tiers of five million units starting at
// 100 payment units and compounding by 28% per tier.
const (
	DefaultTierSize          uint64 = 5_000_000
	DefaultTierCount         uint64 = 30
	DefaultInitialPrice      uint64 = 100
	DefaultGrowthNumerator   uint64 = 12_800
	DefaultGrowthDenominator uint64 = 10_000
)

// Schedule describes the tiered price curve. Prices are derived one tier at a
// time with a truncating integer division so every implementation reproduces
// the same values.
type Schedule struct {
	InitialPrice      uint64 `json:"initialPrice" yaml:"initialPrice"`
	TierSize          uint64 `json:"tierSize" yaml:"tierSize"`
	TierCount         uint64 `json:"tierCount" yaml:"tierCount"`
	GrowthNumerator   uint64 `json:"growthNumerator" yaml:"growthNumerator"`
	GrowthDenominator uint64 `json:"growthDenominator" yaml:"growthDenominator"`
}

// DefaultSchedule returns the reference presale curve.
func DefaultSchedule() Schedule {
	return Schedule{
		InitialPrice:      DefaultInitialPrice,
		TierSize:          DefaultTierSize,
		TierCount:         DefaultTierCount,
		GrowthNumerator:   DefaultGrowthNumerator,
		GrowthDenominator: DefaultGrowthDenominator,
	}
}

// Validate checks that the schedule can produce a non-decreasing price curve
// and a hard cap representable in 64 bits.
func (s Schedule) Validate() error {
	switch {
	case s.InitialPrice == 0:
		return fmt.Errorf("%w: initial price must be positive", ErrInvalidSchedule)
	case s.TierSize == 0:
		return fmt.Errorf("%w: tier size must be positive", ErrInvalidSchedule)
	case s.TierCount == 0:
		return fmt.Errorf("%w: tier count must be positive", ErrInvalidSchedule)
	case s.GrowthDenominator == 0:
		return fmt.Errorf("%w: growth denominator must be positive", ErrInvalidSchedule)
	case s.GrowthNumerator < s.GrowthDenominator:
		return fmt.Errorf("%w: growth ratio %d/%d would decrease prices", ErrInvalidSchedule, s.GrowthNumerator, s.GrowthDenominator)
	}
	if _, err := s.HardCap(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return nil
}

// HardCap returns TierSize × TierCount.
func (s Schedule) HardCap() (uint64, error) {
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(s.TierSize), uint256.NewInt(s.TierCount))
	if overflow || !product.IsUint64() {
		return 0, ErrMathOverflow
	}
	return product.Uint64(), nil
}

// TierOf returns the tier index in effect once totalSold units are sold.
func (s Schedule) TierOf(totalSold uint64) uint64 {
	if s.TierSize == 0 {
		return 0
	}
	return totalSold / s.TierSize
}

// PriceAt returns the unit price for the supplied tier. The price is walked up
// from tier zero so truncation at each step carries into the next one.
func (s Schedule) PriceAt(tier uint64) (*uint256.Int, error) {
	if s.GrowthDenominator == 0 {
		return nil, fmt.Errorf("%w: growth denominator must be positive", ErrInvalidSchedule)
	}
	price := uint256.NewInt(s.InitialPrice)
	num := uint256.NewInt(s.GrowthNumerator)
	den := uint256.NewInt(s.GrowthDenominator)
	for i := uint64(0); i < tier; i++ {
		next, overflow := new(uint256.Int).MulOverflow(price, num)
		if overflow {
			return nil, fmt.Errorf("%w: price at tier %d", ErrMathOverflow, tier)
		}
		price = next.Div(next, den)
	}
	return price, nil
}

// Cost returns amount × price, failing instead of wrapping on overflow.
func Cost(amount uint64, price *uint256.Int) (*uint256.Int, error) {
	if price == nil {
		return nil, fmt.Errorf("%w: nil price", ErrMathOverflow)
	}
	cost, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(amount), price)
	if overflow {
		return nil, ErrMathOverflow
	}
	return cost, nil
}

// TierQuote describes one row of the price table.
type TierQuote struct {
	Tier      uint64   `json:"tier" yaml:"tier"`
	FirstUnit uint64   `json:"firstUnit" yaml:"firstUnit"`
	LastUnit  uint64   `json:"lastUnit" yaml:"lastUnit"`
	Price     *big.Int `json:"price" yaml:"-"`
	PriceText string   `json:"-" yaml:"price"`
}

// Table lists every tier of the schedule together with the range of cumulative
// units it covers.
func (s Schedule) Table() ([]TierQuote, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	out := make([]TierQuote, 0, s.TierCount)
	price := uint256.NewInt(s.InitialPrice)
	num := uint256.NewInt(s.GrowthNumerator)
	den := uint256.NewInt(s.GrowthDenominator)
	for tier := uint64(0); tier < s.TierCount; tier++ {
		if tier > 0 {
			next, overflow := new(uint256.Int).MulOverflow(price, num)
			if overflow {
				return nil, fmt.Errorf("%w: price at tier %d", ErrMathOverflow, tier)
			}
			price = next.Div(next, den)
		}
		unit := price.ToBig()
		out = append(out, TierQuote{
			Tier:      tier,
			FirstUnit: tier * s.TierSize,
			LastUnit:  (tier+1)*s.TierSize - 1,
			Price:     unit,
			PriceText: unit.String(),
		})
	}
	return out, nil
}
