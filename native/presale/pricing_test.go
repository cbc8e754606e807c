package presale

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// referencePrice walks the curve with math/big, independently of uint256.
func referencePrice(s Schedule, tier uint64) *big.Int {
	price := new(big.Int).SetUint64(s.InitialPrice)
	num := new(big.Int).SetUint64(s.GrowthNumerator)
	den := new(big.Int).SetUint64(s.GrowthDenominator)
	for i := uint64(0); i < tier; i++ {
		price.Mul(price, num)
		price.Quo(price, den)
	}
	return price
}

func TestDefaultScheduleKnownPrices(t *testing.T) {
	s := DefaultSchedule()
	require.NoError(t, s.Validate())

	hardCap, err := s.HardCap()
	require.NoError(t, err)
	require.Equal(t, uint64(150_000_000), hardCap)

	cases := map[uint64]uint64{
		0: 100,
		1: 128,
		2: 163,
		3: 208,
		4: 266,
	}
	for tier, want := range cases {
		got, err := s.PriceAt(tier)
		require.NoError(t, err)
		require.Equal(t, want, got.Uint64(), "tier %d", tier)
	}
}

func TestPriceAtMatchesSequentialReference(t *testing.T) {
	schedules := []Schedule{
		DefaultSchedule(),
		{InitialPrice: 1, TierSize: 10, TierCount: 50, GrowthNumerator: 12_800, GrowthDenominator: 10_000},
		{InitialPrice: 7, TierSize: 3, TierCount: 40, GrowthNumerator: 3, GrowthDenominator: 2},
		{InitialPrice: 999, TierSize: 1, TierCount: 10, GrowthNumerator: 1, GrowthDenominator: 1},
	}
	for _, s := range schedules {
		for tier := uint64(0); tier < s.TierCount; tier++ {
			got, err := s.PriceAt(tier)
			require.NoError(t, err)
			require.Equal(t, 0, referencePrice(s, tier).Cmp(got.ToBig()), "schedule %+v tier %d", s, tier)
		}
	}
}

func TestPriceTruncationCompoundsPerStep(t *testing.T) {
	// With price 1 and a 28% step, truncation pins the price at 1 forever; a
	// closed-form 1.28^n would not.
	s := Schedule{InitialPrice: 1, TierSize: 1, TierCount: 20, GrowthNumerator: 12_800, GrowthDenominator: 10_000}
	got, err := s.PriceAt(19)
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.Uint64())
}

func TestPriceAtOverflow(t *testing.T) {
	s := Schedule{InitialPrice: ^uint64(0), TierSize: 1, TierCount: 1000, GrowthNumerator: ^uint64(0), GrowthDenominator: 1}
	_, err := s.PriceAt(5)
	require.True(t, errors.Is(err, ErrMathOverflow))
}

func TestCost(t *testing.T) {
	cost, err := Cost(1_000_000, uint256.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, uint64(100_000_000), cost.Uint64())

	ceiling := new(uint256.Int).SetAllOne()
	_, err = Cost(2, ceiling)
	require.True(t, errors.Is(err, ErrMathOverflow))
}

func TestTierOf(t *testing.T) {
	s := DefaultSchedule()
	require.Equal(t, uint64(0), s.TierOf(0))
	require.Equal(t, uint64(0), s.TierOf(4_999_999))
	require.Equal(t, uint64(1), s.TierOf(5_000_000))
	require.Equal(t, uint64(30), s.TierOf(150_000_000))
}

func TestScheduleValidate(t *testing.T) {
	base := DefaultSchedule()
	cases := map[string]func(*Schedule){
		"zero price":      func(s *Schedule) { s.InitialPrice = 0 },
		"zero tier size":  func(s *Schedule) { s.TierSize = 0 },
		"zero tiers":      func(s *Schedule) { s.TierCount = 0 },
		"zero den":        func(s *Schedule) { s.GrowthDenominator = 0 },
		"shrinking ratio": func(s *Schedule) { s.GrowthNumerator = 9_000 },
		"hard cap overflow": func(s *Schedule) {
			s.TierSize = ^uint64(0)
			s.TierCount = 2
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := base
			mutate(&s)
			require.True(t, errors.Is(s.Validate(), ErrInvalidSchedule))
		})
	}
}

func TestTable(t *testing.T) {
	s := DefaultSchedule()
	rows, err := s.Table()
	require.NoError(t, err)
	require.Len(t, rows, int(s.TierCount))
	require.Equal(t, uint64(0), rows[0].FirstUnit)
	require.Equal(t, uint64(4_999_999), rows[0].LastUnit)
	require.Equal(t, uint64(145_000_000), rows[29].FirstUnit)
	require.Equal(t, uint64(149_999_999), rows[29].LastUnit)
	for _, row := range rows {
		price, err := s.PriceAt(row.Tier)
		require.NoError(t, err)
		require.Equal(t, 0, row.Price.Cmp(price.ToBig()))
		require.Equal(t, row.Price.String(), row.PriceText)
	}
}
