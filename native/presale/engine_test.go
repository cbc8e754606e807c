package presale

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"tiersale/core/events"
)

var errInsufficient = errors.New("mock: insufficient balance")

type mockState struct {
	sale      *SaleState
	purchases map[[20]byte]*Purchase
	balances  map[string]map[[20]byte]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		purchases: make(map[[20]byte]*Purchase),
		balances:  make(map[string]map[[20]byte]*big.Int),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func (m *mockState) PresaleState() (*SaleState, bool, error) {
	if m.sale == nil {
		return nil, false, nil
	}
	return m.sale.Clone(), true, nil
}

func (m *mockState) PutPresaleState(s *SaleState) error {
	if s == nil {
		return fmt.Errorf("nil sale")
	}
	m.sale = s.Clone()
	return nil
}

func (m *mockState) PresalePurchase(buyer [20]byte) (*Purchase, bool, error) {
	p, ok := m.purchases[buyer]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (m *mockState) PutPresalePurchase(p *Purchase) error {
	if p == nil {
		return fmt.Errorf("nil purchase")
	}
	m.purchases[p.Buyer] = p.Clone()
	return nil
}

func (m *mockState) balance(asset string, addr [20]byte) *big.Int {
	if bal, ok := m.balances[asset][addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (m *mockState) credit(asset string, addr [20]byte, amount int64) {
	if m.balances[asset] == nil {
		m.balances[asset] = make(map[[20]byte]*big.Int)
	}
	m.balances[asset][addr] = new(big.Int).Add(m.balance(asset, addr), big.NewInt(amount))
}

func (m *mockState) Transfer(asset string, from, to [20]byte, amount *big.Int) error {
	fromBal := m.balance(asset, from)
	if fromBal.Cmp(amount) < 0 {
		return errInsufficient
	}
	if m.balances[asset] == nil {
		m.balances[asset] = make(map[[20]byte]*big.Int)
	}
	m.balances[asset][from] = new(big.Int).Sub(fromBal, amount)
	m.balances[asset][to] = new(big.Int).Add(m.balance(asset, to), amount)
	return nil
}

type engineFixture struct {
	engine   *Engine
	state    *mockState
	events   *events.Buffer
	owner    [20]byte
	treasury [20]byte
}

func newFixture(t *testing.T, schedule Schedule) *engineFixture {
	t.Helper()
	st := newMockState()
	buf := &events.Buffer{}
	engine := NewEngine(schedule)
	engine.SetState(st)
	engine.SetEmitter(buf)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	return &engineFixture{
		engine:   engine,
		state:    st,
		events:   buf,
		owner:    newTestAddress(0x01),
		treasury: newTestAddress(0x02),
	}
}

func (f *engineFixture) initialize(t *testing.T) *SaleState {
	t.Helper()
	sale, err := f.engine.Initialize(f.owner, f.owner, f.treasury, "USDC", "SYTR")
	require.NoError(t, err)
	return sale
}

func (f *engineFixture) fund(buyer [20]byte, amount int64) {
	f.state.credit("USDC", buyer, amount)
}

func (f *engineFixture) eventTypes() []string {
	var out []string
	for _, evt := range f.events.Events() {
		out = append(out, evt.EventType())
	}
	return out
}

func TestInitializeFreshLedger(t *testing.T) {
	f := newFixture(t, DefaultSchedule())
	sale := f.initialize(t)

	require.Equal(t, uint64(0), sale.TotalSold)
	require.True(t, sale.Active)
	require.Equal(t, uint64(150_000_000), sale.HardCap)
	require.Equal(t, uint64(5_000_000), sale.WalletCap)
	require.Equal(t, uint64(100), sale.InitialPrice)
	require.Equal(t, int64(1_700_000_000), sale.StartTime)
	require.Equal(t, f.owner, sale.Owner)
	require.Equal(t, f.treasury, sale.Treasury)
	require.Equal(t, "USDC", sale.PaymentAsset)
	require.Equal(t, "SYTR", sale.SaleAsset)
	require.Equal(t, []string{events.TypePresaleInitialized}, f.eventTypes())

	stored, err := f.engine.SaleState()
	require.NoError(t, err)
	require.Equal(t, sale, stored)
}

func TestInitializeOnlyOnce(t *testing.T) {
	f := newFixture(t, DefaultSchedule())
	f.initialize(t)

	_, err := f.engine.Initialize(f.owner, f.owner, f.treasury, "USDC", "SYTR")
	require.True(t, errors.Is(err, ErrAlreadyInitialized))
	require.Len(t, f.events.Events(), 1)
}

func TestInitializeValidation(t *testing.T) {
	owner := newTestAddress(0x01)
	treasury := newTestAddress(0x02)
	cases := []struct {
		name     string
		caller   [20]byte
		treasury [20]byte
		payment  string
		sale     string
		now      int64
		want     error
	}{
		{"caller is not owner", newTestAddress(0x09), treasury, "USDC", "SYTR", 1, ErrUnauthorized},
		{"zero treasury", owner, [20]byte{}, "USDC", "SYTR", 1, ErrInvalidTreasury},
		{"empty payment asset", owner, treasury, " ", "SYTR", 1, ErrInvalidAsset},
		{"bad sale asset", owner, treasury, "USDC", "sy-tr", 1, ErrInvalidAsset},
		{"same assets", owner, treasury, "usdc", "USDC", 1, ErrInvalidAsset},
		{"zero timestamp", owner, treasury, "USDC", "SYTR", 0, ErrInvalidTimestamp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, DefaultSchedule())
			now := tc.now
			f.engine.SetNowFunc(func() int64 { return now })
			_, err := f.engine.Initialize(tc.caller, owner, tc.treasury, tc.payment, tc.sale)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
			require.Nil(t, f.state.sale)
			require.Empty(t, f.events.Events())
		})
	}
}

func TestInitializeDeployerRestriction(t *testing.T) {
	f := newFixture(t, DefaultSchedule())
	f.engine.SetDeployer(newTestAddress(0x07))

	_, err := f.engine.Initialize(f.owner, f.owner, f.treasury, "USDC", "SYTR")
	require.True(t, errors.Is(err, ErrUnauthorized))

	deployer := newTestAddress(0x07)
	_, err = f.engine.Initialize(deployer, deployer, f.treasury, "USDC", "SYTR")
	require.NoError(t, err)
}

func TestInitializeCustomWalletCap(t *testing.T) {
	f := newFixture(t, DefaultSchedule())
	f.engine.SetWalletCap(7_500_000)
	sale := f.initialize(t)
	require.Equal(t, uint64(7_500_000), sale.WalletCap)

	f.engine.SetWalletCap(0)
	require.Equal(t, uint64(5_000_000), f.engine.walletCap)
}

func TestBuyChargesTierPrice(t *testing.T) {
	f := newFixture(t, DefaultSchedule())
	f.initialize(t)
	buyer := newTestAddress(0xA1)
	f.fund(buyer, 150_000_000)

	res, err := f.engine.Buy(buyer, buyer, 1_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), res.TotalSold)
	require.Equal(t, uint64(1_000_000), res.BuyerAmount)
	require.Equal(t, uint64(0), res.Tier)
	require.Equal(t, int64(100), res.Price.Int64())
	require.Equal(t, int64(100_000_000), res.Cost.Int64())

	require.Equal(t, int64(50_000_000), f.state.balance("USDC", buyer).Int64())
	require.Equal(t, int64(100_000_000), f.state.balance("USDC", f.treasury).Int64())

	record, err := f.engine.Purchase(buyer)
	require.NoError(t, err)
	require.Equal(t, buyer, record.Buyer)
	require.Equal(t, uint64(1_000_000), record.Amount)

	require.Equal(t, []string{
		events.TypePresaleInitialized,
		events.TypeTransfer,
		events.TypePresalePurchase,
	}, f.eventTypes())
	purchase := f.events.Events()[2].Event()
	require.Equal(t, "100000000", purchase.Attributes["cost"])
	require.Equal(t, "100", purchase.Attributes["price"])
}

func TestBuyWalletCapIsCumulative(t *testing.T) {
	f := newFixture(t, DefaultSchedule())
	f.initialize(t)
	buyer := newTestAddress(0xA1)
	f.fund(buyer, 1_000_000_000)

	_, err := f.engine.Buy(buyer, buyer, 1_000_000)
	require.NoError(t, err)
	before := f.state.balance("USDC", buyer)
	eventsBefore := len(f.events.Events())

	_, err = f.engine.Buy(buyer, buyer, 4_000_001)
	require.True(t, errors.Is(err, ErrWalletCapExceeded))

	record, err := f.engine.Purchase(buyer)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), record.Amount)
	sale, err := f.engine.SaleState()
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), sale.TotalSold)
	require.Equal(t, 0, before.Cmp(f.state.balance("USDC", buyer)))
	require.Len(t, f.events.Events(), eventsBefore)

	_, err = f.engine.Buy(buyer, buyer, 4_000_000)
	require.NoError(t, err)
}

func TestBuyPricesNextTierAfterCrossing(t *testing.T) {
	f := newFixture(t, DefaultSchedule())
	f.initialize(t)
	b1, b2, b3 := newTestAddress(0xB1), newTestAddress(0xB2), newTestAddress(0xB3)
	for _, b := range [][20]byte{b1, b2, b3} {
		f.fund(b, 1_000_000_000)
	}

	_, err := f.engine.Buy(b1, b1, 4_999_999)
	require.NoError(t, err)

	// The crossing purchase is priced entirely at tier 0.
	res, err := f.engine.Buy(b2, b2, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(0), res.Tier)
	require.Equal(t, uint64(1), res.NextTier)
	require.Equal(t, int64(200), res.Cost.Int64())
	require.Equal(t, uint64(5_000_001), res.TotalSold)

	res, err = f.engine.Buy(b3, b3, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1), res.Tier)
	require.Equal(t, int64(128), res.Price.Int64())
	require.Equal(t, int64(1_280), res.Cost.Int64())
}

func TestBuyTiersFollowStoredSchedule(t *testing.T) {
	f := newFixture(t, smallSchedule())
	f.initialize(t)
	buyer := newTestAddress(0xB4)
	f.fund(buyer, 1_000)

	reconfigured := NewEngine(Schedule{InitialPrice: 10, TierSize: 4, TierCount: 9, GrowthNumerator: 20_000, GrowthDenominator: 10_000})
	reconfigured.SetState(f.state)
	res, err := reconfigured.Buy(buyer, buyer, 6)
	require.NoError(t, err)
	require.Equal(t, uint64(0), res.Tier)
	require.Equal(t, uint64(0), res.NextTier)
	require.Equal(t, int64(10), res.Price.Int64())

	res, err = reconfigured.Buy(buyer, buyer, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(0), res.Tier)
	require.Equal(t, uint64(1), res.NextTier)
	require.Equal(t, f.state.sale.CurrentTier(), res.NextTier)
}

func TestBuyRejectsOtherIdentity(t *testing.T) {
	f := newFixture(t, DefaultSchedule())
	f.initialize(t)
	victim := newTestAddress(0xA1)
	attacker := newTestAddress(0xEE)
	f.fund(victim, 1_000_000_000)

	_, err := f.engine.Buy(attacker, victim, 1_000)
	require.True(t, errors.Is(err, ErrUnauthorized))
	_, found := f.state.purchases[victim]
	require.False(t, found)
	require.Equal(t, int64(1_000_000_000), f.state.balance("USDC", victim).Int64())
	sale, err := f.engine.SaleState()
	require.NoError(t, err)
	require.Zero(t, sale.TotalSold)
}

func TestBuyRejectsMismatchedRecordOwner(t *testing.T) {
	f := newFixture(t, DefaultSchedule())
	f.initialize(t)
	buyer := newTestAddress(0xA1)
	f.fund(buyer, 1_000_000)
	f.state.purchases[buyer] = &Purchase{Buyer: newTestAddress(0xEE), Amount: 1}

	_, err := f.engine.Buy(buyer, buyer, 1)
	require.True(t, errors.Is(err, ErrUnauthorized))
}

func TestBuyPreconditions(t *testing.T) {
	f := newFixture(t, DefaultSchedule())
	buyer := newTestAddress(0xA1)

	_, err := f.engine.Buy(buyer, buyer, 1)
	require.True(t, errors.Is(err, ErrNotInitialized))

	f.initialize(t)
	f.fund(buyer, 1_000_000_000)

	_, err = f.engine.Buy(buyer, buyer, 0)
	require.True(t, errors.Is(err, ErrZeroAmount))

	_, err = f.engine.Buy(buyer, buyer, DefaultTierSize+1)
	require.True(t, errors.Is(err, ErrAmountAboveTier))
}

func TestBuyInsufficientFundsLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, DefaultSchedule())
	f.initialize(t)
	buyer := newTestAddress(0xA1)
	f.fund(buyer, 99)

	_, err := f.engine.Buy(buyer, buyer, 1)
	require.True(t, errors.Is(err, errInsufficient))
	require.NotErrorIs(t, err, ErrHardCapExceeded)

	sale, err := f.engine.SaleState()
	require.NoError(t, err)
	require.Zero(t, sale.TotalSold)
	_, err = f.engine.Purchase(buyer)
	require.True(t, errors.Is(err, ErrPurchaseNotFound))
	require.Equal(t, int64(99), f.state.balance("USDC", buyer).Int64())
}

func smallSchedule() Schedule {
	return Schedule{InitialPrice: 10, TierSize: 10, TierCount: 3, GrowthNumerator: 15_000, GrowthDenominator: 10_000}
}

func TestBuyHardCap(t *testing.T) {
	f := newFixture(t, smallSchedule())
	f.initialize(t)
	buyers := [][20]byte{newTestAddress(0xC1), newTestAddress(0xC2), newTestAddress(0xC3), newTestAddress(0xC4)}
	for _, b := range buyers {
		f.fund(b, 1_000_000)
	}
	for _, b := range buyers[:2] {
		_, err := f.engine.Buy(b, b, 10)
		require.NoError(t, err)
	}
	_, err := f.engine.Buy(buyers[2], buyers[2], 9)
	require.NoError(t, err)

	// One unit left; the request is rejected whole rather than clamped.
	_, err = f.engine.Buy(buyers[3], buyers[3], 2)
	require.True(t, errors.Is(err, ErrHardCapExceeded))

	res, err := f.engine.Buy(buyers[3], buyers[3], 1)
	require.NoError(t, err)
	require.Equal(t, uint64(30), res.TotalSold)
	require.Equal(t, uint64(2), res.Tier)

	_, err = f.engine.Buy(buyers[2], buyers[2], 1)
	require.True(t, errors.Is(err, ErrHardCapExceeded))
}

func TestBuyAllTiersSoldGuard(t *testing.T) {
	f := newFixture(t, smallSchedule())
	f.initialize(t)
	// A corrupted record whose hard cap exceeds the tier range.
	f.state.sale.HardCap = 100
	f.state.sale.TotalSold = 30
	buyer := newTestAddress(0xA1)
	f.fund(buyer, 1_000_000)

	_, err := f.engine.Buy(buyer, buyer, 1)
	require.True(t, errors.Is(err, ErrAllTiersSold))
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t, DefaultSchedule())
	f.initialize(t)
	buyer := newTestAddress(0xA1)
	f.fund(buyer, 1_000_000_000)

	require.NoError(t, f.engine.End(f.owner))
	sale, err := f.engine.SaleState()
	require.NoError(t, err)
	require.False(t, sale.Active)

	_, err = f.engine.Buy(buyer, buyer, 1)
	require.True(t, errors.Is(err, ErrSaleInactive))

	// Ending twice is allowed.
	require.NoError(t, f.engine.End(f.owner))

	require.NoError(t, f.engine.Reactivate(f.owner))
	sale, err = f.engine.SaleState()
	require.NoError(t, err)
	require.True(t, sale.Active)

	require.True(t, errors.Is(f.engine.Reactivate(f.owner), ErrAlreadyActive))
	sale, err = f.engine.SaleState()
	require.NoError(t, err)
	require.True(t, sale.Active)

	_, err = f.engine.Buy(buyer, buyer, 1)
	require.NoError(t, err)

	require.Equal(t, []string{
		events.TypePresaleInitialized,
		events.TypePresaleEnded,
		events.TypePresaleEnded,
		events.TypePresaleReactivated,
		events.TypeTransfer,
		events.TypePresalePurchase,
	}, f.eventTypes())
}

func TestLifecycleRequiresOwner(t *testing.T) {
	f := newFixture(t, DefaultSchedule())
	stranger := newTestAddress(0x55)

	require.True(t, errors.Is(f.engine.End(f.owner), ErrNotInitialized))

	f.initialize(t)
	require.True(t, errors.Is(f.engine.End(stranger), ErrUnauthorized))
	require.NoError(t, f.engine.End(f.owner))
	require.True(t, errors.Is(f.engine.Reactivate(stranger), ErrUnauthorized))

	sale, err := f.engine.SaleState()
	require.NoError(t, err)
	require.False(t, sale.Active)
}

func TestQuote(t *testing.T) {
	f := newFixture(t, DefaultSchedule())
	_, err := f.engine.Quote(1)
	require.True(t, errors.Is(err, ErrNotInitialized))

	f.initialize(t)
	q, err := f.engine.Quote(1_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(0), q.Tier)
	require.Equal(t, int64(100_000_000), q.Cost.Int64())
	require.Equal(t, uint64(150_000_000), q.Remaining)
	require.True(t, q.Active)

	_, err = f.engine.Quote(0)
	require.True(t, errors.Is(err, ErrZeroAmount))
}

func TestRandomPurchasesKeepTotalsConsistent(t *testing.T) {
	f := newFixture(t, smallSchedule())
	f.engine.SetWalletCap(12)
	f.initialize(t)
	rng := rand.New(rand.NewSource(42))

	buyers := make([][20]byte, 6)
	for i := range buyers {
		buyers[i] = newTestAddress(byte(0x30 + i))
		f.fund(buyers[i], 1_000_000)
	}
	perBuyer := make(map[[20]byte]uint64)
	var accepted uint64
	for i := 0; i < 200; i++ {
		b := buyers[rng.Intn(len(buyers))]
		amount := uint64(rng.Intn(12))
		res, err := f.engine.Buy(b, b, amount)
		if err != nil {
			require.Contains(t, []string{"zero_amount", "amount_above_tier", "wallet_cap_exceeded", "hard_cap_exceeded"}, Code(err))
			continue
		}
		accepted += amount
		perBuyer[b] += amount
		require.Equal(t, accepted, res.TotalSold)
		require.LessOrEqual(t, res.TotalSold, uint64(30))
		require.LessOrEqual(t, perBuyer[b], uint64(12))
	}
	sale, err := f.engine.SaleState()
	require.NoError(t, err)
	require.Equal(t, accepted, sale.TotalSold)
	for b, want := range perBuyer {
		record, err := f.engine.Purchase(b)
		require.NoError(t, err)
		require.Equal(t, want, record.Amount)
	}
}

func TestCode(t *testing.T) {
	require.Equal(t, "wallet_cap_exceeded", Code(fmt.Errorf("wrapped: %w", ErrWalletCapExceeded)))
	require.Equal(t, "sale_inactive", Code(ErrSaleInactive))
	require.Equal(t, "", Code(errors.New("other")))
	require.Equal(t, "", Code(nil))
}
