package presale

import (
	"fmt"
	"math/big"
	"time"

	"tiersale/core/events"
)

type engineState interface {
	PresaleState() (*SaleState, bool, error)
	PutPresaleState(*SaleState) error
	PresalePurchase(buyer [20]byte) (*Purchase, bool, error)
	PutPresalePurchase(*Purchase) error
	Transfer(asset string, from, to [20]byte, amount *big.Int) error
}

// Engine implements the presale state machine on top of an engineState. It
// holds no sale data itself; every call reads and writes through the state,
// which the caller is expected to commit or discard as a unit.
type Engine struct {
	state     engineState
	emitter   events.Emitter
	schedule  Schedule
	walletCap uint64
	deployer  [20]byte
	nowFn     func() int64
}

// NewEngine creates a presale engine using the supplied schedule for new
// sales. The wallet cap defaults to one tier.
func NewEngine(schedule Schedule) *Engine {
	return &Engine{
		emitter:   events.NoopEmitter{},
		schedule:  schedule,
		walletCap: schedule.TierSize,
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetWalletCap overrides the per-wallet cap recorded at initialisation. Zero
// restores the default of one tier.
func (e *Engine) SetWalletCap(limit uint64) {
	if limit == 0 {
		limit = e.schedule.TierSize
	}
	e.walletCap = limit
}

// SetDeployer restricts Initialize to a single identity. The zero address
// lifts the restriction.
func (e *Engine) SetDeployer(addr [20]byte) { e.deployer = addr }

// Schedule returns the schedule applied to new sales.
func (e *Engine) Schedule() Schedule { return e.schedule }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadSale() (*SaleState, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	sale, ok, err := e.state.PresaleState()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return sale, nil
}

// Initialize creates the sale record. The caller must be the owner being
// installed and, when a deployer is configured, that deployer.
func (e *Engine) Initialize(caller, owner, treasury [20]byte, paymentAsset, saleAsset string) (*SaleState, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if caller != owner || owner == ([20]byte{}) {
		return nil, ErrUnauthorized
	}
	if e.deployer != ([20]byte{}) && caller != e.deployer {
		return nil, ErrUnauthorized
	}
	if _, exists, err := e.state.PresaleState(); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAlreadyInitialized
	}
	if treasury == ([20]byte{}) {
		return nil, ErrInvalidTreasury
	}
	payment, err := NormalizeAsset(paymentAsset)
	if err != nil {
		return nil, err
	}
	sold, err := NormalizeAsset(saleAsset)
	if err != nil {
		return nil, err
	}
	if payment == sold {
		return nil, fmt.Errorf("%w: payment and sale asset must differ", ErrInvalidAsset)
	}
	now := e.now()
	if now <= 0 {
		return nil, ErrInvalidTimestamp
	}
	if err := e.schedule.Validate(); err != nil {
		return nil, err
	}
	hardCap, err := e.schedule.HardCap()
	if err != nil {
		return nil, err
	}
	walletCap := e.walletCap
	if walletCap == 0 {
		walletCap = e.schedule.TierSize
	}
	sale := &SaleState{
		Owner:             owner,
		Treasury:          treasury,
		PaymentAsset:      payment,
		SaleAsset:         sold,
		InitialPrice:      e.schedule.InitialPrice,
		StartTime:         now,
		TotalSold:         0,
		Active:            true,
		HardCap:           hardCap,
		TierSize:          e.schedule.TierSize,
		TierCount:         e.schedule.TierCount,
		WalletCap:         walletCap,
		GrowthNumerator:   e.schedule.GrowthNumerator,
		GrowthDenominator: e.schedule.GrowthDenominator,
	}
	if err := e.state.PutPresaleState(sale); err != nil {
		return nil, err
	}
	e.emit(events.PresaleInitialized{
		Owner:        owner,
		Treasury:     treasury,
		PaymentAsset: payment,
		SaleAsset:    sold,
		HardCap:      hardCap,
		StartTime:    now,
	})
	return sale.Clone(), nil
}

// Buy charges the buyer for amount units at the price of the tier in effect
// before the purchase and credits the purchase to the buyer's record. The
// whole purchase is priced at that single tier even when it crosses into the
// next one.
func (e *Engine) Buy(caller, buyer [20]byte, amount uint64) (*PurchaseResult, error) {
	sale, err := e.loadSale()
	if err != nil {
		return nil, err
	}
	if !sale.Active {
		return nil, ErrSaleInactive
	}
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	if amount > sale.TierSize {
		return nil, ErrAmountAboveTier
	}
	if caller != buyer {
		return nil, ErrUnauthorized
	}
	record, found, err := e.state.PresalePurchase(buyer)
	if err != nil {
		return nil, err
	}
	if !found {
		record = &Purchase{Buyer: buyer}
	}
	if record.Buyer != caller {
		return nil, ErrUnauthorized
	}

	buyerTotal := record.Amount + amount
	if buyerTotal < record.Amount {
		return nil, ErrMathOverflow
	}
	if buyerTotal > sale.WalletCap {
		return nil, ErrWalletCapExceeded
	}
	saleTotal := sale.TotalSold + amount
	if saleTotal < sale.TotalSold {
		return nil, ErrMathOverflow
	}
	if saleTotal > sale.HardCap {
		return nil, ErrHardCapExceeded
	}

	schedule := sale.Schedule()
	tier := schedule.TierOf(sale.TotalSold)
	if tier >= sale.TierCount {
		return nil, ErrAllTiersSold
	}
	price, err := schedule.PriceAt(tier)
	if err != nil {
		return nil, err
	}
	cost, err := Cost(amount, price)
	if err != nil {
		return nil, err
	}
	costBig := cost.ToBig()

	if err := e.state.Transfer(sale.PaymentAsset, buyer, sale.Treasury, costBig); err != nil {
		return nil, fmt.Errorf("presale: charge buyer: %w", err)
	}
	record.Amount = buyerTotal
	sale.TotalSold = saleTotal
	if err := e.state.PutPresalePurchase(record); err != nil {
		return nil, err
	}
	if err := e.state.PutPresaleState(sale); err != nil {
		return nil, err
	}

	priceBig := price.ToBig()
	e.emit(events.Transfer{
		Asset:  sale.PaymentAsset,
		From:   buyer,
		To:     sale.Treasury,
		Amount: new(big.Int).Set(costBig),
	})
	e.emit(events.PresalePurchase{
		Buyer:       buyer,
		Amount:      amount,
		Cost:        new(big.Int).Set(costBig),
		Tier:        tier,
		Price:       new(big.Int).Set(priceBig),
		TotalSold:   saleTotal,
		BuyerAmount: buyerTotal,
	})
	return &PurchaseResult{
		TotalSold:   saleTotal,
		BuyerAmount: buyerTotal,
		Tier:        tier,
		NextTier:    schedule.TierOf(saleTotal),
		Price:       priceBig,
		Cost:        costBig,
	}, nil
}

// End pauses the sale. Ending an already inactive sale succeeds.
func (e *Engine) End(caller [20]byte) error {
	sale, err := e.loadSale()
	if err != nil {
		return err
	}
	if caller != sale.Owner {
		return ErrUnauthorized
	}
	sale.Active = false
	if err := e.state.PutPresaleState(sale); err != nil {
		return err
	}
	e.emit(events.PresaleEnded{
		Owner:     sale.Owner,
		TotalSold: sale.TotalSold,
		EndTime:   e.now(),
	})
	return nil
}

// Reactivate resumes a paused sale.
func (e *Engine) Reactivate(caller [20]byte) error {
	sale, err := e.loadSale()
	if err != nil {
		return err
	}
	if caller != sale.Owner {
		return ErrUnauthorized
	}
	if sale.Active {
		return ErrAlreadyActive
	}
	sale.Active = true
	if err := e.state.PutPresaleState(sale); err != nil {
		return err
	}
	e.emit(events.PresaleReactivated{
		Owner:            sale.Owner,
		ReactivationTime: e.now(),
	})
	return nil
}

// SaleState returns a copy of the sale record.
func (e *Engine) SaleState() (*SaleState, error) {
	sale, err := e.loadSale()
	if err != nil {
		return nil, err
	}
	return sale.Clone(), nil
}

// Purchase returns the buyer's cumulative purchase record.
func (e *Engine) Purchase(buyer [20]byte) (*Purchase, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	record, ok, err := e.state.PresalePurchase(buyer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPurchaseNotFound
	}
	return record.Clone(), nil
}

// Quote prices a hypothetical purchase against the current sale state without
// checking caps or mutating anything.
func (e *Engine) Quote(amount uint64) (*Quote, error) {
	sale, err := e.loadSale()
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	schedule := sale.Schedule()
	tier := schedule.TierOf(sale.TotalSold)
	if tier >= sale.TierCount {
		return nil, ErrAllTiersSold
	}
	price, err := schedule.PriceAt(tier)
	if err != nil {
		return nil, err
	}
	cost, err := Cost(amount, price)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Amount:    amount,
		Tier:      tier,
		Price:     price.ToBig(),
		Cost:      cost.ToBig(),
		Remaining: sale.Remaining(),
		Active:    sale.Active,
	}, nil
}
