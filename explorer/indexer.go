package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tiersale/core/events"
	"tiersale/crypto"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Indexer stores committed presale events in SQLite so purchase history can be
// queried without scanning the ledger. It implements events.Emitter.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq uint64
}

// NewIndexer resumes indexing after the highest sequence already stored.
func NewIndexer(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("explorer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Indexer{db: db, logger: logger.With("component", "explorer"), now: time.Now}
	var purchaseSeq, lifecycleSeq uint64
	if err := db.Model(&PurchaseRecord{}).Select("COALESCE(MAX(sequence), 0)").Scan(&purchaseSeq).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&LifecycleRecord{}).Select("COALESCE(MAX(sequence), 0)").Scan(&lifecycleSeq).Error; err != nil {
		return nil, err
	}
	idx.seq = purchaseSeq
	if lifecycleSeq > idx.seq {
		idx.seq = lifecycleSeq
	}
	return idx, nil
}

// Emit implements events.Emitter. Storage failures are logged; they never
// affect the ledger.
func (i *Indexer) Emit(evt events.Event) {
	if i == nil || evt == nil {
		return
	}
	if err := i.index(evt); err != nil {
		i.logger.Error("index event", "type", evt.EventType(), "error", err)
	}
}

func (i *Indexer) index(evt events.Event) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	var row interface{}
	next := i.seq + 1
	switch e := evt.(type) {
	case events.PresalePurchase:
		row = &PurchaseRecord{
			ID:          uuid.New(),
			Sequence:    next,
			Buyer:       crypto.FromRaw(e.Buyer).String(),
			Amount:      e.Amount,
			Cost:        bigString(e.Cost),
			Tier:        e.Tier,
			Price:       bigString(e.Price),
			TotalSold:   e.TotalSold,
			BuyerAmount: e.BuyerAmount,
			CreatedAt:   i.now(),
		}
	case events.PresaleInitialized:
		row = i.lifecycle(next, e.EventType(), e.Owner, 0, e.StartTime)
	case events.PresaleEnded:
		row = i.lifecycle(next, e.EventType(), e.Owner, e.TotalSold, e.EndTime)
	case events.PresaleReactivated:
		row = i.lifecycle(next, e.EventType(), e.Owner, 0, e.ReactivationTime)
	default:
		return nil
	}
	if err := i.db.Create(row).Error; err != nil {
		return err
	}
	i.seq = next
	return nil
}

func (i *Indexer) lifecycle(seq uint64, typ string, owner [20]byte, totalSold uint64, ts int64) *LifecycleRecord {
	return &LifecycleRecord{
		ID:        uuid.New(),
		Sequence:  seq,
		Type:      typ,
		Owner:     crypto.FromRaw(owner).String(),
		TotalSold: totalSold,
		Timestamp: ts,
		CreatedAt: i.now(),
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Page bounds a history query.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// History returns the purchases made by buyer in commit order.
func (i *Indexer) History(ctx context.Context, buyer string, page Page) ([]PurchaseRecord, error) {
	if buyer == "" {
		return nil, errors.New("explorer: buyer required")
	}
	page = page.normalize()
	var rows []PurchaseRecord
	err := i.db.WithContext(ctx).
		Where("buyer = ?", buyer).
		Order("sequence ASC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&rows).Error
	return rows, err
}

// Lifecycle returns initialize, end and reactivate events in commit order.
func (i *Indexer) Lifecycle(ctx context.Context, page Page) ([]LifecycleRecord, error) {
	page = page.normalize()
	var rows []LifecycleRecord
	err := i.db.WithContext(ctx).
		Order("sequence ASC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&rows).Error
	return rows, err
}

// Summary aggregates the indexed purchases.
type Summary struct {
	Purchases int64 `json:"purchases"`
	Buyers    int64 `json:"buyers"`
}

// Stats counts indexed purchases and distinct buyers.
func (i *Indexer) Stats(ctx context.Context) (*Summary, error) {
	var out Summary
	db := i.db.WithContext(ctx)
	if err := db.Model(&PurchaseRecord{}).Count(&out.Purchases).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&PurchaseRecord{}).Distinct("buyer").Count(&out.Buyers).Error; err != nil {
		return nil, err
	}
	return &out, nil
}
