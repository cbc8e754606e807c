package explorer

import (
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PurchaseRecord is one committed purchase as indexed from presale.purchase
// events. Amounts that may exceed 64 bits are stored as decimal strings.
type PurchaseRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence    uint64    `gorm:"uniqueIndex" json:"sequence"`
	Buyer       string    `gorm:"index" json:"buyer"`
	Amount      uint64    `json:"amount"`
	Cost        string    `json:"cost"`
	Tier        uint64    `gorm:"index" json:"tier"`
	Price       string    `json:"price"`
	TotalSold   uint64    `json:"totalSold"`
	BuyerAmount uint64    `json:"buyerAmount"`
	CreatedAt   time.Time `json:"indexedAt"`
}

// LifecycleRecord captures initialize, end and reactivate events.
type LifecycleRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence  uint64    `gorm:"uniqueIndex" json:"sequence"`
	Type      string    `gorm:"index" json:"type"`
	Owner     string    `json:"owner"`
	TotalSold uint64    `json:"totalSold"`
	Timestamp int64     `json:"timestamp"`
	CreatedAt time.Time `json:"indexedAt"`
}

// AutoMigrate performs all schema migrations for the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&PurchaseRecord{},
		&LifecycleRecord{},
	)
}

// Open connects to the SQLite database at dsn and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
