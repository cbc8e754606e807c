package explorer

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tiersale/core/events"
	"tiersale/crypto"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(dsn)
	require.NoError(t, err)
	return db
}

func purchase(buyer byte, amount, totalSold uint64) events.PresalePurchase {
	return events.PresalePurchase{
		Buyer:       [20]byte{buyer},
		Amount:      amount,
		Cost:        big.NewInt(int64(amount * 100)),
		Tier:        0,
		Price:       big.NewInt(100),
		TotalSold:   totalSold,
		BuyerAmount: amount,
	}
}

func TestIndexerRecordsPurchasesInOrder(t *testing.T) {
	idx, err := NewIndexer(setupTestDB(t), nil)
	require.NoError(t, err)
	ctx := context.Background()

	idx.Emit(events.PresaleInitialized{Owner: [20]byte{9}, StartTime: 100})
	idx.Emit(purchase(1, 10, 10))
	idx.Emit(events.Transfer{Asset: "USDC", From: [20]byte{1}, To: [20]byte{2}, Amount: big.NewInt(1000)})
	idx.Emit(purchase(2, 5, 15))
	idx.Emit(purchase(1, 3, 18))
	idx.Emit(events.PresaleEnded{Owner: [20]byte{9}, TotalSold: 18, EndTime: 200})

	buyer := crypto.FromRaw([20]byte{1}).String()
	rows, err := idx.History(ctx, buyer, Page{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, uint64(10), rows[0].Amount)
	require.Equal(t, "1000", rows[0].Cost)
	require.Equal(t, uint64(3), rows[1].Amount)
	require.Less(t, rows[0].Sequence, rows[1].Sequence)

	rows, err = idx.History(ctx, buyer, Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, uint64(18), rows[0].TotalSold)

	lifecycle, err := idx.Lifecycle(ctx, Page{})
	require.NoError(t, err)
	require.Len(t, lifecycle, 2)
	require.Equal(t, events.TypePresaleInitialized, lifecycle[0].Type)
	require.Equal(t, events.TypePresaleEnded, lifecycle[1].Type)
	require.Equal(t, uint64(18), lifecycle[1].TotalSold)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.Purchases)
	require.Equal(t, int64(2), stats.Buyers)

	_, err = idx.History(ctx, "", Page{})
	require.Error(t, err)
}

func TestIndexerResumesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explorer.db")
	db, err := Open(path)
	require.NoError(t, err)
	idx, err := NewIndexer(db, nil)
	require.NoError(t, err)
	idx.Emit(purchase(1, 1, 1))
	idx.Emit(purchase(1, 1, 2))

	reopened, err := Open(path)
	require.NoError(t, err)
	idx, err = NewIndexer(reopened, nil)
	require.NoError(t, err)
	idx.Emit(purchase(1, 1, 3))

	rows, err := idx.History(context.Background(), crypto.FromRaw([20]byte{1}).String(), Page{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, uint64(3), rows[2].Sequence)
}

func TestPageNormalize(t *testing.T) {
	require.Equal(t, Page{Limit: defaultPageSize}, Page{}.normalize())
	require.Equal(t, Page{Limit: maxPageSize}, Page{Limit: 10_000, Offset: -4}.normalize())
}
