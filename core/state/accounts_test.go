package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestTransferMovesBalance(t *testing.T) {
	m := newTestManager(t)
	alice, bob := testAddr(0x01), testAddr(0x02)

	txn := m.Begin()
	require.NoError(t, txn.Credit("usdc", alice, big.NewInt(1_000)))
	require.NoError(t, txn.Commit())

	txn = m.Begin()
	require.NoError(t, txn.Transfer("USDC", alice, bob, big.NewInt(400)))
	require.NoError(t, txn.Commit())

	aliceBal, err := m.Balance("USDC", alice)
	require.NoError(t, err)
	bobBal, err := m.Balance("USDC", bob)
	require.NoError(t, err)
	require.Equal(t, int64(600), aliceBal.Int64())
	require.Equal(t, int64(400), bobBal.Int64())

	other, err := m.Balance("SYTR", alice)
	require.NoError(t, err)
	require.Zero(t, other.Sign())
}

func TestTransferInsufficientBalance(t *testing.T) {
	m := newTestManager(t)
	alice, bob := testAddr(0x01), testAddr(0x02)

	txn := m.Begin()
	require.NoError(t, txn.Credit("USDC", alice, big.NewInt(10)))
	require.NoError(t, txn.Commit())

	txn = m.Begin()
	err := txn.Transfer("USDC", alice, bob, big.NewInt(11))
	require.True(t, errors.Is(err, ErrInsufficientBalance))
	require.False(t, txn.Dirty())
	txn.Discard()

	bal, err := m.Balance("USDC", alice)
	require.NoError(t, err)
	require.Equal(t, int64(10), bal.Int64())
}

func TestTransferRejectsNegative(t *testing.T) {
	m := newTestManager(t)
	txn := m.Begin()
	require.Error(t, txn.Transfer("USDC", testAddr(1), testAddr(2), big.NewInt(-1)))
	require.Error(t, txn.Credit("USDC", testAddr(1), nil))
}

func TestNonce(t *testing.T) {
	m := newTestManager(t)
	addr := testAddr(0x03)
	nonce, err := m.Nonce(addr)
	require.NoError(t, err)
	require.Zero(t, nonce)

	txn := m.Begin()
	require.NoError(t, txn.SetNonce(addr, 1))
	require.NoError(t, txn.Commit())

	nonce, err = m.Nonce(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)
}
