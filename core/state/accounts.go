package state

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	balancePrefix = []byte("account/balance/")
	noncePrefix   = []byte("account/nonce/")

	// ErrInsufficientBalance is returned when a debit exceeds the account's
	// balance of the asset.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
)

// kvReader is satisfied by both the Manager (committed reads) and a Txn.
type kvReader interface {
	KVGet(key []byte, out interface{}) (bool, error)
}

func balanceKey(asset string, addr [20]byte) []byte {
	symbol := strings.ToUpper(strings.TrimSpace(asset))
	buf := make([]byte, 0, len(balancePrefix)+len(symbol)+1+len(addr))
	buf = append(buf, balancePrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, ':')
	return append(buf, addr[:]...)
}

func nonceKey(addr [20]byte) []byte {
	buf := make([]byte, 0, len(noncePrefix)+len(addr))
	buf = append(buf, noncePrefix...)
	return append(buf, addr[:]...)
}

func readBalance(r kvReader, asset string, addr [20]byte) (*big.Int, error) {
	if strings.TrimSpace(asset) == "" {
		return nil, fmt.Errorf("state: asset must not be empty")
	}
	balance := new(big.Int)
	ok, err := r.KVGet(balanceKey(asset, addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func readNonce(r kvReader, addr [20]byte) (uint64, error) {
	var nonce uint64
	if _, err := r.KVGet(nonceKey(addr), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

// Balance returns the committed balance of asset held by addr.
func (m *Manager) Balance(asset string, addr [20]byte) (*big.Int, error) {
	return readBalance(m, asset, addr)
}

// Nonce returns the next nonce expected from addr.
func (m *Manager) Nonce(addr [20]byte) (uint64, error) {
	return readNonce(m, addr)
}

// Balance returns the balance of asset held by addr as seen by the
// transaction.
func (t *Txn) Balance(asset string, addr [20]byte) (*big.Int, error) {
	return readBalance(t, asset, addr)
}

func (t *Txn) putBalance(asset string, addr [20]byte, amount *big.Int) error {
	return t.KVPut(balanceKey(asset, addr), amount)
}

// Credit adds amount of asset to addr. It is used for genesis allocations.
func (t *Txn) Credit(asset string, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: credit amount must be non-negative")
	}
	balance, err := t.Balance(asset, addr)
	if err != nil {
		return err
	}
	return t.putBalance(asset, addr, balance.Add(balance, amount))
}

// Transfer moves amount of asset from one account to another. The debit fails
// with ErrInsufficientBalance without touching either account.
func (t *Txn) Transfer(asset string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: transfer amount must be non-negative")
	}
	fromBalance, err := t.Balance(asset, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s %s", ErrInsufficientBalance, fromBalance, amount, strings.ToUpper(asset))
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	toBalance, err := t.Balance(asset, to)
	if err != nil {
		return err
	}
	if err := t.putBalance(asset, from, fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	return t.putBalance(asset, to, toBalance.Add(toBalance, amount))
}

// Nonce returns the next nonce expected from addr as seen by the transaction.
func (t *Txn) Nonce(addr [20]byte) (uint64, error) {
	return readNonce(t, addr)
}

// SetNonce stores the next nonce expected from addr.
func (t *Txn) SetNonce(addr [20]byte, nonce uint64) error {
	return t.KVPut(nonceKey(addr), nonce)
}
