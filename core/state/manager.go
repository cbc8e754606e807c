package state

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tiersale/storage"
)

// Manager owns the committed ledger state. Records are RLP encoded, wrapped in
// a version envelope and stored under keccak256 hashed keys. Writers go through
// a Txn; readers may query the manager directly and observe the latest
// committed value of each record.
type Manager struct {
	db       storage.Database
	commitMu sync.Mutex
}

// NewManager creates a state manager on top of the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// record is the on-disk envelope of every state entry.
type record struct {
	Version uint64
	Data    []byte
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) load(hashed []byte) (record, bool, error) {
	if m == nil || m.db == nil {
		return record{}, false, fmt.Errorf("state: manager unavailable")
	}
	raw, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return record{}, false, nil
	}
	if err != nil {
		return record{}, false, err
	}
	var rec record
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return record{}, false, fmt.Errorf("state: decode record: %w", err)
	}
	return rec, true, nil
}

// KVGet decodes the committed value stored under key into out. The boolean
// reports whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	rec, ok, err := m.load(kvKey(key))
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(rec.Data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Version returns the committed version of key. Absent keys report zero.
func (m *Manager) Version(key []byte) (uint64, error) {
	if len(key) == 0 {
		return 0, fmt.Errorf("kv: key must not be empty")
	}
	rec, _, err := m.load(kvKey(key))
	if err != nil {
		return 0, err
	}
	return rec.Version, nil
}

// Begin opens an optimistic transaction against the committed state.
func (m *Manager) Begin() *Txn {
	return &Txn{
		manager: m,
		reads:   make(map[string]uint64),
		writes:  make(map[string][]byte),
	}
}

// Close releases the underlying database.
func (m *Manager) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}
