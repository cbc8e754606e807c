package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

var (
	// ErrConflict is returned by Commit when a record observed by the
	// transaction was changed by another commit in the meantime.
	ErrConflict = errors.New("state: conflicting concurrent commit")
	// ErrTxnClosed is returned when a committed or discarded transaction is
	// used again.
	ErrTxnClosed = errors.New("state: transaction closed")
)

// Txn buffers writes and remembers the version of every record it observed.
// Nothing becomes visible to other readers until Commit succeeds.
type Txn struct {
	manager *Manager
	reads   map[string]uint64
	writes  map[string][]byte
	order   []string
	closed  bool
}

// observe records the committed version of hashed the first time the
// transaction touches it.
func (t *Txn) observe(hashed []byte) (record, bool, error) {
	rec, ok, err := t.manager.load(hashed)
	if err != nil {
		return record{}, false, err
	}
	if _, seen := t.reads[string(hashed)]; !seen {
		t.reads[string(hashed)] = rec.Version
	}
	return rec, ok, nil
}

// KVGet decodes the value stored under key into out, preferring writes
// buffered by this transaction.
func (t *Txn) KVGet(key []byte, out interface{}) (bool, error) {
	if t == nil || t.closed {
		return false, ErrTxnClosed
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, pending := t.writes[string(hashed)]
	if !pending {
		rec, ok, err := t.observe(hashed)
		if err != nil || !ok {
			return false, err
		}
		data = rec.Data
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVPut buffers value under key. Blind writes still pin the record version so
// that a concurrent writer of the same key is detected at commit.
func (t *Txn) KVPut(key []byte, value interface{}) error {
	if t == nil || t.closed {
		return ErrTxnClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	hashed := kvKey(key)
	if _, seen := t.reads[string(hashed)]; !seen {
		if _, _, err := t.observe(hashed); err != nil {
			return err
		}
	}
	if _, pending := t.writes[string(hashed)]; !pending {
		t.order = append(t.order, string(hashed))
	}
	t.writes[string(hashed)] = encoded
	return nil
}

// Dirty reports whether the transaction has buffered writes.
func (t *Txn) Dirty() bool {
	return t != nil && len(t.writes) > 0
}

// Commit validates every observed version against the committed state and
// applies the buffered writes in a single batch. On ErrConflict nothing is
// written.
func (t *Txn) Commit() error {
	if t == nil || t.closed {
		return ErrTxnClosed
	}
	t.closed = true
	if len(t.writes) == 0 {
		return nil
	}
	m := t.manager
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	for key, seen := range t.reads {
		current, _, err := m.load([]byte(key))
		if err != nil {
			return err
		}
		if current.Version != seen {
			return ErrConflict
		}
	}
	batch := m.db.NewBatch()
	for _, key := range t.order {
		encoded, err := rlp.EncodeToBytes(record{Version: t.reads[key] + 1, Data: t.writes[key]})
		if err != nil {
			return err
		}
		batch.Put([]byte(key), encoded)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: write batch: %w", err)
	}
	return nil
}

// Discard abandons the transaction.
func (t *Txn) Discard() {
	if t == nil {
		return
	}
	t.closed = true
	t.writes = nil
	t.order = nil
}
