// core/genesis/loader.go
package genesis

import (
	"bytes"
	"fmt"
	"sort"

	"tiersale/core/state"
)

// Apply writes the allocations and the state schema version in one
// transaction. It refuses to run against a ledger that already carries a
// schema version so a restart never credits balances twice.
func Apply(manager *state.Manager, spec *Spec) error {
	if manager == nil {
		return fmt.Errorf("genesis: state manager must not be nil")
	}
	if _, exists, err := manager.StateVersion(); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("genesis: ledger already initialised")
	}
	balances, err := spec.balances()
	if err != nil {
		return err
	}
	sort.SliceStable(balances, func(i, j int) bool {
		if balances[i].asset != balances[j].asset {
			return balances[i].asset < balances[j].asset
		}
		return bytes.Compare(balances[i].addr[:], balances[j].addr[:]) < 0
	})

	txn := manager.Begin()
	for _, b := range balances {
		if err := txn.Credit(b.asset, b.addr, b.amount); err != nil {
			txn.Discard()
			return fmt.Errorf("genesis: credit %s: %w", b.asset, err)
		}
	}
	if err := txn.SetStateVersion(state.StateVersion); err != nil {
		txn.Discard()
		return err
	}
	return txn.Commit()
}
