// core/genesis/spec.go
package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"tiersale/crypto"
	"tiersale/native/presale"
)

// Allocation credits Amount of Asset to Address when the ledger is created.
type Allocation struct {
	Address string `json:"address" toml:"Address"`
	Asset   string `json:"asset" toml:"Asset"`
	Amount  string `json:"amount" toml:"Amount"`
}

// Spec describes the initial ledger contents.
type Spec struct {
	ChainID *uint64      `json:"chainId,omitempty"`
	Alloc   []Allocation `json:"alloc"`
}

// balance is a validated allocation.
type balance struct {
	addr   [20]byte
	asset  string
	amount *big.Int
}

func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	var spec Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode genesis spec %q: %w", path, err)
	}
	if _, err := spec.balances(); err != nil {
		return nil, fmt.Errorf("invalid genesis spec %q: %w", path, err)
	}
	return &spec, nil
}

// Validate checks every allocation.
func (s *Spec) Validate() error {
	_, err := s.balances()
	return err
}

func (s *Spec) balances() ([]balance, error) {
	if s == nil {
		return nil, nil
	}
	out := make([]balance, 0, len(s.Alloc))
	for i, alloc := range s.Alloc {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address))
		if err != nil {
			return nil, fmt.Errorf("alloc[%d]: %w", i, err)
		}
		asset, err := presale.NormalizeAsset(alloc.Asset)
		if err != nil {
			return nil, fmt.Errorf("alloc[%d]: %w", i, err)
		}
		amount, err := parseAmountString(alloc.Amount)
		if err != nil {
			return nil, fmt.Errorf("alloc[%d]: amount: %w", i, err)
		}
		out = append(out, balance{addr: addr.Raw(), asset: asset, amount: amount})
	}
	return out, nil
}

func parseAmountString(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount must be provided")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return value, nil
}
