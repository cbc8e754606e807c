package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"tiersale/crypto"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeInitialize TxType = 0x01 // Create the sale record
	TxTypeBuy        TxType = 0x02 // Buy sale units with the payment asset
	TxTypeEnd        TxType = 0x03 // Pause the sale
	TxTypeReactivate TxType = 0x04 // Resume a paused sale
)

var txTypeNames = map[TxType]string{
	TxTypeInitialize: "initialize",
	TxTypeBuy:        "buy",
	TxTypeEnd:        "end",
	TxTypeReactivate: "reactivate",
}

func (t TxType) String() string {
	if name, ok := txTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", byte(t))
}

// MarshalText renders the type by name so JSON payloads stay readable.
func (t TxType) MarshalText() ([]byte, error) {
	if _, ok := txTypeNames[t]; !ok {
		return nil, fmt.Errorf("unknown transaction type %d", byte(t))
	}
	return []byte(t.String()), nil
}

func (t *TxType) UnmarshalText(text []byte) error {
	parsed, err := ParseTxType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTxType resolves a transaction type from its name.
func ParseTxType(name string) (TxType, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for t, n := range txTypeNames {
		if n == normalized {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown transaction type %q", name)
}

// Transaction is a signed request against the presale. Owner, Treasury and
// the asset symbols are only meaningful for TxTypeInitialize; Amount only for
// TxTypeBuy. Addresses travel as bech32 strings.
type Transaction struct {
	ChainID      uint64 `json:"chainId"`
	Type         TxType `json:"type"`
	Nonce        uint64 `json:"nonce"`
	Amount       uint64 `json:"amount,omitempty"`
	Owner        string `json:"owner,omitempty"`
	Treasury     string `json:"treasury,omitempty"`
	PaymentAsset string `json:"paymentAsset,omitempty"`
	SaleAsset    string `json:"saleAsset,omitempty"`

	Signature []byte `json:"signature"`

	from *crypto.Address
}

// Hash returns keccak256 over the RLP encoding of every field except the
// signature.
func (tx *Transaction) Hash() ([32]byte, error) {
	txData := struct {
		ChainID      uint64
		Type         TxType
		Nonce        uint64
		Amount       uint64
		Owner        string
		Treasury     string
		PaymentAsset string
		SaleAsset    string
	}{tx.ChainID, tx.Type, tx.Nonce, tx.Amount, tx.Owner, tx.Treasury, tx.PaymentAsset, tx.SaleAsset}

	b, err := rlp.EncodeToBytes(txData)
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Keccak256(b), nil
}

// Sign attaches a signature by key over the transaction hash.
func (tx *Transaction) Sign(key *crypto.PrivateKey) error {
	if key == nil {
		return fmt.Errorf("sign: key required")
	}
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := key.Sign(hash)
	if err != nil {
		return err
	}
	tx.Signature = sig
	tx.from = nil
	return nil
}

// Sender recovers the signer of the transaction.
func (tx *Transaction) Sender() (crypto.Address, error) {
	if tx.from != nil {
		return *tx.from, nil
	}
	hash, err := tx.Hash()
	if err != nil {
		return crypto.Address{}, err
	}
	addr, err := crypto.RecoverAddress(hash, tx.Signature)
	if err != nil {
		return crypto.Address{}, err
	}
	tx.from = &addr
	return addr, nil
}
