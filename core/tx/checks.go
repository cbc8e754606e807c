package tx

import (
	"errors"
	"fmt"
	"strings"

	"tiersale/core/types"
	"tiersale/crypto"
)

var (
	// ErrUnknownType is returned for transaction types the ledger does not
	// understand.
	ErrUnknownType = errors.New("tx: unknown transaction type")
	// ErrMalformed is returned when a transaction is missing a field its type
	// requires or carries fields it must not.
	ErrMalformed = errors.New("tx: malformed transaction")
)

// InitializeArgs are the decoded parameters of an initialize transaction.
type InitializeArgs struct {
	Owner        [20]byte
	Treasury     [20]byte
	PaymentAsset string
	SaleAsset    string
}

// CheckStateless validates the shape of tx without consulting ledger state.
// Business rules such as a zero purchase amount are left to the presale engine
// so they surface with their own error.
func CheckStateless(tx *types.Transaction) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrMalformed)
	}
	if len(tx.Signature) == 0 {
		return fmt.Errorf("%w: missing signature", ErrMalformed)
	}
	switch tx.Type {
	case types.TxTypeInitialize:
		_, err := DecodeInitialize(tx)
		return err
	case types.TxTypeBuy:
		if hasInitializeFields(tx) {
			return fmt.Errorf("%w: buy carries initialize fields", ErrMalformed)
		}
	case types.TxTypeEnd, types.TxTypeReactivate:
		if tx.Amount != 0 || hasInitializeFields(tx) {
			return fmt.Errorf("%w: %s takes no arguments", ErrMalformed, tx.Type)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownType, byte(tx.Type))
	}
	return nil
}

func hasInitializeFields(tx *types.Transaction) bool {
	return tx.Owner != "" || tx.Treasury != "" || tx.PaymentAsset != "" || tx.SaleAsset != ""
}

// DecodeInitialize parses the bech32 addresses carried by an initialize
// transaction.
func DecodeInitialize(tx *types.Transaction) (*InitializeArgs, error) {
	if tx == nil || tx.Type != types.TxTypeInitialize {
		return nil, fmt.Errorf("%w: not an initialize transaction", ErrMalformed)
	}
	if tx.Amount != 0 {
		return nil, fmt.Errorf("%w: initialize carries an amount", ErrMalformed)
	}
	owner, err := crypto.DecodeAddress(strings.TrimSpace(tx.Owner))
	if err != nil {
		return nil, fmt.Errorf("%w: owner: %v", ErrMalformed, err)
	}
	treasury, err := crypto.DecodeAddress(strings.TrimSpace(tx.Treasury))
	if err != nil {
		return nil, fmt.Errorf("%w: treasury: %v", ErrMalformed, err)
	}
	return &InitializeArgs{
		Owner:        owner.Raw(),
		Treasury:     treasury.Raw(),
		PaymentAsset: tx.PaymentAsset,
		SaleAsset:    tx.SaleAsset,
	}, nil
}
