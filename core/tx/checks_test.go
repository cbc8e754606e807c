package tx

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"tiersale/core/types"
	"tiersale/crypto"
)

func TestCheckStateless(t *testing.T) {
	owner := crypto.FromRaw([20]byte{1}).String()
	treasury := crypto.FromRaw([20]byte{2}).String()
	sig := []byte{0x01}

	cases := []struct {
		name string
		tx   *types.Transaction
		want error
	}{
		{"buy", &types.Transaction{Type: types.TxTypeBuy, Amount: 5, Signature: sig}, nil},
		{"zero buy left to engine", &types.Transaction{Type: types.TxTypeBuy, Signature: sig}, nil},
		{"end", &types.Transaction{Type: types.TxTypeEnd, Signature: sig}, nil},
		{"initialize", &types.Transaction{Type: types.TxTypeInitialize, Owner: owner, Treasury: treasury, PaymentAsset: "USDC", SaleAsset: "SYTR", Signature: sig}, nil},
		{"unsigned", &types.Transaction{Type: types.TxTypeBuy, Amount: 1}, ErrMalformed},
		{"unknown type", &types.Transaction{Type: 0x7f, Signature: sig}, ErrUnknownType},
		{"buy with owner", &types.Transaction{Type: types.TxTypeBuy, Amount: 1, Owner: owner, Signature: sig}, ErrMalformed},
		{"reactivate with amount", &types.Transaction{Type: types.TxTypeReactivate, Amount: 1, Signature: sig}, ErrMalformed},
		{"bad treasury", &types.Transaction{Type: types.TxTypeInitialize, Owner: owner, Treasury: "nope", Signature: sig}, ErrMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckStateless(tc.tx)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestDecodeInitialize(t *testing.T) {
	tx := &types.Transaction{
		Type:         types.TxTypeInitialize,
		Owner:        crypto.FromRaw([20]byte{1}).String(),
		Treasury:     crypto.FromRaw([20]byte{2}).String(),
		PaymentAsset: "USDC",
		SaleAsset:    "SYTR",
	}
	args, err := DecodeInitialize(tx)
	require.NoError(t, err)
	require.Equal(t, [20]byte{1}, args.Owner)
	require.Equal(t, [20]byte{2}, args.Treasury)
	require.Equal(t, "USDC", args.PaymentAsset)
}

func TestSignAndRecoverSender(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	tx := &types.Transaction{ChainID: 7, Type: types.TxTypeBuy, Nonce: 3, Amount: 10}
	require.NoError(t, tx.Sign(key))
	tampered := &types.Transaction{ChainID: 7, Type: types.TxTypeBuy, Nonce: 3, Amount: 11, Signature: tx.Signature}

	sender, err := tx.Sender()
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Raw(), sender.Raw())

	other, err := tampered.Sender()
	if err == nil {
		require.NotEqual(t, sender.Raw(), other.Raw())
	}
}

func TestParseTxType(t *testing.T) {
	got, err := types.ParseTxType(" Buy ")
	require.NoError(t, err)
	require.Equal(t, types.TxTypeBuy, got)
	require.Equal(t, "reactivate", types.TxTypeReactivate.String())
	_, err = types.ParseTxType("mint")
	require.Error(t, err)
}

func TestTxTypeJSONUsesNames(t *testing.T) {
	raw, err := json.Marshal(&types.Transaction{Type: types.TxTypeEnd, Nonce: 2})
	require.NoError(t, err)
	require.Contains(t, string(raw), `"type":"end"`)

	var decoded types.Transaction
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, types.TxTypeEnd, decoded.Type)

	require.Error(t, json.Unmarshal([]byte(`{"type":"mint"}`), &decoded))
	_, err = json.Marshal(&types.Transaction{Type: 0x7f})
	require.Error(t, err)
}
