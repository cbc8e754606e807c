package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tiersale/core/types"
	"tiersale/crypto"
	"tiersale/rpc"
)

type submitter interface {
	Submit(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// submitWithRetry resubmits tx while the node reports a conflicting commit,
// doubling the delay each time. Any other error is returned immediately.
func submitWithRetry(ctx context.Context, client submitter, tx *types.Transaction, retries int, backoff time.Duration) (*types.Receipt, error) {
	delay := backoff
	for attempt := 0; ; attempt++ {
		receipt, err := client.Submit(ctx, tx)
		if err == nil || !rpc.IsConflict(err) || attempt >= retries {
			return receipt, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// signAndSubmit fills in the chain id and the sender's next nonce, signs tx
// with the keystore key and submits it.
func signAndSubmit(cmd *cobra.Command, opts *RootOptions, tx *types.Transaction) error {
	key, err := loadKey(opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	client := opts.client()
	status, err := client.Status(ctx)
	if err != nil {
		return err
	}
	account, err := client.Account(ctx, key.PubKey().Address().String())
	if err != nil {
		return err
	}
	tx.ChainID = status.ChainID
	tx.Nonce = account.Nonce
	if err := tx.Sign(key); err != nil {
		return err
	}
	receipt, err := submitWithRetry(ctx, client, tx, opts.Retries, opts.Backoff)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), opts.Output, receipt)
}

// NewInitializeCommand creates the sale. The owner defaults to the signer.
func NewInitializeCommand(opts *RootOptions) *cobra.Command {
	var owner, treasury, paymentAsset, saleAsset string
	cmd := &cobra.Command{
		Use:   "initialize",
		Short: "Create the sale record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				key, err := loadKey(opts)
				if err != nil {
					return err
				}
				owner = key.PubKey().Address().String()
			}
			for name, value := range map[string]string{"owner": owner, "treasury": treasury} {
				if _, err := crypto.DecodeAddress(value); err != nil {
					return fmt.Errorf("--%s: %w", name, err)
				}
			}
			return signAndSubmit(cmd, opts, &types.Transaction{
				Type:         types.TxTypeInitialize,
				Owner:        owner,
				Treasury:     treasury,
				PaymentAsset: paymentAsset,
				SaleAsset:    saleAsset,
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "sale owner address (defaults to the signer)")
	cmd.Flags().StringVar(&treasury, "treasury", "", "address receiving payments")
	cmd.Flags().StringVar(&paymentAsset, "payment-asset", "USDC", "asset buyers pay with")
	cmd.Flags().StringVar(&saleAsset, "sale-asset", "", "asset being sold")
	_ = cmd.MarkFlagRequired("treasury")
	_ = cmd.MarkFlagRequired("sale-asset")
	return cmd
}

func NewBuyCommand(opts *RootOptions) *cobra.Command {
	var amount uint64
	cmd := &cobra.Command{
		Use:   "buy",
		Short: "Buy sale units at the current tier price",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return signAndSubmit(cmd, opts, &types.Transaction{Type: types.TxTypeBuy, Amount: amount})
		},
	}
	cmd.Flags().Uint64Var(&amount, "amount", 0, "units to buy")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func NewEndCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "Pause the sale (owner only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return signAndSubmit(cmd, opts, &types.Transaction{Type: types.TxTypeEnd})
		},
	}
}

func NewReactivateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate",
		Short: "Resume a paused sale (owner only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return signAndSubmit(cmd, opts, &types.Transaction{Type: types.TxTypeReactivate})
		},
	}
}
