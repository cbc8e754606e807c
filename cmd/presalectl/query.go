package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"tiersale/core/events"
	"tiersale/explorer"
)

var errWatchDone = errors.New("watch: count reached")

func NewStateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the sale record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := opts.client().SaleState(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Output, view)
		},
	}
}

func NewQuoteCommand(opts *RootOptions) *cobra.Command {
	var amount uint64
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a purchase at the current tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := opts.client().Quote(cmd.Context(), amount)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Output, view)
		},
	}
	cmd.Flags().Uint64Var(&amount, "amount", 0, "units to price")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func NewPurchaseCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purchase [address]",
		Short: "Show the cumulative purchase of a buyer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := resolveAddress(opts, args)
			if err != nil {
				return err
			}
			view, err := opts.client().Purchase(cmd.Context(), addr)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Output, view)
		},
	}
}

func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var page explorer.Page
	cmd := &cobra.Command{
		Use:   "history [address]",
		Short: "List the indexed purchases of a buyer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := resolveAddress(opts, args)
			if err != nil {
				return err
			}
			view, err := opts.client().History(cmd.Context(), addr, page)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Output, view)
		},
	}
	cmd.Flags().IntVar(&page.Limit, "limit", 0, "maximum rows (node default when zero)")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "rows to skip")
	return cmd
}

func NewAccountCommand(opts *RootOptions) *cobra.Command {
	var assets string
	cmd := &cobra.Command{
		Use:   "account [address]",
		Short: "Show the nonce and balances of an account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := resolveAddress(opts, args)
			if err != nil {
				return err
			}
			var list []string
			if trimmed := strings.TrimSpace(assets); trimmed != "" {
				list = strings.Split(trimmed, ",")
			}
			view, err := opts.client().Account(cmd.Context(), addr, list...)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Output, view)
		},
	}
	cmd.Flags().StringVar(&assets, "asset", "", "comma-separated assets (defaults to the sale's assets)")
	return cmd
}

// NewWatchCommand follows the node's event stream. Without --count it runs
// until interrupted.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	var since uint64
	var count int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow committed ledger events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seen := 0
			err := opts.client().Watch(cmd.Context(), since, func(update events.Update) error {
				if err := printResult(cmd.OutOrStdout(), opts.Output, update); err != nil {
					return err
				}
				seen++
				if count > 0 && seen >= count {
					return errWatchDone
				}
				return nil
			})
			if errors.Is(err, errWatchDone) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Uint64Var(&since, "since", 0, "resume after this sequence")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many events")
	return cmd
}
