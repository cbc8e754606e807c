package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tiersale/rpc"
)

const (
	rpcEnv        = "PRESALE_RPC"
	keystoreEnv   = "PRESALE_KEYSTORE"
	passphraseEnv = "PRESALE_KEYSTORE_PASS"
)

// ValidOutputs lists the accepted --output values.
var ValidOutputs = []string{"json", "yaml"}

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	RPC      string
	Keystore string
	Output   string
	Retries  int
	Backoff  time.Duration
}

func (o *RootOptions) client() *rpc.Client {
	return rpc.NewClient(o.RPC)
}

func envOr(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

// NewRootCommand builds the presalectl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "presalectl",
		Short:         "Operate and query a tiered presale node",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, valid := range ValidOutputs {
				if opts.Output == valid {
					return nil
				}
			}
			return fmt.Errorf("invalid output %q: must be one of %v", opts.Output, ValidOutputs)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.RPC, "rpc", envOr(rpcEnv, "http://localhost:8080"), "node API base URL")
	cmd.PersistentFlags().StringVar(&opts.Keystore, "keystore", envOr(keystoreEnv, ""), "path to the signing keystore")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "json", "output format (json|yaml)")
	cmd.PersistentFlags().IntVar(&opts.Retries, "retries", 5, "resubmissions after a conflicting commit")
	cmd.PersistentFlags().DurationVar(&opts.Backoff, "backoff", 100*time.Millisecond, "initial delay between resubmissions")

	cmd.AddCommand(NewKeygenCommand(opts))
	cmd.AddCommand(NewAddressCommand(opts))
	cmd.AddCommand(NewScheduleCommand(opts))
	cmd.AddCommand(NewInitializeCommand(opts))
	cmd.AddCommand(NewBuyCommand(opts))
	cmd.AddCommand(NewEndCommand(opts))
	cmd.AddCommand(NewReactivateCommand(opts))
	cmd.AddCommand(NewStateCommand(opts))
	cmd.AddCommand(NewQuoteCommand(opts))
	cmd.AddCommand(NewPurchaseCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewAccountCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

func printResult(w io.Writer, format string, v interface{}) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
