package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tiersale/cmd/internal/passphrase"
	"tiersale/crypto"
)

func requireKeystore(opts *RootOptions) error {
	if opts.Keystore == "" {
		return fmt.Errorf("--keystore or %s is required", keystoreEnv)
	}
	return nil
}

func loadKey(opts *RootOptions) (*crypto.PrivateKey, error) {
	if err := requireKeystore(opts); err != nil {
		return nil, err
	}
	pass, err := passphrase.NewSource(passphraseEnv, "keystore").Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(opts.Keystore, pass)
	if err != nil {
		return nil, fmt.Errorf("unlock %s: %w", opts.Keystore, err)
	}
	return key, nil
}

type keyOutput struct {
	Address  string `json:"address" yaml:"address"`
	Keystore string `json:"keystore" yaml:"keystore"`
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(opts *RootOptions) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a new signing key in an encrypted keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireKeystore(opts); err != nil {
				return err
			}
			pass, err := passphrase.NewSource(passphraseEnv, "new keystore").WithConfirmation().Get()
			if err != nil {
				return err
			}
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			if err := crypto.SaveToKeystore(opts.Keystore, key, pass, overwrite); err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Output, keyOutput{
				Address:  key.PubKey().Address().String(),
				Keystore: opts.Keystore,
			})
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing keystore file")
	return cmd
}

// NewAddressCommand prints the address held by the keystore.
func NewAddressCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the address of the keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := loadKey(opts)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.Output, keyOutput{
				Address:  key.PubKey().Address().String(),
				Keystore: opts.Keystore,
			})
		},
	}
}

// resolveAddress accepts an explicit address argument or falls back to the
// keystore.
func resolveAddress(opts *RootOptions, args []string) (string, error) {
	if len(args) > 0 {
		addr, err := crypto.DecodeAddress(args[0])
		if err != nil {
			return "", err
		}
		return addr.String(), nil
	}
	if opts.Keystore == "" {
		return "", errors.New("an address argument or --keystore is required")
	}
	key, err := loadKey(opts)
	if err != nil {
		return "", err
	}
	return key.PubKey().Address().String(), nil
}
