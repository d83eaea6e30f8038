// Command kaswallet-create provisions a brand-new wallet key file: it
// generates one BIP39 mnemonic per cosigner, prompts for and confirms an
// encryption password, and writes the resulting key file to disk.
package main

import (
	"crypto/subtle"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kaswalletd/kaswalletd/pkg/keystore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var keysFile string
	var minSignatures int
	var numCosigners int
	var cosignerIndex uint16

	cmd := &cobra.Command{
		Use:           "kaswallet-create",
		Short:         "Provision a new kaswalletd key file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptForNewPassword()
			if err != nil {
				return err
			}

			if _, err := os.Stat(keysFile); err == nil {
				return fmt.Errorf("key file %s already exists, refusing to overwrite", keysFile)
			}

			_, mnemonics, err := keystore.Create(keysFile, password, minSignatures, cosignerIndex, numCosigners)
			if err != nil {
				return err
			}

			for i, m := range mnemonics {
				fmt.Printf("Mnemonic #%d:\n%s\n\n", i+1, m)
			}
			fmt.Printf("Key file written to %s\n", keysFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&keysFile, "keys-file", "k", "", "path to write the new key file")
	cmd.Flags().IntVar(&minSignatures, "min-signatures", 1, "minimum number of signatures required")
	cmd.Flags().IntVar(&numCosigners, "num-cosigners", 1, "number of cosigners (mnemonics) to generate")
	cmd.Flags().Uint16Var(&cosignerIndex, "cosigner-index", 0, "this signer's cosigner index, for multisig")
	_ = cmd.MarkFlagRequired("keys-file")
	return cmd
}

// promptForNewPassword asks for a password twice and rejects a mismatch.
// The comparison is constant-time to avoid leaking where the two entries
// diverge.
func promptForNewPassword() (string, error) {
	for {
		fmt.Print("Please enter encryption password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		fmt.Print("Please confirm your password: ")
		confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading password confirmation: %w", err)
		}

		if subtle.ConstantTimeCompare(password, confirm) != 1 {
			fmt.Println("Passwords do not match!")
			continue
		}
		return string(password), nil
	}
}
