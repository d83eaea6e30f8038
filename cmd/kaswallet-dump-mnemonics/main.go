// Command kaswallet-dump-mnemonics decrypts and prints every mnemonic
// stored in a wallet key file, given its password.
package main

import (
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

	cmd := &cobra.Command{
		Use:           "kaswallet-dump-mnemonics",
		Short:         "Decrypt and print a key file's mnemonics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := keystore.Load(keysFile)
			if err != nil {
				return err
			}

			fmt.Print("Please enter password: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}

			mnemonics, err := ks.DecryptMnemonics(string(raw))
			if err != nil {
				return err
			}

			fmt.Println("Decrypted mnemonics:")
			for _, m := range mnemonics {
				fmt.Printf("%q\n", m)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&keysFile, "keys-file", "k", "", "path to the key file")
	_ = cmd.MarkFlagRequired("keys-file")
	return cmd
}
