// Command kasctl is the wallet daemon's CLI client: each subcommand makes
// one HTTP call against a running kaswalletd's pkg/api surface and prints
// the result, one subcommand per RPC method.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kaswalletd/kaswalletd/pkg/kasctl"
	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kasctl",
		Short:         "Kaspa wallet CLI client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newBalanceCmd(),
		newShowAddressesCmd(),
		newNewAddressCmd(),
		newGetDaemonVersionCmd(),
		newGetUtxosCmd(),
		newSendCmd(),
		newCreateUnsignedTransactionCmd(),
		newSignCmd(),
		newBroadcastCmd(),
	)
	return root
}

func daemonAddressFlag(cmd *cobra.Command) *string {
	return cmd.Flags().StringP("daemonaddress", "d", kasctl.DefaultDaemonAddress, "wallet daemon address")
}

func newBalanceCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Shows the balance of the wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalance(cmd.Context(), *daemonAddr(cmd), verbose)
		},
	}
	daemonAddressFlag(cmd)
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show balance per address")
	return cmd
}

// daemonAddr reads --daemonaddress after cobra has parsed the command line.
func daemonAddr(cmd *cobra.Command) *string {
	f := cmd.Flags().Lookup("daemonaddress")
	v := f.Value.String()
	return &v
}

func runBalance(ctx context.Context, daemonAddress string, verbose bool) error {
	c := kasctl.New(daemonAddress)
	balance, err := c.GetBalance(ctx, verbose)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Println("Address                                                                       Available             Pending")
		fmt.Println("-----------------------------------------------------------------------------------------------------------")
		for addr, ab := range balance.PerAddress {
			fmt.Printf("%s %s %s\n", addr, kasctl.FormatKas(ab.Available), kasctl.FormatKas(ab.Pending))
		}
		fmt.Println("-----------------------------------------------------------------------------------------------------------")
		fmt.Print("                                                 ")
	}

	pendingSuffix := ""
	if balance.Pending > 0 && !verbose {
		pendingSuffix = " (pending)"
	}
	fmt.Printf("Total balance, KAS %s %s%s\n", kasctl.FormatKas(balance.Available), kasctl.FormatKas(balance.Pending), pendingSuffix)
	return nil
}

func newShowAddressesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show-addresses",
		Short: "Shows all generated public addresses of the current wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := kasctl.New(*daemonAddr(cmd))
			addrs, err := c.GetAddresses(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Addresses (%d):\n", len(addrs))
			for _, a := range addrs {
				fmt.Println(a)
			}
			fmt.Println()
			fmt.Println("Note: the above are only addresses that were manually created by the 'new-address' command. " +
				"If you want to see a list of all addresses, including change addresses, that have a positive balance, " +
				"use the command 'balance -v'")
			return nil
		},
	}
	daemonAddressFlag(cmd)
	return cmd
}

func newNewAddressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new-address",
		Short: "Generates a new public address of the current wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := kasctl.New(*daemonAddr(cmd))
			addr, err := c.NewAddress(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("New address: %s\n", addr)
			return nil
		},
	}
	daemonAddressFlag(cmd)
	return cmd
}

func newGetDaemonVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get-daemon-version",
		Short: "Get the wallet daemon version",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := kasctl.New(*daemonAddr(cmd))
			version, err := c.GetVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Daemon version: %s\n", version)
			return nil
		},
	}
	daemonAddressFlag(cmd)
	return cmd
}

func newGetUtxosCmd() *cobra.Command {
	var addresses []string
	var includePending, includeDust bool
	cmd := &cobra.Command{
		Use:   "get-utxos",
		Short: "Get UTXOs for the wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := kasctl.New(*daemonAddr(cmd))
			utxos, err := c.GetUtxos(cmd.Context(), addresses, includePending, includeDust)
			if err != nil {
				return err
			}

			byAddress := map[string][]int{}
			order := make([]string, 0)
			for i, u := range utxos {
				if _, ok := byAddress[u.Address]; !ok {
					order = append(order, u.Address)
				}
				byAddress[u.Address] = append(byAddress[u.Address], i)
			}

			for _, addr := range order {
				idxs := byAddress[addr]
				fmt.Printf("Address: %s\n", addr)
				fmt.Printf("  UTXOs (%d):\n", len(idxs))
				for _, i := range idxs {
					u := utxos[i]
					var flags []string
					if u.IsCoinbase {
						flags = append(flags, "coinbase")
					}
					if u.IsPending {
						flags = append(flags, "pending")
					}
					if u.IsDust {
						flags = append(flags, "dust")
					}
					flagsStr := ""
					if len(flags) > 0 {
						flagsStr = fmt.Sprintf(" [%s]", strings.Join(flags, ", "))
					}
					fmt.Printf("    %x:%d - %s KAS%s\n", u.Outpoint.TxID, u.Outpoint.Index, strings.TrimSpace(kasctl.FormatKas(u.Amount)), flagsStr)
				}
				fmt.Println()
			}
			return nil
		},
	}
	daemonAddressFlag(cmd)
	cmd.Flags().StringSliceVarP(&addresses, "address", "a", nil, "specific addresses to get UTXOs for")
	cmd.Flags().BoolVar(&includePending, "include-pending", false, "include pending coinbase UTXOs")
	cmd.Flags().BoolVar(&includeDust, "include-dust", false, "include dust UTXOs")
	return cmd
}

type feeFlags struct {
	maxFeeRate float64
	feeRate    float64
	maxFee     uint64
}

func (f *feeFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64VarP(&f.maxFeeRate, "max-fee-rate", "m", 0, "maximum fee rate in Sompi/gram")
	cmd.Flags().Float64VarP(&f.feeRate, "fee-rate", "r", 0, "exact fee rate in Sompi/gram")
	cmd.Flags().Uint64VarP(&f.maxFee, "max-fee", "x", 0, "maximum fee in Sompi")
}

// toPolicy resolves the three mutually-exclusive fee flags into a
// walletmodel.FeePolicy, or nil if none were given.
func (f *feeFlags) toPolicy() *walletmodel.FeePolicy {
	switch {
	case f.feeRate != 0:
		return &walletmodel.FeePolicy{ExactFeeRate: &f.feeRate}
	case f.maxFeeRate != 0:
		return &walletmodel.FeePolicy{MaxFeeRate: &f.maxFeeRate}
	case f.maxFee != 0:
		return &walletmodel.FeePolicy{MaxFee: &f.maxFee}
	default:
		return nil
	}
}

func newSendCmd() *cobra.Command {
	var toAddress, sendAmount string
	var sendAll, useExistingChangeAddress, showSerialized bool
	var fromAddresses []string
	var password, payloadHex string
	var fee feeFlags

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Sends a Kaspa transaction to a public address",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sendAmount == "" && !sendAll {
				return fmt.Errorf("exactly one of '--send-amount' or '--send-all' must be specified")
			}

			amount := uint64(0)
			if sendAmount != "" {
				var err error
				amount, err = kasctl.ParseKasAmount(sendAmount)
				if err != nil {
					return err
				}
			}

			payload, err := decodePayload(payloadHex)
			if err != nil {
				return err
			}

			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}

			req := walletmodel.PaymentRequest{
				ToAddress:                toAddress,
				Amount:                   amount,
				IsSendAll:                sendAll,
				Payload:                  payload,
				FromAddresses:            fromAddresses,
				UseExistingChangeAddress: useExistingChangeAddress,
				FeePolicy:                fee.toPolicy(),
			}

			c := kasctl.New(*daemonAddr(cmd))
			result, err := c.Send(cmd.Context(), req, pw)
			if err != nil {
				return err
			}

			fmt.Printf("Broadcasted %d transaction(s)\n", len(result.TransactionIDs))
			fmt.Println("Transaction ID(s):")
			for _, id := range result.TransactionIDs {
				fmt.Printf("  %s\n", id)
			}

			if showSerialized {
				fmt.Println()
				fmt.Println("Serialized Transaction(s):")
				if err := printSerialized(result.SignedTransactions); err != nil {
					return err
				}
			}
			return nil
		},
	}
	daemonAddressFlag(cmd)
	cmd.Flags().StringVarP(&toAddress, "to-address", "t", "", "the public address to send Kaspa to")
	cmd.Flags().StringVarP(&sendAmount, "send-amount", "v", "", "an amount to send in Kaspa")
	cmd.Flags().BoolVar(&sendAll, "send-all", false, "send all the Kaspa in the wallet")
	cmd.Flags().StringSliceVarP(&fromAddresses, "from-address", "a", nil, "specific public address to send Kaspa from")
	cmd.Flags().BoolVarP(&useExistingChangeAddress, "use-existing-change-address", "u", false, "use an existing change address instead of generating a new one")
	cmd.Flags().StringVarP(&password, "password", "p", "", "wallet password")
	cmd.Flags().BoolVarP(&showSerialized, "show-serialized", "s", false, "show serialized transactions")
	cmd.Flags().StringVar(&payloadHex, "payload", "", "transaction payload (hex-encoded)")
	fee.register(cmd)
	_ = cmd.MarkFlagRequired("to-address")
	return cmd
}

func newCreateUnsignedTransactionCmd() *cobra.Command {
	var toAddress, sendAmount string
	var sendAll, useExistingChangeAddress bool
	var fromAddresses []string
	var payloadHex string
	var fee feeFlags

	cmd := &cobra.Command{
		Use:   "create-unsigned-transaction",
		Short: "Create an unsigned Kaspa transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sendAmount == "" && !sendAll {
				return fmt.Errorf("exactly one of '--send-amount' or '--send-all' must be specified")
			}

			amount := uint64(0)
			if sendAmount != "" {
				var err error
				amount, err = kasctl.ParseKasAmount(sendAmount)
				if err != nil {
					return err
				}
			}

			payload, err := decodePayload(payloadHex)
			if err != nil {
				return err
			}

			req := walletmodel.PaymentRequest{
				ToAddress:                toAddress,
				Amount:                   amount,
				IsSendAll:                sendAll,
				Payload:                  payload,
				FromAddresses:            fromAddresses,
				UseExistingChangeAddress: useExistingChangeAddress,
				FeePolicy:                fee.toPolicy(),
			}

			c := kasctl.New(*daemonAddr(cmd))
			txs, err := c.CreateUnsignedTransactions(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Printf("Created %d unsigned transaction(s)\n", len(txs))
			fmt.Println("Unsigned Transaction(s) (hex encoded):")
			return printSerialized(txs)
		},
	}
	daemonAddressFlag(cmd)
	cmd.Flags().StringVarP(&toAddress, "to-address", "t", "", "the public address to send Kaspa to")
	cmd.Flags().StringVarP(&sendAmount, "send-amount", "v", "", "an amount to send in Kaspa")
	cmd.Flags().BoolVar(&sendAll, "send-all", false, "send all the Kaspa in the wallet")
	cmd.Flags().StringSliceVarP(&fromAddresses, "from-address", "a", nil, "specific public address to send Kaspa from")
	cmd.Flags().BoolVarP(&useExistingChangeAddress, "use-existing-change-address", "u", false, "use an existing change address instead of generating a new one")
	cmd.Flags().StringVar(&payloadHex, "payload", "", "transaction payload (hex-encoded)")
	fee.register(cmd)
	_ = cmd.MarkFlagRequired("to-address")
	return cmd
}

func newSignCmd() *cobra.Command {
	var transaction, transactionFile, password string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign the given unsigned transaction(s)",
		RunE: func(cmd *cobra.Command, args []string) error {
			hexBlob, err := resolveTransactionsHex(transaction, transactionFile)
			if err != nil {
				return err
			}
			unsigned, err := kasctl.ParseTransactionsHex(hexBlob)
			if err != nil {
				return err
			}

			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}

			c := kasctl.New(*daemonAddr(cmd))
			signed, err := c.Sign(cmd.Context(), unsigned, pw)
			if err != nil {
				return err
			}

			fmt.Printf("Signed %d transaction(s)\n", len(signed))
			fmt.Println("Signed Transaction(s) (hex encoded):")
			return printSerialized(signed)
		},
	}
	daemonAddressFlag(cmd)
	cmd.Flags().StringVarP(&transaction, "transaction", "t", "", "the unsigned transaction(s) to sign (hex)")
	cmd.Flags().StringVarP(&transactionFile, "transaction-file", "F", "", "file containing the unsigned transaction(s) to sign (hex)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "wallet password")
	return cmd
}

func newBroadcastCmd() *cobra.Command {
	var transaction, transactionFile string
	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Broadcast the given signed transaction(s)",
		RunE: func(cmd *cobra.Command, args []string) error {
			hexBlob, err := resolveTransactionsHex(transaction, transactionFile)
			if err != nil {
				return err
			}
			txs, err := kasctl.ParseTransactionsHex(hexBlob)
			if err != nil {
				return err
			}

			c := kasctl.New(*daemonAddr(cmd))
			txids, err := c.Broadcast(cmd.Context(), txs)
			if err != nil {
				return err
			}

			fmt.Printf("Broadcasted %d transaction(s)\n", len(txids))
			fmt.Println("Transaction ID(s):")
			for _, id := range txids {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	}
	daemonAddressFlag(cmd)
	cmd.Flags().StringVarP(&transaction, "transaction", "t", "", "the signed transaction(s) to broadcast (hex)")
	cmd.Flags().StringVarP(&transactionFile, "transaction-file", "F", "", "file containing the signed transaction(s) to broadcast (hex)")
	return cmd
}

func resolveTransactionsHex(transaction, transactionFile string) (string, error) {
	switch {
	case transaction != "":
		return transaction, nil
	case transactionFile != "":
		raw, err := os.ReadFile(transactionFile)
		if err != nil {
			return "", fmt.Errorf("failed to read transaction file %q: %w", transactionFile, err)
		}
		return string(raw), nil
	default:
		return "", fmt.Errorf("either --transaction or --transaction-file must be specified")
	}
}

func printSerialized(txs []walletmodel.WalletSignableTransaction) error {
	for _, tx := range txs {
		serialized, err := kasctl.SerializeTransaction(tx)
		if err != nil {
			return err
		}
		fmt.Println(serialized)
		fmt.Println()
	}
	return nil
}

func decodePayload(payloadHex string) ([]byte, error) {
	if payloadHex == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(payloadHex)
	if err != nil {
		return nil, fmt.Errorf("invalid hex in --payload: %w", err)
	}
	return raw, nil
}

// resolvePassword returns password verbatim if given on the command line,
// otherwise prompts on the terminal without echoing input.
func resolvePassword(password string) (string, error) {
	if password != "" {
		return password, nil
	}
	fmt.Print("Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(raw), nil
}
