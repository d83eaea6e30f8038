// Package config binds kaswalletd's command-line flags and environment
// through viper and resolves them into one Config struct before any
// component is constructed.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kaswalletd/kaswalletd/pkg/kaspaaddr"
)

// Config is the fully resolved set of daemon settings.
type Config struct {
	Network          kaspaaddr.Prefix
	KeysFile         string
	Listen           string
	NodeRPC          string
	LogLevel         string
	LogJSON          bool
	CoinbaseMaturity uint64
}

// DefaultListen is where the wallet RPC server listens when --listen is
// not given; kasctl's --daemonaddress default points here.
const DefaultListen = "127.0.0.1:8082"

// DefaultCoinbaseMaturity is the DAA-score maturity window coinbase outputs
// must age past before they are spendable.
const DefaultCoinbaseMaturity = 100

// RegisterFlags adds the daemon's persistent flags to cmd and binds them
// into viper.
func RegisterFlags(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	flags.Bool("testnet", false, "connect to the Kaspa testnet")
	flags.Bool("devnet", false, "connect to the Kaspa devnet")
	flags.Bool("simnet", false, "connect to the Kaspa simnet")
	flags.String("keys-file", "", "path to the wallet key file")
	flags.String("listen", DefaultListen, "address the wallet RPC server listens on")
	flags.String("node-rpc", "http://127.0.0.1:16110", "base URL of the node RPC this daemon consumes")
	flags.String("logs-level", "info", "log level: debug, info, warn, error")

	for _, name := range []string{"testnet", "devnet", "simnet", "keys-file", "listen", "node-rpc", "logs-level"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// Load resolves Config from whatever RegisterFlags bound, after cobra has
// parsed the command line. viper.AutomaticEnv lets KASWALLETD_* environment
// variables supply any setting whose flag was not given on the command line;
// a flag given explicitly takes precedence over the environment.
func Load() (*Config, error) {
	viper.SetEnvPrefix("kaswalletd")
	viper.AutomaticEnv()

	testnet := viper.GetBool("testnet")
	devnet := viper.GetBool("devnet")
	simnet := viper.GetBool("simnet")
	if countSet(testnet, devnet, simnet) > 1 {
		return nil, fmt.Errorf("config: at most one of --testnet, --devnet, --simnet may be set")
	}

	network := kaspaaddr.PrefixMainnet
	switch {
	case testnet:
		network = kaspaaddr.PrefixTestnet
	case devnet:
		network = kaspaaddr.PrefixDevnet
	case simnet:
		network = kaspaaddr.PrefixSimnet
	}

	keysFile := viper.GetString("keys-file")
	if keysFile == "" {
		return nil, fmt.Errorf("config: --keys-file is required")
	}

	listen := viper.GetString("listen")
	if listen == "" {
		listen = DefaultListen
	}

	return &Config{
		Network:          network,
		KeysFile:         keysFile,
		Listen:           listen,
		NodeRPC:          viper.GetString("node-rpc"),
		LogLevel:         viper.GetString("logs-level"),
		CoinbaseMaturity: DefaultCoinbaseMaturity,
	}, nil
}

func countSet(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}
