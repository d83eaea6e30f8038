// Command kaswalletd is the wallet daemon: it loads a key file, talks to a
// Kaspa-compatible node over pkg/rpcnode, keeps its address/UTXO views in
// sync in the background, and serves the wallet RPC surface over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kaswalletd/kaswalletd/pkg/addressmanager"
	"github.com/kaswalletd/kaswalletd/pkg/api"
	"github.com/kaswalletd/kaswalletd/pkg/config"
	"github.com/kaswalletd/kaswalletd/pkg/keystore"
	"github.com/kaswalletd/kaswalletd/pkg/log"
	"github.com/kaswalletd/kaswalletd/pkg/metrics"
	"github.com/kaswalletd/kaswalletd/pkg/rpcnode"
	"github.com/kaswalletd/kaswalletd/pkg/signer"
	"github.com/kaswalletd/kaswalletd/pkg/syncmanager"
	"github.com/kaswalletd/kaswalletd/pkg/txgen"
	"github.com/kaswalletd/kaswalletd/pkg/utxomanager"
	"github.com/kaswalletd/kaswalletd/pkg/walletservice"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kaswalletd",
		Short: "kaswalletd - a custodial Kaspa wallet daemon",
		Long: `kaswalletd manages HD-derived Kaspa addresses and their UTXOs against a
remote node, and exposes an RPC surface to create, sign, and broadcast
transactions on the wallet's behalf.`,
		RunE: runDaemon,
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := log.New(log.Config{Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("constructing logger: %w", err)
	}
	defer logger.Sync()

	keys, err := keystore.Load(cfg.KeysFile)
	if err != nil {
		return fmt.Errorf("loading key file %s: %w", cfg.KeysFile, err)
	}

	node := rpcnode.NewHTTPClient(cfg.NodeRPC)
	addrMgr := addressmanager.New(keys, node, cfg.Network, logger.Named("addressmanager"))
	utxoMgr := utxomanager.New(cfg.CoinbaseMaturity)
	gen := txgen.New(node, addrMgr, utxoMgr, keys, cfg.Network)
	sgnr := signer.New(keys)
	m := metrics.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sync := syncmanager.New(addrMgr, utxoMgr, node, m, logger.Named("syncmanager"))
	sync.Start(ctx)

	svc := walletservice.New(keys, addrMgr, utxoMgr, gen, sgnr, node, logger.Named("walletservice"))
	server := api.NewServer(svc, m, cfg.Listen, logger.Named("api"))

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.Listen)
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case sig := <-sigCh:
		logger.Infof("received %s, shutting down", sig)
		cancel()
		return nil
	}
}
