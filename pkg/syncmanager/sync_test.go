package syncmanager

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaswalletd/kaswalletd/pkg/addressmanager"
	"github.com/kaswalletd/kaswalletd/pkg/kaspaaddr"
	"github.com/kaswalletd/kaswalletd/pkg/keystore"
	"github.com/kaswalletd/kaswalletd/pkg/log"
	"github.com/kaswalletd/kaswalletd/pkg/metrics"
	"github.com/kaswalletd/kaswalletd/pkg/rpcnode"
	"github.com/kaswalletd/kaswalletd/pkg/utxomanager"
)

// orderRecordingNode is an rpcnode.Client stub that records the order in
// which GetBalancesByAddresses (with the number of addresses queried),
// GetMempoolEntriesByAddresses and GetUtxosByAddresses are called, so tests
// can pin down the discovery and mempool-before-UTXO query ordering.
type orderRecordingNode struct {
	calls []string
}

func (n *orderRecordingNode) GetBlockDAGInfo(context.Context) (rpcnode.BlockDAGInfo, error) {
	return rpcnode.BlockDAGInfo{}, nil
}

func (n *orderRecordingNode) GetBalancesByAddresses(_ context.Context, addresses []string) ([]rpcnode.AddressBalance, error) {
	n.calls = append(n.calls, fmt.Sprintf("balances:%d", len(addresses)))
	return nil, nil
}

func (n *orderRecordingNode) GetUtxosByAddresses(context.Context, []string) ([]rpcnode.AddressUtxo, error) {
	n.calls = append(n.calls, "utxos")
	return nil, nil
}

func (n *orderRecordingNode) GetMempoolEntriesByAddresses(context.Context, []string, bool, bool) ([]rpcnode.MempoolEntriesByAddress, error) {
	n.calls = append(n.calls, "mempool")
	return nil, nil
}

func (n *orderRecordingNode) GetFeeEstimate(context.Context) (rpcnode.FeeEstimate, error) {
	return rpcnode.FeeEstimate{}, nil
}

func (n *orderRecordingNode) SubmitTransaction(context.Context, []byte, bool) (string, error) {
	return "", nil
}

func newTestManager(t *testing.T) (*Manager, *orderRecordingNode, *addressmanager.Manager) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "keys.json")
	ks, _, err := keystore.Create(path, "pw", 1, 0, 1)
	require.NoError(t, err)

	logger, err := log.New(log.DefaultConfig())
	require.NoError(t, err)

	node := &orderRecordingNode{}
	addrMgr := addressmanager.New(ks, node, kaspaaddr.PrefixMainnet, logger)
	utxoMgr := utxomanager.New(0)
	m := New(addrMgr, utxoMgr, node, metrics.New(), logger)

	return m, node, addrMgr
}

// TestRefreshUTXOsQueriesMempoolBeforeUtxos: a refresh pass must never
// observe UTXOs without the mempool exclusion that should accompany them.
func TestRefreshUTXOsQueriesMempoolBeforeUtxos(t *testing.T) {
	m, node, _ := newTestManager(t)

	require.NoError(t, m.refreshUTXOs(context.Background()))
	require.Len(t, node.calls, 2)
	assert.Equal(t, []string{"mempool", "utxos"}, node.calls)
}

// TestInitializingMarksFirstSyncDone covers the Initializing-to-Steady
// transition: a successful initial pass must flip IsSynced to true.
func TestInitializingMarksFirstSyncDone(t *testing.T) {
	m, _, addrMgr := newTestManager(t)

	assert.False(t, addrMgr.IsSynced())
	require.NoError(t, m.initializing(context.Background()))
	assert.True(t, addrMgr.IsSynced())
}

// TestTickRunsFarThenRecentThenRefresh covers the steady-state pass: each
// tick must probe the far frontier, rescan the recent window, and only then
// refresh the UTXO set (still mempool-before-utxos within that refresh).
func TestTickRunsFarThenRecentThenRefresh(t *testing.T) {
	m, node, _ := newTestManager(t)

	require.NoError(t, m.tick(context.Background(), "test-tick"))
	// Far pass: indices [0, FarWindow) on both keychains; recent pass:
	// [0, RecentWindow) on both keychains; then the refresh.
	require.Len(t, node.calls, 4)
	assert.Equal(t, []string{"balances:200", "balances:2000", "mempool", "utxos"}, node.calls)
}
