package utxomanager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaswalletd/kaswalletd/pkg/rpcnode"
	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

func txID(b byte) [32]byte {
	var id [32]byte
	id[0] = b
	return id
}

func TestUpdateUTXOSetExcludesMempoolSpentOutputs(t *testing.T) {
	m := New(100)
	addrA := "kaspa:addr-a"
	ownAddresses := map[string]walletmodel.WalletAddress{addrA: {Index: 1}}

	utxos := []rpcnode.AddressUtxo{
		{Address: addrA, TxID: txID(1), Index: 0, Entry: rpcnode.UtxoEntry{Amount: 1000}},
		{Address: addrA, TxID: txID(2), Index: 0, Entry: rpcnode.UtxoEntry{Amount: 2000}},
	}
	mempool := []rpcnode.MempoolEntriesByAddress{
		{
			Address: addrA,
			Sending: []rpcnode.MempoolTransaction{
				{TxID: txID(9), Inputs: []rpcnode.MempoolInput{{PreviousTxID: txID(1), PreviousIndex: 0}}},
			},
		},
	}

	m.Lock()
	m.UpdateUTXOSet(utxos, mempool, ownAddresses)
	m.Unlock()

	snap := m.Snapshot()
	assert.Len(t, snap.UtxosByOutpoint, 1)
	assert.Len(t, snap.MempoolExcluded, 1)

	excluded := walletmodel.Outpoint{TxID: txID(1), Index: 0}
	_, stillConfirmed := snap.UtxosByOutpoint[excluded]
	assert.False(t, stillConfirmed)
	_, isExcluded := snap.MempoolExcluded[excluded]
	assert.True(t, isExcluded)
}

func TestUpdateUTXOSetIgnoresForeignAddresses(t *testing.T) {
	m := New(0)
	ownAddresses := map[string]walletmodel.WalletAddress{"kaspa:mine": {Index: 1}}

	utxos := []rpcnode.AddressUtxo{
		{Address: "kaspa:not-mine", TxID: txID(1), Index: 0, Entry: rpcnode.UtxoEntry{Amount: 1000}},
	}

	m.Lock()
	m.UpdateUTXOSet(utxos, nil, ownAddresses)
	m.Unlock()

	assert.Empty(t, m.Snapshot().UtxosByOutpoint)
}

func TestBalanceSplitsAvailableAndPendingCoinbase(t *testing.T) {
	m := New(100)
	addrA := "kaspa:addr-a"
	ownAddresses := map[string]walletmodel.WalletAddress{addrA: {Index: 1}}

	utxos := []rpcnode.AddressUtxo{
		{Address: addrA, TxID: txID(1), Index: 0, Entry: rpcnode.UtxoEntry{Amount: 1000}},
		{Address: addrA, TxID: txID(2), Index: 0, Entry: rpcnode.UtxoEntry{Amount: 5000, IsCoinbase: true, BlockDAAScore: 50}},
	}

	m.Lock()
	m.UpdateUTXOSet(utxos, nil, ownAddresses)
	m.Unlock()

	available, pending, perAddress := m.Balance(100)
	assert.Equal(t, uint64(1000), available)
	assert.Equal(t, uint64(5000), pending)
	assert.Equal(t, [2]uint64{1000, 5000}, perAddress[addrA])
}

func TestAddMempoolTransactionMovesSpentInputsAndAddsOwnOutputs(t *testing.T) {
	m := New(0)
	addrA := "kaspa:addr-a"
	addrB := "kaspa:addr-b"
	ownAddresses := map[string]walletmodel.WalletAddress{
		addrA: {Index: 1},
		addrB: {Index: 2, Keychain: walletmodel.Internal},
	}

	utxos := []rpcnode.AddressUtxo{
		{Address: addrA, TxID: txID(1), Index: 0, Entry: rpcnode.UtxoEntry{Amount: 10_000}},
	}
	m.Lock()
	m.UpdateUTXOSet(utxos, nil, ownAddresses)
	m.Unlock()

	spentOutpoint := walletmodel.Outpoint{TxID: txID(1), Index: 0}
	tx := walletmodel.Transaction{
		Inputs:  []walletmodel.TxInput{{PreviousOutpoint: spentOutpoint}},
		Outputs: []walletmodel.TxOutput{{Amount: 9_900}},
	}
	newTxID := txID(42)

	m.Lock()
	m.AddMempoolTransaction(tx, newTxID, ownAddresses, []string{addrB})
	m.Unlock()

	snap := m.Snapshot()
	assert.Empty(t, snap.UtxosByOutpoint)
	_, excluded := snap.MempoolExcluded[spentOutpoint]
	assert.True(t, excluded)

	changeOutpoint := walletmodel.Outpoint{TxID: newTxID, Index: 0}
	added, ok := snap.MempoolAdded[changeOutpoint]
	require.True(t, ok)
	assert.Equal(t, uint64(9_900), added.Entry.Amount)
	assert.Equal(t, addrB, added.AddressID)

	assert.True(t, snap.UsedOutpoints[spentOutpoint])
}

func TestIsDust(t *testing.T) {
	assert.True(t, IsDust(5, 10, 1))
	assert.False(t, IsDust(100, 10, 1))
}

func TestGarbageCollectUsedOutpointsDropsExpiredEntries(t *testing.T) {
	m := New(0)
	fresh := walletmodel.Outpoint{TxID: txID(1)}
	stale := walletmodel.Outpoint{TxID: txID(2)}

	m.mu.Lock()
	m.usedOutpoints[fresh] = time.Now()
	m.usedOutpoints[stale] = time.Now().Add(-2 * UsedOutpointTTL)
	m.garbageCollectUsedOutpointsLocked()
	m.mu.Unlock()

	snap := m.Snapshot()
	assert.True(t, snap.UsedOutpoints[fresh])
	assert.False(t, snap.UsedOutpoints[stale])
}
