// Package utxomanager holds the wallet's local view over unspent outputs:
// the confirmed set, a mempool-exclusion overlay for outputs a pending
// wallet transaction has already spent, a mempool-addition overlay for
// outputs a pending wallet transaction creates back to the wallet, and a
// short-TTL reservation set guarding against a user firing back-to-back
// sends before the node has echoed the first one back.
package utxomanager

import (
	"sort"
	"sync"
	"time"

	"github.com/kaswalletd/kaswalletd/pkg/rpcnode"
	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

// UsedOutpointTTL bounds how long a used_outpoints reservation lasts. It
// must exceed the expected mempool acceptance latency, without pinning an
// outpoint forever if the node never echoes the spend back.
const UsedOutpointTTL = 60 * time.Second

// Snapshot is an immutable view of the manager's state for a single read,
// so callers iterating the sorted index never observe a torn write.
type Snapshot struct {
	UtxosByOutpoint map[walletmodel.Outpoint]walletmodel.WalletUtxo
	MempoolExcluded map[walletmodel.Outpoint]walletmodel.WalletUtxo
	MempoolAdded    map[walletmodel.Outpoint]walletmodel.WalletUtxo
	SortedByAmount  []walletmodel.WalletUtxo // ascending by amount, then outpoint
	UsedOutpoints   map[walletmodel.Outpoint]bool
}

// Manager owns the UTXO state machine described above.
type Manager struct {
	mu sync.RWMutex

	utxosByOutpoint map[walletmodel.Outpoint]walletmodel.WalletUtxo
	mempoolExcluded map[walletmodel.Outpoint]walletmodel.WalletUtxo
	mempoolAdded    map[walletmodel.Outpoint]walletmodel.WalletUtxo
	sortedByAmount  []walletmodel.WalletUtxo

	usedOutpoints map[walletmodel.Outpoint]time.Time

	coinbaseMaturity uint64
}

// New constructs an empty Manager. coinbaseMaturity is the DAA-score
// distance a coinbase output must age before being spendable; it depends on
// the network type, so it is supplied at construction.
func New(coinbaseMaturity uint64) *Manager {
	return &Manager{
		utxosByOutpoint:  make(map[walletmodel.Outpoint]walletmodel.WalletUtxo),
		mempoolExcluded:  make(map[walletmodel.Outpoint]walletmodel.WalletUtxo),
		mempoolAdded:     make(map[walletmodel.Outpoint]walletmodel.WalletUtxo),
		usedOutpoints:    make(map[walletmodel.Outpoint]time.Time),
		coinbaseMaturity: coinbaseMaturity,
	}
}

// Snapshot returns a read-only copy of the current state for selection or
// balance computation.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// SnapshotLocked is the lock-free counterpart of Snapshot, for callers that
// already hold the write lock (WalletService.Send holds it across
// selection + submit + mempool overlay) and would deadlock re-entering
// sync.RWMutex.RLock from the same goroutine.
func (m *Manager) SnapshotLocked() Snapshot {
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	usedOutpoints := make(map[walletmodel.Outpoint]bool, len(m.usedOutpoints))
	for op := range m.usedOutpoints {
		usedOutpoints[op] = true
	}

	return Snapshot{
		UtxosByOutpoint: cloneMap(m.utxosByOutpoint),
		MempoolExcluded: cloneMap(m.mempoolExcluded),
		MempoolAdded:    cloneMap(m.mempoolAdded),
		SortedByAmount:  append([]walletmodel.WalletUtxo(nil), m.sortedByAmount...),
		UsedOutpoints:   usedOutpoints,
	}
}

func cloneMap(in map[walletmodel.Outpoint]walletmodel.WalletUtxo) map[walletmodel.Outpoint]walletmodel.WalletUtxo {
	out := make(map[walletmodel.Outpoint]walletmodel.WalletUtxo, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Lock/Unlock expose the write-lock directly so WalletService can hold it
// across selection + submit + mempool overlay for a send, and SyncManager
// can hold it across a single update_utxo_set call. A sync refresh must
// never land between a send's selection and its mempool overlay.
func (m *Manager) Lock()   { m.mu.Lock() }
func (m *Manager) Unlock() { m.mu.Unlock() }

// UpdateUTXOSet rebuilds the confirmed/excluded overlays from the node's
// get_utxos_by_addresses and get_mempool_entries_by_addresses responses.
// Callers MUST already hold the write lock (see Lock/Unlock above); this
// call does not take the lock itself.
func (m *Manager) UpdateUTXOSet(utxos []rpcnode.AddressUtxo, mempoolEntries []rpcnode.MempoolEntriesByAddress, ownAddresses map[string]walletmodel.WalletAddress) {
	excluded := make(map[walletmodel.Outpoint]bool)
	for _, entry := range mempoolEntries {
		for _, tx := range entry.Sending {
			for _, in := range tx.Inputs {
				excluded[walletmodel.Outpoint{TxID: in.PreviousTxID, Index: in.PreviousIndex}] = true
			}
		}
	}

	newConfirmed := make(map[walletmodel.Outpoint]walletmodel.WalletUtxo)
	newExcluded := make(map[walletmodel.Outpoint]walletmodel.WalletUtxo)

	for _, u := range utxos {
		wa, ok := ownAddresses[u.Address]
		if !ok {
			continue
		}
		op := walletmodel.Outpoint{TxID: u.TxID, Index: u.Index}
		wu := walletmodel.WalletUtxo{
			Outpoint: op,
			Entry: walletmodel.UtxoEntry{
				Amount:          u.Entry.Amount,
				ScriptPublicKey: u.Entry.ScriptPublicKey,
				BlockDAAScore:   u.Entry.BlockDAAScore,
				IsCoinbase:      u.Entry.IsCoinbase,
			},
			Address:   wa,
			AddressID: u.Address,
		}

		if excluded[op] {
			newExcluded[op] = wu
		} else {
			newConfirmed[op] = wu
		}
	}

	m.utxosByOutpoint = newConfirmed
	m.mempoolExcluded = newExcluded
	m.rebuildSortedIndexLocked()
	m.garbageCollectUsedOutpointsLocked()
}

func (m *Manager) rebuildSortedIndexLocked() {
	sorted := make([]walletmodel.WalletUtxo, 0, len(m.utxosByOutpoint))
	for _, wu := range m.utxosByOutpoint {
		sorted = append(sorted, wu)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Entry.Amount != sorted[j].Entry.Amount {
			return sorted[i].Entry.Amount < sorted[j].Entry.Amount
		}
		return outpointLess(sorted[i].Outpoint, sorted[j].Outpoint)
	})
	m.sortedByAmount = sorted
}

func outpointLess(a, b walletmodel.Outpoint) bool {
	if a.TxID != b.TxID {
		return string(a.TxID[:]) < string(b.TxID[:])
	}
	return a.Index < b.Index
}

// garbageCollectUsedOutpointsLocked drops used_outpoints entries older than
// UsedOutpointTTL. Expired keys are collected first and deleted in a second
// pass, never while ranging the map.
func (m *Manager) garbageCollectUsedOutpointsLocked() {
	now := time.Now()
	var expired []walletmodel.Outpoint
	for op, broadcastAt := range m.usedOutpoints {
		if now.Sub(broadcastAt) > UsedOutpointTTL {
			expired = append(expired, op)
		}
	}
	for _, op := range expired {
		delete(m.usedOutpoints, op)
	}
}

// AddMempoolTransaction is called immediately after a successful
// submit_transaction. Callers must already hold the write lock. For each
// input, the referenced confirmed UTXO moves to mempoolExcluded and is
// recorded in usedOutpoints. For each output paying one of our addresses, a
// synthetic WalletUtxo with BlockDAAScore 0 is added to mempoolAdded.
func (m *Manager) AddMempoolTransaction(tx walletmodel.Transaction, txID [32]byte, ownAddresses map[string]walletmodel.WalletAddress, outputAddressStrings []string) {
	now := time.Now()
	for _, in := range tx.Inputs {
		op := in.PreviousOutpoint
		if wu, ok := m.utxosByOutpoint[op]; ok {
			delete(m.utxosByOutpoint, op)
			m.mempoolExcluded[op] = wu
		}
		m.usedOutpoints[op] = now
	}
	m.rebuildSortedIndexLocked()

	for i, out := range tx.Outputs {
		if i >= len(outputAddressStrings) {
			break
		}
		addrString := outputAddressStrings[i]
		wa, ok := ownAddresses[addrString]
		if !ok {
			continue
		}
		op := walletmodel.Outpoint{TxID: txID, Index: uint32(i)}
		m.mempoolAdded[op] = walletmodel.WalletUtxo{
			Outpoint: op,
			Entry: walletmodel.UtxoEntry{
				Amount:          out.Amount,
				ScriptPublicKey: out.ScriptPublicKey,
				BlockDAAScore:   0,
				IsCoinbase:      false,
			},
			Address:   wa,
			AddressID: addrString,
		}
	}
}

// IsPending reports whether a UTXO is coinbase and has not yet matured.
func (m *Manager) IsPending(entry walletmodel.UtxoEntry, virtualDAAScore uint64) bool {
	return entry.IsCoinbase && entry.BlockDAAScore+m.coinbaseMaturity > virtualDAAScore
}

// IsDust reports whether the estimated fee to spend a UTXO alone exceeds
// its amount, at feeRate.
func IsDust(amount uint64, soloSpendMass uint64, feeRate float64) bool {
	fee := uint64(float64(soloSpendMass)*feeRate + 0.999999) // ceil
	return fee > amount
}

// Balance sums available and pending amounts, optionally broken down per
// address, backing get_balance. A confirmed UTXO counts as pending instead
// of available when it is an immature coinbase output (IsPending); every
// mempool-added output is pending regardless of maturity.
func (m *Manager) Balance(virtualDAAScore uint64) (available uint64, pending uint64, perAddress map[string][2]uint64) {
	snap := m.Snapshot()
	perAddress = make(map[string][2]uint64)

	for _, wu := range snap.UtxosByOutpoint {
		entry := perAddress[wu.AddressID]
		if m.IsPending(wu.Entry, virtualDAAScore) {
			pending += wu.Entry.Amount
			entry[1] += wu.Entry.Amount
		} else {
			available += wu.Entry.Amount
			entry[0] += wu.Entry.Amount
		}
		perAddress[wu.AddressID] = entry
	}
	for _, wu := range snap.MempoolAdded {
		pending += wu.Entry.Amount
		entry := perAddress[wu.AddressID]
		entry[1] += wu.Entry.Amount
		perAddress[wu.AddressID] = entry
	}
	return available, pending, perAddress
}
