// Package syncmanager drives the wallet's background discovery/refresh
// loop: an initial full scan, then a steady-state ticker alternating a
// far-frontier probe, a recent-window rescan, and a UTXO-set refresh. The
// daemon talks to a single configured node over pkg/rpcnode; there is no
// peer set to discover or track.
package syncmanager

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kaswalletd/kaswalletd/pkg/addressmanager"
	"github.com/kaswalletd/kaswalletd/pkg/log"
	"github.com/kaswalletd/kaswalletd/pkg/metrics"
	"github.com/kaswalletd/kaswalletd/pkg/rpcnode"
	"github.com/kaswalletd/kaswalletd/pkg/utxomanager"
)

// SyncInterval is the steady-state ticker period.
const SyncInterval = 10 * time.Second

// Manager owns the sync loop. It holds no state of its own beyond what it
// needs to run the loop once started; is_synced is computed from
// AddressManager and KeyStore watermarks (see addressmanager.Manager.IsSynced).
type Manager struct {
	addrMgr *addressmanager.Manager
	utxoMgr *utxomanager.Manager
	node    rpcnode.Client
	metrics *metrics.Metrics
	logger  *log.Logger
}

// New constructs a Manager.
func New(addrMgr *addressmanager.Manager, utxoMgr *utxomanager.Manager, node rpcnode.Client, m *metrics.Metrics, logger *log.Logger) *Manager {
	return &Manager{addrMgr: addrMgr, utxoMgr: utxoMgr, node: node, metrics: m, logger: logger}
}

// IsSynced reports whether the initial sync has completed and the
// discovery frontier has passed every known used index.
func (m *Manager) IsSynced() bool { return m.addrMgr.IsSynced() }

// Start spawns the sync loop in its own goroutine and returns immediately.
// A sync-loop failure is unrecoverable -- the wallet's view of its own UTXO
// set would otherwise silently drift from the chain -- so the goroutine
// panics rather than logging and continuing; the operator restarts the
// daemon.
func (m *Manager) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *Manager) run(ctx context.Context) {
	if err := m.initializing(ctx); err != nil {
		panic("syncmanager: initial sync failed: " + err.Error())
	}
	m.steady(ctx)
}

// initializing runs the one-time startup scan: a full recent-window
// discovery pass followed by a UTXO refresh, then marks first_sync_done so
// AddressManager.IsSynced can start returning true.
func (m *Manager) initializing(ctx context.Context) error {
	m.logger.Info("sync: initializing")

	if err := m.addrMgr.CollectRecentAddresses(ctx); err != nil {
		return err
	}
	if err := m.refreshUTXOs(ctx); err != nil {
		return err
	}

	m.addrMgr.MarkFirstSyncDone()
	m.logger.Info("sync: initial sync complete")
	return nil
}

// steady runs forever on a SyncInterval ticker: push the far frontier out,
// rescan the recent window behind it, then refresh the UTXO set.
func (m *Manager) steady(ctx context.Context) {
	ticker := time.NewTicker(SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.metrics != nil {
				m.metrics.SyncTicksTotal.Inc()
			}
			tickID := uuid.New().String()
			if err := m.tick(ctx, tickID); err != nil {
				if m.metrics != nil {
					m.metrics.SyncErrorsTotal.Inc()
				}
				panic("syncmanager: sync loop failed: " + err.Error())
			}
		}
	}
}

// tick runs one steady-state pass. tickID is logged when the pass starts and
// when it completes, so a single round of far/recent/refresh calls can be
// correlated in the logs.
func (m *Manager) tick(ctx context.Context, tickID string) error {
	m.logger.Debugf("sync: tick %s starting", tickID)
	if err := m.addrMgr.CollectFarAddresses(ctx); err != nil {
		return err
	}
	if err := m.addrMgr.CollectRecentAddresses(ctx); err != nil {
		return err
	}
	if err := m.refreshUTXOs(ctx); err != nil {
		return err
	}
	m.logger.Debugf("sync: tick %s complete", tickID)
	return nil
}

// refreshUTXOs takes the UtxoManager write lock for its whole duration, so
// it can never interleave with a send's selection+submit+overlay critical
// section. Within that lock it calls
// get_mempool_entries_by_addresses strictly before get_utxos_by_addresses:
// querying UTXOs first could observe an output as confirmed-and-unspent an
// instant before the mempool exclusion that should have hidden it becomes
// visible, which would let the wallet offer an already-spent UTXO for
// selection.
func (m *Manager) refreshUTXOs(ctx context.Context) error {
	addrSet := m.addrMgr.AddressSet()
	addrStrings := m.addrMgr.AddressStrings()

	m.utxoMgr.Lock()
	defer m.utxoMgr.Unlock()

	mempoolEntries, err := m.node.GetMempoolEntriesByAddresses(ctx, addrStrings, true, true)
	if err != nil {
		return err
	}
	utxos, err := m.node.GetUtxosByAddresses(ctx, addrStrings)
	if err != nil {
		return err
	}

	m.utxoMgr.UpdateUTXOSet(utxos, mempoolEntries, addrSet)
	return nil
}
