// Package addressmanager derives Kaspa addresses from the HD key tree held
// by KeyStore, and drives the gap-limit discovery scan that finds addresses
// used on-chain but never generated by a local new_address call.
//
// The monitored set is a grow-only sync.Map; each insertion bumps a version
// counter. Readers take an immutable copy that is rebuilt under a write lock
// only when the version has moved, so repeated reads between insertions are
// free.
package addressmanager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"github.com/kaswalletd/kaswalletd/pkg/kaspaaddr"
	"github.com/kaswalletd/kaswalletd/pkg/keystore"
	"github.com/kaswalletd/kaswalletd/pkg/log"
	"github.com/kaswalletd/kaswalletd/pkg/rpcnode"
	"github.com/kaswalletd/kaswalletd/pkg/txscript"
	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

// Gap-limit scan parameters. RecentWindow is how many indices past the
// current watermark one recent pass covers; FarWindow is the frontier
// increment per far pass.
const (
	RecentWindow = 1000
	FarWindow    = 100
)

// AddressSet maps an address string to the WalletAddress it was derived
// from.
type AddressSet map[string]walletmodel.WalletAddress

// Manager derives addresses and tracks which ones the wallet considers used.
type Manager struct {
	keys   *keystore.KeyStore
	node   rpcnode.Client
	prefix kaspaaddr.Prefix
	logger *log.Logger

	sortedPublicKeys []*hdkeychain.ExtendedKey // sorted once at construction
	isMultisig       bool

	mu            sync.RWMutex
	version       uint64
	cache         AddressSet // invalidated whenever version advances past cachedVersion
	cachedVersion uint64

	addresses sync.Map // address string -> walletmodel.WalletAddress, grows monotonically

	nextSyncStartIndex uint32 // atomic

	firstSyncDone int32 // atomic bool

	maxUsedAddressesForLog      uint32
	maxProcessedAddressesForLog uint32
	logFinalProgressShown       bool
}

// New constructs a Manager. The extended public keys are sorted exactly
// once here; per-address derivation reuses the sorted set.
func New(keys *keystore.KeyStore, node rpcnode.Client, prefix kaspaaddr.Prefix, logger *log.Logger) *Manager {
	return &Manager{
		keys:             keys,
		node:             node,
		prefix:           prefix,
		logger:           logger,
		sortedPublicKeys: keys.SortedPublicKeys(),
		isMultisig:       keys.IsMultisig(),
	}
}

// IsSynced reports whether the frontier scan has passed every known used
// index and the initial sync has completed at least once.
func (m *Manager) IsSynced() bool {
	if atomic.LoadInt32(&m.firstSyncDone) == 0 {
		return false
	}
	return atomic.LoadUint32(&m.nextSyncStartIndex) > m.keys.LastUsedIndex()
}

// MarkFirstSyncDone is called by SyncManager after the first
// collect_recent_addresses + refresh_utxos pass completes.
func (m *Manager) MarkFirstSyncDone() { atomic.StoreInt32(&m.firstSyncDone, 1) }

// AddressSet returns the cached monitored-address snapshot, rebuilding it if
// a write has happened since the last rebuild.
func (m *Manager) AddressSet() AddressSet {
	currentVersion := atomic.LoadUint64(&m.version)

	m.mu.RLock()
	if m.cachedVersion == currentVersion && m.cache != nil {
		defer m.mu.RUnlock()
		return m.cache
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cachedVersion == atomic.LoadUint64(&m.version) && m.cache != nil {
		return m.cache
	}

	snapshot := make(AddressSet)
	m.addresses.Range(func(k, v interface{}) bool {
		snapshot[k.(string)] = v.(walletmodel.WalletAddress)
		return true
	})
	m.cache = snapshot
	m.cachedVersion = atomic.LoadUint64(&m.version)
	return snapshot
}

// AddressStrings returns every address string currently monitored.
// get_addresses returns only addresses generated by explicit new_address;
// callers needing that narrower view filter on Keychain == External and
// index in [1, lastUsed].
func (m *Manager) AddressStrings() []string {
	set := m.AddressSet()
	out := make([]string, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	return out
}

func (m *Manager) recordAddress(addrString string, wa walletmodel.WalletAddress) {
	if _, loaded := m.addresses.LoadOrStore(addrString, wa); !loaded {
		atomic.AddUint64(&m.version, 1)
	}
}

// NewAddress bumps the external watermark, persists the key file, then
// derives and returns the new address. Ordering is increment -> save ->
// derive -> return, with increment+save as one critical section inside
// KeyStore.BumpLastUsedExternalIndex.
func (m *Manager) NewAddress() (string, walletmodel.WalletAddress, error) {
	index, err := m.keys.BumpLastUsedExternalIndex()
	if err != nil {
		return "", walletmodel.WalletAddress{}, err
	}

	wa := walletmodel.WalletAddress{
		Index:         index,
		CosignerIndex: m.keys.CosignerIndex(),
		Keychain:      walletmodel.External,
	}
	addr, err := m.CalculateAddress(wa)
	if err != nil {
		return "", walletmodel.WalletAddress{}, err
	}

	addrString := addr.String()
	m.recordAddress(addrString, wa)
	return addrString, wa, nil
}

// ChangeAddress resolves the change destination for a send. If fromAddresses
// is non-empty, the first entry is reused. Otherwise useExistingChangeAddress
// selects internal index 0; if false, a fresh internal index is bumped and
// persisted. Consolidation sends reuse their source address so change lands
// back where it came from.
func (m *Manager) ChangeAddress(useExistingChangeAddress bool, fromAddresses []walletmodel.WalletAddress) (kaspaaddr.Address, walletmodel.WalletAddress, error) {
	var wa walletmodel.WalletAddress
	if len(fromAddresses) > 0 {
		wa = fromAddresses[0]
	} else {
		var internalIndex uint32
		if useExistingChangeAddress {
			internalIndex = 0
		} else {
			idx, err := m.keys.BumpLastUsedInternalIndex()
			if err != nil {
				return kaspaaddr.Address{}, walletmodel.WalletAddress{}, err
			}
			internalIndex = idx
		}
		wa = walletmodel.WalletAddress{
			Index:         internalIndex,
			CosignerIndex: m.keys.CosignerIndex(),
			Keychain:      walletmodel.Internal,
		}
	}

	addr, err := m.CalculateAddress(wa)
	if err != nil {
		return kaspaaddr.Address{}, walletmodel.WalletAddress{}, err
	}
	return addr, wa, nil
}

// CalculateAddressPath returns the derivation path string for a
// WalletAddress: single-sig "m/<keychain>/<index>", multisig
// "m/<cosigner_index>/<keychain>/<index>".
func (m *Manager) CalculateAddressPath(wa walletmodel.WalletAddress) string {
	if m.isMultisig {
		return fmt.Sprintf("m/%d/%d/%d", wa.CosignerIndex, uint32(wa.Keychain), wa.Index)
	}
	return fmt.Sprintf("m/%d/%d", uint32(wa.Keychain), wa.Index)
}

// CalculateAddress derives the address for a WalletAddress: P2PK for
// single-sig, P2SH-wrapped m-of-n multisig otherwise.
func (m *Manager) CalculateAddress(wa walletmodel.WalletAddress) (kaspaaddr.Address, error) {
	if m.isMultisig {
		return m.multisigAddress(wa)
	}
	return m.p2pkAddress(wa)
}

func (m *Manager) p2pkAddress(wa walletmodel.WalletAddress) (kaspaaddr.Address, error) {
	if len(m.sortedPublicKeys) == 0 {
		return kaspaaddr.Address{}, walletmodel.NewInternalServerError("no extended public keys loaded")
	}
	derived, err := derivePath(m.sortedPublicKeys[0], wa.Keychain, wa.Index)
	if err != nil {
		return kaspaaddr.Address{}, walletmodel.WrapInternalServerError(err, "deriving address")
	}
	xOnly, err := xOnlyPubKey(derived)
	if err != nil {
		return kaspaaddr.Address{}, walletmodel.WrapInternalServerError(err, "extracting x-only public key")
	}
	return kaspaaddr.New(m.prefix, kaspaaddr.VersionPubKey, xOnly[:]), nil
}

func (m *Manager) multisigAddress(wa walletmodel.WalletAddress) (kaspaaddr.Address, error) {
	xOnlyKeys := make([][32]byte, 0, len(m.sortedPublicKeys))
	for _, xpub := range m.sortedPublicKeys {
		derived, err := derivePathMultisig(xpub, wa.CosignerIndex, wa.Keychain, wa.Index)
		if err != nil {
			return kaspaaddr.Address{}, walletmodel.WrapInternalServerError(err, "deriving cosigner key")
		}
		xOnly, err := xOnlyPubKey(derived)
		if err != nil {
			return kaspaaddr.Address{}, walletmodel.WrapInternalServerError(err, "extracting x-only public key")
		}
		xOnlyKeys = append(xOnlyKeys, xOnly)
	}

	redeemScript, err := txscript.MultisigRedeemScript(xOnlyKeys, m.keys.MinimumSignatures())
	if err != nil {
		return kaspaaddr.Address{}, walletmodel.WrapInternalServerError(err, "building redeem script")
	}
	return txscript.ExtractScriptPubKeyAddress(redeemScript, m.prefix), nil
}

func derivePath(xpub *hdkeychain.ExtendedKey, keychain walletmodel.Keychain, index uint32) (*hdkeychain.ExtendedKey, error) {
	child, err := xpub.Derive(uint32(keychain))
	if err != nil {
		return nil, err
	}
	return child.Derive(index)
}

func derivePathMultisig(xpub *hdkeychain.ExtendedKey, cosignerIndex uint16, keychain walletmodel.Keychain, index uint32) (*hdkeychain.ExtendedKey, error) {
	child, err := xpub.Derive(uint32(cosignerIndex))
	if err != nil {
		return nil, err
	}
	child, err = child.Derive(uint32(keychain))
	if err != nil {
		return nil, err
	}
	return child.Derive(index)
}

func xOnlyPubKey(key *hdkeychain.ExtendedKey) ([32]byte, error) {
	pub, err := key.ECPubKey()
	if err != nil {
		return [32]byte{}, err
	}
	compressed := pub.SerializeCompressed()
	var out [32]byte
	copy(out[:], compressed[1:])
	return out, nil
}

// addressesToQuery enumerates every WalletAddress in [start, end) across
// both keychains and all cosigner indices.
func (m *Manager) addressesToQuery(start, end uint32) (AddressSet, error) {
	out := make(AddressSet)
	numCosigners := uint16(1)
	if m.isMultisig {
		numCosigners = uint16(len(m.sortedPublicKeys))
	}

	for index := start; index < end; index++ {
		for cosigner := uint16(0); cosigner < numCosigners; cosigner++ {
			for _, keychain := range walletmodel.Keychains {
				wa := walletmodel.WalletAddress{Index: index, CosignerIndex: cosigner, Keychain: keychain}
				addr, err := m.CalculateAddress(wa)
				if err != nil {
					return nil, err
				}
				out[addr.String()] = wa
			}
		}
	}
	return out, nil
}

// collectAddresses queries the node for balances of every address in
// [start, end), records addresses with positive balance, and advances the
// appropriate watermark.
func (m *Manager) collectAddresses(ctx context.Context, start, end uint32) error {
	candidates, err := m.addressesToQuery(start, end)
	if err != nil {
		return err
	}

	addrStrings := make([]string, 0, len(candidates))
	for addr := range candidates {
		addrStrings = append(addrStrings, addr)
	}

	balances, err := m.node.GetBalancesByAddresses(ctx, addrStrings)
	if err != nil {
		return walletmodel.WrapInternalServerError(err, "get_balances_by_addresses")
	}

	for _, entry := range balances {
		if entry.Balance == 0 {
			continue
		}
		wa, ok := candidates[entry.Address]
		if !ok {
			continue
		}

		m.recordAddress(entry.Address, wa)

		if wa.Keychain == walletmodel.External {
			if err := m.keys.MaybeAdvanceExternal(wa.Index); err != nil {
				return err
			}
		} else {
			if err := m.keys.MaybeAdvanceInternal(wa.Index); err != nil {
				return err
			}
		}
	}
	return nil
}

// CollectRecentAddresses scans from index 0 up through last_used_index +
// RecentWindow, re-reading the watermark after every window so a hit far
// out extends the scan.
func (m *Manager) CollectRecentAddresses(ctx context.Context) error {
	m.logger.Debug("collecting recent addresses")

	var index uint32
	var maxUsedIndex uint32

	for index < maxUsedIndex+RecentWindow {
		if err := m.collectAddresses(ctx, index, index+RecentWindow); err != nil {
			return err
		}
		index += RecentWindow
		maxUsedIndex = m.keys.LastUsedIndex()
		m.logProgress(index, maxUsedIndex)
	}

	for {
		current := atomic.LoadUint32(&m.nextSyncStartIndex)
		if index <= current {
			break
		}
		if atomic.CompareAndSwapUint32(&m.nextSyncStartIndex, current, index) {
			break
		}
	}
	return nil
}

// CollectFarAddresses advances the perpetual frontier cursor by FarWindow
// regardless of hits, catching addresses used on-chain without ever being
// generated locally.
func (m *Manager) CollectFarAddresses(ctx context.Context) error {
	m.logger.Debug("collecting far addresses")

	start := atomic.LoadUint32(&m.nextSyncStartIndex)
	end := start + FarWindow

	if err := m.collectAddresses(ctx, start, end); err != nil {
		return err
	}

	atomic.StoreUint32(&m.nextSyncStartIndex, end)
	return nil
}

func (m *Manager) logProgress(processed, maxUsed uint32) {
	if maxUsed > m.maxUsedAddressesForLog {
		m.maxUsedAddressesForLog = maxUsed
		if m.logFinalProgressShown {
			m.logger.Info("an additional set of previously used addresses found, processing")
			m.maxProcessedAddressesForLog = 0
			m.logFinalProgressShown = false
		}
	}

	if processed > m.maxProcessedAddressesForLog {
		m.maxProcessedAddressesForLog = processed
	}

	if m.maxProcessedAddressesForLog >= m.maxUsedAddressesForLog {
		if !m.logFinalProgressShown {
			m.logger.Info("finished scanning recent addresses")
			m.logFinalProgressShown = true
		}
		return
	}

	percent := float64(m.maxProcessedAddressesForLog) / float64(m.maxUsedAddressesForLog) * 100
	m.logger.Infof("%d addresses of %d processed (%.2f%%)", m.maxProcessedAddressesForLog, m.maxUsedAddressesForLog, percent)
}
