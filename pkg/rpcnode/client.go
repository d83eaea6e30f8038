// Package rpcnode defines the contract this daemon consumes from a remote
// Kaspa-compatible full node: get_block_dag_info,
// get_balances_by_addresses, get_utxos_by_addresses,
// get_mempool_entries_by_addresses, get_fee_estimate, submit_transaction.
// Client is the seam AddressManager, SyncManager, TransactionGenerator, and
// WalletService program against, with httpclient.go providing one concrete, swappable
// implementation.
package rpcnode

import "context"

// AddressBalance is one entry of get_balances_by_addresses's response.
type AddressBalance struct {
	Address string
	Balance uint64
}

// UtxoEntry mirrors the node's view of a single UTXO.
type UtxoEntry struct {
	Amount          uint64
	ScriptPublicKey []byte
	BlockDAAScore   uint64
	IsCoinbase      bool
}

// AddressUtxo is one entry of get_utxos_by_addresses's response.
type AddressUtxo struct {
	Address string
	TxID    [32]byte
	Index   uint32
	Entry   UtxoEntry
}

// MempoolInput is one input of a mempool transaction, enough to compute the
// set of outpoints it consumes.
type MempoolInput struct {
	PreviousTxID  [32]byte
	PreviousIndex uint32
}

// MempoolOutput is one output of a mempool transaction paying to a
// monitored address.
type MempoolOutput struct {
	Address string
	Amount  uint64
}

// MempoolTransaction is one sending or receiving transaction entry returned
// by get_mempool_entries_by_addresses.
type MempoolTransaction struct {
	TxID    [32]byte
	Inputs  []MempoolInput
	Outputs []MempoolOutput
}

// MempoolEntriesByAddress is one per-address group of sending/receiving
// mempool transactions.
type MempoolEntriesByAddress struct {
	Address   string
	Sending   []MempoolTransaction
	Receiving []MempoolTransaction
}

// FeeBucket is one entry of get_fee_estimate's normal_buckets.
type FeeBucket struct {
	FeeRate float64
}

// FeeEstimate is the node's get_fee_estimate response.
type FeeEstimate struct {
	NormalBuckets []FeeBucket
}

// BlockDAGInfo is the node's get_block_dag_info response, trimmed to the
// field the wallet core actually consumes.
type BlockDAGInfo struct {
	VirtualDAAScore uint64
}

// Client is the node RPC contract this daemon consumes.
type Client interface {
	GetBlockDAGInfo(ctx context.Context) (BlockDAGInfo, error)
	GetBalancesByAddresses(ctx context.Context, addresses []string) ([]AddressBalance, error)
	GetUtxosByAddresses(ctx context.Context, addresses []string) ([]AddressUtxo, error)
	GetMempoolEntriesByAddresses(ctx context.Context, addresses []string, includeSending, includeReceiving bool) ([]MempoolEntriesByAddress, error)
	GetFeeEstimate(ctx context.Context) (FeeEstimate, error)
	SubmitTransaction(ctx context.Context, rawTransaction []byte, allowOrphan bool) (txID string, err error)
}
