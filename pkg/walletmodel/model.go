// Package walletmodel holds the data types shared by every wallet-daemon
// component: the key hierarchy's addressing scheme, outpoints/UTXOs, payments,
// and the signable-transaction envelope that crosses the create/sign/broadcast
// boundary.
package walletmodel

import "time"

// Keychain distinguishes externally-visible receive addresses from internal
// change addresses. The numeric encoding is part of the derivation path and
// must stay stable.
type Keychain uint32

const (
	External Keychain = 0
	Internal Keychain = 1
)

func (k Keychain) String() string {
	if k == Internal {
		return "internal"
	}
	return "external"
}

// Keychains enumerates both variants in a fixed order, used when a scan must
// cover every keychain for a given index.
var Keychains = [2]Keychain{External, Internal}

// WalletAddress identifies one leaf of the HD key tree. Derivation is a pure
// function of this triple plus the extended public keys held by KeyStore.
// WalletAddress is never mutated after construction and is safe to use as a
// map key.
type WalletAddress struct {
	Index         uint32
	CosignerIndex uint16
	Keychain      Keychain
}

// Outpoint identifies a transaction output by its containing transaction and
// output index. Equality is bytewise on TxID.
type Outpoint struct {
	TxID  [32]byte
	Index uint32
}

// UtxoEntry is the consensus-visible payload of a UTXO: value, locking
// script, and the chain metadata needed for maturity checks.
type UtxoEntry struct {
	Amount          uint64 // sompi
	ScriptPublicKey []byte
	BlockDAAScore   uint64
	IsCoinbase      bool
}

// WalletUtxo binds a UTXO to the wallet address that owns it.
type WalletUtxo struct {
	Outpoint  Outpoint
	Entry     UtxoEntry
	Address   WalletAddress
	AddressID string // canonical address string, used for grouping/lookup
}

// Payment is a single transaction output destined for an address.
type Payment struct {
	Address string
	Amount  uint64
}

// SignedState tags whether every input of a WalletSignableTransaction has
// been signed.
type SignedState int

const (
	Unsigned SignedState = iota
	Partially
	Fully
)

func (s SignedState) String() string {
	switch s {
	case Fully:
		return "fully"
	case Partially:
		return "partially"
	default:
		return "unsigned"
	}
}

// TxInput is one input of an unsigned or signed transaction: a reference to
// a prior output, the UtxoEntry it spends (needed to compute sighashes and
// mass without a round-trip to the node), and the signature script once
// signed.
type TxInput struct {
	PreviousOutpoint Outpoint
	PriorEntry       UtxoEntry
	SignatureScript  []byte
	SigOpCount       byte
}

// TxOutput is one output of a transaction.
type TxOutput struct {
	Amount          uint64
	ScriptPublicKey []byte
}

// Transaction is the minimal consensus transaction shape this daemon builds
// and signs. The exact wire encoding is the node RPC boundary's concern;
// this type only carries what the core needs to compute mass, fee, and
// signatures.
type Transaction struct {
	Version    uint16
	Inputs     []TxInput
	Outputs    []TxOutput
	LockTime   uint64
	Gas        uint64
	Subnetwork [20]byte
	Payload    []byte
}

// SignableTransaction pairs a Transaction with the derivation-path/address
// provenance needed to sign or inspect it later.
type SignableTransaction struct {
	Transaction     Transaction
	DerivationPaths []string
	InputAddresses  []WalletAddress
	OutputAddresses []string
	CalculatedFee   uint64
	CalculatedMass  uint64
}

// WalletSignableTransaction is the envelope that crosses the
// Create -> Sign -> Broadcast boundary: it carries the unsigned (or
// partially/fully signed) transaction plus enough provenance to re-sign it.
type WalletSignableTransaction struct {
	Signed      SignedState
	Transaction SignableTransaction
}

// UsedOutpointReservation records when an outpoint was consumed by a
// wallet-originated broadcast, so a second back-to-back send does not try to
// reuse it before the node has echoed it back as spent.
type UsedOutpointReservation struct {
	Outpoint    Outpoint
	BroadcastAt time.Time
}

// FeePolicy is a tagged union: at most one of the three fields may be set.
// The zero value means "absent" (use the node's normal fee bucket with the
// default max-fee cap).
type FeePolicy struct {
	ExactFeeRate *float64
	MaxFeeRate   *float64
	MaxFee       *uint64
}

// PaymentRequest is the input to TransactionGenerator.CreateUnsignedTransactions.
type PaymentRequest struct {
	ToAddress                string
	Amount                   uint64
	IsSendAll                bool
	Payload                  []byte
	FromAddresses            []string
	PreselectedOutpoints     []Outpoint
	UseExistingChangeAddress bool
	FeePolicy                *FeePolicy
}
