// Package walletservice dispatches the wallet RPC surface (get_version,
// get_addresses, new_address, get_balance, get_utxos,
// create_unsigned_transactions, sign, broadcast, send) against the
// lower-level managers, owning the is_synced gate and the send/broadcast
// submit-then-overlay critical section.
package walletservice

import (
	"context"
	"encoding/hex"
	"encoding/json"

	"github.com/kaswalletd/kaswalletd/pkg/addressmanager"
	"github.com/kaswalletd/kaswalletd/pkg/keystore"
	"github.com/kaswalletd/kaswalletd/pkg/log"
	"github.com/kaswalletd/kaswalletd/pkg/rpcnode"
	"github.com/kaswalletd/kaswalletd/pkg/signer"
	"github.com/kaswalletd/kaswalletd/pkg/txgen"
	"github.com/kaswalletd/kaswalletd/pkg/utxomanager"
	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

// Version is reported by get_version.
const Version = "0.1.0"

// Service is the single entry point every RPC handler calls into.
type Service struct {
	keys    *keystore.KeyStore
	addrMgr *addressmanager.Manager
	utxoMgr *utxomanager.Manager
	gen     *txgen.Generator
	signer  *signer.Signer
	node    rpcnode.Client
	logger  *log.Logger
}

// New constructs a Service from its already-constructed collaborators.
func New(keys *keystore.KeyStore, addrMgr *addressmanager.Manager, utxoMgr *utxomanager.Manager, gen *txgen.Generator, sgnr *signer.Signer, node rpcnode.Client, logger *log.Logger) *Service {
	return &Service{keys: keys, addrMgr: addrMgr, utxoMgr: utxoMgr, gen: gen, signer: sgnr, node: node, logger: logger}
}

func (s *Service) checkIsSynced() error {
	if !s.addrMgr.IsSynced() {
		return walletmodel.NewUserInputError("wallet has not completed its initial sync yet")
	}
	return nil
}

// GetVersion returns the daemon's version string.
func (s *Service) GetVersion() string { return Version }

// GetAddresses returns every external address ever generated by new_address,
// in index order.
func (s *Service) GetAddresses() ([]string, error) {
	if err := s.checkIsSynced(); err != nil {
		return nil, err
	}

	last := s.keys.LastUsedExternalIndex()
	out := make([]string, 0, last)
	for i := uint32(1); i <= last; i++ {
		wa := walletmodel.WalletAddress{Index: i, CosignerIndex: s.keys.CosignerIndex(), Keychain: walletmodel.External}
		addr, err := s.addrMgr.CalculateAddress(wa)
		if err != nil {
			return nil, err
		}
		out = append(out, addr.String())
	}
	return out, nil
}

// NewAddress bumps the external watermark and returns the freshly derived
// receive address.
func (s *Service) NewAddress() (string, error) {
	if err := s.checkIsSynced(); err != nil {
		return "", err
	}
	addrString, _, err := s.addrMgr.NewAddress()
	return addrString, err
}

// AddressBalance is one address's available/pending breakdown.
type AddressBalance struct {
	Available uint64 `json:"available"`
	Pending   uint64 `json:"pending"`
}

// BalanceResult is get_balance's response shape.
type BalanceResult struct {
	Available  uint64                    `json:"available"`
	Pending    uint64                    `json:"pending"`
	PerAddress map[string]AddressBalance `json:"per_address,omitempty"`
}

// GetBalance sums available and pending amounts across every monitored
// UTXO, optionally broken down per address.
func (s *Service) GetBalance(ctx context.Context, includePerAddress bool) (BalanceResult, error) {
	if err := s.checkIsSynced(); err != nil {
		return BalanceResult{}, err
	}

	dagInfo, err := s.node.GetBlockDAGInfo(ctx)
	if err != nil {
		return BalanceResult{}, walletmodel.WrapInternalServerError(err, "get_block_dag_info")
	}

	available, pending, perAddress := s.utxoMgr.Balance(dagInfo.VirtualDAAScore)
	result := BalanceResult{Available: available, Pending: pending}
	if includePerAddress {
		result.PerAddress = make(map[string]AddressBalance, len(perAddress))
		for addr, amounts := range perAddress {
			result.PerAddress[addr] = AddressBalance{Available: amounts[0], Pending: amounts[1]}
		}
	}
	return result, nil
}

// UtxoView is one UTXO entry returned by get_utxos.
type UtxoView struct {
	Address    string               `json:"address"`
	Outpoint   walletmodel.Outpoint `json:"outpoint"`
	Amount     uint64               `json:"amount"`
	IsPending  bool                 `json:"is_pending"`
	IsDust     bool                 `json:"is_dust"`
	IsCoinbase bool                 `json:"is_coinbase"`
}

// GetUtxos lists UTXOs, filtered to addresses (every monitored address if
// empty), excluding pending or dust entries unless asked to include them.
// Unlike get_addresses, new_address, get_balance,
// create_unsigned_transactions and send, get_utxos does not require
// is_synced: an operator inspecting a wallet mid-recovery still needs to see
// what has already landed.
func (s *Service) GetUtxos(ctx context.Context, addresses []string, includePending, includeDust bool) ([]UtxoView, error) {
	addrSet := s.addrMgr.AddressSet()

	var allow map[string]bool
	if len(addresses) > 0 {
		allow = make(map[string]bool, len(addresses))
		for _, a := range addresses {
			if _, ok := addrSet[a]; !ok {
				return nil, walletmodel.NewUserInputError("address %q is not a monitored wallet address", a)
			}
			allow[a] = true
		}
	}

	dagInfo, err := s.node.GetBlockDAGInfo(ctx)
	if err != nil {
		return nil, walletmodel.WrapInternalServerError(err, "get_block_dag_info")
	}
	feeRate, err := s.gen.NormalFeeRate(ctx)
	if err != nil {
		return nil, err
	}

	snap := s.utxoMgr.Snapshot()
	var out []UtxoView

	consider := func(wu walletmodel.WalletUtxo, forcePending bool) {
		if allow != nil && !allow[wu.AddressID] {
			return
		}
		pending := forcePending || s.utxoMgr.IsPending(wu.Entry, dagInfo.VirtualDAAScore)
		if pending && !includePending {
			return
		}
		mass := s.gen.EstimateSoloSpendMass(wu)
		dust := utxomanager.IsDust(wu.Entry.Amount, mass, feeRate)
		if dust && !includeDust {
			return
		}
		out = append(out, UtxoView{Address: wu.AddressID, Outpoint: wu.Outpoint, Amount: wu.Entry.Amount, IsPending: pending, IsDust: dust, IsCoinbase: wu.Entry.IsCoinbase})
	}

	for _, wu := range snap.UtxosByOutpoint {
		consider(wu, false)
	}
	for _, wu := range snap.MempoolAdded {
		consider(wu, true)
	}
	return out, nil
}

// CreateUnsignedTransactions builds one or more unsigned transactions for
// req. manualSelection asks for raw, caller-specified UTXO selection
// bypassing the coin-selection algorithm entirely; that is a broader,
// still-unimplemented feature distinct from req.PreselectedOutpoints, which
// the algorithm does honor.
func (s *Service) CreateUnsignedTransactions(ctx context.Context, req walletmodel.PaymentRequest, manualSelection bool) ([]walletmodel.WalletSignableTransaction, error) {
	if err := s.checkIsSynced(); err != nil {
		return nil, err
	}
	if manualSelection {
		return nil, walletmodel.NewUserInputError("manual UTXO selection not yet implemented")
	}
	return s.gen.CreateUnsignedTransactions(ctx, req)
}

// Sign signs every input of every transaction it can match a derivation path
// for, returning each as Partially or Fully signed.
func (s *Service) Sign(unsigned []walletmodel.WalletSignableTransaction, password string) ([]walletmodel.WalletSignableTransaction, error) {
	return s.signer.SignTransactions(unsigned, password)
}

// Broadcast submits fully-signed transactions to the node and folds them
// into the mempool overlay. It takes the UtxoManager write lock for the
// whole submit-then-overlay critical section, the same lock Send and the
// sync loop use, so a broadcast can never race a sync refresh or another
// submit.
func (s *Service) Broadcast(ctx context.Context, signed []walletmodel.WalletSignableTransaction) ([]string, error) {
	s.utxoMgr.Lock()
	defer s.utxoMgr.Unlock()
	return s.submitTransactionsLocked(ctx, signed)
}

// SendResult is send's response shape: the broadcast transaction ids plus
// the signed transactions themselves, the latter only consumed by kasctl's
// --show-serialized flag.
type SendResult struct {
	TransactionIDs     []string
	SignedTransactions []walletmodel.WalletSignableTransaction
}

// Send is the one-call create+sign+submit flow. It takes the UtxoManager
// write lock before selection even begins, so no concurrent send or sync
// refresh can observe or mutate the UTXO set mid-flight.
func (s *Service) Send(ctx context.Context, req walletmodel.PaymentRequest, password string, manualSelection bool) (SendResult, error) {
	if err := s.checkIsSynced(); err != nil {
		return SendResult{}, err
	}
	if manualSelection {
		return SendResult{}, walletmodel.NewUserInputError("manual UTXO selection not yet implemented")
	}

	s.utxoMgr.Lock()
	defer s.utxoMgr.Unlock()

	unsigned, err := s.gen.CreateUnsignedTransactionsLocked(ctx, req)
	if err != nil {
		return SendResult{}, err
	}
	signed, err := s.signer.SignTransactions(unsigned, password)
	if err != nil {
		return SendResult{}, err
	}
	txids, err := s.submitTransactionsLocked(ctx, signed)
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{TransactionIDs: txids, SignedTransactions: signed}, nil
}

// submitTransactionsLocked rejects any not-fully-signed transaction before
// submitting any of them, then submits and overlays each in turn. Callers
// must already hold the UtxoManager write lock.
func (s *Service) submitTransactionsLocked(ctx context.Context, signed []walletmodel.WalletSignableTransaction) ([]string, error) {
	for i, tx := range signed {
		if tx.Signed != walletmodel.Fully {
			return nil, walletmodel.NewUserInputError("transaction %d is not fully signed", i)
		}
	}

	addrSet := s.addrMgr.AddressSet()
	txids := make([]string, 0, len(signed))
	for _, tx := range signed {
		raw, err := json.Marshal(tx.Transaction.Transaction)
		if err != nil {
			return nil, walletmodel.WrapInternalServerError(err, "encoding transaction for submission")
		}

		txIDString, err := s.node.SubmitTransaction(ctx, raw, false)
		if err != nil {
			return nil, walletmodel.WrapInternalServerError(err, "submit_transaction")
		}
		txID, err := decodeTxID(txIDString)
		if err != nil {
			return nil, walletmodel.WrapInternalServerError(err, "submit_transaction returned a malformed tx id %q", txIDString)
		}

		s.utxoMgr.AddMempoolTransaction(tx.Transaction.Transaction, txID, addrSet, tx.Transaction.OutputAddresses)
		txids = append(txids, txIDString)
	}
	return txids, nil
}

func decodeTxID(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return out, walletmodel.NewInternalServerError("expected a 32-byte hex tx id, got %q", s)
	}
	copy(out[:], raw)
	return out, nil
}
