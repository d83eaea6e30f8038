// Package txgen builds unsigned transactions from a PaymentRequest: it
// resolves the fee policy, asks AddressManager for a change address, runs
// UtxoManager's coin-selection algorithm against a mass estimator of its
// own, and assembles the resulting inputs/outputs into a
// WalletSignableTransaction.
package txgen

import (
	"context"

	"github.com/kaswalletd/kaswalletd/pkg/addressmanager"
	"github.com/kaswalletd/kaswalletd/pkg/kaspaaddr"
	"github.com/kaswalletd/kaswalletd/pkg/keystore"
	"github.com/kaswalletd/kaswalletd/pkg/rpcnode"
	"github.com/kaswalletd/kaswalletd/pkg/txscript"
	"github.com/kaswalletd/kaswalletd/pkg/utxomanager"
	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

// DefaultMaxFeeCap bounds the fee when a PaymentRequest supplies neither an
// exact fee rate, a max fee rate, nor a max fee: one KAS.
const DefaultMaxFeeCap = utxomanager.SompiPerKaspa

// Generator builds unsigned transactions.
type Generator struct {
	node    rpcnode.Client
	addrMgr *addressmanager.Manager
	utxoMgr *utxomanager.Manager
	keys    *keystore.KeyStore
	prefix  kaspaaddr.Prefix
}

// New constructs a Generator.
func New(node rpcnode.Client, addrMgr *addressmanager.Manager, utxoMgr *utxomanager.Manager, keys *keystore.KeyStore, prefix kaspaaddr.Prefix) *Generator {
	return &Generator{node: node, addrMgr: addrMgr, utxoMgr: utxoMgr, keys: keys, prefix: prefix}
}

// CreateUnsignedTransactions validates req, selects inputs via
// UtxoManager.Select, and returns the resulting unsigned transaction(s) (a
// single one today; auto-compounding is a deliberate no-op, see
// maybeAutoCompound). It takes its own read snapshot of the UTXO set.
func (g *Generator) CreateUnsignedTransactions(ctx context.Context, req walletmodel.PaymentRequest) ([]walletmodel.WalletSignableTransaction, error) {
	return g.createUnsignedTransactions(ctx, req, g.utxoMgr.Snapshot())
}

// CreateUnsignedTransactionsLocked is the counterpart used by WalletService.Send,
// which already holds UtxoManager's write lock across selection + submit +
// mempool overlay; it must not re-acquire the lock.
func (g *Generator) CreateUnsignedTransactionsLocked(ctx context.Context, req walletmodel.PaymentRequest) ([]walletmodel.WalletSignableTransaction, error) {
	return g.createUnsignedTransactions(ctx, req, g.utxoMgr.SnapshotLocked())
}

func (g *Generator) createUnsignedTransactions(ctx context.Context, req walletmodel.PaymentRequest, snap utxomanager.Snapshot) ([]walletmodel.WalletSignableTransaction, error) {
	toAddr, err := kaspaaddr.Parse(req.ToAddress)
	if err != nil || toAddr.Prefix != g.prefix {
		return nil, walletmodel.NewUserInputError("invalid destination address %q", req.ToAddress)
	}
	if len(req.FromAddresses) > 0 && len(req.PreselectedOutpoints) > 0 {
		return nil, walletmodel.NewUserInputError("from_addresses and preselected_outpoints are mutually exclusive")
	}
	if req.IsSendAll && req.Amount != 0 {
		return nil, walletmodel.NewUserInputError("send_all and a non-zero amount are mutually exclusive")
	}
	if !req.IsSendAll && req.Amount == 0 {
		return nil, walletmodel.NewUserInputError("either a send amount or send_all is required")
	}

	addrSet := g.addrMgr.AddressSet()

	fromAddresses, err := resolveFromAddresses(addrSet, req.FromAddresses)
	if err != nil {
		return nil, err
	}
	fromFilter := make(map[walletmodel.WalletAddress]bool, len(fromAddresses))
	for _, wa := range fromAddresses {
		fromFilter[wa] = true
	}

	preselected, err := resolvePreselectedUtxos(snap, req.PreselectedOutpoints)
	if err != nil {
		return nil, err
	}

	changeAddr, changeWA, err := g.addrMgr.ChangeAddress(req.UseExistingChangeAddress, fromAddresses)
	if err != nil {
		return nil, err
	}

	dagInfo, err := g.node.GetBlockDAGInfo(ctx)
	if err != nil {
		return nil, walletmodel.WrapInternalServerError(err, "get_block_dag_info")
	}

	feeRate, maxFeeCap, err := g.resolveFeePolicy(ctx, req.FeePolicy)
	if err != nil {
		return nil, err
	}

	selReq := utxomanager.SelectionRequest{
		Amount:           req.Amount,
		IsSendAll:        req.IsSendAll,
		FeeRate:          feeRate,
		MaxFeeCap:        maxFeeCap,
		FromAddresses:    fromFilter,
		PreselectedUtxos: preselected,
		Payload:          req.Payload,
		VirtualDAAScore:  dagInfo.VirtualDAAScore,
	}

	result, err := g.utxoMgr.Select(snap, selReq, g.estimateMass)
	if err != nil {
		return nil, err
	}

	payments := []walletmodel.Payment{{Address: req.ToAddress, Amount: result.AmountToRecipient}}
	if result.Change > 0 {
		payments = append(payments, walletmodel.Payment{Address: changeAddr.String(), Amount: result.Change})
	}

	tx, err := g.buildTransaction(payments, req.Payload, result.Selected, changeWA)
	if err != nil {
		return nil, err
	}
	tx.CalculatedFee = result.Fee
	tx.CalculatedMass = txscript.CalcComputeMass(tx.Transaction, g.keys.MinimumSignatures())

	unsigned := walletmodel.WalletSignableTransaction{Signed: walletmodel.Unsigned, Transaction: tx}
	return g.maybeAutoCompoundTransaction(unsigned), nil
}

// maybeAutoCompoundTransaction returns the single built transaction
// unchanged. Splitting an over-mass transaction into a compounding chain
// would hang off this hook once a splitting policy exists.
func (g *Generator) maybeAutoCompoundTransaction(tx walletmodel.WalletSignableTransaction) []walletmodel.WalletSignableTransaction {
	return []walletmodel.WalletSignableTransaction{tx}
}

func resolveFromAddresses(addrSet addressmanager.AddressSet, addresses []string) ([]walletmodel.WalletAddress, error) {
	out := make([]walletmodel.WalletAddress, 0, len(addresses))
	for _, a := range addresses {
		wa, ok := addrSet[a]
		if !ok {
			return nil, walletmodel.NewUserInputError("from_address %q is not a monitored wallet address", a)
		}
		out = append(out, wa)
	}
	return out, nil
}

func resolvePreselectedUtxos(snap utxomanager.Snapshot, outpoints []walletmodel.Outpoint) ([]walletmodel.WalletUtxo, error) {
	out := make([]walletmodel.WalletUtxo, 0, len(outpoints))
	for _, op := range outpoints {
		wu, ok := snap.UtxosByOutpoint[op]
		if !ok {
			return nil, walletmodel.NewUserInputError("preselected_outpoint %x:%d is not in the UTXO set", op.TxID, op.Index)
		}
		out = append(out, wu)
	}
	return out, nil
}

// buildTransaction assembles a Transaction plus its derivation-path/address
// provenance from a selected input set and a payments list.
func (g *Generator) buildTransaction(payments []walletmodel.Payment, payload []byte, selected []walletmodel.WalletUtxo, changeWA walletmodel.WalletAddress) (walletmodel.SignableTransaction, error) {
	sigOpCount := byte(g.keys.MinimumSignatures())

	inputs := make([]walletmodel.TxInput, 0, len(selected))
	derivationPaths := make([]string, 0, len(selected))
	inputAddresses := make([]walletmodel.WalletAddress, 0, len(selected))
	seenPaths := make(map[string]bool)

	for _, wu := range selected {
		inputs = append(inputs, walletmodel.TxInput{
			PreviousOutpoint: wu.Outpoint,
			PriorEntry:       wu.Entry,
			SigOpCount:       sigOpCount,
		})
		inputAddresses = append(inputAddresses, wu.Address)
		path := g.addrMgr.CalculateAddressPath(wu.Address)
		if !seenPaths[path] {
			seenPaths[path] = true
			derivationPaths = append(derivationPaths, path)
		}
	}
	// The change address must also be derivable by the signer even if no
	// input happens to reuse its path.
	changePath := g.addrMgr.CalculateAddressPath(changeWA)
	if !seenPaths[changePath] {
		derivationPaths = append(derivationPaths, changePath)
	}

	outputs := make([]walletmodel.TxOutput, 0, len(payments))
	outputAddresses := make([]string, 0, len(payments))
	for _, p := range payments {
		addr, err := kaspaaddr.Parse(p.Address)
		if err != nil {
			return walletmodel.SignableTransaction{}, walletmodel.WrapInternalServerError(err, "parsing destination address")
		}
		script, err := txscript.PayToAddressScript(addr)
		if err != nil {
			return walletmodel.SignableTransaction{}, walletmodel.WrapInternalServerError(err, "building destination script")
		}
		outputs = append(outputs, walletmodel.TxOutput{Amount: p.Amount, ScriptPublicKey: script})
		outputAddresses = append(outputAddresses, p.Address)
	}

	return walletmodel.SignableTransaction{
		Transaction: walletmodel.Transaction{
			Inputs:  inputs,
			Outputs: outputs,
			Payload: payload,
		},
		DerivationPaths: derivationPaths,
		InputAddresses:  inputAddresses,
		OutputAddresses: outputAddresses,
	}, nil
}

// estimateMass implements utxomanager.MassEstimator: it builds a mock
// transaction shape (one input per selected UTXO, one or two outputs with
// the longest standard scriptPublicKey as a worst case, since the real
// destination script is not known yet) and runs it through
// txscript.CalcComputeMass.
func (g *Generator) estimateMass(selected []walletmodel.WalletUtxo, recipientValue uint64, payload []byte) uint64 {
	var total uint64
	for _, u := range selected {
		total += u.Entry.Amount
	}

	fakeScript := txscript.FakeScriptPubKey()
	var outputs []walletmodel.TxOutput
	if total > recipientValue {
		outputs = []walletmodel.TxOutput{
			{Amount: recipientValue, ScriptPublicKey: fakeScript},
			{Amount: total - recipientValue, ScriptPublicKey: fakeScript},
		}
	} else {
		outputs = []walletmodel.TxOutput{{Amount: total, ScriptPublicKey: fakeScript}}
	}

	tx := walletmodel.Transaction{
		Inputs:  make([]walletmodel.TxInput, len(selected)),
		Outputs: outputs,
		Payload: payload,
	}
	return txscript.CalcComputeMass(tx, g.keys.MinimumSignatures())
}

// EstimateSoloSpendMass estimates the mass of a transaction spending a
// single UTXO alone, used by get_utxos's dust classification.
func (g *Generator) EstimateSoloSpendMass(utxo walletmodel.WalletUtxo) uint64 {
	return g.estimateMass([]walletmodel.WalletUtxo{utxo}, utxo.Entry.Amount, nil)
}

// resolveFeePolicy maps the four policy cases to a (rate, cap) pair:
// absent -> node's normal bucket rate with DefaultMaxFeeCap; exact_fee_rate
// -> that rate, uncapped; max_fee_rate -> min(that rate, node's normal
// bucket), uncapped; max_fee -> node's normal bucket rate, capped at that fee.
func (g *Generator) resolveFeePolicy(ctx context.Context, policy *walletmodel.FeePolicy) (feeRate float64, maxFeeCap uint64, err error) {
	if policy != nil && policy.ExactFeeRate != nil {
		// An exact rate needs no estimate from the node.
		return *policy.ExactFeeRate, ^uint64(0), nil
	}

	normalRate, err := g.nodeNormalFeeRate(ctx)
	if err != nil {
		return 0, 0, err
	}

	if policy == nil {
		return normalRate, DefaultMaxFeeCap, nil
	}
	switch {
	case policy.MaxFeeRate != nil:
		rate := *policy.MaxFeeRate
		if normalRate < rate {
			rate = normalRate
		}
		return rate, ^uint64(0), nil
	case policy.MaxFee != nil:
		return normalRate, *policy.MaxFee, nil
	default:
		return normalRate, DefaultMaxFeeCap, nil
	}
}

// NormalFeeRate exposes the node's current normal-bucket fee rate, used by
// WalletService's get_utxos dust classification.
func (g *Generator) NormalFeeRate(ctx context.Context) (float64, error) {
	return g.nodeNormalFeeRate(ctx)
}

func (g *Generator) nodeNormalFeeRate(ctx context.Context) (float64, error) {
	estimate, err := g.node.GetFeeEstimate(ctx)
	if err != nil {
		return 0, walletmodel.WrapInternalServerError(err, "get_fee_estimate")
	}
	if len(estimate.NormalBuckets) == 0 {
		return 0, walletmodel.NewInternalServerError("get_fee_estimate returned no normal_buckets")
	}
	return estimate.NormalBuckets[0].FeeRate, nil
}
