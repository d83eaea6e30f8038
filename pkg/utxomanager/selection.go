package utxomanager

import (
	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

// SompiPerKaspa is 10^8, the sompi-to-KAS conversion factor.
const SompiPerKaspa = 100_000_000

// MinChangeTarget keeps change outputs at 10 KAS or more. The KIP-9
// storage-mass surcharge stays bounded when every output carries at least
// this much, keeping overall mass in the same order as compute mass.
const MinChangeTarget = 10 * SompiPerKaspa

// MassEstimator computes the mass of a mock transaction built from the
// given selected inputs and a recipient value, used to re-estimate fee as
// the selection loop grows its input set. Implemented by pkg/txgen so this
// package does not need to depend on transaction-building internals.
type MassEstimator func(selected []walletmodel.WalletUtxo, recipientValue uint64, payload []byte) uint64

// SelectionRequest bundles the coin-selection algorithm's inputs.
type SelectionRequest struct {
	Amount             uint64
	IsSendAll          bool
	FeeRate            float64
	MaxFeeCap          uint64
	FromAddresses      map[walletmodel.WalletAddress]bool // nil/empty means no filter
	PreselectedUtxos   []walletmodel.WalletUtxo           // consumed first, in order; must be in the UTXO set
	Payload            []byte
	VirtualDAAScore    uint64
	AllowUsedOutpoints map[walletmodel.Outpoint]bool // explicit allow-list bypassing used_outpoints
}

// SelectionResult is the outcome of a successful selection.
type SelectionResult struct {
	Selected          []walletmodel.WalletUtxo
	AmountToRecipient uint64
	Change            uint64
	Fee               uint64
}

// Select runs the shared coin-selection algorithm over a Snapshot:
// preselected UTXOs first, then the sorted-by-amount index ascending, until
// a stop condition is met or the set is exhausted. Apart from the Manager's
// coinbase maturity (for the pending check) it reads only its arguments, so
// the transaction generator and tests can both run it against any Snapshot.
func (m *Manager) Select(snap Snapshot, req SelectionRequest, estimateMass MassEstimator) (SelectionResult, error) {
	var selected []walletmodel.WalletUtxo
	var total uint64
	var fee uint64

	consider := func(wu walletmodel.WalletUtxo) (stop bool) {
		if len(req.FromAddresses) > 0 && !req.FromAddresses[wu.Address] {
			return false
		}
		if m.IsPending(wu.Entry, req.VirtualDAAScore) {
			return false
		}
		if snap.UsedOutpoints[wu.Outpoint] {
			if req.AllowUsedOutpoints == nil || !req.AllowUsedOutpoints[wu.Outpoint] {
				return false
			}
		}

		selected = append(selected, wu)
		total += wu.Entry.Amount

		recipientValue := req.Amount
		if req.IsSendAll {
			recipientValue = total
		}

		mass := estimateMass(selected, recipientValue, req.Payload)
		calculatedFee := uint64(float64(mass)*req.FeeRate + 0.999999) // ceil
		if calculatedFee > req.MaxFeeCap {
			calculatedFee = req.MaxFeeCap
		}
		fee = calculatedFee

		switch {
		case req.IsSendAll:
			// Sweep: every eligible UTXO joins the spend, so keep going
			// until the set is exhausted.
			return false
		case total == req.Amount+fee:
			return true
		case total >= req.Amount+fee+MinChangeTarget && len(selected) >= 2:
			return true
		default:
			return false
		}
	}

	for _, wu := range req.PreselectedUtxos {
		if consider(wu) {
			return m.finishSelection(selected, total, fee, req)
		}
	}

	for _, wu := range snap.SortedByAmount {
		if containsOutpoint(req.PreselectedUtxos, wu.Outpoint) {
			continue // already consumed above
		}
		if consider(wu) {
			return m.finishSelection(selected, total, fee, req)
		}
	}

	return m.finishSelection(selected, total, fee, req)
}

func (m *Manager) finishSelection(selected []walletmodel.WalletUtxo, total, fee uint64, req SelectionRequest) (SelectionResult, error) {
	if total < req.Amount+fee {
		return SelectionResult{}, walletmodel.NewUserInputError("insufficient funds")
	}

	amountToRecipient := req.Amount
	if req.IsSendAll {
		amountToRecipient = total - fee
	}
	change := total - amountToRecipient - fee

	return SelectionResult{
		Selected:          selected,
		AmountToRecipient: amountToRecipient,
		Change:            change,
		Fee:               fee,
	}, nil
}

func containsOutpoint(utxos []walletmodel.WalletUtxo, op walletmodel.Outpoint) bool {
	for _, u := range utxos {
		if u.Outpoint == op {
			return true
		}
	}
	return false
}
