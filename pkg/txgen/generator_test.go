package txgen

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaswalletd/kaswalletd/pkg/addressmanager"
	"github.com/kaswalletd/kaswalletd/pkg/kaspaaddr"
	"github.com/kaswalletd/kaswalletd/pkg/keystore"
	"github.com/kaswalletd/kaswalletd/pkg/log"
	"github.com/kaswalletd/kaswalletd/pkg/rpcnode"
	"github.com/kaswalletd/kaswalletd/pkg/txscript"
	"github.com/kaswalletd/kaswalletd/pkg/utxomanager"
	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

const sompiPerKaspa = utxomanager.SompiPerKaspa

// fakeNode is a minimal rpcnode.Client stub, same shape as
// pkg/addressmanager's test double, with a fee estimate of rate 1 so tests
// can reason about fee/change arithmetic directly.
type fakeNode struct{}

func (f *fakeNode) GetBlockDAGInfo(ctx context.Context) (rpcnode.BlockDAGInfo, error) {
	return rpcnode.BlockDAGInfo{}, nil
}

func (f *fakeNode) GetBalancesByAddresses(ctx context.Context, addresses []string) ([]rpcnode.AddressBalance, error) {
	return nil, nil
}

func (f *fakeNode) GetUtxosByAddresses(ctx context.Context, addresses []string) ([]rpcnode.AddressUtxo, error) {
	return nil, nil
}

func (f *fakeNode) GetMempoolEntriesByAddresses(ctx context.Context, addresses []string, includeSending, includeReceiving bool) ([]rpcnode.MempoolEntriesByAddress, error) {
	return nil, nil
}

func (f *fakeNode) GetFeeEstimate(ctx context.Context) (rpcnode.FeeEstimate, error) {
	return rpcnode.FeeEstimate{NormalBuckets: []rpcnode.FeeBucket{{FeeRate: 1}}}, nil
}

func (f *fakeNode) SubmitTransaction(ctx context.Context, rawTransaction []byte, allowOrphan bool) (string, error) {
	return "", nil
}

type testEnv struct {
	ks      *keystore.KeyStore
	addrMgr *addressmanager.Manager
	utxoMgr *utxomanager.Manager
	gen     *Generator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	path := filepath.Join(t.TempDir(), "keys.json")
	ks, _, err := keystore.Create(path, "pw", 1, 0, 1)
	require.NoError(t, err)

	logger, err := log.New(log.DefaultConfig())
	require.NoError(t, err)

	node := &fakeNode{}
	addrMgr := addressmanager.New(ks, node, kaspaaddr.PrefixMainnet, logger)
	utxoMgr := utxomanager.New(0)
	gen := New(node, addrMgr, utxoMgr, ks, kaspaaddr.PrefixMainnet)

	return &testEnv{ks: ks, addrMgr: addrMgr, utxoMgr: utxoMgr, gen: gen}
}

// addUTXO registers a confirmed UTXO of amount sompi paying to a freshly
// derived wallet address via the same UpdateUTXOSet path SyncManager drives,
// returning the owning address string.
func (e *testEnv) addUTXO(t *testing.T, amount uint64, txIDByte byte) string {
	t.Helper()

	addrString, _, err := e.addrMgr.NewAddress()
	require.NoError(t, err)

	var txID [32]byte
	txID[0] = txIDByte

	nodeUtxo := rpcnode.AddressUtxo{
		Address: addrString,
		TxID:    txID,
		Index:   0,
		Entry: rpcnode.UtxoEntry{
			Amount:          amount,
			ScriptPublicKey: txscript.FakeScriptPubKey(),
		},
	}

	e.utxoMgr.Lock()
	existing := e.utxoMgr.SnapshotLocked()
	utxos := make([]rpcnode.AddressUtxo, 0, len(existing.UtxosByOutpoint)+1)
	for op, wu := range existing.UtxosByOutpoint {
		utxos = append(utxos, rpcnode.AddressUtxo{
			Address: wu.AddressID,
			TxID:    op.TxID,
			Index:   op.Index,
			Entry: rpcnode.UtxoEntry{
				Amount:          wu.Entry.Amount,
				ScriptPublicKey: wu.Entry.ScriptPublicKey,
				BlockDAAScore:   wu.Entry.BlockDAAScore,
				IsCoinbase:      wu.Entry.IsCoinbase,
			},
		})
	}
	utxos = append(utxos, nodeUtxo)
	e.utxoMgr.UpdateUTXOSet(utxos, nil, e.addrMgr.AddressSet())
	e.utxoMgr.Unlock()

	return addrString
}

func destinationAddress() string {
	payload := make([]byte, 32)
	payload[0] = 0xAA
	return kaspaaddr.New(kaspaaddr.PrefixMainnet, kaspaaddr.VersionPubKey, payload).String()
}

func newPaymentRequest(toAddress string) walletmodel.PaymentRequest {
	return walletmodel.PaymentRequest{ToAddress: toAddress}
}

func exactFeeRate(rate float64) *walletmodel.FeePolicy {
	return &walletmodel.FeePolicy{ExactFeeRate: &rate}
}

// TestSendAllSingleUTXONoChange: send_all with a single UTXO must select it,
// produce exactly one output (no change), and spend the whole balance
// minus fee.
func TestSendAllSingleUTXONoChange(t *testing.T) {
	env := newTestEnv(t)
	env.addUTXO(t, 5*sompiPerKaspa, 1)

	req := newPaymentRequest(destinationAddress())
	req.IsSendAll = true
	req.FeePolicy = exactFeeRate(1)

	txs, err := env.gen.CreateUnsignedTransactions(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	tx := txs[0].Transaction
	assert.Len(t, tx.Transaction.Inputs, 1)
	assert.Len(t, tx.Transaction.Outputs, 1)
	assert.Equal(t, uint64(5*sompiPerKaspa)-tx.CalculatedFee, tx.Transaction.Outputs[0].Amount)
}

// TestSendAllThreeUTXOsSpendsAll covers S2: three UTXOs, send_all selects
// all three and pays their sum minus fee to the single recipient output.
func TestSendAllThreeUTXOsSpendsAll(t *testing.T) {
	env := newTestEnv(t)
	env.addUTXO(t, 1*sompiPerKaspa, 1)
	env.addUTXO(t, 2*sompiPerKaspa, 2)
	env.addUTXO(t, 3*sompiPerKaspa, 3)

	req := newPaymentRequest(destinationAddress())
	req.IsSendAll = true
	req.FeePolicy = exactFeeRate(1)

	txs, err := env.gen.CreateUnsignedTransactions(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	tx := txs[0].Transaction
	assert.Len(t, tx.Transaction.Inputs, 3)
	require.Len(t, tx.Transaction.Outputs, 1)
	assert.Equal(t, uint64(6*sompiPerKaspa)-tx.CalculatedFee, tx.Transaction.Outputs[0].Amount)
}

// TestChangeSplitUsesTwoInputsForDustPatch covers S3: two large UTXOs, a
// small payment must still pull in a second input (the go-node dust-patch
// compatibility rule) and leave a healthy change output.
func TestChangeSplitUsesTwoInputsForDustPatch(t *testing.T) {
	env := newTestEnv(t)
	env.addUTXO(t, 50*sompiPerKaspa, 1)
	env.addUTXO(t, 100*sompiPerKaspa, 2)

	req := newPaymentRequest(destinationAddress())
	req.Amount = 1 * sompiPerKaspa
	req.FeePolicy = exactFeeRate(1)

	txs, err := env.gen.CreateUnsignedTransactions(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	tx := txs[0].Transaction
	assert.Len(t, tx.Transaction.Inputs, 2)
	require.Len(t, tx.Transaction.Outputs, 2)

	var recipientSeen, changeSeen bool
	for _, out := range tx.Transaction.Outputs {
		if out.Amount == req.Amount {
			recipientSeen = true
		} else {
			changeSeen = true
			assert.GreaterOrEqual(t, out.Amount, uint64(utxomanager.MinChangeTarget))
		}
	}
	assert.True(t, recipientSeen)
	assert.True(t, changeSeen)
}

// TestInsufficientFundsSurfacesUserInputError covers S4.
func TestInsufficientFundsSurfacesUserInputError(t *testing.T) {
	env := newTestEnv(t)
	env.addUTXO(t, sompiPerKaspa/2, 1)

	req := newPaymentRequest(destinationAddress())
	req.Amount = 1 * sompiPerKaspa
	req.FeePolicy = exactFeeRate(1)

	_, err := env.gen.CreateUnsignedTransactions(context.Background(), req)
	require.Error(t, err)
	var userErr *walletmodel.UserInputError
	assert.True(t, errors.As(err, &userErr))
}

// TestFromAddressesFilterRestrictsSelection covers S5: a request scoped to
// one address must ignore UTXOs on another, even if the other address alone
// could cover the payment.
func TestFromAddressesFilterRestrictsSelection(t *testing.T) {
	env := newTestEnv(t)
	addrA := env.addUTXO(t, sompiPerKaspa/2, 1)
	env.addUTXO(t, 10*sompiPerKaspa, 2)

	req := newPaymentRequest(destinationAddress())
	req.Amount = 1 * sompiPerKaspa
	req.FromAddresses = []string{addrA}
	req.FeePolicy = exactFeeRate(1)

	_, err := env.gen.CreateUnsignedTransactions(context.Background(), req)
	require.Error(t, err)
	var userErr *walletmodel.UserInputError
	assert.True(t, errors.As(err, &userErr))
}

// TestFromAddressesAndPreselectedAreMutuallyExclusive: a request supplying
// both selectors is rejected outright.
func TestFromAddressesAndPreselectedAreMutuallyExclusive(t *testing.T) {
	env := newTestEnv(t)
	addrA := env.addUTXO(t, sompiPerKaspa, 1)

	req := newPaymentRequest(destinationAddress())
	req.Amount = 1
	req.FromAddresses = []string{addrA}
	req.PreselectedOutpoints = []walletmodel.Outpoint{{Index: 0}}

	_, err := env.gen.CreateUnsignedTransactions(context.Background(), req)
	require.Error(t, err)
	var userErr *walletmodel.UserInputError
	assert.True(t, errors.As(err, &userErr))
}

// TestInvalidDestinationAddressRejected exercises the destination-address
// check CreateUnsignedTransactions runs before touching selection at all: a
// string that does not parse as an address is a UserInputError.
func TestInvalidDestinationAddressRejected(t *testing.T) {
	env := newTestEnv(t)
	env.addUTXO(t, sompiPerKaspa, 1)

	req := newPaymentRequest("not-a-kaspa-address")
	req.Amount = 1

	_, err := env.gen.CreateUnsignedTransactions(context.Background(), req)
	require.Error(t, err)
	var userErr *walletmodel.UserInputError
	assert.True(t, errors.As(err, &userErr))
}

// TestFakeScriptPubKeyStandsInForMass sanity-checks that txscript's mass
// stand-in is reachable and non-trivial, since estimateMass depends on it.
func TestFakeScriptPubKeyStandsInForMass(t *testing.T) {
	assert.NotEmpty(t, txscript.FakeScriptPubKey())
}
