package walletservice

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaswalletd/kaswalletd/pkg/addressmanager"
	"github.com/kaswalletd/kaswalletd/pkg/kaspaaddr"
	"github.com/kaswalletd/kaswalletd/pkg/keystore"
	"github.com/kaswalletd/kaswalletd/pkg/log"
	"github.com/kaswalletd/kaswalletd/pkg/rpcnode"
	"github.com/kaswalletd/kaswalletd/pkg/signer"
	"github.com/kaswalletd/kaswalletd/pkg/txgen"
	"github.com/kaswalletd/kaswalletd/pkg/txscript"
	"github.com/kaswalletd/kaswalletd/pkg/utxomanager"
	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

const sompiPerKaspa = utxomanager.SompiPerKaspa

// fakeNode is a minimal rpcnode.Client stub, same shape as pkg/txgen's test
// double, that also hands back a well-formed hex transaction id from
// SubmitTransaction so Send's submit-then-overlay path can be exercised.
type fakeNode struct {
	submittedCount int
}

func (f *fakeNode) GetBlockDAGInfo(context.Context) (rpcnode.BlockDAGInfo, error) {
	return rpcnode.BlockDAGInfo{}, nil
}

func (f *fakeNode) GetBalancesByAddresses(context.Context, []string) ([]rpcnode.AddressBalance, error) {
	return nil, nil
}

func (f *fakeNode) GetUtxosByAddresses(context.Context, []string) ([]rpcnode.AddressUtxo, error) {
	return nil, nil
}

func (f *fakeNode) GetMempoolEntriesByAddresses(context.Context, []string, bool, bool) ([]rpcnode.MempoolEntriesByAddress, error) {
	return nil, nil
}

func (f *fakeNode) GetFeeEstimate(context.Context) (rpcnode.FeeEstimate, error) {
	return rpcnode.FeeEstimate{NormalBuckets: []rpcnode.FeeBucket{{FeeRate: 1}}}, nil
}

func (f *fakeNode) SubmitTransaction(context.Context, []byte, bool) (string, error) {
	f.submittedCount++
	// 32 bytes of 0x01, hex-encoded, so decodeTxID accepts it.
	return "0101010101010101010101010101010101010101010101010101010101010101", nil
}

type testEnv struct {
	node    *fakeNode
	ks      *keystore.KeyStore
	addrMgr *addressmanager.Manager
	utxoMgr *utxomanager.Manager
	svc     *Service
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
	gen := txgen.New(node, addrMgr, utxoMgr, ks, kaspaaddr.PrefixMainnet)
	sgnr := signer.New(ks)
	svc := New(ks, addrMgr, utxoMgr, gen, sgnr, node, logger)

	return &testEnv{node: node, ks: ks, addrMgr: addrMgr, utxoMgr: utxoMgr, svc: svc}
}

func (e *testEnv) addUTXO(t *testing.T, amount uint64, txIDByte byte) string {
	t.Helper()

	addrString, _, err := e.addrMgr.NewAddress()
	require.NoError(t, err)

	// The UTXO must carry the address's real P2PK locking script so Send's
	// signing pass can match it to a derived key.
	addr, err := kaspaaddr.Parse(addrString)
	require.NoError(t, err)
	require.Len(t, addr.Payload, 32)
	var xOnly [32]byte
	copy(xOnly[:], addr.Payload)

	var txID [32]byte
	txID[0] = txIDByte

	e.utxoMgr.Lock()
	defer e.utxoMgr.Unlock()
	e.utxoMgr.UpdateUTXOSet([]rpcnode.AddressUtxo{{
		Address: addrString,
		TxID:    txID,
		Index:   0,
		Entry: rpcnode.UtxoEntry{
			Amount:          amount,
			ScriptPublicKey: txscript.PayToPubKeyScript(xOnly),
		},
	}}, nil, e.addrMgr.AddressSet())

	return addrString
}

// markSynced completes the discovery preconditions the is_synced gate
// checks: the frontier cursor must be past every used index, and the first
// sync must be marked done.
func (e *testEnv) markSynced(t *testing.T) {
	t.Helper()
	require.NoError(t, e.addrMgr.CollectFarAddresses(context.Background()))
	e.addrMgr.MarkFirstSyncDone()
}

func destinationAddress() string {
	payload := make([]byte, 32)
	payload[0] = 0xBB
	return kaspaaddr.New(kaspaaddr.PrefixMainnet, kaspaaddr.VersionPubKey, payload).String()
}

// TestMethodsRequireSyncBeforeFirstSync: the is_synced-gated methods
// (get_addresses, new_address, get_balance, create_unsigned_transactions)
// must refuse to run before the initial discovery scan completes.
func TestMethodsRequireSyncBeforeFirstSync(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.GetAddresses()
	assert.Error(t, err)

	_, err = env.svc.NewAddress()
	assert.Error(t, err)

	_, err = env.svc.GetBalance(context.Background(), false)
	assert.Error(t, err)

	_, err = env.svc.CreateUnsignedTransactions(context.Background(), walletmodel.PaymentRequest{}, false)
	assert.Error(t, err)
}

// TestGetUtxosDoesNotRequireSync covers get_utxos's documented exemption
// from the is_synced gate.
func TestGetUtxosDoesNotRequireSync(t *testing.T) {
	env := newTestEnv(t)
	env.addUTXO(t, 5*sompiPerKaspa, 1)

	utxos, err := env.svc.GetUtxos(context.Background(), nil, true, true)
	require.NoError(t, err)
	assert.Len(t, utxos, 1)
}

// TestSendEndToEndSignsAndBroadcasts: send creates, signs, and submits in
// one call, folding the result into the UTXO overlay via
// AddMempoolTransaction.
func TestSendEndToEndSignsAndBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	env.addUTXO(t, 5*sompiPerKaspa, 1)
	env.markSynced(t)

	rate := 1.0
	req := walletmodel.PaymentRequest{
		ToAddress: destinationAddress(),
		IsSendAll: true,
		FeePolicy: &walletmodel.FeePolicy{ExactFeeRate: &rate},
	}

	result, err := env.svc.Send(context.Background(), req, "pw", false)
	require.NoError(t, err)
	require.Len(t, result.TransactionIDs, 1)
	require.Len(t, result.SignedTransactions, 1)
	assert.Equal(t, walletmodel.Fully, result.SignedTransactions[0].Signed)
	assert.Equal(t, 1, env.node.submittedCount)

	balance, err := env.svc.GetBalance(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance.Available)
}

// TestSendRejectsBeforeSync covers the is_synced gate on send specifically.
func TestSendRejectsBeforeSync(t *testing.T) {
	env := newTestEnv(t)
	env.addUTXO(t, 5*sompiPerKaspa, 1)

	_, err := env.svc.Send(context.Background(), walletmodel.PaymentRequest{ToAddress: destinationAddress(), IsSendAll: true}, "pw", false)
	var userErr *walletmodel.UserInputError
	require.ErrorAs(t, err, &userErr)
}
