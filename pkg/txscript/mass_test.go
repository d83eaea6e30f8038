package txscript

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

func TestFakeScriptPubKeyLength(t *testing.T) {
	assert.Len(t, FakeScriptPubKey(), fakeECDSAScriptLen)
}

func TestCalcComputeMassScalesWithSignatures(t *testing.T) {
	tx := walletmodel.Transaction{
		Inputs:  []walletmodel.TxInput{{}, {}},
		Outputs: []walletmodel.TxOutput{{ScriptPublicKey: FakeScriptPubKey()}},
	}

	massOne := CalcComputeMass(tx, 1)
	massTwo := CalcComputeMass(tx, 2)
	assert.Greater(t, massTwo, massOne)
}

func TestCalcComputeMassIncludesPayload(t *testing.T) {
	base := walletmodel.Transaction{}
	withPayload := walletmodel.Transaction{Payload: make([]byte, 100)}

	assert.Greater(t, CalcComputeMass(withPayload, 1), CalcComputeMass(base, 1))
}
