package txscript

import "github.com/kaswalletd/kaswalletd/pkg/walletmodel"

// Mass estimation constants. Mass only ever feeds fee estimation here, so
// the weights below need to rank transaction shapes consistently, not match
// a consensus implementation byte for byte.
const (
	massPerTxByte           = 1
	massPerScriptPubKeyByte = 10
	signatureScriptMass     = 66 // approximate mass of one Schnorr signature_script
	massPerSigOp            = 1000
)

// fakeECDSAScriptLen is the length of a worst-case P2PK-ECDSA scriptPublicKey
// (1 push opcode + 33-byte compressed key + 1 opcode), used by selection's
// mass estimator in place of a real destination script before one is known.
const fakeECDSAScriptLen = 35

// FakeScriptPubKey returns a zero-filled placeholder of worst-case P2PK
// scriptPublicKey length, for mass estimation before a real destination
// script is available.
func FakeScriptPubKey() []byte {
	return make([]byte, fakeECDSAScriptLen)
}

// CalcComputeMass approximates the compute mass of an unsigned transaction
// shape: base overhead plus per-input and per-output contributions, scaled
// by the number of required signatures. Mass depends only on shape, never
// on signatures, so the selection loop can call this cheaply per iteration.
func CalcComputeMass(tx walletmodel.Transaction, minimumSignatures int) uint64 {
	var mass uint64 = 200 // fixed transaction overhead

	for range tx.Inputs {
		mass += uint64(signatureScriptMass*minimumSignatures) + massPerSigOp*uint64(minimumSignatures)
	}

	for _, out := range tx.Outputs {
		mass += uint64(len(out.ScriptPublicKey)) * massPerScriptPubKeyByte
	}

	mass += uint64(len(tx.Payload)) * massPerTxByte

	return mass
}
