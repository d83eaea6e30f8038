// Package txscript builds the locking scripts this daemon needs: pay-to-
// public-key (Schnorr, x-only) for single-signature addresses and pay-to-
// script-hash wrapped multisig redeem scripts.
package txscript

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/kaswalletd/kaswalletd/pkg/kaspaaddr"
)

// Opcode values used by the minimal script templates below. These are
// internal to this daemon's own scriptPublicKey encoding, not a full
// interpreter opcode table.
const (
	OpData32        byte = 0x20
	OpCheckSig      byte = 0xac
	OpCheckMultiSig byte = 0xae
	OpHash256       byte = 0xaa
	OpEqual         byte = 0x87
	OpData20        byte = 0x14
)

// PayToPubKeyScript builds the scriptPublicKey for a single-signature P2PK
// output: [0x20, 32-byte x-only pubkey, 0xac], matching the lookup key format
// the signer expects.
func PayToPubKeyScript(xOnlyPubKey [32]byte) []byte {
	script := make([]byte, 0, 34)
	script = append(script, OpData32)
	script = append(script, xOnlyPubKey[:]...)
	script = append(script, OpCheckSig)
	return script
}

// MultisigRedeemScript builds an m-of-n redeem script from x-only public
// keys, sorted lexicographically: [m, <keys...>, n, OP_CHECKMULTISIG].
func MultisigRedeemScript(xOnlyPubKeys [][32]byte, minSignatures int) ([]byte, error) {
	if minSignatures <= 0 || minSignatures > len(xOnlyPubKeys) {
		return nil, fmt.Errorf("txscript: invalid minSignatures %d for %d keys", minSignatures, len(xOnlyPubKeys))
	}

	sorted := make([][32]byte, len(xOnlyPubKeys))
	copy(sorted, xOnlyPubKeys)
	sort.Slice(sorted, func(i, j int) bool {
		for k := 0; k < 32; k++ {
			if sorted[i][k] != sorted[j][k] {
				return sorted[i][k] < sorted[j][k]
			}
		}
		return false
	})

	script := make([]byte, 0, 2+len(sorted)*33+1)
	script = append(script, byte(minSignatures))
	for _, key := range sorted {
		script = append(script, OpData32)
		script = append(script, key[:]...)
	}
	script = append(script, byte(len(sorted)))
	script = append(script, OpCheckMultiSig)
	return script, nil
}

// PayToScriptHashScript wraps a redeem script as a P2SH scriptPublicKey:
// [0xaa, 0x20, 32-byte sha256 hash, 0x87].
func PayToScriptHashScript(redeemScript []byte) []byte {
	sum := sha256.Sum256(redeemScript)

	script := make([]byte, 0, 35)
	script = append(script, OpHash256, OpData32)
	script = append(script, sum[:]...)
	script = append(script, OpEqual)
	return script
}

// PayToAddressScript builds the scriptPublicKey paying to a decoded address,
// dispatching on its Version.
func PayToAddressScript(addr kaspaaddr.Address) ([]byte, error) {
	switch addr.Version {
	case kaspaaddr.VersionPubKey:
		if len(addr.Payload) != 32 {
			return nil, fmt.Errorf("txscript: P2PK payload must be 32 bytes, got %d", len(addr.Payload))
		}
		var xOnly [32]byte
		copy(xOnly[:], addr.Payload)
		return PayToPubKeyScript(xOnly), nil
	case kaspaaddr.VersionScriptHash:
		if len(addr.Payload) != 32 {
			return nil, fmt.Errorf("txscript: P2SH payload must be 32 bytes, got %d", len(addr.Payload))
		}
		script := make([]byte, 0, 35)
		script = append(script, OpHash256, OpData32)
		script = append(script, addr.Payload...)
		script = append(script, OpEqual)
		return script, nil
	default:
		return nil, fmt.Errorf("txscript: unsupported address version %d", addr.Version)
	}
}

// ExtractScriptPubKeyAddress builds the address string a P2SH scriptPubKey
// would resolve to, the inverse of PayToScriptHashScript, used by
// AddressManager when deriving a multisig address from a redeem script.
func ExtractScriptPubKeyAddress(redeemScript []byte, prefix kaspaaddr.Prefix) kaspaaddr.Address {
	sum := sha256.Sum256(redeemScript)
	return kaspaaddr.New(prefix, kaspaaddr.VersionScriptHash, sum[:])
}
