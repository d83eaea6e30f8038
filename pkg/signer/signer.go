// Package signer turns an unsigned WalletSignableTransaction into a
// partially or fully signed one: it decrypts the wallet's mnemonics,
// derives the private key for every input's owning address, signs each
// input whose scriptPublicKey it can match with BIP340 Schnorr, and runs a
// local sanity-check verification pass over any fully-signed result before
// handing it back.
package signer

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"github.com/kaswalletd/kaswalletd/pkg/keystore"
	"github.com/kaswalletd/kaswalletd/pkg/txscript"
	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

// SigHashAll is the only signature-hash type this daemon produces.
const SigHashAll byte = 0x01

// Signer holds the key store it signs against.
type Signer struct {
	keys *keystore.KeyStore
}

// New constructs a Signer.
func New(keys *keystore.KeyStore) *Signer {
	return &Signer{keys: keys}
}

// SignTransactions decrypts the wallet's mnemonics once with password, then
// signs every unsigned transaction against the resulting master keys. A
// wrong password surfaces as a UserInputError (via KeyStore.DecryptMnemonics);
// a fully-signed result that fails its own sanity check surfaces as
// SanityCheckFailed and the whole call fails rather than broadcasting it.
func (s *Signer) SignTransactions(unsigned []walletmodel.WalletSignableTransaction, password string) ([]walletmodel.WalletSignableTransaction, error) {
	masters, err := s.keys.MasterExtendedPrivateKeys(password)
	if err != nil {
		return nil, err
	}

	out := make([]walletmodel.WalletSignableTransaction, 0, len(unsigned))
	for _, utx := range unsigned {
		signedTx, state, err := s.signOne(utx.Transaction, masters)
		if err != nil {
			return nil, err
		}
		if state == walletmodel.Fully {
			if err := sanityCheckVerify(signedTx); err != nil {
				return nil, err
			}
		}
		out = append(out, walletmodel.WalletSignableTransaction{Signed: state, Transaction: signedTx})
	}
	return out, nil
}

func (s *Signer) signOne(tx walletmodel.SignableTransaction, masters []*hdkeychain.ExtendedKey) (walletmodel.SignableTransaction, walletmodel.SignedState, error) {
	keysByScript, err := privateKeysByScriptPubKey(tx.DerivationPaths, masters)
	if err != nil {
		return walletmodel.SignableTransaction{}, walletmodel.Unsigned, err
	}

	signed := tx
	signed.Transaction.Inputs = append([]walletmodel.TxInput(nil), tx.Transaction.Inputs...)

	cache := newSigHashReusedValues(tx.Transaction)
	allSigned := true
	for i, in := range signed.Transaction.Inputs {
		priv, ok := keysByScript[string(in.PriorEntry.ScriptPublicKey)]
		if !ok {
			allSigned = false
			continue
		}

		hash := cache.forInput(tx.Transaction, i)
		sig, err := schnorr.Sign(priv, hash[:])
		if err != nil {
			return walletmodel.SignableTransaction{}, walletmodel.Unsigned, walletmodel.WrapInternalServerError(err, "signing input %d", i)
		}

		sigBytes := sig.Serialize()
		script := make([]byte, 0, 1+len(sigBytes)+1)
		script = append(script, byte(len(sigBytes)+1))
		script = append(script, sigBytes...)
		script = append(script, SigHashAll)
		signed.Transaction.Inputs[i].SignatureScript = script
	}

	if allSigned {
		return signed, walletmodel.Fully, nil
	}
	return signed, walletmodel.Partially, nil
}

// privateKeysByScriptPubKey derives, for every (derivation path, master key)
// pair, the private key at that path and indexes it by the P2PK
// scriptPublicKey it locks, so signOne can look up an input's signing key by
// the script it is spending. Only P2PK scripts are indexed, so a multisig
// (P2SH) input never finds a key here: it is left unsigned and the
// transaction comes back Partially signed.
func privateKeysByScriptPubKey(paths []string, masters []*hdkeychain.ExtendedKey) (map[string]*btcec.PrivateKey, error) {
	out := make(map[string]*btcec.PrivateKey, len(paths)*len(masters))
	for _, path := range paths {
		segments, err := parsePath(path)
		if err != nil {
			return nil, err
		}
		for _, master := range masters {
			key := master
			for _, seg := range segments {
				key, err = key.Derive(seg)
				if err != nil {
					return nil, walletmodel.WrapInternalServerError(err, "deriving path %s", path)
				}
			}
			priv, err := key.ECPrivKey()
			if err != nil {
				return nil, walletmodel.WrapInternalServerError(err, "extracting private key for path %s", path)
			}
			xOnly := xOnlyFromPrivate(priv)
			out[string(txscript.PayToPubKeyScript(xOnly))] = priv
		}
	}
	return out, nil
}

func xOnlyFromPrivate(priv *btcec.PrivateKey) [32]byte {
	compressed := priv.PubKey().SerializeCompressed()
	var out [32]byte
	copy(out[:], compressed[1:])
	return out
}

// parsePath splits a CalculateAddressPath-produced string ("m/0/5" or
// "m/1/0/5") into its numeric components, skipping the leading "m".
func parsePath(path string) ([]uint32, error) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] != "m" {
		return nil, walletmodel.NewInternalServerError("malformed derivation path %q", path)
	}
	out := make([]uint32, 0, len(parts)-1)
	for _, p := range parts[1:] {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, walletmodel.WrapInternalServerError(err, "malformed derivation path segment %q in %q", p, path)
		}
		out = append(out, uint32(n))
	}
	return out, nil
}

// sigHashReusedValues caches the hash of every input's outpoints and every
// output once per transaction, so signing N inputs costs O(N) rather than
// O(N^2) hashing.
type sigHashReusedValues struct {
	inputsHash  [32]byte
	outputsHash [32]byte
}

func newSigHashReusedValues(tx walletmodel.Transaction) sigHashReusedValues {
	inputHasher := sha256.New()
	for _, in := range tx.Inputs {
		inputHasher.Write(in.PreviousOutpoint.TxID[:])
		binary.Write(inputHasher, binary.BigEndian, in.PreviousOutpoint.Index)
	}

	outputHasher := sha256.New()
	for _, out := range tx.Outputs {
		binary.Write(outputHasher, binary.BigEndian, out.Amount)
		outputHasher.Write(out.ScriptPublicKey)
	}

	var r sigHashReusedValues
	copy(r.inputsHash[:], inputHasher.Sum(nil))
	copy(r.outputsHash[:], outputHasher.Sum(nil))
	return r
}

func (r sigHashReusedValues) forInput(tx walletmodel.Transaction, index int) [32]byte {
	in := tx.Inputs[index]

	var buf bytes.Buffer
	buf.Write(r.inputsHash[:])
	buf.Write(r.outputsHash[:])
	binary.Write(&buf, binary.BigEndian, uint32(index))
	buf.Write(in.PriorEntry.ScriptPublicKey)
	binary.Write(&buf, binary.BigEndian, in.PriorEntry.Amount)
	buf.Write(tx.Payload)
	buf.WriteByte(SigHashAll)

	return sha256.Sum256(buf.Bytes())
}

// sanityCheckVerify locally re-verifies every signature of a fully-signed
// transaction before it is allowed to reach broadcast. A mismatch here
// means this daemon produced an internally-inconsistent signature and
// always indicates a bug, never a bad user input, hence SanityCheckFailed
// rather than UserInputError.
func sanityCheckVerify(tx walletmodel.SignableTransaction) error {
	cache := newSigHashReusedValues(tx.Transaction)
	for i, in := range tx.Transaction.Inputs {
		if len(in.SignatureScript) != 66 {
			return walletmodel.NewSanityCheckFailed("input %d has malformed signature_script length %d", i, len(in.SignatureScript))
		}
		sigBytes := in.SignatureScript[1:65]
		sighashType := in.SignatureScript[65]
		if sighashType != SigHashAll {
			return walletmodel.NewSanityCheckFailed("input %d has unexpected sighash type %d", i, sighashType)
		}

		script := in.PriorEntry.ScriptPublicKey
		if len(script) != 34 || script[0] != txscript.OpData32 || script[33] != txscript.OpCheckSig {
			return walletmodel.NewSanityCheckFailed("input %d's prior scriptPublicKey is not a recognized P2PK script", i)
		}
		var xOnly [32]byte
		copy(xOnly[:], script[1:33])

		pub, err := schnorr.ParsePubKey(xOnly[:])
		if err != nil {
			return walletmodel.WrapSanityCheckFailed(err, "input %d has an unparsable locked public key", i)
		}
		sig, err := schnorr.ParseSignature(sigBytes)
		if err != nil {
			return walletmodel.WrapSanityCheckFailed(err, "input %d has an unparsable signature", i)
		}

		hash := cache.forInput(tx.Transaction, i)
		if !sig.Verify(hash[:], pub) {
			return walletmodel.NewSanityCheckFailed("input %d's signature does not verify against its locked public key", i)
		}
	}
	return nil
}
