// Package keystore owns the persisted wallet key file: the ordered list of
// extended public keys, the password-encrypted mnemonics they were derived
// from, the signature threshold, the cosigner index, and the two watermark
// indices (last used external/internal) that every other component treats as
// the authoritative boundary between "address we've generated" and
// "address we haven't".
//
// The file is the single source of truth: in-memory mutations are followed
// by an atomic rewrite before the mutation is visible to another process.
// Mutations to the watermarks happen through atomic integers guarded by a
// single save gate.
package keystore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"

	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

// FileVersion is the key-file schema version this daemon writes.
const FileVersion = 1

// keyFile is the on-disk JSON shape. Field names are part of the file
// format and must stay stable.
type keyFile struct {
	Version               int               `json:"version"`
	EncryptedMnemonics    []encMnemonicJSON `json:"encrypted_mnemonics"`
	PublicKeys            []string          `json:"public_keys"`
	LastUsedExternalIndex uint32            `json:"last_used_external_index"`
	LastUsedInternalIndex uint32            `json:"last_used_internal_index"`
	MinimumSignatures     int               `json:"minimum_signatures"`
	CosignerIndex         uint16            `json:"cosigner_index"`
}

type encMnemonicJSON struct {
	Cipher string `json:"cipher"`
	Salt   string `json:"salt"`
}

// KeyStore is the in-memory, live view of a loaded key file.
type KeyStore struct {
	path string

	// saveMu serializes every rewrite of the key file, so two concurrent
	// index bumps cannot interleave their writes.
	saveMu sync.Mutex

	encryptedMnemonics []EncryptedMnemonic
	publicKeys         []*hdkeychain.ExtendedKey // extended PUBLIC keys only

	lastUsedExternalIndex uint32 // atomic
	lastUsedInternalIndex uint32 // atomic

	minimumSignatures int
	cosignerIndex     uint16
}

// IsMultisig reports whether the key store was provisioned with more than
// one cosigner public key.
func (k *KeyStore) IsMultisig() bool { return len(k.publicKeys) > 1 }

// MinimumSignatures returns the signature threshold.
func (k *KeyStore) MinimumSignatures() int { return k.minimumSignatures }

// CosignerIndex returns this participant's position in the sorted cosigner set.
func (k *KeyStore) CosignerIndex() uint16 { return k.cosignerIndex }

// PublicKeys returns the extended public keys in file order (not
// necessarily sorted). Callers needing the sorted set use SortedPublicKeys.
func (k *KeyStore) PublicKeys() []*hdkeychain.ExtendedKey {
	out := make([]*hdkeychain.ExtendedKey, len(k.publicKeys))
	copy(out, k.publicKeys)
	return out
}

// SortedPublicKeys returns the extended public keys sorted lexicographically
// by their base58 string encoding. Callers should cache the result at
// construction rather than call this per address.
func (k *KeyStore) SortedPublicKeys() []*hdkeychain.ExtendedKey {
	out := k.PublicKeys()
	sortExtendedKeys(out)
	return out
}

func sortExtendedKeys(keys []*hdkeychain.ExtendedKey) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1].String() > keys[j].String(); j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}

// LastUsedExternalIndex returns the current external watermark.
func (k *KeyStore) LastUsedExternalIndex() uint32 {
	return atomic.LoadUint32(&k.lastUsedExternalIndex)
}

// LastUsedInternalIndex returns the current internal watermark.
func (k *KeyStore) LastUsedInternalIndex() uint32 {
	return atomic.LoadUint32(&k.lastUsedInternalIndex)
}

// LastUsedIndex returns the larger of the two watermarks, used by the
// is_synced gate.
func (k *KeyStore) LastUsedIndex() uint32 {
	ext := k.LastUsedExternalIndex()
	internal := k.LastUsedInternalIndex()
	if ext > internal {
		return ext
	}
	return internal
}

// BumpLastUsedExternalIndex atomically increments and persists the external
// watermark, returning the new value. The increment and save form one
// critical section, so a caller deriving from the returned index can rely
// on the bump already being durable.
func (k *KeyStore) BumpLastUsedExternalIndex() (uint32, error) {
	k.saveMu.Lock()
	defer k.saveMu.Unlock()

	next := atomic.AddUint32(&k.lastUsedExternalIndex, 1)
	if err := k.saveLocked(); err != nil {
		// Roll back the in-memory bump: the save is part of the critical
		// section, so a failed save must not leave the watermark ahead of
		// what is durable.
		atomic.AddUint32(&k.lastUsedExternalIndex, ^uint32(0))
		return 0, err
	}
	return next, nil
}

// BumpLastUsedInternalIndex is the internal-keychain counterpart, used by
// change_address when a fresh change address is requested.
func (k *KeyStore) BumpLastUsedInternalIndex() (uint32, error) {
	k.saveMu.Lock()
	defer k.saveMu.Unlock()

	next := atomic.AddUint32(&k.lastUsedInternalIndex, 1)
	if err := k.saveLocked(); err != nil {
		atomic.AddUint32(&k.lastUsedInternalIndex, ^uint32(0))
		return 0, err
	}
	return next, nil
}

// MaybeAdvanceExternal advances the external watermark to index if index is
// higher than the current value, used by AddressManager discovery when a
// used address is found further out than any locally bumped index.
func (k *KeyStore) MaybeAdvanceExternal(index uint32) error {
	return k.maybeAdvance(&k.lastUsedExternalIndex, index)
}

// MaybeAdvanceInternal is the internal-keychain counterpart of MaybeAdvanceExternal.
func (k *KeyStore) MaybeAdvanceInternal(index uint32) error {
	return k.maybeAdvance(&k.lastUsedInternalIndex, index)
}

func (k *KeyStore) maybeAdvance(watermark *uint32, index uint32) error {
	for {
		current := atomic.LoadUint32(watermark)
		if index <= current {
			return nil
		}
		if atomic.CompareAndSwapUint32(watermark, current, index) {
			k.saveMu.Lock()
			err := k.saveLocked()
			k.saveMu.Unlock()
			return err
		}
	}
}

// Save persists the current in-memory state to disk under the save gate.
func (k *KeyStore) Save() error {
	k.saveMu.Lock()
	defer k.saveMu.Unlock()
	return k.saveLocked()
}

// saveLocked writes the key file via a temp-file-then-rename so a crash
// mid-write never leaves a truncated file in place.
func (k *KeyStore) saveLocked() error {
	file := keyFile{
		Version:               FileVersion,
		LastUsedExternalIndex: atomic.LoadUint32(&k.lastUsedExternalIndex),
		LastUsedInternalIndex: atomic.LoadUint32(&k.lastUsedInternalIndex),
		MinimumSignatures:     k.minimumSignatures,
		CosignerIndex:         k.cosignerIndex,
	}
	for _, em := range k.encryptedMnemonics {
		file.EncryptedMnemonics = append(file.EncryptedMnemonics, encMnemonicJSON{
			Cipher: em.cipherHex(),
			Salt:   em.saltHex(),
		})
	}
	for _, pub := range k.publicKeys {
		file.PublicKeys = append(file.PublicKeys, pub.String())
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return walletmodel.WrapInternalServerError(err, "marshaling key file")
	}

	dir := filepath.Dir(k.path)
	tmp, err := os.CreateTemp(dir, ".keyfile-*")
	if err != nil {
		return walletmodel.WrapInternalServerError(err, "creating temp key file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return walletmodel.WrapInternalServerError(err, "writing temp key file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return walletmodel.WrapInternalServerError(err, "syncing temp key file")
	}
	if err := tmp.Close(); err != nil {
		return walletmodel.WrapInternalServerError(err, "closing temp key file")
	}
	if err := os.Rename(tmpPath, k.path); err != nil {
		return walletmodel.WrapInternalServerError(err, "renaming key file into place")
	}
	return nil
}

// Load reads a key file from path.
func Load(path string) (*KeyStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, walletmodel.WrapInternalServerError(err, "reading key file %s", path)
	}

	var file keyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, walletmodel.WrapInternalServerError(err, "parsing key file %s", path)
	}

	ks := &KeyStore{
		path:                  path,
		lastUsedExternalIndex: file.LastUsedExternalIndex,
		lastUsedInternalIndex: file.LastUsedInternalIndex,
		minimumSignatures:     file.MinimumSignatures,
		cosignerIndex:         file.CosignerIndex,
	}

	for _, emj := range file.EncryptedMnemonics {
		em, err := encryptedMnemonicFromHex(emj.Cipher, emj.Salt)
		if err != nil {
			return nil, walletmodel.WrapInternalServerError(err, "decoding encrypted mnemonic")
		}
		ks.encryptedMnemonics = append(ks.encryptedMnemonics, em)
	}

	for _, pubStr := range file.PublicKeys {
		key, err := hdkeychain.NewKeyFromString(pubStr)
		if err != nil {
			return nil, walletmodel.WrapInternalServerError(err, "parsing extended public key")
		}
		ks.publicKeys = append(ks.publicKeys, key)
	}

	if ks.minimumSignatures > len(ks.publicKeys) {
		return nil, walletmodel.NewInternalServerError(
			"key file invariant violated: minimum_signatures %d exceeds %d public keys",
			ks.minimumSignatures, len(ks.publicKeys))
	}

	return ks, nil
}

// Create provisions a brand-new key file: generates one BIP39 mnemonic per
// requested cosigner slot (normally one, for single-sig), encrypts each
// under password, derives and stores the corresponding extended public key,
// and writes the file to path. The daemon itself never creates key files;
// this backs the provisioning tool that writes the first one.
func Create(path string, password string, minimumSignatures int, cosignerIndex uint16, numCosigners int) (*KeyStore, []string, error) {
	if numCosigners < 1 {
		return nil, nil, walletmodel.NewUserInputError("numCosigners must be at least 1")
	}

	ks := &KeyStore{
		path:              path,
		minimumSignatures: minimumSignatures,
		cosignerIndex:     cosignerIndex,
	}

	isMultisig := numCosigners > 1

	var mnemonics []string
	for i := 0; i < numCosigners; i++ {
		entropy, err := bip39.NewEntropy(256)
		if err != nil {
			return nil, nil, walletmodel.WrapInternalServerError(err, "generating entropy")
		}
		mnemonic, err := bip39.NewMnemonic(entropy)
		if err != nil {
			return nil, nil, walletmodel.WrapInternalServerError(err, "generating mnemonic")
		}
		mnemonics = append(mnemonics, mnemonic)

		seed := bip39.NewSeed(mnemonic, "")
		root, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
		if err != nil {
			return nil, nil, walletmodel.WrapInternalServerError(err, "deriving master key")
		}
		// The stored public key must sit at the same wallet-master path
		// MasterExtendedPrivateKeys derives for signing (m/44'/111111'/0'
		// single-sig, m/45'/111111'/cosigner_index' multisig); neutering the
		// raw root key instead would make AddressManager's per-address
		// derivation and the signer's derivation diverge from index zero.
		accountKey, err := deriveWalletMasterPath(root, isMultisig, cosignerIndex)
		if err != nil {
			return nil, nil, walletmodel.WrapInternalServerError(err, "deriving wallet master path")
		}
		pub, err := accountKey.Neuter()
		if err != nil {
			return nil, nil, walletmodel.WrapInternalServerError(err, "neutering account key")
		}
		ks.publicKeys = append(ks.publicKeys, pub)

		em, err := sealMnemonic(mnemonic, password)
		if err != nil {
			return nil, nil, err
		}
		ks.encryptedMnemonics = append(ks.encryptedMnemonics, em)
	}

	if minimumSignatures <= 0 || minimumSignatures > len(ks.publicKeys) {
		return nil, nil, walletmodel.NewUserInputError(
			"minimum_signatures %d invalid for %d cosigners", minimumSignatures, len(ks.publicKeys))
	}

	if err := ks.Save(); err != nil {
		return nil, nil, err
	}

	return ks, mnemonics, nil
}

// DecryptMnemonics decrypts every stored mnemonic with password, failing
// with a UserInputError on the first one that does not decrypt.
func (k *KeyStore) DecryptMnemonics(password string) ([]string, error) {
	out := make([]string, 0, len(k.encryptedMnemonics))
	for _, em := range k.encryptedMnemonics {
		mnemonic, err := openMnemonic(em, password)
		if err != nil {
			return nil, err
		}
		out = append(out, mnemonic)
	}
	return out, nil
}

// MasterExtendedPrivateKeys decrypts every mnemonic and derives the wallet
// master extended private key for each: single-sig m/44'/111111'/0',
// multisig m/45'/111111'/cosigner_index'.
func (k *KeyStore) MasterExtendedPrivateKeys(password string) ([]*hdkeychain.ExtendedKey, error) {
	mnemonics, err := k.DecryptMnemonics(password)
	if err != nil {
		return nil, err
	}

	isMultisig := k.IsMultisig()
	masters := make([]*hdkeychain.ExtendedKey, 0, len(mnemonics))
	for _, mnemonic := range mnemonics {
		seed := bip39.NewSeed(mnemonic, "")
		root, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
		if err != nil {
			return nil, walletmodel.WrapInternalServerError(err, "deriving master key")
		}

		derived, err := deriveWalletMasterPath(root, isMultisig, k.cosignerIndex)
		if err != nil {
			return nil, walletmodel.WrapInternalServerError(err, "deriving wallet master path")
		}
		masters = append(masters, derived)
	}
	return masters, nil
}

const hardenedOffset = hdkeychain.HardenedKeyStart

// deriveWalletMasterPath derives m/44'/111111'/0' for single-sig or
// m/45'/111111'/cosigner_index' for multisig. 111111 is Kaspa's coin type;
// changing it would orphan every existing wallet's funds.
func deriveWalletMasterPath(root *hdkeychain.ExtendedKey, isMultisig bool, cosignerIndex uint16) (*hdkeychain.ExtendedKey, error) {
	purpose := uint32(44)
	if isMultisig {
		purpose = 45
	}

	key, err := root.Derive(hardenedOffset + purpose)
	if err != nil {
		return nil, fmt.Errorf("deriving purpose: %w", err)
	}
	key, err = key.Derive(hardenedOffset + 111111)
	if err != nil {
		return nil, fmt.Errorf("deriving coin type: %w", err)
	}

	var final uint32
	if isMultisig {
		final = uint32(cosignerIndex)
	}
	key, err = key.Derive(hardenedOffset + final)
	if err != nil {
		return nil, fmt.Errorf("deriving account: %w", err)
	}
	return key, nil
}
