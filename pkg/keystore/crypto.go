package keystore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

// Argon2 parameters for the password-derived symmetric key, conservative
// interactive-use defaults.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = chacha20poly1305.KeySize
	saltSize     = 16
	nonceSize    = chacha20poly1305.NonceSizeX // 24 bytes, prepended to the ciphertext
)

// EncryptedMnemonic is the on-disk representation of one mnemonic, sealed
// under a password. Cipher is the 24-byte XChaCha20-Poly1305 nonce prepended
// to the ciphertext; Salt feeds the Argon2 key derivation. Both are
// hex-encoded when the key file is marshaled to JSON.
type EncryptedMnemonic struct {
	Cipher []byte
	Salt   []byte
}

// sealMnemonic encrypts a plaintext BIP39 mnemonic phrase under password:
// Argon2(password, salt) keys an XChaCha20-Poly1305 AEAD over the mnemonic,
// with the 24-byte nonce prepended to the ciphertext.
func sealMnemonic(mnemonic, password string) (EncryptedMnemonic, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return EncryptedMnemonic{}, fmt.Errorf("keystore: generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return EncryptedMnemonic{}, fmt.Errorf("keystore: constructing AEAD: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return EncryptedMnemonic{}, fmt.Errorf("keystore: generating nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(mnemonic), nil)
	cipher := append(nonce, sealed...)

	return EncryptedMnemonic{Cipher: cipher, Salt: salt}, nil
}

// openMnemonic decrypts an EncryptedMnemonic with password. Decryption
// failures surface as user-input errors, never internal ones: the most
// common cause is a wrong password.
func openMnemonic(em EncryptedMnemonic, password string) (string, error) {
	if len(em.Cipher) < nonceSize {
		return "", walletmodel.NewUserInputError("encrypted mnemonic is malformed")
	}

	key := argon2.IDKey([]byte(password), em.Salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", walletmodel.WrapInternalServerError(err, "constructing AEAD")
	}

	nonce := em.Cipher[:nonceSize]
	ciphertext := em.Cipher[nonceSize:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", walletmodel.WrapUserInputError(err, "wrong password")
	}

	return string(plaintext), nil
}

func (em EncryptedMnemonic) cipherHex() string { return hex.EncodeToString(em.Cipher) }
func (em EncryptedMnemonic) saltHex() string   { return hex.EncodeToString(em.Salt) }

func encryptedMnemonicFromHex(cipherHex, saltHex string) (EncryptedMnemonic, error) {
	cipher, err := hex.DecodeString(cipherHex)
	if err != nil {
		return EncryptedMnemonic{}, fmt.Errorf("keystore: decoding cipher hex: %w", err)
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return EncryptedMnemonic{}, fmt.Errorf("keystore: decoding salt hex: %w", err)
	}
	return EncryptedMnemonic{Cipher: cipher, Salt: salt}, nil
}
