package keystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSealAndOpenMnemonicRoundTrip(t *testing.T) {
	em, err := sealMnemonic("abandon abandon about", "correct horse battery staple")
	assert.NoError(t, err)
	assert.NotEmpty(t, em.Cipher)
	assert.Len(t, em.Salt, saltSize)

	plain, err := openMnemonic(em, "correct horse battery staple")
	assert.NoError(t, err)
	assert.Equal(t, "abandon abandon about", plain)
}

func TestOpenMnemonicWrongPassword(t *testing.T) {
	em, err := sealMnemonic("some mnemonic words here", "rightpassword")
	assert.NoError(t, err)

	_, err = openMnemonic(em, "wrongpassword")
	assert.Error(t, err)
}

func TestOpenMnemonicMalformedCipher(t *testing.T) {
	em := EncryptedMnemonic{Cipher: []byte{1, 2, 3}, Salt: make([]byte, saltSize)}
	_, err := openMnemonic(em, "password")
	assert.Error(t, err)
}

func TestEncryptedMnemonicHexRoundTrip(t *testing.T) {
	em, err := sealMnemonic("mnemonic phrase", "pw")
	assert.NoError(t, err)

	decoded, err := encryptedMnemonicFromHex(em.cipherHex(), em.saltHex())
	assert.NoError(t, err)
	assert.Equal(t, em.Cipher, decoded.Cipher)
	assert.Equal(t, em.Salt, decoded.Salt)
}

func TestEncryptedMnemonicFromHexRejectsBadHex(t *testing.T) {
	_, err := encryptedMnemonicFromHex("zz", "00")
	assert.Error(t, err)

	_, err = encryptedMnemonicFromHex("00", "zz")
	assert.Error(t, err)
}
