package txscript

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kaswalletd/kaswalletd/pkg/kaspaaddr"
)

func TestPayToPubKeyScript(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}

	script := PayToPubKeyScript(key)
	assert.Len(t, script, 34)
	assert.Equal(t, OpData32, script[0])
	assert.Equal(t, key[:], script[1:33])
	assert.Equal(t, OpCheckSig, script[33])
}

func TestMultisigRedeemScriptSortsKeys(t *testing.T) {
	var k1, k2 [32]byte
	k1[0] = 0x02
	k2[0] = 0x01

	script, err := MultisigRedeemScript([][32]byte{k1, k2}, 2)
	assert.NoError(t, err)

	// minSignatures byte, then the lexicographically-smaller key first.
	assert.Equal(t, byte(2), script[0])
	assert.Equal(t, OpData32, script[1])
	assert.Equal(t, k2[:], script[2:34])
	assert.Equal(t, byte(2), script[len(script)-2])
	assert.Equal(t, OpCheckMultiSig, script[len(script)-1])
}

func TestMultisigRedeemScriptRejectsInvalidThreshold(t *testing.T) {
	var k1 [32]byte
	_, err := MultisigRedeemScript([][32]byte{k1}, 0)
	assert.Error(t, err)

	_, err = MultisigRedeemScript([][32]byte{k1}, 2)
	assert.Error(t, err)
}

func TestPayToScriptHashScript(t *testing.T) {
	redeem := []byte{0x01, 0x02, 0x03}
	script := PayToScriptHashScript(redeem)
	assert.Len(t, script, 35)
	assert.Equal(t, OpHash256, script[0])
	assert.Equal(t, OpData32, script[1])
	assert.Equal(t, OpEqual, script[34])
}

func TestPayToAddressScriptP2PK(t *testing.T) {
	addr := kaspaaddr.New(kaspaaddr.PrefixMainnet, kaspaaddr.VersionPubKey, make([]byte, 32))
	script, err := PayToAddressScript(addr)
	assert.NoError(t, err)
	assert.Equal(t, OpData32, script[0])
	assert.Equal(t, OpCheckSig, script[len(script)-1])
}

func TestPayToAddressScriptP2SH(t *testing.T) {
	addr := kaspaaddr.New(kaspaaddr.PrefixMainnet, kaspaaddr.VersionScriptHash, make([]byte, 32))
	script, err := PayToAddressScript(addr)
	assert.NoError(t, err)
	assert.Equal(t, OpHash256, script[0])
	assert.Equal(t, OpEqual, script[len(script)-1])
}

func TestPayToAddressScriptRejectsBadPayloadLength(t *testing.T) {
	addr := kaspaaddr.New(kaspaaddr.PrefixMainnet, kaspaaddr.VersionPubKey, make([]byte, 10))
	_, err := PayToAddressScript(addr)
	assert.Error(t, err)
}

func TestPayToAddressScriptRejectsUnknownVersion(t *testing.T) {
	addr := kaspaaddr.New(kaspaaddr.PrefixMainnet, kaspaaddr.Version(0x99), make([]byte, 32))
	_, err := PayToAddressScript(addr)
	assert.Error(t, err)
}

func TestExtractScriptPubKeyAddress(t *testing.T) {
	redeem := []byte{0xde, 0xad, 0xbe, 0xef}
	addr := ExtractScriptPubKeyAddress(redeem, kaspaaddr.PrefixTestnet)

	assert.Equal(t, kaspaaddr.PrefixTestnet, addr.Prefix)
	assert.Equal(t, kaspaaddr.VersionScriptHash, addr.Version)
	assert.Len(t, addr.Payload, 32)

	p2sh := PayToScriptHashScript(redeem)
	direct, err := PayToAddressScript(addr)
	assert.NoError(t, err)
	assert.Equal(t, p2sh, direct)
}
