package walletmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeychainString(t *testing.T) {
	assert.Equal(t, "external", External.String())
	assert.Equal(t, "internal", Internal.String())
}

func TestKeychainsOrder(t *testing.T) {
	assert.Equal(t, [2]Keychain{External, Internal}, Keychains)
}

func TestSignedStateString(t *testing.T) {
	assert.Equal(t, "unsigned", Unsigned.String())
	assert.Equal(t, "partially", Partially.String())
	assert.Equal(t, "fully", Fully.String())
}

func TestWalletAddressAsMapKey(t *testing.T) {
	a := WalletAddress{Index: 1, CosignerIndex: 0, Keychain: External}
	b := WalletAddress{Index: 1, CosignerIndex: 0, Keychain: External}
	c := WalletAddress{Index: 2, CosignerIndex: 0, Keychain: External}

	m := map[WalletAddress]bool{a: true}
	assert.True(t, m[b])
	assert.False(t, m[c])
}
