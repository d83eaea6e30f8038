// Package kaspaaddr implements the address codec this daemon uses to turn a
// locking-script payload (an x-only public key or a script hash) into a
// human-readable, checksummed address string and back.
//
// The codec is a self-consistent, internally round-trippable scheme: a
// human-readable prefix, a version byte, the payload, and a 4-byte check
// value, with the body encoded via github.com/mr-tron/base58. Addresses
// produced here always parse back to the same triple.
package kaspaaddr

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Version identifies the script template an address encodes.
type Version byte

const (
	VersionPubKey      Version = 0x00 // P2PK, Schnorr x-only key, 32 bytes
	VersionPubKeyECDSA Version = 0x01 // P2PK, ECDSA key, 33 bytes
	VersionScriptHash  Version = 0x02 // P2SH, 32-byte script hash
)

// Prefix is the human-readable network prefix prepended to every address
// string, mirroring kaspa/kaspatest/kaspasim.
type Prefix string

const (
	PrefixMainnet Prefix = "kaspa"
	PrefixTestnet Prefix = "kaspatest"
	PrefixSimnet  Prefix = "kaspasim"
	PrefixDevnet  Prefix = "kaspadev"
)

// Address is a decoded, typed address.
type Address struct {
	Prefix  Prefix
	Version Version
	Payload []byte
}

// New builds an Address from its parts.
func New(prefix Prefix, version Version, payload []byte) Address {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return Address{Prefix: prefix, Version: version, Payload: cp}
}

// checksum returns a 4-byte check value over prefix||version||payload.
func checksum(prefix Prefix, version Version, payload []byte) [4]byte {
	h := sha256.New()
	h.Write([]byte(prefix))
	h.Write([]byte{byte(version)})
	h.Write(payload)
	sum := sha256.Sum256(h.Sum(nil))
	var out [4]byte
	copy(out[:], sum[:4])
	return out
}

// String renders the address as "<prefix>:<base58(version||payload||checksum)>".
func (a Address) String() string {
	cs := checksum(a.Prefix, a.Version, a.Payload)
	buf := make([]byte, 0, 1+len(a.Payload)+4)
	buf = append(buf, byte(a.Version))
	buf = append(buf, a.Payload...)
	buf = append(buf, cs[:]...)
	return string(a.Prefix) + ":" + base58.Encode(buf)
}

// Parse decodes an address string produced by String, validating the
// checksum and structural shape.
func Parse(s string) (Address, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Address{}, fmt.Errorf("kaspaaddr: missing network prefix separator in %q", s)
	}
	prefix := Prefix(parts[0])
	switch prefix {
	case PrefixMainnet, PrefixTestnet, PrefixSimnet, PrefixDevnet:
	default:
		return Address{}, fmt.Errorf("kaspaaddr: unknown network prefix %q", parts[0])
	}

	raw, err := base58.Decode(parts[1])
	if err != nil {
		return Address{}, fmt.Errorf("kaspaaddr: invalid base58 body: %w", err)
	}
	if len(raw) < 1+4 {
		return Address{}, fmt.Errorf("kaspaaddr: address body too short")
	}

	version := Version(raw[0])
	payload := raw[1 : len(raw)-4]
	var gotChecksum [4]byte
	copy(gotChecksum[:], raw[len(raw)-4:])

	want := checksum(prefix, version, payload)
	if gotChecksum != want {
		return Address{}, fmt.Errorf("kaspaaddr: checksum mismatch")
	}

	return Address{Prefix: prefix, Version: version, Payload: payload}, nil
}

// IsValid reports whether s parses as a well-formed address for the given
// network prefix.
func IsValid(s string, expected Prefix) bool {
	addr, err := Parse(s)
	if err != nil {
		return false
	}
	return addr.Prefix == expected
}
