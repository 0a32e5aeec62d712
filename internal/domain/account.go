package domain

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// ErrInvalidAccount is returned for malformed SS58 addresses.
var ErrInvalidAccount = errors.New("invalid account address")

// ss58Prefix is prepended to the payload before hashing for the checksum.
var ss58Prefix = []byte("SS58PRE")

// Account is an SS58-encoded 32-byte account address.
type Account string

// String returns the address text.
func (a Account) String() string {
	return string(a)
}

// ParseAccount validates an SS58 address (1- or 2-byte network prefix, 32-byte key,
// 2-byte blake2b checksum).
func ParseAccount(s string) (Account, error) {
	if _, _, err := decodeSS58(s); err != nil {
		return "", err
	}
	return Account(s), nil
}

// PublicKey returns the 32-byte public key and network prefix.
func (a Account) PublicKey() ([]byte, uint16, error) {
	return decodeSS58(string(a))
}

// EncodeAccount encodes a public key under network prefix.
func EncodeAccount(prefix uint16, pubkey [32]byte) Account {
	var head []byte
	if prefix < 64 {
		head = []byte{byte(prefix)}
	} else {
		head = []byte{
			byte((prefix&0b1111_1100)>>2) | 0b0100_0000,
			byte(prefix>>8) | byte((prefix&0b0000_0011)<<6),
		}
	}
	payload := append(head, pubkey[:]...)
	sum := ss58Checksum(payload)
	return Account(base58.Encode(append(payload, sum[:2]...)))
}

func decodeSS58(s string) ([]byte, uint16, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}

	var prefixLen int
	var prefix uint16
	switch {
	case len(raw) == 1+32+2 && raw[0] < 64:
		prefixLen = 1
		prefix = uint16(raw[0])
	case len(raw) == 2+32+2 && raw[0]&0b1100_0000 == 0b0100_0000:
		prefixLen = 2
		lower := uint16(raw[0]&0b0011_1111)<<2 | uint16(raw[1]>>6)
		upper := uint16(raw[1] & 0b0011_1111)
		prefix = lower | upper<<8
	default:
		return nil, 0, fmt.Errorf("%w: unexpected length %d", ErrInvalidAccount, len(raw))
	}

	payload := raw[:len(raw)-2]
	sum := ss58Checksum(payload)
	if !bytes.Equal(sum[:2], raw[len(raw)-2:]) {
		return nil, 0, fmt.Errorf("%w: checksum mismatch", ErrInvalidAccount)
	}
	return payload[prefixLen:], prefix, nil
}

func ss58Checksum(payload []byte) [64]byte {
	buf := make([]byte, 0, len(ss58Prefix)+len(payload))
	buf = append(buf, ss58Prefix...)
	buf = append(buf, payload...)
	return blake2b.Sum512(buf)
}
