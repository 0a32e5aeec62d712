package domain

import (
	"encoding/hex"
	"errors"
	"testing"
)

const aliceSubstrate = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"

func alicePublicKey(t *testing.T) [32]byte {
	t.Helper()
	raw, err := hex.DecodeString("d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d")
	if err != nil {
		t.Fatal(err)
	}
	var key [32]byte
	copy(key[:], raw)
	return key
}

func TestParseAccount_KnownAddress(t *testing.T) {
	acc, err := ParseAccount(aliceSubstrate)
	if err != nil {
		t.Fatalf("ParseAccount() error = %v", err)
	}
	pub, prefix, err := acc.PublicKey()
	if err != nil {
		t.Fatalf("PublicKey() error = %v", err)
	}
	if prefix != 42 {
		t.Errorf("prefix = %d, want 42", prefix)
	}
	want := alicePublicKey(t)
	if hex.EncodeToString(pub) != hex.EncodeToString(want[:]) {
		t.Errorf("PublicKey() = %x, want %x", pub, want)
	}
	if got := EncodeAccount(42, want); got != aliceSubstrate {
		t.Errorf("EncodeAccount() = %s, want %s", got, aliceSubstrate)
	}
}

func TestEncodeAccount_RoundTrip(t *testing.T) {
	key := alicePublicKey(t)
	for _, prefix := range []uint16{0, 2, 42, 63, 64, 73, 1000, 16383} {
		acc := EncodeAccount(prefix, key)
		pub, gotPrefix, err := acc.PublicKey()
		if err != nil {
			t.Fatalf("prefix %d: PublicKey() error = %v", prefix, err)
		}
		if gotPrefix != prefix {
			t.Errorf("prefix %d: decoded prefix %d", prefix, gotPrefix)
		}
		if string(pub) != string(key[:]) {
			t.Errorf("prefix %d: public key mismatch", prefix)
		}
	}
}

func TestParseAccount_Invalid(t *testing.T) {
	tampered := []byte(aliceSubstrate)
	tampered[10] = 'a'
	if tampered[10] == aliceSubstrate[10] {
		tampered[10] = 'b'
	}

	for _, s := range []string{"", "not-base58-0OIl", "5Grwva", string(tampered)} {
		if _, err := ParseAccount(s); !errors.Is(err, ErrInvalidAccount) {
			t.Errorf("ParseAccount(%q) error = %v, want ErrInvalidAccount", s, err)
		}
	}
}
