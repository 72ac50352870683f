package crypto_test

import (
	"testing"

	"github.com/nabbar/genesis-mesh/crypto"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	msg := []byte("genesis-mesh")
	sig := crypto.Sign(priv, msg)

	if !crypto.Verify(pub, msg, sig) {
		t.Fatal("expected signature to verify")
	}

	tampered := append([]byte{}, msg...)
	tampered[0] ^= 0xFF
	if crypto.Verify(pub, tampered, sig) {
		t.Fatal("expected signature verification to fail on tampered message")
	}
}

func TestPublicKeyEqualByBytesNotString(t *testing.T) {
	pub, _, _ := crypto.GenerateKey()
	encoded := pub.String()

	parsed, err := crypto.ParsePublicKey(encoded)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}
	if !pub.Equal(parsed) {
		t.Fatal("expected round-tripped key to equal original")
	}
}

func TestParsePublicKeyInvalidBase64(t *testing.T) {
	if _, err := crypto.ParsePublicKey("not-base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestParsePublicKeyWrongLength(t *testing.T) {
	if _, err := crypto.ParsePublicKey("YQ=="); err == nil {
		t.Fatal("expected error for wrong-length key")
	}
}

func TestCanonicalKeyOrderingIsStable(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": 2, "c": map[string]interface{}{"z": 1, "y": 2}}
	b := map[string]interface{}{"c": map[string]interface{}{"y": 2, "z": 1}, "a": 2, "b": 1}

	ca, err := crypto.Canonical(a)
	if err != nil {
		t.Fatalf("canonical a: %v", err)
	}
	cb, err := crypto.Canonical(b)
	if err != nil {
		t.Fatalf("canonical b: %v", err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("expected canonical forms to match, got %q vs %q", ca, cb)
	}
	if string(ca) != `{"a":2,"b":1,"c":{"y":2,"z":1}}` {
		t.Fatalf("unexpected canonical form: %q", ca)
	}
}
