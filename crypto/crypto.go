/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package crypto provides the Ed25519 signing primitives and the canonical
// JSON encoding every trust-bearing object (Genesis Block, certificate,
// policy, CRL, control message) signs over.
//
// Verification failure, key malformation, and base64 decode errors are all
// surfaced as the same Signature-kind error: the caller never learns which
// one occurred, by design (no oracle distinction).
package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"sort"

	liberr "github.com/nabbar/genesis-mesh/errors"
)

// PublicKey is a 32-byte Ed25519 public key.
type PublicKey [ed25519.PublicKeySize]byte

// PrivateKey is a 64-byte Ed25519 private key (seed + public half).
type PrivateKey [ed25519.PrivateKeySize]byte

// GenerateKey creates a new random Ed25519 keypair.
func GenerateKey() (PublicKey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return PublicKey{}, PrivateKey{}, liberr.Wrap(liberr.KindFatal, "generate ed25519 key", err)
	}
	var pk PublicKey
	var sk PrivateKey
	copy(pk[:], pub)
	copy(sk[:], priv)
	return pk, sk, nil
}

// Equal compares two public keys by their decoded byte representation,
// never by string encoding.
func (p PublicKey) Equal(o PublicKey) bool {
	return bytes.Equal(p[:], o[:])
}

// String base64-standard-encodes the public key for storage/transport.
func (p PublicKey) String() string {
	return base64.StdEncoding.EncodeToString(p[:])
}

// ParsePublicKey decodes a base64-standard-encoded 32-byte public key.
// Decode failure and wrong length are both reported as a Signature-kind
// error, matching the "no oracle distinction" rule.
func ParsePublicKey(s string) (PublicKey, liberr.Error) {
	var pk PublicKey
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) != ed25519.PublicKeySize {
		return pk, liberr.New(liberr.KindSignature, "invalid signature")
	}
	copy(pk[:], b)
	return pk, nil
}

// ParsePrivateKey decodes a base64-standard-encoded 64-byte private key, or
// a 32-byte seed which is expanded into the full keypair.
func ParsePrivateKey(s string) (PrivateKey, liberr.Error) {
	var sk PrivateKey
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return sk, liberr.New(liberr.KindSignature, "invalid signature")
	}
	switch len(b) {
	case ed25519.PrivateKeySize:
		copy(sk[:], b)
		return sk, nil
	case ed25519.SeedSize:
		full := ed25519.NewKeyFromSeed(b)
		copy(sk[:], full)
		return sk, nil
	default:
		return sk, liberr.New(liberr.KindSignature, "invalid signature")
	}
}

// Sign produces an Ed25519 signature over data.
func Sign(sk PrivateKey, data []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(sk[:]), data)
}

// Verify reports whether sig is a valid Ed25519 signature over data under
// pk. It never distinguishes malformed input from a genuine mismatch.
func Verify(pk PublicKey, data, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pk[:]), data, sig)
}

// EncodeSig base64-standard-encodes a raw signature for wire transport.
func EncodeSig(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeSig decodes a base64-standard-encoded signature. Decode failure is
// reported as a Signature-kind error, not surfaced differently from a
// verification mismatch (no oracle distinction).
func DecodeSig(s string) ([]byte, liberr.Error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, liberr.New(liberr.KindSignature, "invalid signature")
	}
	return b, nil
}

// Canonical produces the canonical JSON encoding of v: object keys sorted
// lexicographically, no insignificant whitespace, and (by convention) the
// caller is responsible for excluding the object's own signature field
// before calling this, typically by marshaling a "signing view" struct that
// omits it.
func Canonical(v interface{}) ([]byte, liberr.Error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindValidation, "canonical encode", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, liberr.Wrap(liberr.KindValidation, "canonical decode", err)
	}

	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, liberr.Wrap(liberr.KindValidation, "canonical render", err)
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
