/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package schema defines the wire-level data model of a Genesis Mesh
// network: the Genesis Block, Join Certificate, Policy Manifest, CRL,
// Control Message, Wire Message, Peer State and Route, plus their canonical
// serialization and signature verification.
package schema

import (
	liberr "github.com/nabbar/genesis-mesh/errors"

	libcry "github.com/nabbar/genesis-mesh/crypto"
)

// Signature is one signer's attestation over an object's canonical encoding.
type Signature struct {
	KeyID string `json:"key_id"`
	Value string `json:"value"` // base64-standard-encoded Ed25519 signature
}

// Signed is embedded by every trust-bearing schema type to carry its
// signature list. It is never part of the canonical encoding of the owning
// type (callers marshal a signing-view shadow struct that omits it).
type Signed struct {
	Signatures []Signature `json:"signatures,omitempty"`
}

// Sign appends a new signature over canonical (the owning type's canonical
// bytes, which must already exclude Signatures) using sk, tagged with keyID.
func (s *Signed) Sign(keyID string, sk libcry.PrivateKey, canonical []byte) {
	sig := libcry.Sign(sk, canonical)
	s.Signatures = append(s.Signatures, Signature{
		KeyID: keyID,
		Value: encodeSig(sig),
	})
}

// VerifyAny reports whether at least one signature verifies against the
// public key registered for its KeyID in trusted.
func (s *Signed) VerifyAny(canonical []byte, trusted map[string]libcry.PublicKey) bool {
	for _, sig := range s.Signatures {
		if verifyOne(sig, canonical, trusted) {
			return true
		}
	}
	return false
}

// VerifyAll reports whether every signature verifies against the public key
// registered for its KeyID in trusted, and there is at least one signature.
func (s *Signed) VerifyAll(canonical []byte, trusted map[string]libcry.PublicKey) bool {
	if len(s.Signatures) == 0 {
		return false
	}
	for _, sig := range s.Signatures {
		if !verifyOne(sig, canonical, trusted) {
			return false
		}
	}
	return true
}

// CountValid returns how many signatures verify against trusted, used by the
// RBAC enforcer's "threshold" mode.
func (s *Signed) CountValid(canonical []byte, trusted map[string]libcry.PublicKey) int {
	n := 0
	for _, sig := range s.Signatures {
		if verifyOne(sig, canonical, trusted) {
			n++
		}
	}
	return n
}

func verifyOne(sig Signature, canonical []byte, trusted map[string]libcry.PublicKey) bool {
	pk, ok := trusted[sig.KeyID]
	if !ok {
		return false
	}
	raw, err := decodeSig(sig.Value)
	if err != nil {
		return false
	}
	return libcry.Verify(pk, canonical, raw)
}

func encodeSig(b []byte) string {
	return libcry.EncodeSig(b)
}

func decodeSig(s string) ([]byte, liberr.Error) {
	return libcry.DecodeSig(s)
}
