package schema

import (
	"time"

	libcry "github.com/nabbar/genesis-mesh/crypto"
	liberr "github.com/nabbar/genesis-mesh/errors"
)

// Certificate is the Join Certificate issued by a Network Authority to an
// admitted node. Canonical field names are CertID / IssuedAt / ExpiresAt.
type Certificate struct {
	CertID        string    `json:"cert_id"`
	NodePublicKey string    `json:"node_public_key"` // base64 Ed25519 public key
	NetworkName   string    `json:"network_name"`
	Roles         []string  `json:"roles"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	IssuerKeyID   string    `json:"issuer_key_id"`
	Signed
}

type certificateSigningView struct {
	CertID        string    `json:"cert_id"`
	NodePublicKey string    `json:"node_public_key"`
	NetworkName   string    `json:"network_name"`
	Roles         []string  `json:"roles"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	IssuerKeyID   string    `json:"issuer_key_id"`
}

// Canonical returns the canonical JSON bytes signed by the NA.
func (c Certificate) Canonical() ([]byte, liberr.Error) {
	return libcry.Canonical(certificateSigningView{
		CertID:        c.CertID,
		NodePublicKey: c.NodePublicKey,
		NetworkName:   c.NetworkName,
		Roles:         c.Roles,
		IssuedAt:      c.IssuedAt,
		ExpiresAt:     c.ExpiresAt,
		IssuerKeyID:   c.IssuerKeyID,
	})
}

// SignNA signs the certificate's canonical form with the NA's private key.
func (c *Certificate) SignNA(keyID string, sk libcry.PrivateKey) liberr.Error {
	canonical, err := c.Canonical()
	if err != nil {
		return err
	}
	c.Sign(keyID, sk, canonical)
	return nil
}

// IsValid reports whether now lies in [IssuedAt, ExpiresAt]. It does not
// check the NA signature; see Verify for the full acceptance rule.
func (c Certificate) IsValid(now time.Time) bool {
	return !now.Before(c.IssuedAt) && !now.After(c.ExpiresAt)
}

// RemainingFraction returns the fraction (0..1) of validity window still
// remaining at time now, used by the certificate manager's renewal trigger.
// Returns 0 if expired or malformed (ExpiresAt <= IssuedAt).
func (c Certificate) RemainingFraction(now time.Time) float64 {
	total := c.ExpiresAt.Sub(c.IssuedAt)
	if total <= 0 {
		return 0
	}
	remaining := c.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	if remaining > total {
		return 1
	}
	return float64(remaining) / float64(total)
}

// Verify implements the full cert acceptance rule: the NA signature must
// verify against the NA key embedded in gb, the network name must match,
// and now must lie within the validity window.
func (c Certificate) Verify(gb GenesisBlock, now time.Time) bool {
	if c.NetworkName != gb.NetworkName {
		return false
	}
	if !c.IsValid(now) {
		return false
	}
	naKey, e := gb.NAPublicKey()
	if e != nil {
		return false
	}
	canonical, err := c.Canonical()
	if err != nil {
		return false
	}
	return c.VerifyAny(canonical, map[string]libcry.PublicKey{c.IssuerKeyID: naKey, gb.NetworkAuthority.PublicKey: naKey})
}

// NodeKey decodes the certificate's bound node public key.
func (c Certificate) NodeKey() (libcry.PublicKey, liberr.Error) {
	return libcry.ParsePublicKey(c.NodePublicKey)
}

// HasRole reports whether the certificate grants the given role.
func (c Certificate) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
