package schema

import (
	"time"

	libcry "github.com/nabbar/genesis-mesh/crypto"
	liberr "github.com/nabbar/genesis-mesh/errors"
)

// NetworkAuthority is the current NA record embedded in the Genesis Block.
type NetworkAuthority struct {
	PublicKey string    `json:"public_key"` // base64 Ed25519 public key
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
}

// PolicyManifestRef points at the policy manifest binding this network.
type PolicyManifestRef struct {
	ContentHash string `json:"content_hash"`
	URL         string `json:"url,omitempty"`
}

// GenesisBlock is the constitutional root of a Genesis Mesh network.
// It is immutable after signing.
type GenesisBlock struct {
	NetworkName       string             `json:"network_name"`
	ProtocolVersion   string             `json:"protocol_version"`
	RootPublicKey     string             `json:"root_public_key"` // base64 Ed25519 public key
	NetworkAuthority  NetworkAuthority   `json:"network_authority"`
	AllowedCryptoSuites []string         `json:"allowed_crypto_suites"`
	AllowedTransports []string           `json:"allowed_transports"`
	PolicyManifestRef PolicyManifestRef  `json:"policy_manifest_ref"`
	BootstrapAnchors  []string           `json:"bootstrap_anchors"`
	Signed
}

// genesisSigningView is the canonical encoding of a GenesisBlock: identical
// fields, signatures always omitted.
type genesisSigningView struct {
	NetworkName         string             `json:"network_name"`
	ProtocolVersion     string             `json:"protocol_version"`
	RootPublicKey       string             `json:"root_public_key"`
	NetworkAuthority    NetworkAuthority   `json:"network_authority"`
	AllowedCryptoSuites []string           `json:"allowed_crypto_suites"`
	AllowedTransports   []string           `json:"allowed_transports"`
	PolicyManifestRef   PolicyManifestRef  `json:"policy_manifest_ref"`
	BootstrapAnchors    []string           `json:"bootstrap_anchors"`
}

// Canonical returns the canonical JSON bytes signed by the root sovereign.
func (g GenesisBlock) Canonical() ([]byte, liberr.Error) {
	return libcry.Canonical(genesisSigningView{
		NetworkName:         g.NetworkName,
		ProtocolVersion:     g.ProtocolVersion,
		RootPublicKey:       g.RootPublicKey,
		NetworkAuthority:    g.NetworkAuthority,
		AllowedCryptoSuites: g.AllowedCryptoSuites,
		AllowedTransports:   g.AllowedTransports,
		PolicyManifestRef:   g.PolicyManifestRef,
		BootstrapAnchors:    g.BootstrapAnchors,
	})
}

// SignRoot signs the Genesis Block's canonical form with the Root Sovereign
// key, appending a signature keyed "root".
func (g *GenesisBlock) SignRoot(sk libcry.PrivateKey) liberr.Error {
	canonical, err := g.Canonical()
	if err != nil {
		return err
	}
	g.Sign("root", sk, canonical)
	return nil
}

// Verify checks the Genesis Block against its own embedded root public key:
// at least one signature must verify (root signatures may be split across
// multiple key custodians in an m-of-n scheme, but a single key is the
// common case).
func (g GenesisBlock) Verify() bool {
	pk, e := libcry.ParsePublicKey(g.RootPublicKey)
	if e != nil {
		return false
	}
	canonical, err := g.Canonical()
	if err != nil {
		return false
	}
	return g.VerifyAny(canonical, map[string]libcry.PublicKey{"root": pk})
}

// NAPublicKey decodes the current NA's public key from the Genesis Block.
func (g GenesisBlock) NAPublicKey() (libcry.PublicKey, liberr.Error) {
	return libcry.ParsePublicKey(g.NetworkAuthority.PublicKey)
}

// NAValidAt reports whether the NA record in the Genesis Block is valid at
// time t (used when verifying certs issued near an NA key rotation edge).
func (g GenesisBlock) NAValidAt(t time.Time) bool {
	na := g.NetworkAuthority
	return !t.Before(na.ValidFrom) && !t.After(na.ValidTo)
}
