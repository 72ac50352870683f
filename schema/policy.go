package schema

import (
	"time"

	libcry "github.com/nabbar/genesis-mesh/crypto"
	liberr "github.com/nabbar/genesis-mesh/errors"
)

// Policy is the Policy Manifest governing per-role behavior on the network.
type Policy struct {
	PolicyID           string            `json:"policy_id"`
	IssuedAt           time.Time         `json:"issued_at"`
	MinClientVersion   string            `json:"min_client_version"`
	AllowedPorts       []int             `json:"allowed_ports"`
	AllowedServices    []string          `json:"allowed_services"`
	RoutingPreferences map[string]string `json:"routing_preferences,omitempty"`
	Signed
}

type policySigningView struct {
	PolicyID           string            `json:"policy_id"`
	IssuedAt           time.Time         `json:"issued_at"`
	MinClientVersion   string            `json:"min_client_version"`
	AllowedPorts       []int             `json:"allowed_ports"`
	AllowedServices    []string          `json:"allowed_services"`
	RoutingPreferences map[string]string `json:"routing_preferences,omitempty"`
}

func (p Policy) Canonical() ([]byte, liberr.Error) {
	return libcry.Canonical(policySigningView{
		PolicyID:           p.PolicyID,
		IssuedAt:            p.IssuedAt,
		MinClientVersion:   p.MinClientVersion,
		AllowedPorts:       p.AllowedPorts,
		AllowedServices:    p.AllowedServices,
		RoutingPreferences: p.RoutingPreferences,
	})
}

func (p *Policy) SignNA(keyID string, sk libcry.PrivateKey) liberr.Error {
	canonical, err := p.Canonical()
	if err != nil {
		return err
	}
	p.Sign(keyID, sk, canonical)
	return nil
}

// Verify checks the policy's NA signature against the Genesis Block's NA key.
func (p Policy) Verify(gb GenesisBlock) bool {
	naKey, e := gb.NAPublicKey()
	if e != nil {
		return false
	}
	canonical, err := p.Canonical()
	if err != nil {
		return false
	}
	trusted := map[string]libcry.PublicKey{gb.NetworkAuthority.PublicKey: naKey}
	for _, s := range p.Signatures {
		trusted[s.KeyID] = naKey
	}
	return p.VerifyAny(canonical, trusted)
}
