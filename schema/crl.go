package schema

import (
	"time"

	libcry "github.com/nabbar/genesis-mesh/crypto"
	liberr "github.com/nabbar/genesis-mesh/errors"
)

// RevocationEntry is one revoked certificate record within a CRL.
type RevocationEntry struct {
	CertID    string    `json:"cert_id"`
	RevokedAt time.Time `json:"revoked_at"`
	Reason    string    `json:"reason"`
	Issuer    string    `json:"issuer"`
}

// CRL is the Certificate Revocation List: sequence-versioned and gossiped.
// A CRL with sequence <= the currently installed one is rejected.
type CRL struct {
	CRLID      string            `json:"crl_id"`
	Sequence   uint64            `json:"sequence"`
	IssueTime  time.Time         `json:"issue_time"`
	NextUpdate time.Time         `json:"next_update"`
	Issuer     string            `json:"issuer"`
	Entries    []RevocationEntry `json:"entries"`
	Signed
}

type crlSigningView struct {
	CRLID      string            `json:"crl_id"`
	Sequence   uint64            `json:"sequence"`
	IssueTime  time.Time         `json:"issue_time"`
	NextUpdate time.Time         `json:"next_update"`
	Issuer     string            `json:"issuer"`
	Entries    []RevocationEntry `json:"entries"`
}

func (c CRL) Canonical() ([]byte, liberr.Error) {
	return libcry.Canonical(crlSigningView{
		CRLID:      c.CRLID,
		Sequence:   c.Sequence,
		IssueTime:  c.IssueTime,
		NextUpdate: c.NextUpdate,
		Issuer:     c.Issuer,
		Entries:    c.Entries,
	})
}

func (c *CRL) SignNA(keyID string, sk libcry.PrivateKey) liberr.Error {
	canonical, err := c.Canonical()
	if err != nil {
		return err
	}
	c.Sign(keyID, sk, canonical)
	return nil
}

// Verify checks the CRL's NA signature against the Genesis Block's NA key.
func (c CRL) Verify(gb GenesisBlock) bool {
	naKey, e := gb.NAPublicKey()
	if e != nil {
		return false
	}
	canonical, err := c.Canonical()
	if err != nil {
		return false
	}
	trusted := map[string]libcry.PublicKey{gb.NetworkAuthority.PublicKey: naKey}
	for _, s := range c.Signatures {
		trusted[s.KeyID] = naKey
	}
	return c.VerifyAny(canonical, trusted)
}

// SupersedesSequence reports whether candidate strictly dominates current
// under the CRL progression rule (strictly greater sequence).
func SupersedesSequence(currentSeq, candidateSeq uint64) bool {
	return candidateSeq > currentSeq
}

// IsRevoked reports whether certID appears in the CRL's entries.
func (c CRL) IsRevoked(certID string) bool {
	for _, e := range c.Entries {
		if e.CertID == certID {
			return true
		}
	}
	return false
}
