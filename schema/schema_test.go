package schema_test

import (
	"time"

	"github.com/nabbar/genesis-mesh/crypto"
	"github.com/nabbar/genesis-mesh/schema"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func makeGenesis() (schema.GenesisBlock, crypto.PrivateKey) {
	rootPub, rootPriv, err := crypto.GenerateKey()
	Expect(err).ToNot(HaveOccurred())
	naPub, _, err := crypto.GenerateKey()
	Expect(err).ToNot(HaveOccurred())

	gb := schema.GenesisBlock{
		NetworkName:     "TEST",
		ProtocolVersion: "1",
		RootPublicKey:   rootPub.String(),
		NetworkAuthority: schema.NetworkAuthority{
			PublicKey: naPub.String(),
			ValidFrom: time.Now().Add(-time.Hour),
			ValidTo:   time.Now().Add(24 * time.Hour),
		},
		AllowedCryptoSuites: []string{"ed25519"},
		AllowedTransports:   []string{"websocket"},
		BootstrapAnchors:    []string{"anchor1.example:7000"},
	}
	Expect(gb.SignRoot(rootPriv)).ToNot(HaveOccurred())
	return gb, rootPriv
}

var _ = Describe("GenesisBlock", func() {
	It("verifies a freshly signed block and rejects a tampered one", func() {
		gb, _ := makeGenesis()
		Expect(gb.Verify()).To(BeTrue())

		tampered := gb
		tampered.NetworkName = "TEST2"
		Expect(tampered.Verify()).To(BeFalse())

		restored := tampered
		restored.NetworkName = gb.NetworkName
		Expect(restored.Verify()).To(BeTrue())
	})
})

var _ = Describe("Certificate", func() {
	It("honors its validity window boundaries", func() {
		now := time.Now()
		cert := schema.Certificate{
			CertID:    "cert-1",
			IssuedAt:  now.Add(-1 * time.Hour),
			ExpiresAt: now.Add(23 * time.Hour),
		}

		Expect(cert.IsValid(now)).To(BeTrue())
		Expect(cert.IsValid(now.Add(24 * time.Hour))).To(BeFalse())
		Expect(cert.IsValid(now.Add(-2 * time.Hour))).To(BeFalse())
	})

	It("verifies against the genesis block's NA key and rejects a network mismatch", func() {
		gb, _ := makeGenesis()
		naPub, naPriv, err := crypto.GenerateKey()
		Expect(err).ToNot(HaveOccurred())
		gb.NetworkAuthority.PublicKey = naPub.String()

		nodePub, _, err := crypto.GenerateKey()
		Expect(err).ToNot(HaveOccurred())

		now := time.Now()
		cert := schema.Certificate{
			CertID:        "cert-1",
			NodePublicKey: nodePub.String(),
			NetworkName:   gb.NetworkName,
			Roles:         []string{"role:client"},
			IssuedAt:      now.Add(-time.Hour),
			ExpiresAt:     now.Add(23 * time.Hour),
			IssuerKeyID:   gb.NetworkAuthority.PublicKey,
		}
		Expect(cert.SignNA(gb.NetworkAuthority.PublicKey, naPriv)).ToNot(HaveOccurred())

		Expect(cert.Verify(gb, now)).To(BeTrue())

		wrongNetwork := cert
		wrongNetwork.NetworkName = "OTHER"
		Expect(wrongNetwork.Verify(gb, now)).To(BeFalse())
	})
})

var _ = Describe("CRL sequence ordering", func() {
	It("only a strictly greater sequence supersedes", func() {
		Expect(schema.SupersedesSequence(5, 6)).To(BeTrue())
		Expect(schema.SupersedesSequence(5, 5)).To(BeFalse())
		Expect(schema.SupersedesSequence(5, 4)).To(BeFalse())
	})
})

var _ = Describe("Route dominance", func() {
	It("prefers a strictly newer sequence, then a smaller metric at equal sequence", func() {
		r := schema.Route{Sequence: 3, Metric: 5}

		Expect(r.Dominates(4, 9)).To(BeTrue())
		Expect(r.Dominates(3, 4)).To(BeTrue())
		Expect(r.Dominates(3, 5)).To(BeFalse())
		Expect(r.Dominates(2, 1)).To(BeFalse())
	})
})

var _ = Describe("ControlMessage canonical encoding", func() {
	It("is deterministic across repeated calls", func() {
		_, priv, err := crypto.GenerateKey()
		Expect(err).ToNot(HaveOccurred())

		target := "node-1"
		msg := schema.ControlMessage{
			MessageID:   "msg-1",
			Command:     schema.CommandPolicyUpdate,
			Scope:       schema.ScopeNetwork,
			IssuerKeyID: "issuer-1",
			IssuerRoles: []string{"role:admin"},
			IssuedAt:    time.Now().Truncate(time.Second),
			Target:      &target,
			Data:        map[string]interface{}{"policy_id": "p1"},
		}
		Expect(msg.SignAs("issuer-1", priv)).ToNot(HaveOccurred())

		c1, err := msg.Canonical()
		Expect(err).ToNot(HaveOccurred())
		c2, err := msg.Canonical()
		Expect(err).ToNot(HaveOccurred())
		Expect(string(c1)).To(Equal(string(c2)))
	})
})

var _ = Describe("WireMessage", func() {
	It("reports broadcast recipients and decrements TTL until unforwardable", func() {
		msg := schema.WireMessage{MessageID: "m1", Type: schema.MsgData, TTL: 1}
		Expect(msg.IsBroadcast()).To(BeTrue())

		_, ok := msg.DecrementTTL()
		Expect(ok).To(BeFalse())

		msg.TTL = 2
		next, ok := msg.DecrementTTL()
		Expect(ok).To(BeTrue())
		Expect(next.TTL).To(Equal(1))
	})
})
