package revocation_test

import (
	"time"

	"github.com/nabbar/genesis-mesh/crypto"
	liberr "github.com/nabbar/genesis-mesh/errors"
	"github.com/nabbar/genesis-mesh/revocation"
	"github.com/nabbar/genesis-mesh/schema"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func makeGenesisWithNA() (schema.GenesisBlock, crypto.PrivateKey) {
	rootPub, rootPriv, err := crypto.GenerateKey()
	Expect(err).ToNot(HaveOccurred())
	naPub, naPriv, err := crypto.GenerateKey()
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
	}
	Expect(gb.SignRoot(rootPriv)).ToNot(HaveOccurred())
	return gb, naPriv
}

func makeCRL(naPriv crypto.PrivateKey, seq uint64) schema.CRL {
	crl := schema.CRL{
		CRLID:      "crl-1",
		Sequence:   seq,
		IssueTime:  time.Now(),
		NextUpdate: time.Now().Add(time.Hour),
		Issuer:     "na",
	}
	Expect(crl.SignNA("na", naPriv)).ToNot(HaveOccurred())
	return crl
}

var _ = Describe("Store.HandleData", func() {
	It("accepts the first valid CRL", func() {
		gb, naPriv := makeGenesisWithNA()
		store := revocation.New(gb, nil, nil)

		Expect(store.HandleData(makeCRL(naPriv, 1))).To(BeTrue())
		Expect(store.CurrentSequence()).To(Equal(uint64(1)))
	})

	It("rejects an equal or older sequence, and accepts a strictly newer one", func() {
		gb, naPriv := makeGenesisWithNA()
		store := revocation.New(gb, nil, nil)

		store.HandleData(makeCRL(naPriv, 5))
		Expect(store.HandleData(makeCRL(naPriv, 5))).To(BeFalse())
		Expect(store.HandleData(makeCRL(naPriv, 3))).To(BeFalse())
		Expect(store.HandleData(makeCRL(naPriv, 6))).To(BeTrue())
	})

	It("rejects a CRL signed by an untrusted key", func() {
		gb, _ := makeGenesisWithNA()
		_, wrongPriv, err := crypto.GenerateKey()
		Expect(err).ToNot(HaveOccurred())
		store := revocation.New(gb, nil, nil)

		Expect(store.HandleData(makeCRL(wrongPriv, 1))).To(BeFalse())
	})
})

var _ = Describe("Store.HandleAnnounce", func() {
	It("requests the CRL when the announced sequence is ahead of ours", func() {
		gb, naPriv := makeGenesisWithNA()
		_ = makeCRL(naPriv, 1) // sanity: building a CRL under this genesis does not panic

		var requested bool
		store := revocation.New(gb, func(neighbor string, env revocation.Envelope) liberr.Error {
			if env.Action == revocation.ActionRequestCRL {
				requested = true
			}
			return nil
		}, nil)
		store.HandleAnnounce("neighborA", 5)

		Expect(requested).To(BeTrue())
	})

	It("pushes our current CRL unsolicited when the announcing neighbor is behind", func() {
		gb, naPriv := makeGenesisWithNA()

		var pushed *revocation.Envelope
		store := revocation.New(gb, func(neighbor string, env revocation.Envelope) liberr.Error {
			pushed = &env
			return nil
		}, nil)
		store.HandleData(makeCRL(naPriv, 3))

		store.HandleAnnounce("neighborBehind", 1)

		Expect(pushed).ToNot(BeNil())
		Expect(pushed.Action).To(Equal(revocation.ActionCRLData))
		Expect(pushed.CRL).ToNot(BeNil())
		Expect(pushed.CRL.Sequence).To(Equal(uint64(3)))
	})

	It("does nothing when the announced sequence equals ours", func() {
		gb, naPriv := makeGenesisWithNA()
		var calls int
		store := revocation.New(gb, func(neighbor string, env revocation.Envelope) liberr.Error {
			calls++
			return nil
		}, nil)
		store.HandleData(makeCRL(naPriv, 2))

		store.HandleAnnounce("neighborEven", 2)

		Expect(calls).To(Equal(0))
	})
})

var _ = Describe("Store.HandleRequest", func() {
	It("responds with crl_data only when the store is ahead of the requester", func() {
		gb, naPriv := makeGenesisWithNA()
		store := revocation.New(gb, nil, nil)
		store.HandleData(makeCRL(naPriv, 3))

		env, ok := store.HandleRequest(1)
		Expect(ok).To(BeTrue())
		Expect(env.Action).To(Equal(revocation.ActionCRLData))
		Expect(env.CRL).ToNot(BeNil())
		Expect(env.CRL.Sequence).To(Equal(uint64(3)))

		_, ok = store.HandleRequest(3)
		Expect(ok).To(BeFalse())
	})
})
