package rbac_test

import (
	"time"

	libcry "github.com/nabbar/genesis-mesh/crypto"
	"github.com/nabbar/genesis-mesh/rbac"
	"github.com/nabbar/genesis-mesh/schema"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func signedControl(keyID string, sk libcry.PrivateKey, cmd schema.Command, scope schema.Scope, roles []string) schema.ControlMessage {
	cm := schema.ControlMessage{
		MessageID:   "msg-1",
		Command:     cmd,
		Scope:       scope,
		IssuerKeyID: keyID,
		IssuerRoles: roles,
		IssuedAt:    time.Now(),
	}
	Expect(cm.SignAs(keyID, sk)).ToNot(HaveOccurred())
	return cm
}

var _ = Describe("Enforcer.Authorize", func() {
	It("lets an admin issue SHUTDOWN_NODE", func() {
		pk, sk, err := libcry.GenerateKey()
		Expect(err).ToNot(HaveOccurred())
		cm := signedControl("admin-key", sk, schema.CommandShutdownNode, schema.ScopeNode, []string{rbac.RoleAdmin})

		e := rbac.New(map[string]libcry.PublicKey{"admin-key": pk})
		Expect(e.Authorize(cm, time.Now())).ToNot(HaveOccurred())
	})

	It("denies an anchor SHUTDOWN_NODE", func() {
		pk, sk, err := libcry.GenerateKey()
		Expect(err).ToNot(HaveOccurred())
		cm := signedControl("anchor-key", sk, schema.CommandShutdownNode, schema.ScopeNode, []string{rbac.RoleAnchor})

		e := rbac.New(map[string]libcry.PublicKey{"anchor-key": pk})
		Expect(e.Authorize(cm, time.Now())).To(HaveOccurred())
	})

	It("denies a client every command", func() {
		pk, sk, err := libcry.GenerateKey()
		Expect(err).ToNot(HaveOccurred())
		e := rbac.New(map[string]libcry.PublicKey{"client-key": pk})
		for _, cmd := range []schema.Command{
			schema.CommandPolicyUpdate, schema.CommandRevokeCertificate, schema.CommandRevokeNode,
			schema.CommandUpdateBootstrap, schema.CommandShutdownNode, schema.CommandRotateKeys,
		} {
			cm := signedControl("client-key", sk, cmd, schema.ScopeNetwork, []string{rbac.RoleClient})
			Expect(e.Authorize(cm, time.Now())).To(HaveOccurred(), string(cmd))
		}
	})

	It("rejects a message from an untrusted signer", func() {
		_, sk, err := libcry.GenerateKey()
		Expect(err).ToNot(HaveOccurred())
		cm := signedControl("admin-key", sk, schema.CommandPolicyUpdate, schema.ScopeNetwork, []string{rbac.RoleAdmin})

		e := rbac.New(map[string]libcry.PublicKey{}) // admin-key not trusted
		Expect(e.Authorize(cm, time.Now())).To(HaveOccurred())
	})

	It("rejects an expired control message", func() {
		pk, sk, err := libcry.GenerateKey()
		Expect(err).ToNot(HaveOccurred())
		cm := signedControl("admin-key", sk, schema.CommandPolicyUpdate, schema.ScopeNetwork, []string{rbac.RoleAdmin})
		past := time.Now().Add(-time.Minute)
		cm.ExpiresAt = &past

		e := rbac.New(map[string]libcry.PublicKey{"admin-key": pk})
		Expect(e.Authorize(cm, time.Now())).To(HaveOccurred())
	})

	It("requires enough valid signatures to satisfy threshold mode", func() {
		pk1, sk1, err := libcry.GenerateKey()
		Expect(err).ToNot(HaveOccurred())
		pk2, sk2, err := libcry.GenerateKey()
		Expect(err).ToNot(HaveOccurred())

		cm := schema.ControlMessage{
			MessageID:   "msg-threshold",
			Command:     schema.CommandPolicyUpdate,
			Scope:       schema.ScopeNetwork,
			IssuerKeyID: "op1",
			IssuerRoles: []string{rbac.RoleOperator},
			IssuedAt:    time.Now(),
		}
		canonical, cerr := cm.Canonical()
		Expect(cerr).ToNot(HaveOccurred())
		cm.Sign("op1", sk1, canonical)

		e := rbac.New(map[string]libcry.PublicKey{"op1": pk1, "op2": pk2})
		e.Mode = rbac.ModeThreshold
		e.Threshold = 2

		Expect(e.Authorize(cm, time.Now())).To(HaveOccurred())

		cm.Sign("op2", sk2, canonical)
		Expect(e.Authorize(cm, time.Now())).ToNot(HaveOccurred())
	})
})
