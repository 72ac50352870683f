package control_test

import (
	"testing"
	"time"

	"github.com/nabbar/genesis-mesh/control"
	libcry "github.com/nabbar/genesis-mesh/crypto"
	liberr "github.com/nabbar/genesis-mesh/errors"
	"github.com/nabbar/genesis-mesh/rbac"
	"github.com/nabbar/genesis-mesh/schema"
)

func signed(t *testing.T, sk libcry.PrivateKey, keyID string, cmd schema.Command, scope schema.Scope, roles []string, target *string) schema.ControlMessage {
	t.Helper()
	cm := schema.ControlMessage{
		MessageID:   "m-" + string(cmd),
		Command:     cmd,
		Scope:       scope,
		IssuerKeyID: keyID,
		IssuerRoles: roles,
		IssuedAt:    time.Now(),
		Target:      target,
	}
	if err := cm.SignAs(keyID, sk); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return cm
}

func TestHandleDispatchesAuthorizedCommand(t *testing.T) {
	pk, sk, _ := libcry.GenerateKey()
	e := rbac.New(map[string]libcry.PublicKey{"admin-key": pk})

	var applied bool
	h := control.New("node-A", e, control.Callbacks{
		OnRevokeNode: func(cm schema.ControlMessage) liberr.Error { applied = true; return nil },
	})

	cm := signed(t, sk, "admin-key", schema.CommandRevokeNode, schema.ScopeNetwork, []string{rbac.RoleAdmin}, nil)
	if err := h.Handle(cm); err != nil {
		t.Fatalf("expected dispatch to succeed, got %v", err)
	}
	if !applied {
		t.Fatal("expected OnRevokeNode to be invoked")
	}
}

func TestHandleRejectsReplay(t *testing.T) {
	pk, sk, _ := libcry.GenerateKey()
	e := rbac.New(map[string]libcry.PublicKey{"admin-key": pk})

	calls := 0
	h := control.New("node-A", e, control.Callbacks{
		OnRevokeNode: func(cm schema.ControlMessage) liberr.Error { calls++; return nil },
	})

	cm := signed(t, sk, "admin-key", schema.CommandRevokeNode, schema.ScopeNetwork, []string{rbac.RoleAdmin}, nil)
	if err := h.Handle(cm); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	if err := h.Handle(cm); err == nil {
		t.Fatal("expected replayed message id to be rejected")
	}
	if calls != 1 {
		t.Fatalf("expected handler invoked exactly once, got %d", calls)
	}
}

func TestHandleRejectsUnauthorizedRole(t *testing.T) {
	pk, sk, _ := libcry.GenerateKey()
	e := rbac.New(map[string]libcry.PublicKey{"client-key": pk})

	h := control.New("node-A", e, control.Callbacks{
		OnShutdownNode: func(cm schema.ControlMessage, grace time.Duration) liberr.Error { return nil },
	})

	cm := signed(t, sk, "client-key", schema.CommandShutdownNode, schema.ScopeNode, []string{rbac.RoleClient}, nil)
	if err := h.Handle(cm); err == nil {
		t.Fatal("expected client role to be denied SHUTDOWN_NODE")
	}
}

func TestHandleIgnoresMessageNotTargetingThisNode(t *testing.T) {
	pk, sk, _ := libcry.GenerateKey()
	e := rbac.New(map[string]libcry.PublicKey{"admin-key": pk})

	var applied bool
	h := control.New("node-A", e, control.Callbacks{
		OnShutdownNode: func(cm schema.ControlMessage, grace time.Duration) liberr.Error { applied = true; return nil },
	})

	other := "node-B"
	cm := signed(t, sk, "admin-key", schema.CommandShutdownNode, schema.ScopeNode, []string{rbac.RoleAdmin}, &other)
	if err := h.Handle(cm); err != nil {
		t.Fatalf("expected non-targeted message to be a no-op, got %v", err)
	}
	if applied {
		t.Fatal("expected handler not to run for a message targeting a different node")
	}
}

func TestHandleAllowsRetryAfterAuthorizationFailure(t *testing.T) {
	clientPub, clientSk, _ := libcry.GenerateKey()
	adminPub, adminSk, _ := libcry.GenerateKey()
	e := rbac.New(map[string]libcry.PublicKey{"client-key": clientPub, "admin-key": adminPub})

	var calls int
	h := control.New("node-A", e, control.Callbacks{
		OnRevokeNode: func(cm schema.ControlMessage) liberr.Error { calls++; return nil },
	})

	const messageID = "m-retry"
	unauthorized := schema.ControlMessage{
		MessageID:   messageID,
		Command:     schema.CommandRevokeNode,
		Scope:       schema.ScopeNetwork,
		IssuerKeyID: "client-key",
		IssuerRoles: []string{rbac.RoleClient},
		IssuedAt:    time.Now(),
	}
	if err := unauthorized.SignAs("client-key", clientSk); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := h.Handle(unauthorized); err == nil {
		t.Fatal("expected client role to be denied REVOKE_NODE")
	}
	if calls != 0 {
		t.Fatalf("expected handler not invoked on authorization failure, got %d calls", calls)
	}

	corrected := schema.ControlMessage{
		MessageID:   messageID,
		Command:     schema.CommandRevokeNode,
		Scope:       schema.ScopeNetwork,
		IssuerKeyID: "admin-key",
		IssuerRoles: []string{rbac.RoleAdmin},
		IssuedAt:    time.Now(),
	}
	if err := corrected.SignAs("admin-key", adminSk); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := h.Handle(corrected); err != nil {
		t.Fatalf("expected the resubmitted message id to be accepted, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected handler invoked exactly once after the corrected resubmission, got %d", calls)
	}

	if err := h.Handle(corrected); err == nil {
		t.Fatal("expected a second resubmission of the now-applied message id to be rejected as a replay")
	}
	if calls != 1 {
		t.Fatalf("expected handler not invoked again on replay, got %d calls", calls)
	}
}

func TestRotateKeysDefaultsToReservedError(t *testing.T) {
	pk, sk, _ := libcry.GenerateKey()
	e := rbac.New(map[string]libcry.PublicKey{"admin-key": pk})
	h := control.New("node-A", e, control.Callbacks{})

	cm := signed(t, sk, "admin-key", schema.CommandRotateKeys, schema.ScopeNetwork, []string{rbac.RoleAdmin}, nil)
	if err := h.Handle(cm); err == nil {
		t.Fatal("expected the default ROTATE_KEYS handler to report reserved/not implemented")
	}
}
