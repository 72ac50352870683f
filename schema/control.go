package schema

import (
	"time"

	libcry "github.com/nabbar/genesis-mesh/crypto"
	liberr "github.com/nabbar/genesis-mesh/errors"
)

// Command enumerates the control-plane operations.
type Command string

const (
	CommandPolicyUpdate     Command = "POLICY_UPDATE"
	CommandRevokeCertificate Command = "REVOKE_CERTIFICATE"
	CommandRevokeNode       Command = "REVOKE_NODE"
	CommandUpdateBootstrap  Command = "UPDATE_BOOTSTRAP"
	CommandShutdownNode     Command = "SHUTDOWN_NODE"
	CommandRotateKeys       Command = "ROTATE_KEYS"
)

// Scope enumerates the blast radius of a control message.
type Scope string

const (
	ScopeNetwork Scope = "network"
	ScopeRegion  Scope = "region"
	ScopeNode    Scope = "node"
	ScopeService Scope = "service"
)

// ControlMessage is the signed, role-gated administrative command.
type ControlMessage struct {
	MessageID   string                 `json:"message_id"`
	Command     Command                `json:"command"`
	Scope       Scope                  `json:"scope"`
	IssuerKeyID string                 `json:"issuer_key_id"`
	IssuerRoles []string               `json:"issuer_roles"`
	IssuedAt    time.Time              `json:"issued_at"`
	ExpiresAt   *time.Time             `json:"expires_at,omitempty"`
	Target      *string                `json:"target,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Signed
}

type controlSigningView struct {
	MessageID   string                 `json:"message_id"`
	Command     Command                `json:"command"`
	Scope       Scope                  `json:"scope"`
	IssuerKeyID string                 `json:"issuer_key_id"`
	IssuerRoles []string               `json:"issuer_roles"`
	IssuedAt    time.Time              `json:"issued_at"`
	ExpiresAt   *time.Time             `json:"expires_at,omitempty"`
	Target      *string                `json:"target,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

func (c ControlMessage) Canonical() ([]byte, liberr.Error) {
	return libcry.Canonical(controlSigningView{
		MessageID:   c.MessageID,
		Command:     c.Command,
		Scope:       c.Scope,
		IssuerKeyID: c.IssuerKeyID,
		IssuerRoles: c.IssuerRoles,
		IssuedAt:    c.IssuedAt,
		ExpiresAt:   c.ExpiresAt,
		Target:      c.Target,
		Data:        c.Data,
	})
}

// SignAs signs the control message's canonical form as keyID using sk.
func (c *ControlMessage) SignAs(keyID string, sk libcry.PrivateKey) liberr.Error {
	canonical, err := c.Canonical()
	if err != nil {
		return err
	}
	c.Sign(keyID, sk, canonical)
	return nil
}

// IsExpired reports whether the message has an ExpiresAt in the past
// relative to now. A nil ExpiresAt never expires.
func (c ControlMessage) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// TargetsNode reports whether this message's Target, if set, equals nodeID.
// An unset Target always matches (network-wide messages target everyone).
func (c ControlMessage) TargetsNode(nodeID string) bool {
	return c.Target == nil || *c.Target == nodeID
}
