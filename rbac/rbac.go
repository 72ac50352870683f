/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package rbac enforces the control-plane permission matrix: which roles
// may issue which commands at which scopes, and how many valid signatures
// a control message needs before it is acted on.
package rbac

import (
	"time"

	libcry "github.com/nabbar/genesis-mesh/crypto"
	liberr "github.com/nabbar/genesis-mesh/errors"
	"github.com/nabbar/genesis-mesh/schema"
)

// Well-known roles. A node's certificate roles are free-form strings; these
// are the ones the default matrix recognizes.
const (
	RoleAdmin    = "role:admin"
	RoleOperator = "role:operator"
	RoleAnchor   = "role:anchor"
	RoleClient   = "role:client"
)

// Grant is the set of (command, scope) pairs a role may exercise.
type Grant struct {
	Commands map[schema.Command]bool
	Scopes   map[schema.Scope]bool
}

func allScopes() map[schema.Scope]bool {
	return map[schema.Scope]bool{
		schema.ScopeNetwork: true,
		schema.ScopeRegion:  true,
		schema.ScopeNode:    true,
		schema.ScopeService: true,
	}
}

// DefaultMatrix returns the permission matrix for the four well-known
// roles: admin may issue any command in any scope; operator may issue
// policy updates and bootstrap updates at network/region scope; anchor and
// client issue no commands.
func DefaultMatrix() map[string]Grant {
	return map[string]Grant{
		RoleAdmin: {
			Commands: map[schema.Command]bool{
				schema.CommandPolicyUpdate:      true,
				schema.CommandRevokeCertificate: true,
				schema.CommandRevokeNode:        true,
				schema.CommandUpdateBootstrap:   true,
				schema.CommandShutdownNode:      true,
				schema.CommandRotateKeys:        true,
			},
			Scopes: allScopes(),
		},
		RoleOperator: {
			Commands: map[schema.Command]bool{
				schema.CommandPolicyUpdate:    true,
				schema.CommandUpdateBootstrap: true,
			},
			Scopes: map[schema.Scope]bool{
				schema.ScopeNetwork: true,
				schema.ScopeRegion:  true,
			},
		},
		RoleAnchor: {
			Commands: map[schema.Command]bool{},
			Scopes:   map[schema.Scope]bool{},
		},
		RoleClient: {
			Commands: map[schema.Command]bool{},
			Scopes:   map[schema.Scope]bool{},
		},
	}
}

// SignatureMode selects how many of a control message's attached
// signatures must verify before it is accepted.
type SignatureMode int

const (
	// ModeAny accepts the message if at least one signature verifies.
	ModeAny SignatureMode = iota
	// ModeAll requires every attached signature to verify.
	ModeAll
	// ModeThreshold requires at least Enforcer.Threshold valid signatures.
	ModeThreshold
)

// Enforcer authorizes control messages against a permission matrix and a
// trusted issuer key set.
type Enforcer struct {
	Matrix    map[string]Grant
	Trusted   map[string]libcry.PublicKey
	Mode      SignatureMode
	Threshold int
}

// New constructs an Enforcer with the default permission matrix.
func New(trusted map[string]libcry.PublicKey) *Enforcer {
	return &Enforcer{Matrix: DefaultMatrix(), Trusted: trusted, Mode: ModeAny, Threshold: 1}
}

// Authorize reports whether cm may be acted on: it must not be expired,
// its signatures must satisfy the configured SignatureMode, and at least
// one of its issuer roles must be granted (cm.Command, cm.Scope).
func (e *Enforcer) Authorize(cm schema.ControlMessage, now time.Time) liberr.Error {
	if cm.IsExpired(now) {
		return liberr.New(liberr.KindStaleness, "control message has expired")
	}

	canonical, err := cm.Canonical()
	if err != nil {
		return err
	}

	if !e.signaturesSatisfy(cm, canonical) {
		return liberr.New(liberr.KindSignature, "control message signatures do not satisfy the configured policy")
	}

	for _, role := range cm.IssuerRoles {
		grant, ok := e.Matrix[role]
		if !ok {
			continue
		}
		if grant.Commands[cm.Command] && grant.Scopes[cm.Scope] {
			return nil
		}
	}

	return liberr.New(liberr.KindAuthorization, "no issuer role permits this command at this scope")
}

func (e *Enforcer) signaturesSatisfy(cm schema.ControlMessage, canonical []byte) bool {
	valid := cm.CountValid(canonical, e.Trusted)

	switch e.Mode {
	case ModeAll:
		return len(cm.Signatures) > 0 && valid == len(cm.Signatures)
	case ModeThreshold:
		threshold := e.Threshold
		if threshold <= 0 {
			threshold = 1
		}
		return valid >= threshold
	default: // ModeAny
		return valid >= 1
	}
}
