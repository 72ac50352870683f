/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package control dispatches authorized Control Messages to per-command
// handlers, guarding against replay with a bounded, persistable message-id
// cache.
package control

import (
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"

	liberr "github.com/nabbar/genesis-mesh/errors"
	"github.com/nabbar/genesis-mesh/rbac"
	"github.com/nabbar/genesis-mesh/schema"
)

// ReplayTTL is the lifetime of a seen message id in the replay cache.
const ReplayTTL = time.Hour

// ReplayCapacity is the hard cap on tracked message ids; on overflow the
// cache is trimmed back down to ReplayRetain, keeping the newest entries.
const ReplayCapacity = 10000

// ReplayRetain is how many entries survive an overflow trim.
const ReplayRetain = 5000

// ShutdownGrace is the default delay before SHUTDOWN_NODE takes effect.
const ShutdownGrace = 30 * time.Second

// CommandHandler executes one authorized command.
type CommandHandler func(cm schema.ControlMessage) liberr.Error

// Outcome describes what happened to a dispatched control message, passed
// to the Observer for audit logging.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeReplay     Outcome = "replay"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeNoHandler  Outcome = "no_handler"
	OutcomeFailed     Outcome = "failed"
	OutcomeNotTargeted Outcome = "not_targeted"
)

// Observer is notified of every dispatch decision, typically wired to the
// audit log.
type Observer func(cm schema.ControlMessage, outcome Outcome, detail string)

// Callbacks wires the six control-plane commands. ROTATE_KEYS
// is reserved: a caller that does not supply OnRotateKeys gets the default
// "not implemented" handler.
type Callbacks struct {
	OnPolicyUpdate      CommandHandler
	OnRevokeCertificate CommandHandler
	OnRevokeNode        CommandHandler
	OnUpdateBootstrap   CommandHandler
	OnShutdownNode       func(cm schema.ControlMessage, grace time.Duration) liberr.Error
	OnRotateKeys        CommandHandler
}

// Handler is a node's control-plane command dispatcher.
type Handler struct {
	selfID   string
	enforcer *rbac.Enforcer
	handlers map[schema.Command]CommandHandler
	observer Observer

	replay *gocache.Cache
}

// New builds a Handler wired to enforcer for authorization and cb for
// command execution.
func New(selfID string, enforcer *rbac.Enforcer, cb Callbacks) *Handler {
	h := &Handler{
		selfID:   selfID,
		enforcer: enforcer,
		handlers: make(map[schema.Command]CommandHandler),
		replay:   gocache.New(ReplayTTL, time.Minute),
	}

	if cb.OnPolicyUpdate != nil {
		h.handlers[schema.CommandPolicyUpdate] = cb.OnPolicyUpdate
	}
	if cb.OnRevokeCertificate != nil {
		h.handlers[schema.CommandRevokeCertificate] = cb.OnRevokeCertificate
	}
	if cb.OnRevokeNode != nil {
		h.handlers[schema.CommandRevokeNode] = cb.OnRevokeNode
	}
	if cb.OnUpdateBootstrap != nil {
		h.handlers[schema.CommandUpdateBootstrap] = cb.OnUpdateBootstrap
	}
	if cb.OnShutdownNode != nil {
		shutdown := cb.OnShutdownNode
		h.handlers[schema.CommandShutdownNode] = func(cm schema.ControlMessage) liberr.Error {
			return shutdown(cm, ShutdownGrace)
		}
	}
	if cb.OnRotateKeys != nil {
		h.handlers[schema.CommandRotateKeys] = cb.OnRotateKeys
	} else {
		h.handlers[schema.CommandRotateKeys] = func(cm schema.ControlMessage) liberr.Error {
			return liberr.New(liberr.KindValidation, "ROTATE_KEYS is reserved and not yet implemented")
		}
	}

	return h
}

// SetObserver installs a callback notified of every dispatch outcome.
func (h *Handler) SetObserver(o Observer) {
	h.observer = o
}

// Handle authorizes and dispatches cm. Messages not targeting this node are
// silently ignored (TargetsNode is a broadcast-or-match check); replayed
// message ids and unauthorized messages are rejected without invoking any
// handler.
func (h *Handler) Handle(cm schema.ControlMessage) liberr.Error {
	if !cm.TargetsNode(h.selfID) {
		h.notify(cm, OutcomeNotTargeted, "")
		return nil
	}

	if _, dup := h.replay.Get(cm.MessageID); dup {
		h.notify(cm, OutcomeReplay, "duplicate message id")
		return liberr.New(liberr.KindStaleness, "control message already processed")
	}

	if err := h.enforcer.Authorize(cm, time.Now()); err != nil {
		h.notify(cm, OutcomeUnauthorized, err.Error())
		return err
	}

	handler, ok := h.handlers[cm.Command]
	if !ok {
		h.notify(cm, OutcomeNoHandler, string(cm.Command))
		return liberr.New(liberr.KindValidation, "no handler registered for command")
	}

	if err := handler(cm); err != nil {
		h.notify(cm, OutcomeFailed, err.Error())
		return err
	}

	h.remember(cm.MessageID)
	h.notify(cm, OutcomeApplied, "")
	return nil
}

func (h *Handler) notify(cm schema.ControlMessage, outcome Outcome, detail string) {
	if h.observer != nil {
		h.observer(cm, outcome, detail)
	}
}

func (h *Handler) remember(messageID string) {
	h.replay.SetDefault(messageID, time.Now())
	if h.replay.ItemCount() > ReplayCapacity {
		h.trimToRetain()
	}
}

// trimToRetain drops the oldest entries until the replay cache holds at
// most ReplayRetain ids, keeping the most recently seen ones.
func (h *Handler) trimToRetain() {
	items := h.replay.Items()
	type entry struct {
		id   string
		seen time.Time
	}
	all := make([]entry, 0, len(items))
	for id, it := range items {
		seenAt, _ := it.Object.(time.Time)
		all = append(all, entry{id: id, seen: seenAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seen.Before(all[j].seen) })

	toDrop := len(all) - ReplayRetain
	for i := 0; i < toDrop && i < len(all); i++ {
		h.replay.Delete(all[i].id)
	}
}

// Load restores the replay cache from a prior Save, so a restarted node
// does not re-apply control messages it had already processed.
func (h *Handler) Load(path string) liberr.Error {
	if err := h.replay.LoadFile(path); err != nil {
		return liberr.Wrap(liberr.KindTransport, "load control replay cache", err)
	}
	return nil
}

// Save persists the replay cache so it survives a restart.
func (h *Handler) Save(path string) liberr.Error {
	if err := h.replay.SaveFile(path); err != nil {
		return liberr.Wrap(liberr.KindTransport, "save control replay cache", err)
	}
	return nil
}
