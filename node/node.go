/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package node wires every subsystem package (transport, connection, peer,
// routing, router, discovery, rbac, control, revocation, certmanager,
// audit, metrics) into one running Genesis Mesh node, and implements
// config.Component so the node can be sequenced by config.Manager alongside
// any other components a binary registers.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nabbar/genesis-mesh/audit"
	"github.com/nabbar/genesis-mesh/certmanager"
	"github.com/nabbar/genesis-mesh/config"
	"github.com/nabbar/genesis-mesh/connection"
	"github.com/nabbar/genesis-mesh/control"
	"github.com/nabbar/genesis-mesh/discovery"
	liberr "github.com/nabbar/genesis-mesh/errors"
	liblog "github.com/nabbar/genesis-mesh/logger"
	"github.com/nabbar/genesis-mesh/metrics"
	"github.com/nabbar/genesis-mesh/peer"
	"github.com/nabbar/genesis-mesh/rbac"
	"github.com/nabbar/genesis-mesh/revocation"
	"github.com/nabbar/genesis-mesh/router"
	"github.com/nabbar/genesis-mesh/routing"
	"github.com/nabbar/genesis-mesh/schema"
	"github.com/nabbar/genesis-mesh/status"
	libtck "github.com/nabbar/genesis-mesh/ticker"
	"github.com/nabbar/genesis-mesh/transport"
)

// Options configures a Node at construction time.
type Options struct {
	Cfg      config.NodeConfig
	Identity Identity
	Logger   liblog.Logger

	RBACMode      rbac.SignatureMode
	RBACThreshold int

	// RenewCert requests a fresh Join Certificate from the Network
	// Authority. A nil value disables automatic certificate renewal.
	RenewCert certmanager.RenewFunc
}

// Node is one running Genesis Mesh node.
type Node struct {
	opts   Options
	selfID string
	logger liblog.Logger

	Metrics *metrics.Metrics
	Health  *metrics.Health

	Peers      *peer.Manager
	Routes     *routing.Table
	routeProto *routing.Protocol
	Router     *router.Router
	Discovery  *discovery.Service
	RBAC       *rbac.Enforcer
	Control    *control.Handler
	Revocation *revocation.Store
	Certs      *certmanager.Manager
	Audit      *audit.Log

	dialer   transport.Dialer
	listener transport.Listener

	mu        sync.RWMutex
	conns     map[string]*connection.Connection // peerID -> live connection
	endpoints map[string]string                 // peerID -> remote endpoint, as known at dial/accept time

	policyMu sync.RWMutex
	policy   schema.Policy

	revokedMu sync.RWMutex
	revokedByControl map[string]struct{}

	// Deliver, if set, receives every DATA message addressed to this node,
	// and every inbound wire message of a type the node has no handler for.
	// A nil Deliver drops locally-addressed application messages (valid for
	// a pure relay node).
	Deliver func(msg schema.WireMessage)

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Node and wires every subsystem together. The node is not
// listening or dialing anything yet; call Start to bring it up.
func New(opts Options) (*Node, liberr.Error) {
	if opts.Logger == nil {
		opts.Logger = liblog.Discard()
	}

	n := &Node{
		opts:             opts,
		selfID:           opts.Identity.NodeID,
		logger:           opts.Logger.WithFields(liblog.Fields{"node_id": opts.Identity.NodeID}),
		Metrics:          metrics.New(),
		Health:           metrics.NewHealth(),
		conns:            make(map[string]*connection.Connection),
		endpoints:        make(map[string]string),
		revokedByControl: make(map[string]struct{}),
	}

	n.Peers = peer.New(n.selfID, peer.Default())
	n.Routes = routing.New(n.selfID, routing.Default())
	n.routeProto = routing.NewProtocol(n.Routes, n.sendRouteAdvertisement, n.onRoutesEvicted)
	n.Router = router.New(n.selfID, n.Peers.DirectNeighbors, n.Routes.Get, n.hasConnection, n.sendWireToNeighbor, n.deliverLocal)
	n.Discovery = discovery.New(n.selfID, n.Peers, n.sendPeerRequest, n.sendPeerAnnounce)

	n.RBAC = rbac.New(opts.Identity.TrustedControlKeys)
	n.RBAC.Mode = opts.RBACMode
	n.RBAC.Threshold = opts.RBACThreshold

	n.Control = control.New(n.selfID, n.RBAC, control.Callbacks{
		OnPolicyUpdate:      n.onPolicyUpdate,
		OnRevokeCertificate: n.onRevokeCertificate,
		OnRevokeNode:        n.onRevokeNode,
		OnUpdateBootstrap:   n.onUpdateBootstrap,
		OnShutdownNode:      n.onShutdownNode,
	})
	n.Control.SetObserver(n.onControlOutcome)

	n.Revocation = revocation.New(opts.Identity.Genesis, n.sendRevocationEnvelope, n.onCRLInstalled)
	n.Audit = audit.New(n.selfID)

	if opts.RenewCert != nil {
		n.Certs = certmanager.New(opts.Identity.Cert, opts.RenewCert, n.onCertRenewed, n.onCertRenewalFatal)
	}

	dialer, listener, err := buildTransport(opts.Cfg)
	if err != nil {
		return nil, err
	}
	n.dialer = dialer
	n.listener = listener

	n.Health.Register("certificate", metrics.CheckerFunc(n.checkCertificateHealth))
	n.Health.Register("connections", metrics.CheckerFunc(n.checkConnectionHealth))

	return n, nil
}

func buildTransport(cfg config.NodeConfig) (transport.Dialer, transport.Listener, liberr.Error) {
	switch cfg.Transport {
	case "tcp":
		ln, err := transport.ListenTCP(cfg.ListenAddr)
		if err != nil {
			return nil, nil, err
		}
		return transport.TCPDialer{}, ln, nil
	case "websocket", "":
		ln := transport.NewWebsocketListener(cfg.ListenAddr, "/mesh")
		go func() { _ = ln.Serve() }()
		return transport.WebsocketDialer{}, ln, nil
	default:
		return nil, nil, liberr.New(liberr.KindValidation, fmt.Sprintf("unknown transport %q", cfg.Transport))
	}
}

// --- config.Component -------------------------------------------------

func (n *Node) Name() string           { return "node" }
func (n *Node) Dependencies() []string { return nil }

func (n *Node) Init(*config.Store) liberr.Error { return nil }

func (n *Node) Start(ctx context.Context) liberr.Error {
	cctx, cancel := context.WithCancel(ctx)
	n.runCtx = cctx
	n.cancel = cancel

	n.routeProto.Start(cctx)
	n.Discovery.Start(cctx)
	// Periodic CRL announce to every direct neighbor; it ends with cctx.
	libtck.New(60*time.Second, func(context.Context, *time.Ticker) error {
		announce := n.Revocation.Announce()
		for _, neighborID := range n.Peers.DirectNeighbors() {
			_ = n.sendRevocationEnvelope(neighborID, announce)
		}
		return nil
	}).Start(cctx)
	if n.Certs != nil {
		n.Certs.Start(cctx)
	}

	n.Discovery.SeedBootstrapAnchors(n.opts.Cfg.BootstrapAnchors)
	for _, ep := range n.opts.Cfg.BootstrapAnchors {
		ep := ep
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.dialAnchor(cctx, ep); err != nil {
				n.logger.Warn("dial bootstrap anchor failed", liblog.Fields{"endpoint": ep, "error": err.Error()})
			}
		}()
	}

	n.wg.Add(1)
	go n.acceptLoop(cctx)

	return nil
}

func (n *Node) Reload(ctx context.Context) liberr.Error { return nil }

func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.routeProto.Stop()
	n.Discovery.Stop()
	if n.Certs != nil {
		n.Certs.Stop()
	}
	if n.listener != nil {
		_ = n.listener.Close()
	}

	n.mu.Lock()
	conns := make([]*connection.Connection, 0, len(n.conns))
	for _, c := range n.conns {
		conns = append(conns, c)
	}
	n.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}

	n.wg.Wait()
}

// --- connection lifecycle ----------------------------------------------

// Dial opens an outbound connection to endpoint and drives its handshake.
// The connection is admitted as an ordinary (non-anchor) peer; use
// dialAnchor for the bootstrap anchor list.
func (n *Node) Dial(ctx context.Context, endpoint string) liberr.Error {
	return n.dial(ctx, endpoint, false)
}

// dialAnchor is Dial for a configured bootstrap anchor endpoint, admitted
// against the anchor connection limit instead of the general peer limit.
func (n *Node) dialAnchor(ctx context.Context, endpoint string) liberr.Error {
	return n.dial(ctx, endpoint, true)
}

func (n *Node) dial(ctx context.Context, endpoint string, isAnchor bool) liberr.Error {
	if !n.Peers.CanAdmitConnection(isAnchor) {
		return liberr.New(liberr.KindValidation, "connection limit reached")
	}

	t, err := n.dialer.Dial(ctx, endpoint)
	if err != nil {
		return err
	}
	placeholder := discovery.PlaceholderID(endpoint)
	if n.adopt(t, placeholder, endpoint, true, isAnchor) == nil {
		return liberr.New(liberr.KindValidation, "connection limit reached")
	}
	return nil
}

func (n *Node) acceptLoop(ctx context.Context) {
	defer n.wg.Done()
	for {
		t, err := n.listener.Accept(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				n.logger.Warn("accept failed", liblog.Fields{"error": err.Error()})
				continue
			}
		}
		// The remote's anchor role is only known after handshake, so an
		// inbound connection is admitted against the general peer limit.
		if n.adopt(t, uuid.NewString(), t.RemoteEndpoint(), false, false) == nil {
			n.logger.Warn("rejected inbound connection: limit reached", liblog.Fields{"endpoint": t.RemoteEndpoint()})
			_ = t.Close()
		}
	}
}

// adopt wraps a newly dialed or accepted transport in a Connection under a
// provisional peer id (a bootstrap placeholder for dials, a random id for
// accepts), starts it, and sends the first HANDSHAKE frame on the dialing
// side. The responder answers a verified HANDSHAKE with its own HANDSHAKE
// and a HANDSHAKE_ACK, and the dialer answers the responder's HANDSHAKE
// with a HANDSHAKE_ACK (see dispatch.go); each side marks the connection
// ESTABLISHED once it has verified the peer's HANDSHAKE, or on receipt of
// the peer's HANDSHAKE_ACK if that comes first. Returns nil without adopting if doing so
// would exceed the peer manager's connection limit for isAnchor.
func (n *Node) adopt(t transport.Transport, provisionalID, endpoint string, weDialed, isAnchor bool) *connection.Connection {
	if !n.Peers.CanAdmitConnection(isAnchor) {
		_ = t.Close()
		return nil
	}

	c := connection.New(provisionalID, t, connection.Config{Logger: n.logger}, n.onConnMessage, n.onConnStateChange)

	n.mu.Lock()
	n.conns[provisionalID] = c
	n.endpoints[provisionalID] = endpoint
	n.mu.Unlock()

	c.Start(n.runCtx)

	if weDialed {
		n.sendHandshake(c)
	}

	return c
}

func (n *Node) sendHandshake(c *connection.Connection) {
	msg, err := n.buildHandshake()
	if err != nil {
		n.logger.Error("build handshake failed", liblog.Fields{"error": err.Error()})
		return
	}
	_ = c.Send(n.runCtx, msg, true)
}

func (n *Node) buildHandshake() (schema.WireMessage, liberr.Error) {
	payload, jerr := marshalPayload(handshakePayload{
		NodeID:      n.selfID,
		Certificate: n.opts.Identity.Cert,
	})
	if jerr != nil {
		return schema.WireMessage{}, jerr
	}
	msg := schema.WireMessage{
		MessageID: uuid.NewString(),
		Type:      schema.MsgHandshake,
		Timestamp: time.Now().Unix(),
		SenderID:  n.selfID,
		TTL:       1,
		Payload:   payload,
	}
	if err := msg.Sign(n.opts.Identity.PrivateKey); err != nil {
		return schema.WireMessage{}, err
	}
	return msg, nil
}

type handshakePayload struct {
	NodeID      string             `json:"node_id"`
	Certificate schema.Certificate `json:"certificate"`
}

// hasConnection reports whether a live, ESTABLISHED connection exists to
// nodeID (router.HasConnection).
func (n *Node) hasConnection(nodeID string) bool {
	n.mu.RLock()
	c, ok := n.conns[nodeID]
	n.mu.RUnlock()
	return ok && c.State() == connection.StateEstablished
}

// sendWireToNeighbor delivers a pre-built WireMessage to a direct neighbor
// by node id (router.SendToNeighbor, routing's SendToNeighbor wrapper,
// discovery's request/announce wrappers, revocation's SendToNeighbor all
// build on this single primitive).
func (n *Node) sendWireToNeighbor(neighborID string, msg schema.WireMessage) liberr.Error {
	n.mu.RLock()
	c, ok := n.conns[neighborID]
	n.mu.RUnlock()
	if !ok {
		return liberr.New(liberr.KindTransport, "no connection to neighbor")
	}
	return c.Send(n.runCtx, msg, false)
}

// ListenAddr returns the local endpoint of this node's listener. For the tcp
// transport it is the address actually bound (so an ephemeral port asked
// for in config is resolved); the websocket listener reports the configured
// address unchanged.
func (n *Node) ListenAddr() string {
	return n.listener.LocalEndpoint()
}

// SendData originates a DATA message from this node's own application
// layer: recipientID addresses a single peer via the routing table, or
// empty broadcasts to every direct neighbor. It reuses the same Router
// that inbound forwarding goes through, with no originating neighbor to
// exclude.
func (n *Node) SendData(recipientID string, payload []byte) liberr.Error {
	msg := schema.WireMessage{
		MessageID: uuid.NewString(),
		Type:      schema.MsgData,
		Timestamp: time.Now().Unix(),
		SenderID:  n.selfID,
		TTL:       schema.DefaultTTL,
		Payload:   payload,
	}
	if recipientID != "" {
		msg.RecipientID = &recipientID
	}
	if err := msg.Sign(n.opts.Identity.PrivateKey); err != nil {
		return err
	}
	n.Router.Route(msg, "")
	return nil
}

func (n *Node) deliverLocal(msg schema.WireMessage) {
	if n.Deliver != nil {
		n.Deliver(msg)
	}
}

func (n *Node) onRoutesEvicted(destinations []string) {
	n.logger.Debug("routes evicted", liblog.Fields{"count": len(destinations)})
}

// checkCertificateHealth reports Warn once this node's certificate has
// crossed the renewal threshold, and KO once it has actually expired.
func (n *Node) checkCertificateHealth() (status.Status, string) {
	cert := n.opts.Identity.Cert
	if n.Certs != nil {
		cert = n.Certs.Certificate()
	}
	frac := cert.RemainingFraction(time.Now())
	n.Metrics.CertRemainingFraction.Set(frac)
	switch {
	case frac <= 0:
		return status.KO, "certificate expired"
	case frac <= certmanager.RenewAtFraction:
		return status.Warn, "certificate renewal pending"
	default:
		return status.OK, ""
	}
}

func (n *Node) checkConnectionHealth() (status.Status, string) {
	n.mu.RLock()
	count := len(n.conns)
	n.mu.RUnlock()
	n.Metrics.ConnectionsActive.Set(float64(count))
	n.Metrics.PeersKnown.Set(float64(n.Peers.Count()))
	n.Metrics.RoutesInstalled.Set(float64(len(n.Routes.All())))
	if count == 0 {
		return status.Warn, "no active connections"
	}
	return status.OK, ""
}
