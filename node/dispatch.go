/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

package node

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nabbar/genesis-mesh/connection"
	"github.com/nabbar/genesis-mesh/control"
	"github.com/nabbar/genesis-mesh/discovery"
	liberr "github.com/nabbar/genesis-mesh/errors"
	liblog "github.com/nabbar/genesis-mesh/logger"
	"github.com/nabbar/genesis-mesh/revocation"
	"github.com/nabbar/genesis-mesh/routing"
	"github.com/nabbar/genesis-mesh/schema"
)

func marshalPayload(v interface{}) (json.RawMessage, liberr.Error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindValidation, "marshal payload", err)
	}
	return raw, nil
}

func unmarshalPayload(raw json.RawMessage, v interface{}) liberr.Error {
	if err := json.Unmarshal(raw, v); err != nil {
		return liberr.Wrap(liberr.KindValidation, "unmarshal payload", err)
	}
	return nil
}

// onConnMessage is every connection's OnMessage callback: it dispatches an
// inbound application message (anything but ping/pong, which connection
// already answers) to the owning subsystem by wire type.
func (n *Node) onConnMessage(c *connection.Connection, msg schema.WireMessage) {
	switch msg.Type {
	case schema.MsgHandshake:
		n.handleHandshake(c, msg)
	case schema.MsgHandshakeAck:
		// The connection has already marked itself established on the ack.
	case schema.MsgPeerRequest:
		n.handlePeerRequest(c)
	case schema.MsgPeerResponse, schema.MsgPeerAnnounce:
		n.handlePeerAdvert(msg)
	case schema.MsgRouteAnnounce, schema.MsgRouteUpdate:
		n.handleRouteAnnounce(c, msg)
	case schema.MsgRouteWithdraw:
		n.handleRouteWithdraw(c, msg)
	case schema.MsgData:
		n.Router.Route(msg, c.PeerID())
	case schema.MsgControlMessage:
		n.handleControl(msg)
	case schema.MsgRevocation:
		n.handleRevocation(c, msg)
	default:
		n.deliverLocal(msg)
	}
}

// handleHandshake verifies the peer's presented certificate against the
// Genesis Block, admits (or rewrites a placeholder for) the peer, answers
// with our own HANDSHAKE if the peer dialed us, and marks the connection
// established.
func (n *Node) handleHandshake(c *connection.Connection, msg schema.WireMessage) {
	var hp handshakePayload
	if err := unmarshalPayload(msg.Payload, &hp); err != nil {
		c.MarkFailed()
		return
	}
	if !hp.Certificate.Verify(n.opts.Identity.Genesis, time.Now()) {
		c.MarkFailed()
		return
	}
	if n.isCertRevoked(hp.Certificate.CertID) {
		c.MarkFailed()
		return
	}

	previousID := c.PeerID()
	// A connection we dialed still carries its bootstrap placeholder id; any
	// other provisional id means the peer dialed us.
	peerDialedUs := discovery.PlaceholderID(endpointOf(previousID)) != previousID
	n.rekey(previousID, hp.NodeID)

	n.mu.RLock()
	endpoint := n.endpoints[hp.NodeID]
	n.mu.RUnlock()

	isAnchor := hp.Certificate.HasRole("role:anchor")
	_ = n.Peers.Add(schema.PeerState{
		NodeID:       hp.NodeID,
		Endpoint:     endpoint,
		Roles:        hp.Certificate.Roles,
		LastSeen:     time.Now(),
		IsAnchor:     isAnchor,
		ConnectionID: c.ID(),
	})
	n.Routes.AddNeighbor(hp.NodeID, 1)

	if peerDialedUs {
		n.sendHandshake(c)
	}
	ack := schema.WireMessage{
		MessageID: uuid.NewString(),
		Type:      schema.MsgHandshakeAck,
		Timestamp: time.Now().Unix(),
		SenderID:  n.selfID,
		TTL:       1,
	}
	_ = c.Send(n.runCtx, ack, true)
	c.MarkEstablished()
}

// rekey moves a connection (and, if previousID was a bootstrap placeholder,
// the corresponding peer record) from its provisional id to the peer's real
// node id once learned via handshake.
func (n *Node) rekey(previousID, realID string) {
	if previousID == realID {
		return
	}

	n.mu.Lock()
	if c, ok := n.conns[previousID]; ok {
		delete(n.conns, previousID)
		n.conns[realID] = c
		c.SetPeerID(realID)
	}
	if ep, ok := n.endpoints[previousID]; ok {
		delete(n.endpoints, previousID)
		n.endpoints[realID] = ep
	}
	n.mu.Unlock()

	if discovery.PlaceholderID(endpointOf(previousID)) == previousID {
		_ = n.Discovery.ResolveAnchor(endpointOf(previousID), realID)
	}
}

func endpointOf(placeholderOrID string) string {
	const prefix = "anchor-placeholder:"
	if len(placeholderOrID) > len(prefix) && placeholderOrID[:len(prefix)] == prefix {
		return placeholderOrID[len(prefix):]
	}
	return placeholderOrID
}

func (n *Node) onConnStateChange(c *connection.Connection, from, to connection.State) {
	if to != connection.StateClosed && to != connection.StateFailed {
		return
	}

	n.mu.Lock()
	for id, conn := range n.conns {
		if conn == c {
			delete(n.conns, id)
			break
		}
	}
	n.mu.Unlock()

	n.Routes.RemoveNeighbor(c.PeerID())
	n.Peers.Update(c.PeerID(), func(p *schema.PeerState) { p.ConnectionID = "" })
}

// --- discovery wiring ---------------------------------------------------

func (n *Node) sendPeerRequest(neighborID string) liberr.Error {
	msg := schema.WireMessage{
		MessageID: uuid.NewString(),
		Type:      schema.MsgPeerRequest,
		Timestamp: time.Now().Unix(),
		SenderID:  n.selfID,
		TTL:       1,
	}
	return n.sendWireToNeighbor(neighborID, msg)
}

func (n *Node) sendPeerAnnounce(neighborID string, sample []discovery.PeerAdvert) liberr.Error {
	payload, err := marshalPayload(sample)
	if err != nil {
		return err
	}
	msg := schema.WireMessage{
		MessageID: uuid.NewString(),
		Type:      schema.MsgPeerAnnounce,
		Timestamp: time.Now().Unix(),
		SenderID:  n.selfID,
		TTL:       1,
		Payload:   payload,
	}
	return n.sendWireToNeighbor(neighborID, msg)
}

func (n *Node) handlePeerRequest(c *connection.Connection) {
	sample := n.Discovery.BuildSample(discovery.PushSampleSize)
	payload, err := marshalPayload(sample)
	if err != nil {
		return
	}
	resp := schema.WireMessage{
		MessageID: uuid.NewString(),
		Type:      schema.MsgPeerResponse,
		Timestamp: time.Now().Unix(),
		SenderID:  n.selfID,
		TTL:       1,
		Payload:   payload,
	}
	_ = c.Send(n.runCtx, resp, false)
}

func (n *Node) handlePeerAdvert(msg schema.WireMessage) {
	var adverts []discovery.PeerAdvert
	if err := unmarshalPayload(msg.Payload, &adverts); err != nil {
		return
	}
	n.Discovery.HandleInbound(adverts)
}

// --- routing wiring ------------------------------------------------------

func (n *Node) sendRouteAdvertisement(neighborID string, ads []routing.Advertisement) {
	payload, err := marshalPayload(ads)
	if err != nil {
		return
	}
	msg := schema.WireMessage{
		MessageID: uuid.NewString(),
		Type:      schema.MsgRouteAnnounce,
		Timestamp: time.Now().Unix(),
		SenderID:  n.selfID,
		TTL:       1,
		Payload:   payload,
	}
	_ = n.sendWireToNeighbor(neighborID, msg)
}

func (n *Node) handleRouteAnnounce(c *connection.Connection, msg schema.WireMessage) {
	var ads []routing.Advertisement
	if err := unmarshalPayload(msg.Payload, &ads); err != nil {
		return
	}
	n.routeProto.HandleAnnouncement(c.PeerID(), ads)
}

func (n *Node) handleRouteWithdraw(c *connection.Connection, msg schema.WireMessage) {
	var destinations []string
	if err := unmarshalPayload(msg.Payload, &destinations); err != nil {
		return
	}
	n.routeProto.HandleWithdraw(c.PeerID(), destinations)
}

// --- control-plane wiring -------------------------------------------------

func (n *Node) handleControl(msg schema.WireMessage) {
	var cm schema.ControlMessage
	if err := unmarshalPayload(msg.Payload, &cm); err != nil {
		return
	}
	_ = n.Control.Handle(cm)
}

func (n *Node) onControlOutcome(cm schema.ControlMessage, outcome control.Outcome, detail string) {
	if outcome == control.OutcomeApplied {
		n.Metrics.ControlAppliedTotal.Inc()
	} else if outcome != control.OutcomeNotTargeted {
		n.Metrics.ControlRejectedTotal.Inc()
	}
	_, _ = n.Audit.Append(cm.MessageID, "control_message", cm.IssuerKeyID, stringOrEmpty(cm.Target), string(cm.Command), string(outcome),
		map[string]interface{}{"detail": detail, "scope": cm.Scope})
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (n *Node) onPolicyUpdate(cm schema.ControlMessage) liberr.Error {
	var p schema.Policy
	if err := decodeData(cm.Data, &p); err != nil {
		return err
	}
	if !p.Verify(n.opts.Identity.Genesis) {
		return liberr.New(liberr.KindSignature, "invalid signature")
	}
	n.policyMu.Lock()
	n.policy = p
	n.policyMu.Unlock()
	return nil
}

// Policy returns the currently installed policy manifest.
func (n *Node) Policy() schema.Policy {
	n.policyMu.RLock()
	defer n.policyMu.RUnlock()
	return n.policy
}

func (n *Node) onRevokeCertificate(cm schema.ControlMessage) liberr.Error {
	certID, _ := cm.Data["cert_id"].(string)
	if certID == "" {
		return liberr.New(liberr.KindValidation, "missing cert_id")
	}
	n.revokedMu.Lock()
	n.revokedByControl[certID] = struct{}{}
	n.revokedMu.Unlock()
	return nil
}

func (n *Node) isCertRevoked(certID string) bool {
	n.revokedMu.RLock()
	_, controlRevoked := n.revokedByControl[certID]
	n.revokedMu.RUnlock()
	return controlRevoked || n.Revocation.IsRevoked(certID)
}

func (n *Node) onRevokeNode(cm schema.ControlMessage) liberr.Error {
	nodeID, _ := cm.Data["node_id"].(string)
	if nodeID == "" {
		return liberr.New(liberr.KindValidation, "missing node_id")
	}
	n.Peers.Remove(nodeID)

	n.mu.RLock()
	c, ok := n.conns[nodeID]
	n.mu.RUnlock()
	if ok {
		_ = c.Close()
	}
	return nil
}

func (n *Node) onUpdateBootstrap(cm schema.ControlMessage) liberr.Error {
	raw, ok := cm.Data["anchors"]
	if !ok {
		return liberr.New(liberr.KindValidation, "missing anchors")
	}
	items, ok := raw.([]interface{})
	if !ok {
		return liberr.New(liberr.KindValidation, "anchors must be a list")
	}
	endpoints := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			endpoints = append(endpoints, s)
		}
	}
	n.Discovery.SeedBootstrapAnchors(endpoints)
	return nil
}

func (n *Node) onShutdownNode(cm schema.ControlMessage, grace time.Duration) liberr.Error {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-n.runCtx.Done():
		case <-timer.C:
			n.Stop()
		}
	}()
	return nil
}

func decodeData(data map[string]interface{}, v interface{}) liberr.Error {
	raw, err := json.Marshal(data)
	if err != nil {
		return liberr.Wrap(liberr.KindValidation, "encode control data", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return liberr.Wrap(liberr.KindValidation, "decode control data", err)
	}
	return nil
}

// --- revocation wiring -----------------------------------------------------

func (n *Node) sendRevocationEnvelope(neighborID string, env revocation.Envelope) liberr.Error {
	payload, err := marshalPayload(env)
	if err != nil {
		return err
	}
	msg := schema.WireMessage{
		MessageID: uuid.NewString(),
		Type:      schema.MsgRevocation,
		Timestamp: time.Now().Unix(),
		SenderID:  n.selfID,
		TTL:       1,
		Payload:   payload,
	}
	return n.sendWireToNeighbor(neighborID, msg)
}

func (n *Node) handleRevocation(c *connection.Connection, msg schema.WireMessage) {
	var env revocation.Envelope
	if err := unmarshalPayload(msg.Payload, &env); err != nil {
		return
	}

	switch env.Action {
	case revocation.ActionAnnounceSequence:
		n.Revocation.HandleAnnounce(c.PeerID(), env.Sequence)
	case revocation.ActionRequestCRL:
		if resp, ok := n.Revocation.HandleRequest(env.Sequence); ok {
			_ = n.sendRevocationEnvelope(c.PeerID(), resp)
		}
	case revocation.ActionCRLData:
		if env.CRL != nil {
			n.Revocation.HandleData(*env.CRL)
		}
	case revocation.ActionEmergencyCRL:
		if env.CRL != nil {
			n.Revocation.HandleEmergency(*env.CRL)
		}
	}
}

func (n *Node) onCRLInstalled(crl schema.CRL) {
	n.Metrics.CRLSequence.Set(float64(crl.Sequence))
	announce := n.Revocation.Announce()
	for _, neighborID := range n.Peers.DirectNeighbors() {
		_ = n.sendRevocationEnvelope(neighborID, announce)
	}
}

// --- certificate renewal wiring -------------------------------------------

func (n *Node) onCertRenewed(cert schema.Certificate) {
	n.logger.Info("certificate renewed", liblog.Fields{"cert_id": cert.CertID, "expires_at": cert.ExpiresAt})
}

func (n *Node) onCertRenewalFatal(lastErr liberr.Error) {
	n.logger.Fatal("certificate renewal exhausted its retry budget", liblog.Fields{"error": lastErr.Error()})
}
