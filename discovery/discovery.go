/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package discovery implements peer gossip: bootstrap anchor seeding,
// periodic push/pull exchange of known peers, and placeholder rewriting
// once an anchor's real node id is learned at handshake.
package discovery

import (
	"context"
	"math/rand"
	"time"

	liberr "github.com/nabbar/genesis-mesh/errors"
	"github.com/nabbar/genesis-mesh/peer"
	"github.com/nabbar/genesis-mesh/schema"
	libtck "github.com/nabbar/genesis-mesh/ticker"
)

// GossipInterval is the periodic push/pull cadence.
const GossipInterval = 60 * time.Second

// PullFanout is the number of random non-anchor neighbors additionally
// polled for peer lists on every gossip round, alongside every anchor.
const PullFanout = 3

// PushSampleSize is the number of known peers pushed to each established
// neighbor on every gossip round.
const PushSampleSize = 10

// MaxKnownPeers bounds the size of the known-peer directory populated by
// inbound gossip, independent of the connection limits in peer.Config.
const MaxKnownPeers = 500

const anchorPlaceholderPrefix = "anchor-placeholder:"

// PeerAdvert is one entry of a peer_announce / peer_response payload.
type PeerAdvert struct {
	NodeID   string   `json:"node_id"`
	Endpoint string   `json:"endpoint"`
	Roles    []string `json:"roles"`
}

// RequestPeers asks neighborID for its known-peer list (peer_request).
type RequestPeers func(neighborID string) liberr.Error

// AnnouncePeers pushes a sample of known peers to neighborID (peer_announce).
type AnnouncePeers func(neighborID string, sample []PeerAdvert) liberr.Error

// Service drives the periodic gossip cycle over a peer.Manager.
type Service struct {
	selfID  string
	manager *peer.Manager

	request  RequestPeers
	announce AnnouncePeers

	ticker libtck.Ticker
}

// New constructs a discovery Service.
func New(selfID string, manager *peer.Manager, request RequestPeers, announce AnnouncePeers) *Service {
	return &Service{selfID: selfID, manager: manager, request: request, announce: announce}
}

// Start launches the periodic gossip ticker.
func (s *Service) Start(ctx context.Context) {
	s.ticker = libtck.New(GossipInterval, s.onGossipTick)
	s.ticker.Start(ctx)
}

// Stop cancels the gossip ticker.
func (s *Service) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
}

func (s *Service) onGossipTick(ctx context.Context, _ *time.Ticker) error {
	s.GossipNow()
	return nil
}

// GossipNow runs one push/pull round immediately, out of band from the
// periodic ticker.
func (s *Service) GossipNow() {
	s.pull()
	s.push()
}

func (s *Service) pull() {
	if s.request == nil {
		return
	}

	anchors := s.manager.Anchors()
	targets := make(map[string]struct{}, len(anchors)+PullFanout)
	for _, a := range anchors {
		targets[a] = struct{}{}
	}

	var nonAnchor []string
	for _, n := range s.manager.DirectNeighbors() {
		if _, isAnchor := targets[n]; !isAnchor {
			nonAnchor = append(nonAnchor, n)
		}
	}
	rand.Shuffle(len(nonAnchor), func(i, j int) { nonAnchor[i], nonAnchor[j] = nonAnchor[j], nonAnchor[i] })
	if len(nonAnchor) > PullFanout {
		nonAnchor = nonAnchor[:PullFanout]
	}
	for _, n := range nonAnchor {
		targets[n] = struct{}{}
	}

	for n := range targets {
		_ = s.request(n)
	}
}

func (s *Service) push() {
	if s.announce == nil {
		return
	}
	sample := s.BuildSample(PushSampleSize)
	for _, n := range s.manager.DirectNeighbors() {
		_ = s.announce(n, sample)
	}
}

// BuildSample assembles up to n known peers to advertise, using the same
// reputation-gated discovery pool as peer.Manager.SelectForDiscovery.
func (s *Service) BuildSample(n int) []PeerAdvert {
	sel := s.manager.SelectForDiscovery(n)
	out := make([]PeerAdvert, 0, len(sel))
	for _, p := range sel {
		out = append(out, PeerAdvert{NodeID: p.NodeID, Endpoint: p.Endpoint, Roles: p.Roles})
	}
	return out
}

// SeedBootstrapAnchors admits each bootstrap endpoint as a placeholder
// anchor peer, keyed on a synthetic id, so it can be dialed before its
// real node id is known.
func (s *Service) SeedBootstrapAnchors(endpoints []string) {
	for _, ep := range endpoints {
		_ = s.manager.Add(schema.PeerState{
			NodeID:   anchorPlaceholderPrefix + ep,
			Endpoint: ep,
			Roles:    []string{"role:anchor"},
			IsAnchor: true,
			LastSeen: time.Now(),
		})
	}
}

// PlaceholderID returns the synthetic node id SeedBootstrapAnchors assigned
// to endpoint, so a caller dialing it can later rewrite it.
func PlaceholderID(endpoint string) string {
	return anchorPlaceholderPrefix + endpoint
}

// ResolveAnchor rewrites a bootstrap placeholder to the anchor's real node
// id once learned via handshake.
func (s *Service) ResolveAnchor(endpoint, realNodeID string) liberr.Error {
	return s.manager.Rename(PlaceholderID(endpoint), realNodeID)
}

// HandleInbound merges a received peer list into the known-peer table,
// skipping self and already-connected peers' connection state, and
// bounding total directory growth at MaxKnownPeers.
func (s *Service) HandleInbound(adverts []PeerAdvert) {
	for _, a := range adverts {
		if a.NodeID == "" || a.NodeID == s.selfID {
			continue
		}

		if _, ok := s.manager.Get(a.NodeID); ok {
			s.manager.Update(a.NodeID, func(p *schema.PeerState) {
				p.Endpoint = a.Endpoint
				p.Roles = a.Roles
			})
			continue
		}

		if s.manager.Count() >= MaxKnownPeers {
			continue
		}

		_ = s.manager.Add(schema.PeerState{
			NodeID:   a.NodeID,
			Endpoint: a.Endpoint,
			Roles:    a.Roles,
			IsAnchor: hasAnchorRole(a.Roles),
			LastSeen: time.Now(),
		})
	}
}

func hasAnchorRole(roles []string) bool {
	for _, r := range roles {
		if r == "role:anchor" {
			return true
		}
	}
	return false
}
