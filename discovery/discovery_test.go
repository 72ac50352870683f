package discovery_test

import (
	"testing"
	"time"

	"github.com/nabbar/genesis-mesh/discovery"
	liberr "github.com/nabbar/genesis-mesh/errors"
	"github.com/nabbar/genesis-mesh/peer"
	"github.com/nabbar/genesis-mesh/schema"
)

func established(m *peer.Manager, id string, anchor bool) {
	roles := []string{"role:client"}
	if anchor {
		roles = []string{"role:anchor"}
	}
	_ = m.Add(schema.PeerState{
		NodeID:       id,
		ConnectionID: "c-" + id,
		Roles:        roles,
		IsAnchor:     anchor,
		Reputation:   1,
		LastSeen:     time.Now(),
	})
}

func TestSeedBootstrapAnchorsThenResolve(t *testing.T) {
	m := peer.New("self", peer.Default())
	svc := discovery.New("self", m, nil, nil)

	svc.SeedBootstrapAnchors([]string{"anchor1.example:9000"})

	placeholder := discovery.PlaceholderID("anchor1.example:9000")
	if _, ok := m.Get(placeholder); !ok {
		t.Fatal("expected placeholder anchor peer to be admitted")
	}

	if err := svc.ResolveAnchor("anchor1.example:9000", "real-node-id"); err != nil {
		t.Fatalf("resolve anchor: %v", err)
	}
	if _, ok := m.Get("real-node-id"); !ok {
		t.Fatal("expected placeholder to be renamed to the real node id")
	}
	if _, ok := m.Get(placeholder); ok {
		t.Fatal("expected placeholder id to no longer exist after rename")
	}
}

func TestGossipPullsFromAnchorsAndSampleOfNonAnchors(t *testing.T) {
	m := peer.New("self", peer.Default())
	established(m, "anchor1", true)
	for i := 0; i < 6; i++ {
		established(m, string(rune('a'+i)), false)
	}

	var requested []string
	request := func(n string) liberr.Error {
		requested = append(requested, n)
		return nil
	}

	svc := discovery.New("self", m, request, nil)
	svc.GossipNow()

	if len(requested) != 1+discovery.PullFanout {
		t.Fatalf("expected 1 anchor + %d non-anchor pulls, got %d: %v", discovery.PullFanout, len(requested), requested)
	}

	foundAnchor := false
	for _, n := range requested {
		if n == "anchor1" {
			foundAnchor = true
		}
	}
	if !foundAnchor {
		t.Fatal("expected anchor to always be included in the pull targets")
	}
}

func TestGossipPushesSampleToAllNeighbors(t *testing.T) {
	m := peer.New("self", peer.Default())
	established(m, "n1", false)
	established(m, "n2", false)
	_ = m.Add(schema.PeerState{NodeID: "known", Reputation: 0.9, LastSeen: time.Now()})

	announced := map[string][]discovery.PeerAdvert{}
	announce := func(n string, sample []discovery.PeerAdvert) liberr.Error {
		announced[n] = sample
		return nil
	}

	svc := discovery.New("self", m, nil, announce)
	svc.GossipNow()

	if len(announced) != 2 {
		t.Fatalf("expected push to both established neighbors, got %d", len(announced))
	}
}

func TestHandleInboundSkipsSelfAndMergesKnownPeer(t *testing.T) {
	m := peer.New("self", peer.Default())
	svc := discovery.New("self", m, nil, nil)

	svc.HandleInbound([]discovery.PeerAdvert{
		{NodeID: "self", Endpoint: "should-be-ignored"},
		{NodeID: "new-peer", Endpoint: "10.0.0.1:9000", Roles: []string{"role:client"}},
	})

	if _, ok := m.Get("self"); ok {
		t.Fatal("expected self to never be admitted via gossip")
	}
	p, ok := m.Get("new-peer")
	if !ok {
		t.Fatal("expected new-peer to be admitted")
	}
	if p.Endpoint != "10.0.0.1:9000" {
		t.Fatalf("unexpected endpoint %q", p.Endpoint)
	}

	svc.HandleInbound([]discovery.PeerAdvert{
		{NodeID: "new-peer", Endpoint: "10.0.0.2:9001", Roles: []string{"role:anchor"}},
	})
	p, _ = m.Get("new-peer")
	if p.Endpoint != "10.0.0.2:9001" {
		t.Fatalf("expected endpoint to be updated on re-gossip, got %q", p.Endpoint)
	}
}
