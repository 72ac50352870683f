package peer_test

import (
	"testing"
	"time"

	"github.com/nabbar/genesis-mesh/peer"
	"github.com/nabbar/genesis-mesh/schema"
)

func TestSelfIsNeverStored(t *testing.T) {
	m := peer.New("self", peer.Default())
	if err := m.Add(schema.PeerState{NodeID: "self"}); err == nil {
		t.Fatal("expected adding self to be rejected")
	}
	if m.Count() != 0 {
		t.Fatalf("expected 0 peers, got %d", m.Count())
	}
}

func TestBlacklistedPeerCannotBeReadmitted(t *testing.T) {
	m := peer.New("self", peer.Default())
	if err := m.Add(schema.PeerState{NodeID: "p1", LastSeen: time.Now()}); err != nil {
		t.Fatalf("add: %v", err)
	}

	for i := 0; i < 5; i++ {
		m.RecordFailure("p1")
	}

	p, _ := m.Get("p1")
	if !p.IsBlacklisted(time.Now()) {
		t.Fatal("expected peer to be blacklisted after 5 consecutive failures")
	}

	if err := m.Add(schema.PeerState{NodeID: "p1", LastSeen: time.Now()}); err == nil {
		t.Fatal("expected readmission of blacklisted peer to be rejected")
	}
}

func TestReputationClampedAndBlacklistOnLowReputation(t *testing.T) {
	m := peer.New("self", peer.Default())
	_ = m.Add(schema.PeerState{NodeID: "p1", Reputation: 0.15})

	m.RecordFailure("p1") // -> 0.05, below 0.1 threshold
	p, _ := m.Get("p1")
	if p.Reputation < 0 || p.Reputation > 1 {
		t.Fatalf("expected reputation clamped to [0,1], got %f", p.Reputation)
	}
	if !p.IsBlacklisted(time.Now()) {
		t.Fatal("expected blacklist when reputation drops below 0.1")
	}
}

func TestPruneStaleSkipsConnectedPeers(t *testing.T) {
	m := peer.New("self", peer.Default())
	old := time.Now().Add(-2 * time.Hour)

	_ = m.Add(schema.PeerState{NodeID: "stale", LastSeen: old})
	_ = m.Add(schema.PeerState{NodeID: "stale-connected", LastSeen: old, ConnectionID: "c1"})

	removed := m.PruneStale(time.Now())
	if len(removed) != 1 || removed[0] != "stale" {
		t.Fatalf("expected only 'stale' to be pruned, got %v", removed)
	}
	if _, ok := m.Get("stale-connected"); !ok {
		t.Fatal("expected connected stale peer to survive pruning")
	}
}

func TestSelectForApplicationOrdering(t *testing.T) {
	m := peer.New("self", peer.Default())
	fast := 10 * time.Millisecond
	slow := 100 * time.Millisecond

	_ = m.Add(schema.PeerState{NodeID: "a", Reputation: 0.9, RTT: &slow})
	_ = m.Add(schema.PeerState{NodeID: "b", Reputation: 0.9, RTT: &fast})
	_ = m.Add(schema.PeerState{NodeID: "c", Reputation: 0.5})

	sel := m.SelectForApplication(3)
	if len(sel) != 3 {
		t.Fatalf("expected 3 peers, got %d", len(sel))
	}
	if sel[0].NodeID != "b" || sel[1].NodeID != "a" || sel[2].NodeID != "c" {
		t.Fatalf("unexpected ordering: %v", []string{sel[0].NodeID, sel[1].NodeID, sel[2].NodeID})
	}
}

func TestConnectionLimitsEnforced(t *testing.T) {
	cfg := peer.Default()
	cfg.MaxPeers = 1
	cfg.MaxAnchors = 1
	m := peer.New("self", cfg)

	_ = m.Add(schema.PeerState{NodeID: "p1", ConnectionID: "c1"})
	if m.CanAdmitConnection(false) {
		t.Fatal("expected connection limit to be reached")
	}
	if !m.CanAdmitConnection(true) {
		t.Fatal("expected anchor limit to be independent of peer limit")
	}
}
