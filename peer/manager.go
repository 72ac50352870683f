/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package peer implements the known-peer table: admission, reputation,
// blacklisting, and connection-limited selection.
package peer

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	liberr "github.com/nabbar/genesis-mesh/errors"
	"github.com/nabbar/genesis-mesh/schema"
)

// Manager is the single table of known peers keyed by node id.
type Manager struct {
	mu     sync.RWMutex
	selfID string
	cfg    Config
	peers  map[string]*schema.PeerState
}

// New constructs a peer Manager. selfID is never stored in the table.
func New(selfID string, cfg Config) *Manager {
	return &Manager{selfID: selfID, cfg: cfg.withDefaults(), peers: make(map[string]*schema.PeerState)}
}

// Add admits a new peer record, or replaces the existing record with the
// same NodeID (a placeholder record is renamed with Rename, not Add). It
// rejects self and currently-blacklisted peers.
func (m *Manager) Add(p schema.PeerState) liberr.Error {
	if p.NodeID == m.selfID {
		return liberr.New(liberr.KindValidation, "cannot add self as peer")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.peers[p.NodeID]; ok && existing.IsBlacklisted(time.Now()) {
		return liberr.New(liberr.KindAuthorization, "peer is blacklisted")
	}

	if p.Reputation == 0 {
		p.Reputation = schema.DefaultReputation
	}
	cp := p
	m.peers[p.NodeID] = &cp
	return nil
}

// Rename moves a peer record from oldID to newID, used when an anchor
// placeholder is rewritten with the anchor's real node id post-handshake.
func (m *Manager) Rename(oldID, newID string) liberr.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peers[oldID]
	if !ok {
		return liberr.New(liberr.KindValidation, "unknown peer")
	}
	delete(m.peers, oldID)
	cp := *p
	cp.NodeID = newID
	m.peers[newID] = &cp
	return nil
}

// CanAdmitConnection reports whether admitting a new connection for a peer
// with the given anchor flag would stay within the connection limits.
func (m *Manager) CanAdmitConnection(isAnchor bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	connected, anchors := m.connectedCountLocked()
	if isAnchor {
		return anchors < m.cfg.MaxAnchors
	}
	return connected < m.cfg.MaxPeers
}

func (m *Manager) connectedCountLocked() (connected, anchors int) {
	for _, p := range m.peers {
		if p.IsConnected() {
			connected++
			if p.IsAnchor {
				anchors++
			}
		}
	}
	return
}

// Get returns a copy of the peer record for nodeID.
func (m *Manager) Get(nodeID string) (schema.PeerState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[nodeID]
	if !ok {
		return schema.PeerState{}, false
	}
	return *p, true
}

// Update applies mutate to the stored record for nodeID, if present.
func (m *Manager) Update(nodeID string, mutate func(*schema.PeerState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[nodeID]; ok {
		mutate(p)
		p.Reputation = schema.ClampReputation(p.Reputation)
	}
}

// Remove deletes a peer record entirely (e.g. on REVOKE_NODE).
func (m *Manager) Remove(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, nodeID)
}

// RecordFailure lowers reputation by the configured penalty and blacklists
// the peer if it has accumulated enough consecutive failures or its
// reputation has dropped below the blacklist threshold.
func (m *Manager) RecordFailure(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peers[nodeID]
	if !ok {
		return
	}

	p.Reputation = schema.ClampReputation(p.Reputation - m.cfg.ReputationFailPenalty)
	p.FailedAttempts++

	if p.FailedAttempts >= m.cfg.ConsecutiveFailThreshold || p.Reputation < m.cfg.ReputationBlacklistBelow {
		until := time.Now().Add(m.cfg.BlacklistDuration)
		p.BlacklistedUntil = &until
	}
}

// RecordSuccess resets the consecutive-failure counter for nodeID.
func (m *Manager) RecordSuccess(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[nodeID]; ok {
		p.FailedAttempts = 0
	}
}

// PruneStale removes and returns the node ids of peers whose last_seen is
// older than the configured stale age and which are not currently
// connected.
func (m *Manager) PruneStale(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for id, p := range m.peers {
		if !p.IsConnected() && now.Sub(p.LastSeen) > m.cfg.StaleAge {
			removed = append(removed, id)
			delete(m.peers, id)
		}
	}
	return removed
}

// SelectForDiscovery uniformly samples up to n peers with reputation above
// the configured threshold and no active blacklist.
func (m *Manager) SelectForDiscovery(n int) []schema.PeerState {
	m.mu.RLock()
	now := time.Now()
	var pool []schema.PeerState
	for _, p := range m.peers {
		if p.Reputation > m.cfg.DiscoverySampleReputation && !p.IsBlacklisted(now) {
			pool = append(pool, *p)
		}
	}
	m.mu.RUnlock()

	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool
}

// SelectForApplication returns up to n peers sorted by (reputation desc,
// latency asc), the selection policy for application use.
func (m *Manager) SelectForApplication(n int) []schema.PeerState {
	m.mu.RLock()
	pool := make([]schema.PeerState, 0, len(m.peers))
	for _, p := range m.peers {
		pool = append(pool, *p)
	}
	m.mu.RUnlock()

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].Reputation != pool[j].Reputation {
			return pool[i].Reputation > pool[j].Reputation
		}
		li, lj := latencyOf(pool[i]), latencyOf(pool[j])
		return li < lj
	})

	if n < len(pool) {
		pool = pool[:n]
	}
	return pool
}

func latencyOf(p schema.PeerState) time.Duration {
	if p.RTT == nil {
		return time.Hour // unknown RTT sorts last
	}
	return *p.RTT
}

// DirectNeighbors returns the node ids of peers currently connected.
func (m *Manager) DirectNeighbors() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for id, p := range m.peers {
		if p.IsConnected() {
			out = append(out, id)
		}
	}
	return out
}

// Anchors returns the node ids of peers flagged as anchors.
func (m *Manager) Anchors() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for id, p := range m.peers {
		if p.IsAnchor {
			out = append(out, id)
		}
	}
	return out
}

// Count returns the total number of tracked peers (connected or not).
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// All returns a copy of every tracked peer, for gossip and diagnostics.
func (m *Manager) All() []schema.PeerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]schema.PeerState, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, *p)
	}
	return out
}
