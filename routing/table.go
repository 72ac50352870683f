/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package routing implements the distance-vector routing table and protocol:
// DSDV-style per-destination sequence numbers, periodic announce, and stale
// eviction.
package routing

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nabbar/genesis-mesh/schema"
)

// Config holds the routing table's tunables.
type Config struct {
	MaxMetric    int
	RouteTimeout time.Duration
}

// Default returns the recommended tunables for a typical deployment.
func Default() Config {
	return Config{MaxMetric: 10, RouteTimeout: 5 * time.Minute}
}

func (c Config) withDefaults() Config {
	d := Default()
	if c.MaxMetric <= 0 {
		c.MaxMetric = d.MaxMetric
	}
	if c.RouteTimeout <= 0 {
		c.RouteTimeout = d.RouteTimeout
	}
	return c
}

// Table is a node's distance-vector routing table.
type Table struct {
	mu       sync.RWMutex
	selfID   string
	cfg      Config
	localSeq uint64
	routes   map[string]schema.Route
	linkCost map[string]int // neighborID -> link metric; presence = direct neighbor
}

// New constructs an empty routing Table for selfID.
func New(selfID string, cfg Config) *Table {
	return &Table{
		selfID:   selfID,
		cfg:      cfg.withDefaults(),
		routes:   make(map[string]schema.Route),
		linkCost: make(map[string]int),
	}
}

// AddNeighbor records a direct neighbor and its link metric (default 1 if
// linkMetric <= 0), installing its direct route immediately.
func (t *Table) AddNeighbor(neighborID string, linkMetric int) {
	if linkMetric <= 0 {
		linkMetric = 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.linkCost[neighborID] = linkMetric
	t.routes[neighborID] = schema.Route{
		Destination: neighborID,
		NextHop:     neighborID,
		Metric:      linkMetric,
		Sequence:    t.localSeq,
		LearnedAt:   time.Now(),
		LearnedFrom: neighborID,
	}
}

// RemoveNeighbor drops a direct neighbor and invalidates every route whose
// next-hop was that neighbor.
func (t *Table) RemoveNeighbor(neighborID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.linkCost, neighborID)

	var invalidated []string
	for dest, r := range t.routes {
		if r.NextHop == neighborID {
			invalidated = append(invalidated, dest)
			delete(t.routes, dest)
		}
	}
	return invalidated
}

// IsDirectNeighbor reports whether nodeID is a currently tracked neighbor.
func (t *Table) IsDirectNeighbor(nodeID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.linkCost[nodeID]
	return ok
}

// AdvertiseSelf increments and returns this node's local sequence number,
// used when publishing a fresh update about itself.
func (t *Table) AdvertiseSelf() uint64 {
	return atomic.AddUint64(&t.localSeq, 1)
}

// LocalSequence returns the current local sequence number without
// incrementing it.
func (t *Table) LocalSequence() uint64 {
	return atomic.LoadUint64(&t.localSeq)
}

// Accept applies the route acceptance rule to an inbound advertisement of
// (dest, seq, metric) received from neighbor. It returns whether the
// advertisement was installed.
func (t *Table) Accept(dest string, seq uint64, metric int, neighbor string) bool {
	if dest == t.selfID {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	link, isNeighbor := t.linkCost[neighbor]
	if !isNeighbor {
		return false
	}

	effectiveMetric := metric + link
	if effectiveMetric > t.cfg.MaxMetric {
		return false
	}

	existing, ok := t.routes[dest]
	if ok && !existing.Dominates(seq, effectiveMetric) {
		return false
	}

	t.routes[dest] = schema.Route{
		Destination: dest,
		NextHop:     neighbor,
		Metric:      effectiveMetric,
		Sequence:    seq,
		LearnedAt:   time.Now(),
		LearnedFrom: neighbor,
	}
	return true
}

// Get returns a copy of the route to dest, if any.
func (t *Table) Get(dest string) (schema.Route, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.routes[dest]
	return r, ok
}

// All returns a copy of every installed route.
func (t *Table) All() []schema.Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]schema.Route, 0, len(t.routes))
	for _, r := range t.routes {
		out = append(out, r)
	}
	return out
}

// RoutesExcludingNextHop returns every installed route whose next hop is not
// exclude, split-horizon style: a route learned from (or leading through) a
// given neighbor is never re-advertised back to that same neighbor, but
// routes to other destinations are included even if those destinations are
// themselves direct neighbors.
func (t *Table) RoutesExcludingNextHop(exclude string) []schema.Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []schema.Route
	for _, r := range t.routes {
		if r.NextHop != exclude {
			out = append(out, r)
		}
	}
	return out
}

// EvictStale removes routes older than the configured timeout, except
// direct-neighbor routes (Destination == NextHop), which only expire via
// RemoveNeighbor.
func (t *Table) EvictStale(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []string
	for dest, r := range t.routes {
		if r.Destination == r.NextHop {
			continue // direct-neighbor route, never expires by timeout
		}
		if now.Sub(r.LearnedAt) > t.cfg.RouteTimeout {
			evicted = append(evicted, dest)
			delete(t.routes, dest)
		}
	}
	return evicted
}

// Neighbors returns the node ids of all tracked direct neighbors.
func (t *Table) Neighbors() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.linkCost))
	for n := range t.linkCost {
		out = append(out, n)
	}
	return out
}
