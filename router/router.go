/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package router implements DATA forwarding: local delivery, broadcast
// fan-out, unicast via the routing table, TTL decrement, and message-id
// loop suppression.
package router

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	liberr "github.com/nabbar/genesis-mesh/errors"
	"github.com/nabbar/genesis-mesh/schema"
)

// SeenTTL is the loop-suppression cache's entry lifetime.
const SeenTTL = 5 * time.Minute

// SendToNeighbor delivers msg to one direct neighbor over its live
// connection. Implementations should return a Transport-kind error if no
// live connection to neighborID exists.
type SendToNeighbor func(neighborID string, msg schema.WireMessage) liberr.Error

// Deliver hands a message addressed to this node to the local application.
type Deliver func(msg schema.WireMessage)

// NeighborLister enumerates direct neighbors, e.g. peer.Manager.DirectNeighbors.
type NeighborLister func() []string

// RouteLookup resolves a destination to a route, e.g. routing.Table.Get.
type RouteLookup func(dest string) (schema.Route, bool)

// HasConnection reports whether a live connection exists to nodeID.
type HasConnection func(nodeID string) bool

// Stats is a snapshot of the router's forwarding counters.
type Stats struct {
	Forwarded uint64
	Delivered uint64
	Dropped   uint64
	Duplicate uint64
}

// Router forwards non-local DATA messages.
type Router struct {
	selfID string

	seen *gocache.Cache

	neighbors      NeighborLister
	lookupRoute    RouteLookup
	hasConnection  HasConnection
	sendToNeighbor SendToNeighbor
	deliver        Deliver

	forwarded uint64
	delivered uint64
	dropped   uint64
	duplicate uint64
}

// New constructs a Router. All of the function parameters are required for
// the router to be useful; nil values make the corresponding paths no-ops
// rather than panicking, which keeps unit tests focused.
func New(selfID string, neighbors NeighborLister, lookupRoute RouteLookup, hasConnection HasConnection, sendToNeighbor SendToNeighbor, deliver Deliver) *Router {
	return &Router{
		selfID:         selfID,
		seen:           gocache.New(SeenTTL, time.Minute),
		neighbors:      neighbors,
		lookupRoute:    lookupRoute,
		hasConnection:  hasConnection,
		sendToNeighbor: sendToNeighbor,
		deliver:        deliver,
	}
}

// Route forwards or delivers msg, received over the connection from
// fromNeighbor. It is the single entrypoint for every inbound DATA message.
func (r *Router) Route(msg schema.WireMessage, fromNeighbor string) {
	if _, dup := r.seen.Get(msg.MessageID); dup {
		atomic.AddUint64(&r.duplicate, 1)
		return
	}
	r.seen.SetDefault(msg.MessageID, struct{}{})

	if msg.IsBroadcast() {
		r.forwardBroadcast(msg, fromNeighbor)
		return
	}

	if msg.RecipientID != nil && *msg.RecipientID == r.selfID {
		if r.deliver != nil {
			r.deliver(msg)
		}
		atomic.AddUint64(&r.delivered, 1)
		return
	}

	r.forwardUnicast(msg)
}

func (r *Router) forwardBroadcast(msg schema.WireMessage, fromNeighbor string) {
	next, ok := msg.DecrementTTL()
	if !ok {
		atomic.AddUint64(&r.dropped, 1)
		return
	}
	if r.neighbors == nil || r.sendToNeighbor == nil {
		return
	}
	for _, n := range r.neighbors() {
		if n == fromNeighbor {
			continue
		}
		if err := r.sendToNeighbor(n, next); err != nil {
			atomic.AddUint64(&r.dropped, 1)
			continue
		}
		atomic.AddUint64(&r.forwarded, 1)
	}
}

func (r *Router) forwardUnicast(msg schema.WireMessage) {
	if r.lookupRoute == nil || r.sendToNeighbor == nil {
		atomic.AddUint64(&r.dropped, 1)
		return
	}

	route, ok := r.lookupRoute(*msg.RecipientID)
	if !ok || (r.hasConnection != nil && !r.hasConnection(route.NextHop)) {
		atomic.AddUint64(&r.dropped, 1)
		return
	}

	next, ok := msg.DecrementTTL()
	if !ok {
		atomic.AddUint64(&r.dropped, 1)
		return
	}

	if err := r.sendToNeighbor(route.NextHop, next); err != nil {
		atomic.AddUint64(&r.dropped, 1)
		return
	}
	atomic.AddUint64(&r.forwarded, 1)
}

// Stats returns a snapshot of the forwarding counters.
func (r *Router) Stats() Stats {
	return Stats{
		Forwarded: atomic.LoadUint64(&r.forwarded),
		Delivered: atomic.LoadUint64(&r.delivered),
		Dropped:   atomic.LoadUint64(&r.dropped),
		Duplicate: atomic.LoadUint64(&r.duplicate),
	}
}

// SeenCount returns the number of message ids currently cached for loop
// suppression, for diagnostics.
func (r *Router) SeenCount() int {
	return r.seen.ItemCount()
}
