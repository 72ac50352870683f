package routing

import (
	"context"
	"time"

	libtck "github.com/nabbar/genesis-mesh/ticker"
)

// AnnounceInterval is the periodic route-announce cadence.
const AnnounceInterval = 30 * time.Second

// CleanupInterval is the periodic stale-route eviction cadence.
const CleanupInterval = 60 * time.Second

// Advertisement is one (destination, sequence, metric) entry of a
// route_announce / route_update wire message payload.
type Advertisement struct {
	Destination string `json:"destination"`
	Sequence    uint64 `json:"sequence"`
	Metric      int    `json:"metric"`
}

// SendToNeighbor delivers an announcement to one neighbor. The router/
// connection layer supplies the concrete implementation.
type SendToNeighbor func(neighborID string, ads []Advertisement)

// OnRouteEvicted observes routes removed by the periodic cleanup sweep, used
// to optionally emit an advisory ROUTE_WITHDRAW.
type OnRouteEvicted func(destinations []string)

// Protocol drives the periodic announce and cleanup tasks over a Table.
type Protocol struct {
	table *Table
	send  SendToNeighbor
	onEvicted OnRouteEvicted

	announceTicker libtck.Ticker
	cleanupTicker  libtck.Ticker
}

// NewProtocol builds a Protocol over table, delivering announcements via
// send and (optionally) observing evictions via onEvicted.
func NewProtocol(table *Table, send SendToNeighbor, onEvicted OnRouteEvicted) *Protocol {
	return &Protocol{table: table, send: send, onEvicted: onEvicted}
}

// Start launches the announce and cleanup tickers.
func (p *Protocol) Start(ctx context.Context) {
	p.announceTicker = libtck.New(AnnounceInterval, p.onAnnounceTick)
	p.announceTicker.Start(ctx)

	p.cleanupTicker = libtck.New(CleanupInterval, p.onCleanupTick)
	p.cleanupTicker.Start(ctx)
}

// Stop cancels both tickers.
func (p *Protocol) Stop() {
	if p.announceTicker != nil {
		p.announceTicker.Stop()
	}
	if p.cleanupTicker != nil {
		p.cleanupTicker.Stop()
	}
}

func (p *Protocol) onAnnounceTick(ctx context.Context, _ *time.Ticker) error {
	p.AnnounceNow()
	return nil
}

func (p *Protocol) onCleanupTick(ctx context.Context, _ *time.Ticker) error {
	evicted := p.table.EvictStale(time.Now())
	if len(evicted) > 0 && p.onEvicted != nil {
		p.onEvicted(evicted)
	}
	return nil
}

// AnnounceNow immediately advertises this node's table to every direct
// neighbor, out of band from the periodic ticker. Each neighbor gets its
// own split-horizon view via BuildAnnouncement, all sharing one freshly
// advanced self sequence number for this announce cycle.
func (p *Protocol) AnnounceNow() {
	if p.send == nil {
		return
	}

	selfSeq := p.table.AdvertiseSelf()
	for _, n := range p.table.Neighbors() {
		p.send(n, p.buildAnnouncement(n, selfSeq))
	}
}

// BuildAnnouncement assembles the advertisement set sent to recipient,
// advancing this node's self sequence number for the occasion. Exposed for
// callers (and tests) that drive a single recipient outside of AnnounceNow.
func (p *Protocol) BuildAnnouncement(recipient string) []Advertisement {
	return p.buildAnnouncement(recipient, p.table.AdvertiseSelf())
}

// buildAnnouncement assembles a fresh self entry (at selfSeq) plus every
// known route whose next hop is not recipient itself. Split horizon only
// excludes the route recipient taught us (or routes forwarded through it);
// a route to a different direct neighbor is still included, so a line
// topology A-B-C lets B tell A about C.
func (p *Protocol) buildAnnouncement(recipient string, selfSeq uint64) []Advertisement {
	ads := []Advertisement{{
		Destination: p.table.selfID,
		Sequence:    selfSeq,
		Metric:      0,
	}}
	for _, r := range p.table.RoutesExcludingNextHop(recipient) {
		ads = append(ads, Advertisement{Destination: r.Destination, Sequence: r.Sequence, Metric: r.Metric})
	}
	return ads
}

// HandleAnnouncement applies the acceptance rule to every advertisement
// received from neighbor.
func (p *Protocol) HandleAnnouncement(neighbor string, ads []Advertisement) {
	for _, a := range ads {
		p.table.Accept(a.Destination, a.Sequence, a.Metric, neighbor)
	}
}

// HandleWithdraw is advisory: it accelerates expiry by evicting
// the named destinations if their current next-hop is the advertising
// neighbor, but is not required to delete synchronously and never touches
// direct-neighbor routes.
func (p *Protocol) HandleWithdraw(neighbor string, destinations []string) {
	for _, dest := range destinations {
		if r, ok := p.table.Get(dest); ok && r.NextHop == neighbor && r.Destination != r.NextHop {
			p.table.mu.Lock()
			delete(p.table.routes, dest)
			p.table.mu.Unlock()
		}
	}
}
