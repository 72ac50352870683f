/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package revocation implements CRL gossip: sequence-gated installation of
// new Certificate Revocation Lists and the announce/request/data/emergency
// exchange that propagates them.
package revocation

import (
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	liberr "github.com/nabbar/genesis-mesh/errors"
	"github.com/nabbar/genesis-mesh/schema"
)

// CacheCapacity bounds how many past CRLs (by sequence) are retained
// alongside the current one.
const CacheCapacity = 50

// CacheTTL is the eviction lifetime for a cached CRL other than the
// current one.
const CacheTTL = 24 * time.Hour

// Action enumerates the revocation gossip wire actions carried inside a
// "revocation" message's payload.
type Action string

const (
	ActionAnnounceSequence Action = "announce_sequence"
	ActionRequestCRL       Action = "request_crl"
	ActionCRLData          Action = "crl_data"
	ActionEmergencyCRL     Action = "emergency_crl"
)

// Envelope is the payload carried by a MsgRevocation wire message.
type Envelope struct {
	Action   Action     `json:"action"`
	Sequence uint64     `json:"sequence,omitempty"`
	CRL      *schema.CRL `json:"crl,omitempty"`
}

// SendToNeighbor delivers a revocation gossip envelope to one neighbor.
type SendToNeighbor func(neighborID string, env Envelope) liberr.Error

// OnInstalled is notified every time a new CRL is installed as current.
type OnInstalled func(crl schema.CRL)

// Store tracks the currently installed CRL plus a bounded cache of
// superseded ones, and drives the gossip exchange that keeps it current.
type Store struct {
	mu sync.RWMutex

	genesis schema.GenesisBlock
	current *schema.CRL

	cache *gocache.Cache // sequence (as string) -> schema.CRL

	send        SendToNeighbor
	onInstalled OnInstalled
}

// New constructs a Store that verifies incoming CRLs against gb's Network
// Authority key.
func New(gb schema.GenesisBlock, send SendToNeighbor, onInstalled OnInstalled) *Store {
	return &Store{
		genesis:     gb,
		cache:       gocache.New(CacheTTL, time.Hour),
		send:        send,
		onInstalled: onInstalled,
	}
}

// CurrentSequence returns the sequence number of the installed CRL, or 0 if
// none has been installed yet.
func (s *Store) CurrentSequence() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.Sequence
}

// IsRevoked reports whether certID is revoked under the currently
// installed CRL.
func (s *Store) IsRevoked(certID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return false
	}
	return s.current.IsRevoked(certID)
}

// HandleAnnounce processes an announce_sequence: if the advertised sequence
// is newer than ours, request the full CRL from the advertising neighbor; if
// it is older, push our current CRL back to the behind neighbor unsolicited.
// Equal sequences require no action either way.
func (s *Store) HandleAnnounce(neighbor string, seq uint64) {
	current := s.CurrentSequence()

	if seq > current {
		if s.send != nil {
			_ = s.send(neighbor, Envelope{Action: ActionRequestCRL, Sequence: current})
		}
		return
	}

	if seq < current {
		if env, ok := s.HandleRequest(seq); ok && s.send != nil {
			_ = s.send(neighbor, env)
		}
	}
}

// HandleRequest builds a crl_data response for a peer that is behind,
// given the requester's last-known sequence. Returns false if we have
// nothing newer to offer.
func (s *Store) HandleRequest(knownSeq uint64) (Envelope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.Sequence <= knownSeq {
		return Envelope{}, false
	}
	crl := *s.current
	return Envelope{Action: ActionCRLData, CRL: &crl}, true
}

// HandleData and HandleEmergency both attempt to install a gossiped CRL.
// Invalid signatures, unknown issuers, and non-progressing sequences are
// rejected silently: the caller is told whether it installed, never why it
// did not.
func (s *Store) HandleData(crl schema.CRL) bool {
	return s.tryInstall(crl)
}

func (s *Store) HandleEmergency(crl schema.CRL) bool {
	return s.tryInstall(crl)
}

func (s *Store) tryInstall(crl schema.CRL) bool {
	if !crl.Verify(s.genesis) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && !schema.SupersedesSequence(s.current.Sequence, crl.Sequence) {
		return false
	}

	if s.current != nil {
		s.cache.Set(sequenceKey(s.current.Sequence), *s.current, CacheTTL)
		if s.cache.ItemCount() > CacheCapacity {
			s.evictOldestLocked()
		}
	}

	installed := crl
	s.current = &installed

	if s.onInstalled != nil {
		s.onInstalled(installed)
	}
	return true
}

func (s *Store) evictOldestLocked() {
	items := s.cache.Items()
	var oldestKey string
	var oldestExp int64
	first := true
	for k, it := range items {
		if first || it.Expiration < oldestExp {
			oldestKey = k
			oldestExp = it.Expiration
			first = false
		}
	}
	if oldestKey != "" {
		s.cache.Delete(oldestKey)
	}
}

// Announce builds an announce_sequence envelope for the current sequence,
// to be broadcast to every direct neighbor on a gossip tick.
func (s *Store) Announce() Envelope {
	return Envelope{Action: ActionAnnounceSequence, Sequence: s.CurrentSequence()}
}

func sequenceKey(seq uint64) string {
	return "seq:" + strconv.FormatUint(seq, 10)
}
